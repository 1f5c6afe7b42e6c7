package core

import (
	"fmt"
	"time"
)

// CapabilityTag is a coarse capability inferred from a model identifier.
type CapabilityTag string

// Capability tags.
const (
	TagFast    CapabilityTag = "fast-tier"
	TagPrecise CapabilityTag = "precise-tier"
	TagVision  CapabilityTag = "vision"
)

// ModelDescriptor describes one callable model. Rebuilt on every catalog
// refresh and never persisted.
type ModelDescriptor struct {
	ID       string          `json:"id"`
	Tags     []CapabilityTag `json:"tags"`
	Eligible bool            `json:"eligible"`
}

// HasTag reports whether the descriptor carries tag.
func (d ModelDescriptor) HasTag(tag CapabilityTag) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Tier is an ordinal generation grouping. Larger values are newer.
type Tier int

// TierUnversioned is assigned to identifiers that carry no version.
const TierUnversioned Tier = 0

// NewTier builds a tier from a major/minor version pair.
func NewTier(major, minor int) Tier {
	return Tier(major*100 + minor)
}

// String renders the tier as a version ("2.5") or "unversioned".
func (t Tier) String() string {
	if t <= TierUnversioned {
		return "unversioned"
	}
	return fmt.Sprintf("%d.%d", int(t)/100, int(t)%100)
}

// Role identifies the author of a conversation turn.
type Role string

// Conversation roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message in a chat session.
type ConversationTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ChatSession is a conversation bound to the model that first answered it.
type ChatSession struct {
	ID          string             `json:"id"`
	Owner       string             `json:"-"`
	Model       string             `json:"model"`
	Instruction string             `json:"-"`
	Turns       []ConversationTurn `json:"turns"`
	CreatedAt   time.Time          `json:"created_at"`
	LastActive  time.Time          `json:"last_active"`
}

// GenerationRequest is what a provider receives for a single call. With no
// instruction and no history it is a one-shot generation.
type GenerationRequest struct {
	Instruction string
	History     []ConversationTurn
	Message     string
}

// IsOneShot reports whether the request carries no conversation state.
func (r GenerationRequest) IsOneShot() bool {
	return r.Instruction == "" && len(r.History) == 0
}

// AttemptOutcome is the result of one candidate attempt.
type AttemptOutcome string

// Attempt outcomes.
const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
)

// GenerationAttempt records one candidate attempt during a cascade.
type GenerationAttempt struct {
	Model    string         `json:"model"`
	Outcome  AttemptOutcome `json:"outcome"`
	Reason   FailureReason  `json:"reason,omitempty"`
	Err      error          `json:"-"`
	Duration time.Duration  `json:"duration"`
}

// Succeeded reports whether the attempt produced text.
func (a GenerationAttempt) Succeeded() bool {
	return a.Outcome == OutcomeSuccess
}

// GenerationResult is returned to callers of the orchestrator and session store.
type GenerationResult struct {
	SessionID string              `json:"session_id"`
	Model     string              `json:"model"`
	Text      string              `json:"text"`
	Attempts  []GenerationAttempt `json:"-"`
}

// PromptKind names the conversation type a prompt opens.
type PromptKind string

// Prompt kinds.
const (
	PromptConsultation PromptKind = "consultation"
	PromptDrugFeedback PromptKind = "drug_feedback"
)

// Prompt is the output of the prompt builder. Instruction is kept for the
// whole conversation; Message becomes the first user turn.
type Prompt struct {
	Kind        PromptKind
	Instruction string
	Message     string
}

// RequestStats holds aggregated request statistics for monitoring.
type RequestStats struct {
	TotalRequests      int64           `json:"total_requests"`
	SuccessfulRequests int64           `json:"successful_requests"`
	FailedRequests     int64           `json:"failed_requests"`
	TotalResponseTime  int64           `json:"total_response_time"`
	LastRequestTime    time.Time       `json:"last_request_time"`
	DiscoveryFailures  int64           `json:"discovery_failures"`
	Models             []ModelStats    `json:"models,omitempty"`
	RequestHistory     []RequestRecord `json:"request_history"`
}

// RequestRecord represents one served generation request for history tracking.
type RequestRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	ResponseTime int64     `json:"response_time"`
	Model        string    `json:"model"`
	Source       string    `json:"source"`
}

// PeriodStats holds computed statistics for a time period.
type PeriodStats struct {
	Requests        int64   `json:"requests"`
	SuccessRate     float64 `json:"successRate"`
	AvgResponseTime int64   `json:"avgResponseTime"`
	QPS             float64 `json:"qps"`
}

// ModelStats holds per-model attempt counters.
type ModelStats struct {
	Model     string                  `json:"model"`
	Attempts  int64                   `json:"attempts"`
	Successes int64                   `json:"successes"`
	Failures  map[FailureReason]int64 `json:"failures,omitempty"`
}

// ModelsConfig holds the static candidate configuration from models.json.
type ModelsConfig struct {
	FallbackModels   []string `json:"fallback_models"`
	ExcludedPatterns []string `json:"excluded_patterns,omitempty"`
}
