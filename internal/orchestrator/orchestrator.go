// Package orchestrator drives ranked candidates through the generation
// provider one at a time until one succeeds.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medportal/internal/core"
	"medportal/internal/metrics"
	"medportal/internal/ranking"
)

// SessionStore is the part of the session store the cascade needs.
type SessionStore interface {
	CreateSession(owner, model, instruction string, turns []core.ConversationTurn) (string, error)
	AppendTurn(ctx context.Context, owner, sessionID, text string) (*core.GenerationResult, error)
}

// Config configures an Orchestrator.
type Config struct {
	Catalog        core.ModelCatalog
	Provider       core.GenerationProvider
	Sessions       SessionStore
	AttemptTimeout time.Duration
	Logger         core.Logger
	Metrics        core.MetricsCollector
}

// Orchestrator runs the fallback cascade and binds the winner to a session.
type Orchestrator struct {
	catalog        core.ModelCatalog
	provider       core.GenerationProvider
	sessions       SessionStore
	attemptTimeout time.Duration
	logger         core.Logger
	metrics        core.MetricsCollector
}

// New creates an Orchestrator. Catalog, provider and session store are required.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Catalog == nil || cfg.Provider == nil || cfg.Sessions == nil {
		return nil, errors.New("orchestrator requires a catalog, a provider and a session store")
	}
	if cfg.Logger == nil {
		cfg.Logger = &core.NopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &core.NopMetrics{}
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = core.DefaultAttemptTimeout
	}
	return &Orchestrator{
		catalog:        cfg.Catalog,
		provider:       cfg.Provider,
		sessions:       cfg.Sessions,
		attemptTimeout: cfg.AttemptTimeout,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}, nil
}

// Candidates returns the current ranked candidate list with tiers.
func (o *Orchestrator) Candidates(ctx context.Context) []ranking.RankedCandidate {
	return ranking.Explain(o.catalog.Refresh(ctx))
}

// Generate answers p. With a sessionID the bound model continues that
// conversation; otherwise a fresh cascade runs and the winner is bound to a
// new session owned by owner.
func (o *Orchestrator) Generate(ctx context.Context, owner string, p core.Prompt, sessionID string) (*core.GenerationResult, error) {
	start := time.Now()

	if sessionID != "" {
		res, err := o.sessions.AppendTurn(ctx, owner, sessionID, p.Message)
		o.recordRequest(start, res, err, core.SourceTurn)
		return res, err
	}

	source := sourceOf(p.Kind)
	res, err := o.firstTurn(ctx, owner, p, source)
	o.recordRequest(start, res, err, source)
	return res, err
}

func (o *Orchestrator) firstTurn(ctx context.Context, owner string, p core.Prompt, source string) (*core.GenerationResult, error) {
	if strings.TrimSpace(p.Message) == "" {
		return nil, &core.MissingContextError{Field: "message"}
	}

	candidates := ranking.Rank(o.catalog.Refresh(ctx))
	req := core.GenerationRequest{Instruction: p.Instruction, Message: p.Message}

	model, text, attempts, err := o.cascade(ctx, candidates, req, source)
	if err != nil {
		if errors.Is(err, core.ErrExhausted) {
			o.invalidateCatalog()
		}
		return nil, err
	}

	id, err := o.sessions.CreateSession(owner, model, p.Instruction, []core.ConversationTurn{
		{Role: core.RoleUser, Text: p.Message},
		{Role: core.RoleAssistant, Text: text},
	})
	if err != nil {
		return nil, fmt.Errorf("bind session to %s: %w", model, err)
	}

	o.logger.Info("%s answered by %s after %d attempt(s), session %s", source, model, len(attempts), id)
	return &core.GenerationResult{SessionID: id, Model: model, Text: text, Attempts: attempts}, nil
}

// cascade tries each candidate exactly once, in order, never in parallel.
func (o *Orchestrator) cascade(ctx context.Context, candidates []string, req core.GenerationRequest, source string) (string, string, []core.GenerationAttempt, error) {
	attempts := make([]core.GenerationAttempt, 0, len(candidates))

	for i, model := range candidates {
		if err := ctx.Err(); err != nil {
			return "", "", attempts, fmt.Errorf("generation stopped after %d attempt(s): %w", len(attempts), err)
		}

		attempt, text := o.attempt(ctx, model, req)
		attempts = append(attempts, attempt)
		o.metrics.RecordAttempt(attempt, source)

		if attempt.Succeeded() {
			return model, text, attempts, nil
		}
		if err := ctx.Err(); err != nil {
			return "", "", attempts, fmt.Errorf("generation stopped after %d attempt(s): %w", len(attempts), err)
		}
		o.logger.Warn("Candidate %d/%d %s failed (%s): %v", i+1, len(candidates), model, attempt.Reason, attempt.Err)
	}

	return "", "", attempts, &core.ExhaustedError{Attempts: attempts}
}

func (o *Orchestrator) attempt(ctx context.Context, model string, req core.GenerationRequest) (core.GenerationAttempt, string) {
	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	text, err := o.provider.Generate(attemptCtx, model, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = &core.ProviderError{Model: model, Reason: core.ReasonMalformedResponse, Err: errors.New("empty generated text")}
	}

	attempt := core.GenerationAttempt{Model: model, Outcome: core.OutcomeSuccess, Duration: time.Since(start)}
	if err != nil {
		attempt.Outcome = core.OutcomeFailure
		attempt.Err = err
		attempt.Reason = core.ReasonOf(err)
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			attempt.Reason = core.ReasonTimeout
		}
		return attempt, ""
	}
	return attempt, text
}

// invalidateCatalog forgets a cached listing after every candidate failed,
// since the cached set may name models that no longer exist.
func (o *Orchestrator) invalidateCatalog() {
	if inv, ok := o.catalog.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
}

func (o *Orchestrator) recordRequest(start time.Time, res *core.GenerationResult, err error, source string) {
	if err != nil {
		metrics.RecordFailureWithMetrics(o.metrics, start, "", source)
		return
	}
	metrics.RecordSuccessWithMetrics(o.metrics, start, res.Model, source)
}

func sourceOf(kind core.PromptKind) string {
	switch kind {
	case core.PromptDrugFeedback:
		return core.SourceDrugFeedback
	default:
		return core.SourceConsultation
	}
}
