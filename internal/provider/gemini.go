package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"medportal/internal/core"
	"medportal/internal/util"

	"github.com/bytedance/sonic"
)

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     core.Logger
}

// GeminiClient calls models/{model}:generateContent.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     core.Logger
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      *geminiContent `json:"content"`
		FinishReason string         `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiClient creates a Gemini REST client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Logger == nil {
		cfg.Logger = &core.NopLogger{}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: core.HTTPRequestTimeout}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = core.DefaultGeminiBaseURL
	}
	return &GeminiClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// buildContents primes the conversation with the instruction as a user turn
// acknowledged by the model, so models without system instructions work too.
func buildContents(req core.GenerationRequest) []geminiContent {
	contents := make([]geminiContent, 0, len(req.History)+3)
	if req.Instruction != "" {
		contents = append(contents,
			geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Instruction}}},
			geminiContent{Role: "model", Parts: []geminiPart{{Text: core.InstructionAcknowledged}}},
		)
	}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == core.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: turn.Text}}})
	}
	return append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Message}}})
}

// Generate runs a single generateContent call.
func (g *GeminiClient) Generate(ctx context.Context, model string, req core.GenerationRequest) (string, error) {
	g.logger.Debug("generateContent on %s (one-shot=%t, history=%d)", model, req.IsOneShot(), len(req.History))
	payload := geminiRequest{
		Contents:         buildContents(req),
		GenerationConfig: geminiGenerationConfig{Temperature: core.GenerationTemperature},
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(model), url.QueryEscape(g.apiKey))

	httpReq, err := util.NewJSONRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return "", &core.ProviderError{Model: model, Reason: core.ReasonProviderError, Err: err}
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(model, util.RedactURLError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := util.ReadLimitedBody(resp)
	if err != nil {
		return "", transportError(model, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", g.statusError(model, resp.StatusCode, body)
	}

	var parsed geminiResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return "", malformed(model, "decode response: %v", err)
	}
	if len(parsed.Candidates) == 0 {
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			return "", malformed(model, "prompt blocked: %s", parsed.PromptFeedback.BlockReason)
		}
		return "", malformed(model, "response has no candidates")
	}

	first := parsed.Candidates[0]
	if first.Content == nil {
		return "", malformed(model, "candidate has no content (finish reason %s)", first.FinishReason)
	}
	var sb strings.Builder
	for _, part := range first.Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", malformed(model, "candidate text is empty")
	}
	return text, nil
}

func (g *GeminiClient) statusError(model string, status int, body []byte) error {
	var apiErr geminiErrorBody
	message := util.TruncateString(string(body), 300, 0, "...")
	if err := sonic.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	lower := strings.ToLower(message)
	unknownModel := strings.Contains(lower, "model") &&
		(strings.Contains(lower, "not found") || strings.Contains(lower, "not supported") || strings.Contains(lower, "unknown"))

	reason := reasonForStatus(status, unknownModel)
	if apiErr.Error.Status == "RESOURCE_EXHAUSTED" {
		reason = core.ReasonQuotaExceeded
	}
	g.logger.Debug("Gemini %s returned %d: %s", model, status, message)
	return &core.ProviderError{Model: model, StatusCode: status, Reason: reason, Err: fmt.Errorf("%s", message)}
}
