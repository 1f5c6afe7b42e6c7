package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"medportal/internal/core"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     core.Logger
}

// OpenAIClient speaks the chat completions protocol to any compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
	logger core.Logger
}

// NewOpenAIClient creates a chat completions client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Logger == nil {
		cfg.Logger = &core.NopLogger{}
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	} else {
		clientConfig.BaseURL = strings.TrimRight(core.DefaultOpenAIBaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		logger: cfg.Logger,
	}
}

func buildMessages(req core.GenerationRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.Instruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.Instruction})
	}
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == core.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Text})
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
}

// Generate runs one chat completion against model.
func (o *OpenAIClient) Generate(ctx context.Context, model string, req core.GenerationRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    buildMessages(req),
		Temperature: core.GenerationTemperature,
	})
	if err != nil {
		return "", o.classify(model, err)
	}
	if len(resp.Choices) == 0 {
		return "", malformed(model, "response has no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", malformed(model, "choice content is empty (finish reason %s)", resp.Choices[0].FinishReason)
	}
	return text, nil
}

func (o *OpenAIClient) classify(model string, err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		lower := strings.ToLower(apiErr.Message)
		unknownModel := strings.Contains(lower, "model") && strings.Contains(lower, "not found")
		o.logger.Debug("OpenAI-compatible %s returned %d: %s", model, apiErr.HTTPStatusCode, apiErr.Message)
		return &core.ProviderError{
			Model:      model,
			StatusCode: apiErr.HTTPStatusCode,
			Reason:     reasonForStatus(apiErr.HTTPStatusCode, unknownModel),
			Err:        fmt.Errorf("%s", apiErr.Message),
		}
	case errors.As(err, &reqErr):
		if reqErr.HTTPStatusCode == 0 {
			return transportError(model, err)
		}
		reason := reasonForStatus(reqErr.HTTPStatusCode, false)
		if reqErr.HTTPStatusCode >= 200 && reqErr.HTTPStatusCode < 300 {
			reason = core.ReasonMalformedResponse
		}
		return &core.ProviderError{Model: model, StatusCode: reqErr.HTTPStatusCode, Reason: reason, Err: err}
	default:
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return malformed(model, "decode response: %v", err)
		}
		return transportError(model, err)
	}
}
