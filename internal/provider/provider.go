// Package provider implements core.GenerationProvider against the Gemini
// REST API and against OpenAI-compatible chat endpoints.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"medportal/internal/config"
	"medportal/internal/core"
)

// Config selects and configures a provider.
type Config struct {
	Name          string
	APIKey        string
	GeminiBaseURL string
	OpenAIBaseURL string
	HTTPClient    *http.Client
	Logger        core.Logger
}

// New builds the provider named by cfg.Name.
func New(cfg Config) (core.GenerationProvider, error) {
	switch cfg.Name {
	case "", core.ProviderNameGemini:
		return NewGeminiClient(GeminiConfig{
			BaseURL:    cfg.GeminiBaseURL,
			APIKey:     cfg.APIKey,
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
		}), nil
	case core.ProviderNameOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.APIKey,
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
		}), nil
	default:
		return nil, core.ErrInvalidConfig("GENERATION_PROVIDER", fmt.Sprintf("unsupported provider %q", cfg.Name))
	}
}

// NewHTTPClient builds the pooled client shared by the catalog and providers.
func NewHTTPClient(settings config.HTTPClientSettings) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          settings.MaxIdleConns,
		MaxIdleConnsPerHost:   settings.MaxIdleConnsPerHost,
		MaxConnsPerHost:       settings.MaxConnsPerHost,
		IdleConnTimeout:       settings.IdleConnTimeout,
		TLSHandshakeTimeout:   settings.TLSHandshakeTimeout,
		ExpectContinueTimeout: core.HTTPExpectContinueTimeout,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: core.HTTPResponseHeaderTimeout,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   settings.RequestTimeout,
	}
}

// reasonForStatus maps an upstream HTTP status to a failure reason.
// unknownModel is set when the body says the model does not exist.
func reasonForStatus(status int, unknownModel bool) core.FailureReason {
	switch {
	case status == http.StatusTooManyRequests:
		return core.ReasonQuotaExceeded
	case status == http.StatusNotFound:
		return core.ReasonInvalidModel
	case status == http.StatusBadRequest && unknownModel:
		return core.ReasonInvalidModel
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return core.ReasonTimeout
	default:
		return core.ReasonProviderError
	}
}

// transportError classifies a failure that happened before a status was read.
func transportError(model string, err error) *core.ProviderError {
	reason := core.ReasonProviderError
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		reason = core.ReasonTimeout
	}
	return &core.ProviderError{Model: model, Reason: reason, Err: err}
}

func malformed(model string, format string, args ...any) *core.ProviderError {
	return &core.ProviderError{Model: model, Reason: core.ReasonMalformedResponse, Err: fmt.Errorf(format, args...)}
}
