package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes
const (
	ErrCodeConfigLoadFailed = "CONFIG_LOAD_FAILED"
	ErrCodeInvalidConfig    = "INVALID_CONFIG"
)

// AppError carries an error code, a human readable message and an optional cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppErrorf creates an AppError with a formatted message.
func NewAppErrorf(code string, cause error, format string, args ...any) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// ErrConfigLoadFailed reports a configuration source that could not be loaded.
func ErrConfigLoadFailed(configType string, cause error) *AppError {
	return NewAppErrorf(ErrCodeConfigLoadFailed, cause, "Failed to load %s configuration", configType)
}

// ErrInvalidConfig reports an invalid configuration value.
func ErrInvalidConfig(field string, reason string) *AppError {
	return NewAppErrorf(ErrCodeInvalidConfig, nil, "Invalid configuration for %s: %s", field, reason)
}

// Sentinel errors for the user-visible taxonomy.
var (
	ErrExhausted       = errors.New("all generation candidates failed")
	ErrSessionNotBound = errors.New("session not bound")
	ErrSessionBusy     = errors.New("session has a turn in progress")
	ErrTurnFailed      = errors.New("turn failed")
	ErrMissingContext  = errors.New("missing prompt context")
)

// FailureReason classifies why a single candidate attempt failed.
type FailureReason string

// Failure reasons.
const (
	ReasonQuotaExceeded     FailureReason = "quota_exceeded"
	ReasonInvalidModel      FailureReason = "invalid_model"
	ReasonMalformedResponse FailureReason = "malformed_response"
	ReasonTimeout           FailureReason = "timeout"
	ReasonProviderError     FailureReason = "provider_error"
)

// ProviderError is returned by generation providers.
type ProviderError struct {
	Model      string
	StatusCode int
	Reason     FailureReason
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (model %s, status %d): %v", e.Reason, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s (model %s): %v", e.Reason, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from err, defaulting to provider_error.
func ReasonOf(err error) FailureReason {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Reason != "" {
		return pe.Reason
	}
	return ReasonProviderError
}

// ExhaustedError is returned when every ranked candidate failed.
type ExhaustedError struct {
	Attempts []GenerationAttempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Model, a.Reason))
	}
	return fmt.Sprintf("%v after %d attempts [%s]", ErrExhausted, len(e.Attempts), strings.Join(parts, ", "))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Models lists the attempted identifiers in order.
func (e *ExhaustedError) Models() []string {
	models := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		models[i] = a.Model
	}
	return models
}

// TurnFailedError is returned when the bound model fails on a later turn.
type TurnFailedError struct {
	SessionID string
	Model     string
	Cause     error
}

func (e *TurnFailedError) Error() string {
	return fmt.Sprintf("%v: session %s on model %s: %v", ErrTurnFailed, e.SessionID, e.Model, e.Cause)
}

func (e *TurnFailedError) Is(target error) bool {
	return target == ErrTurnFailed
}

func (e *TurnFailedError) Unwrap() error {
	return e.Cause
}

// MissingContextError is returned by the prompt builder before any network call.
type MissingContextError struct {
	Field string
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("%v: %s is required", ErrMissingContext, e.Field)
}

func (e *MissingContextError) Is(target error) bool {
	return target == ErrMissingContext
}
