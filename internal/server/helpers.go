package server

import (
	"context"
	"errors"
	"net/http"

	"medportal/internal/core"

	"github.com/gin-gonic/gin"
)

const unavailableMessage = "service unavailable, retry later"

// respondWithError writes the portal's error body.
func respondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

// statusForError maps the domain error taxonomy to an HTTP status and a
// caller-safe message. Candidate-level detail stays in the logs.
func statusForError(err error) (int, string) {
	var missing *core.MissingContextError
	switch {
	case errors.As(err, &missing):
		return http.StatusBadRequest, missing.Error()
	case errors.Is(err, core.ErrSessionNotBound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, core.ErrSessionBusy):
		return http.StatusConflict, "a reply is still being generated for this session"
	case errors.Is(err, context.Canceled):
		// The caller went away; a cancelled turn is not a provider failure.
		return http.StatusRequestTimeout, "request cancelled"
	case errors.Is(err, core.ErrTurnFailed):
		return http.StatusBadGateway, "the assistant could not answer, please try again"
	case errors.Is(err, core.ErrExhausted):
		return http.StatusServiceUnavailable, unavailableMessage
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *Server) respondWithDomainError(c *gin.Context, op string, err error) {
	code, message := statusForError(err)
	if code >= http.StatusInternalServerError {
		s.config.Logger.Error("%s failed: %v", op, err)
	} else {
		s.config.Logger.Debug("%s rejected: %v", op, err)
	}
	respondWithError(c, code, message)
}

// withPanicRecovery turns a handler panic into a 500 without leaking detail.
func withPanicRecovery(c *gin.Context, logger core.Logger) func() {
	return func() {
		if r := recover(); r != nil {
			logger.Error("Panic in handler: %v", r)
			if !c.Writer.Written() {
				respondWithError(c, http.StatusInternalServerError, "internal server error")
			}
			c.Abort()
		}
	}
}

type generationResponse struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
	Text      string `json:"text"`
}

func toResponse(res *core.GenerationResult) generationResponse {
	return generationResponse{SessionID: res.SessionID, Model: res.Model, Text: res.Text}
}
