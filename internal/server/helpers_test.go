package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"medportal/internal/core"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"缺少上下文", &core.MissingContextError{Field: "symptoms"}, http.StatusBadRequest},
		{"会话未绑定", fmt.Errorf("lookup: %w", core.ErrSessionNotBound), http.StatusNotFound},
		{"会话忙", core.ErrSessionBusy, http.StatusConflict},
		{"轮次失败", &core.TurnFailedError{SessionID: "s", Model: "m", Cause: errors.New("boom")}, http.StatusBadGateway},
		{"候选耗尽", &core.ExhaustedError{}, http.StatusServiceUnavailable},
		{"调用方取消", fmt.Errorf("stopped: %w", context.Canceled), http.StatusRequestTimeout},
		{"轮次中调用方取消", &core.TurnFailedError{SessionID: "s", Model: "m", Cause: &core.ProviderError{Model: "m", Err: context.Canceled}}, http.StatusRequestTimeout},
		{"轮次尝试超时", &core.TurnFailedError{SessionID: "s", Model: "m", Cause: &core.ProviderError{Model: "m", Reason: core.ReasonTimeout, Err: context.DeadlineExceeded}}, http.StatusBadGateway},
		{"未知错误", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := statusForError(tt.err)
			if got != tt.want {
				t.Errorf("期望 %d，实际 %d", tt.want, got)
			}
		})
	}
}

func TestStatusForError_ExhaustedHidesCandidates(t *testing.T) {
	err := &core.ExhaustedError{Attempts: []core.GenerationAttempt{{Model: "gemini-2.5-flash", Reason: core.ReasonQuotaExceeded}}}
	_, msg := statusForError(err)
	if msg != unavailableMessage {
		t.Errorf("耗尽时只应返回通用消息，实际 %q", msg)
	}
}
