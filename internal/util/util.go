package util

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"medportal/internal/core"

	"github.com/bytedance/sonic"
)

// MarshalJSON wraps Sonic for performance
func MarshalJSON(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// UnmarshalJSON wraps Sonic for performance
func UnmarshalJSON(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// NewJSONRequest builds an outbound request with a JSON body bound to ctx.
func NewJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader

	if payload != nil {
		payloadBytes, err := MarshalJSON(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payloadBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	if payload != nil {
		req.Header.Set(core.HeaderContentType, core.ContentTypeJSON)
	}
	return req, nil
}

// ReadLimitedBody reads at most core.MaxResponseBodySize bytes from resp.
func ReadLimitedBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, core.MaxResponseBodySize))
}

// TruncateString truncates string and adds replacement text in the middle
func TruncateString(s string, prefixLen, suffixLen int, replacement string) string {
	if len(s) > prefixLen+suffixLen {
		return s[:prefixLen] + replacement + s[len(s)-suffixLen:]
	}
	return s
}

// MaskSecret renders a credential for log lines.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<empty>"
	}
	return TruncateString(secret, 0, 4, "***")
}

// ParseEnvList parses comma-separated env var to trimmed slice
func ParseEnvList(envVar string) []string {
	if envVar == "" {
		return nil
	}
	parts := strings.Split(envVar, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// GetEnvWithDefault gets env var with default value
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDuration parses a Go duration from key. Invalid or negative values
// fall back to defaultValue with a warning.
func GetEnvDuration(key string, defaultValue time.Duration, logger core.Logger) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		if logger != nil {
			logger.Warn("Invalid %s=%q, using default %s", key, raw, defaultValue)
		}
		return defaultValue
	}
	return d
}

// GetEnvInt parses a positive integer from key, falling back like GetEnvDuration.
func GetEnvInt(key string, defaultValue int, logger core.Logger) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		if logger != nil {
			logger.Warn("Invalid %s=%q, using default %d", key, raw, defaultValue)
		}
		return defaultValue
	}
	return n
}

// ContainsAny reports whether s contains any of patterns.
func ContainsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// RedactURLError drops the query string from a *url.Error, since outbound
// URLs may carry an API key.
func RedactURLError(err error) error {
	if ue, ok := err.(*url.Error); ok {
		if u, perr := url.Parse(ue.URL); perr == nil {
			u.RawQuery = ""
			return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
		}
	}
	return err
}
