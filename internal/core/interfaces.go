package core

import (
	"context"
	"time"
)

// Logger interface
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Fatal(format string, args ...any)
}

// Cache interface
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, duration time.Duration)
	Delete(key string)
	Stop()
}

// StorageInterface storage interface
type StorageInterface interface {
	SaveStats(stats *RequestStats) error
	LoadStats() (*RequestStats, error)
	Close() error
}

// GenerationProvider executes a single generation call against one named model.
type GenerationProvider interface {
	Generate(ctx context.Context, model string, req GenerationRequest) (string, error)
}

// GenerationProviderFunc adapts a function to GenerationProvider.
type GenerationProviderFunc func(ctx context.Context, model string, req GenerationRequest) (string, error)

// Generate calls f.
func (f GenerationProviderFunc) Generate(ctx context.Context, model string, req GenerationRequest) (string, error) {
	return f(ctx, model, req)
}

// ModelCatalog discovers the current set of callable models. Refresh never fails.
type ModelCatalog interface {
	Refresh(ctx context.Context) []ModelDescriptor
}

// MetricsCollector interface
type MetricsCollector interface {
	RecordAttempt(attempt GenerationAttempt, source string)
	RecordRequest(success bool, responseTime int64, model string, source string)
	RecordDiscoveryFailure()
	RecordCacheHit()
	RecordCacheMiss()
	GetQPS() float64
}

// NopLogger empty logger implementation
type NopLogger struct{}

func (*NopLogger) Debug(format string, args ...any) {}
func (*NopLogger) Info(format string, args ...any)  {}
func (*NopLogger) Warn(format string, args ...any)  {}
func (*NopLogger) Error(format string, args ...any) {}
func (*NopLogger) Fatal(format string, args ...any) {}

// NopMetrics empty metrics collector implementation
type NopMetrics struct{}

func (*NopMetrics) RecordAttempt(attempt GenerationAttempt, source string)                      {}
func (*NopMetrics) RecordRequest(success bool, responseTime int64, model string, source string) {}
func (*NopMetrics) RecordDiscoveryFailure()                                                     {}
func (*NopMetrics) RecordCacheHit()                                                             {}
func (*NopMetrics) RecordCacheMiss()                                                            {}
func (*NopMetrics) GetQPS() float64                                                             { return 0 }
