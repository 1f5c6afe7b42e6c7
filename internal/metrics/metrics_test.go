package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"medportal/internal/core"
)

var _ core.MetricsCollector = (*MetricsService)(nil)

type countingStorage struct {
	mu        sync.Mutex
	saveCount int
	loaded    *core.RequestStats
	last      *core.RequestStats
}

func (s *countingStorage) SaveStats(stats *core.RequestStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCount++
	s.last = stats
	return nil
}

func (s *countingStorage) LoadStats() (*core.RequestStats, error) {
	if s.loaded != nil {
		return s.loaded, nil
	}
	return &core.RequestStats{}, nil
}

func (s *countingStorage) Close() error { return nil }

func (s *countingStorage) getSaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCount
}

func newTestMetrics(t *testing.T, historySize int, storage core.StorageInterface) *MetricsService {
	t.Helper()
	ms := NewMetricsService(MetricsConfig{
		SaveInterval: time.Hour,
		HistorySize:  historySize,
		Storage:      storage,
		Logger:       &core.NopLogger{},
	})
	t.Cleanup(func() { _ = ms.Close() })
	return ms
}

func TestMetricsService_RecordRequest(t *testing.T) {
	ms := newTestMetrics(t, 10, nil)

	ms.RecordRequest(true, 100, "gemini-2.5-flash", core.SourceConsultation)
	ms.RecordRequest(false, 200, "", core.SourceConsultation)
	ms.RecordRequest(true, 150, "gemini-1.5-pro", core.SourceDrugFeedback)

	stats := ms.GetRequestStats()
	if stats.TotalRequests != 3 {
		t.Errorf("Expected 3 total requests, got %d", stats.TotalRequests)
	}
	if stats.SuccessfulRequests != 2 {
		t.Errorf("Expected 2 successful requests, got %d", stats.SuccessfulRequests)
	}
	if stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
	}
	if len(stats.RequestHistory) != 3 || stats.RequestHistory[2].Source != core.SourceDrugFeedback {
		t.Errorf("Unexpected history: %+v", stats.RequestHistory)
	}
}

func TestMetricsService_RecordAttempt(t *testing.T) {
	ms := newTestMetrics(t, 10, nil)

	ms.RecordAttempt(core.GenerationAttempt{Model: "gemini-2.5-flash", Outcome: core.OutcomeFailure, Reason: core.ReasonQuotaExceeded}, core.SourceConsultation)
	ms.RecordAttempt(core.GenerationAttempt{Model: "gemini-2.5-flash", Outcome: core.OutcomeFailure, Reason: core.ReasonTimeout}, core.SourceConsultation)
	ms.RecordAttempt(core.GenerationAttempt{Model: "gemini-1.5-flash", Outcome: core.OutcomeSuccess}, core.SourceConsultation)

	models := ms.ModelStats()
	if len(models) != 2 {
		t.Fatalf("Expected 2 models, got %d", len(models))
	}
	if models[0].Model != "gemini-1.5-flash" || models[0].Successes != 1 {
		t.Errorf("Unexpected first entry: %+v", models[0])
	}
	flash := models[1]
	if flash.Attempts != 2 || flash.Failures[core.ReasonQuotaExceeded] != 1 || flash.Failures[core.ReasonTimeout] != 1 {
		t.Errorf("Unexpected failure counters: %+v", flash)
	}

	models[1].Failures[core.ReasonTimeout] = 99
	if ms.ModelStats()[1].Failures[core.ReasonTimeout] != 1 {
		t.Error("ModelStats should return copies")
	}
}

func TestMetricsService_Snapshot(t *testing.T) {
	ms := newTestMetrics(t, 10, nil)
	ms.RecordRequest(true, 100, "gemini-2.5-flash", core.SourceConsultation)
	ms.RecordDiscoveryFailure()
	ms.RecordCacheHit()
	ms.RecordCacheMiss()
	ms.RecordCacheMiss()

	snap := ms.Snapshot()
	if snap.Last24h.Requests != 1 || snap.Last30d.Requests != 1 {
		t.Errorf("Unexpected period stats: %+v / %+v", snap.Last24h, snap.Last30d)
	}
	if snap.DiscoveryFailures != 1 || snap.CacheHits != 1 || snap.CacheMisses != 2 {
		t.Errorf("Unexpected counters: %+v", snap)
	}
	if snap.QPS <= 0 {
		t.Errorf("QPS should be positive after a request, got %f", snap.QPS)
	}
	if snap.LastRequestTime == "" {
		t.Error("LastRequestTime should be set")
	}
}

func TestMetricsService_GetQPS_Empty(t *testing.T) {
	ms := newTestMetrics(t, 10, nil)
	if qps := ms.GetQPS(); qps != 0 {
		t.Errorf("QPS should be 0 without requests, got %f", qps)
	}
}

func TestMetricsService_MaxHistorySize(t *testing.T) {
	ms := newTestMetrics(t, 3, nil)

	for i := 0; i < 5; i++ {
		ms.RecordRequest(true, 100, "model", core.SourceTurn)
	}

	stats := ms.GetRequestStats()
	if len(stats.RequestHistory) != 3 {
		t.Errorf("History should be capped at 3, got %d", len(stats.RequestHistory))
	}
}

func TestMetricsService_DefaultHistorySize(t *testing.T) {
	ms := newTestMetrics(t, 0, nil)
	if ms.maxHistorySize != core.HistoryBufferSize {
		t.Errorf("Expected default history size %d, got %d", core.HistoryBufferSize, ms.maxHistorySize)
	}
}

func TestGetPeriodStats(t *testing.T) {
	now := time.Now()
	history := []core.RequestRecord{
		{Timestamp: now.Add(-time.Hour), Success: true, ResponseTime: 100},
		{Timestamp: now.Add(-2 * time.Hour), Success: false, ResponseTime: 300},
		{Timestamp: now.Add(-48 * time.Hour), Success: true, ResponseTime: 50},
	}
	periods := GetPeriodStats(history, 24, 24*7)
	day := periods[24]
	if day.Requests != 2 || day.SuccessRate != 50 || day.AvgResponseTime != 200 {
		t.Errorf("Unexpected 24h stats: %+v", day)
	}
	if periods[24*7].Requests != 3 {
		t.Errorf("Unexpected 7d stats: %+v", periods[24*7])
	}
	if GetPeriodStats(history) != nil {
		t.Error("No periods should return nil")
	}
}

func TestMetricsService_LoadStats(t *testing.T) {
	st := &countingStorage{loaded: &core.RequestStats{
		TotalRequests:     7,
		DiscoveryFailures: 2,
		Models:            []core.ModelStats{{Model: "gemini-pro", Attempts: 4}},
		RequestHistory:    []core.RequestRecord{{Timestamp: time.Now(), Success: true}},
	}}
	ms := newTestMetrics(t, 10, st)

	if err := ms.LoadStats(); err != nil {
		t.Fatalf("LoadStats failed: %v", err)
	}
	stats := ms.GetRequestStats()
	if stats.TotalRequests != 7 || stats.DiscoveryFailures != 2 {
		t.Errorf("Counters not restored: %+v", stats)
	}
	if len(stats.Models) != 1 || stats.Models[0].Attempts != 4 {
		t.Errorf("Model stats not restored: %+v", stats.Models)
	}
}

type failingStorage struct{ countingStorage }

func (s *failingStorage) LoadStats() (*core.RequestStats, error) {
	return nil, errors.New("disk on fire")
}

func TestMetricsService_LoadStats_Error(t *testing.T) {
	ms := newTestMetrics(t, 10, &failingStorage{})
	if err := ms.LoadStats(); err == nil {
		t.Error("Expected storage error to propagate")
	}
}

func TestRecordSuccessAndFailureWithMetrics(t *testing.T) {
	ms := newTestMetrics(t, 10, nil)

	RecordSuccessWithMetrics(ms, time.Now(), "gemini-2.5-flash", core.SourceTurn)
	RecordFailureWithMetrics(ms, time.Now(), "gemini-2.5-flash", core.SourceTurn)

	stats := ms.GetRequestStats()
	if stats.SuccessfulRequests != 1 || stats.FailedRequests != 1 {
		t.Errorf("Expected 1/1, got %d/%d", stats.SuccessfulRequests, stats.FailedRequests)
	}
}

func TestMetricsService_Close_Idempotent(t *testing.T) {
	st := &countingStorage{}
	ms := NewMetricsService(MetricsConfig{
		SaveInterval: time.Hour,
		HistorySize:  10,
		Storage:      st,
		Logger:       &core.NopLogger{},
	})

	ms.RecordRequest(true, 10, "gemini-2.5-flash", core.SourceConsultation)

	if err := ms.Close(); err != nil {
		t.Fatalf("第一次关闭不应失败: %v", err)
	}
	firstCloseSaves := st.getSaveCount()
	if firstCloseSaves == 0 {
		t.Fatal("第一次关闭后应至少有一次持久化")
	}

	if err := ms.Close(); err != nil {
		t.Fatalf("第二次关闭不应失败: %v", err)
	}

	if st.getSaveCount() != firstCloseSaves {
		t.Fatalf("第二次 Close 不应新增持久化，第一次=%d，第二次后=%d", firstCloseSaves, st.getSaveCount())
	}
}
