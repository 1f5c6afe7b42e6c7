package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"medportal/internal/core"
)

// AtomicRequestStats thread-safe request statistics
type AtomicRequestStats struct {
	TotalRequests      atomic.Int64
	SuccessfulRequests atomic.Int64
	FailedRequests     atomic.Int64
	TotalResponseTime  atomic.Int64
	DiscoveryFailures  atomic.Int64
	CacheHits          atomic.Int64
	CacheMisses        atomic.Int64
}

// MetricsConfig configuration for MetricsService
type MetricsConfig struct {
	SaveInterval time.Duration
	HistorySize  int
	Storage      core.StorageInterface
	Logger       core.Logger
}

// MetricsService collects request and per-model attempt statistics.
type MetricsService struct {
	atomicStats      AtomicRequestStats
	requestHistory   []core.RequestRecord
	historyMu        sync.RWMutex
	lastRequestTime  time.Time
	maxHistorySize   int
	storage          core.StorageInterface
	logger           core.Logger
	lastSaveTime     time.Time
	minSaveInterval  time.Duration
	done             chan struct{}
	closeOnce        sync.Once
	historyBuffer    []core.RequestRecord
	bufferMu         sync.Mutex
	bufferFlushTimer *time.Ticker
	recentRequests   []time.Time
	recentMu         sync.Mutex
	models           map[string]*core.ModelStats
	modelsMu         sync.Mutex
}

// Snapshot is the read model served on the stats endpoint.
type Snapshot struct {
	TotalRequests      int64             `json:"total_requests"`
	SuccessfulRequests int64             `json:"successful_requests"`
	FailedRequests     int64             `json:"failed_requests"`
	DiscoveryFailures  int64             `json:"discovery_failures"`
	CacheHits          int64             `json:"cache_hits"`
	CacheMisses        int64             `json:"cache_misses"`
	QPS                float64           `json:"qps"`
	LastRequestTime    string            `json:"last_request_time,omitempty"`
	Last24h            core.PeriodStats  `json:"last_24h"`
	Last7d             core.PeriodStats  `json:"last_7d"`
	Last30d            core.PeriodStats  `json:"last_30d"`
	Models             []core.ModelStats `json:"models"`
}

// NewMetricsService creates a new MetricsService
func NewMetricsService(config MetricsConfig) *MetricsService {
	if config.Logger == nil {
		config.Logger = &core.NopLogger{}
	}
	if config.HistorySize <= 0 {
		config.HistorySize = core.HistoryBufferSize
	}
	if config.SaveInterval <= 0 {
		config.SaveInterval = core.MinSaveInterval
	}
	ms := &MetricsService{
		maxHistorySize:  config.HistorySize,
		storage:         config.Storage,
		logger:          config.Logger,
		minSaveInterval: config.SaveInterval,
		done:            make(chan struct{}),
		historyBuffer:   make([]core.RequestRecord, 0, core.HistoryBatchSize),
		models:          make(map[string]*core.ModelStats),
	}

	ms.bufferFlushTimer = time.NewTicker(core.HistoryFlushInterval)
	go ms.flushLoop()

	return ms
}

func (ms *MetricsService) flushLoop() {
	for {
		select {
		case <-ms.bufferFlushTimer.C:
			ms.flushBuffer()
		case <-ms.done:
			return
		}
	}
}

func (ms *MetricsService) flushBuffer() {
	ms.bufferMu.Lock()
	if len(ms.historyBuffer) == 0 {
		ms.bufferMu.Unlock()
		return
	}
	batch := ms.historyBuffer
	ms.historyBuffer = make([]core.RequestRecord, 0, core.HistoryBatchSize)
	ms.bufferMu.Unlock()

	ms.historyMu.Lock()
	ms.requestHistory = append(ms.requestHistory, batch...)
	if len(ms.requestHistory) > ms.maxHistorySize {
		ms.requestHistory = ms.requestHistory[len(ms.requestHistory)-ms.maxHistorySize:]
	}
	ms.historyMu.Unlock()
}

// RecordAttempt counts one candidate attempt against its model.
func (ms *MetricsService) RecordAttempt(attempt core.GenerationAttempt, source string) {
	ms.modelsMu.Lock()
	defer ms.modelsMu.Unlock()

	stats, ok := ms.models[attempt.Model]
	if !ok {
		stats = &core.ModelStats{Model: attempt.Model}
		ms.models[attempt.Model] = stats
	}
	stats.Attempts++
	if attempt.Succeeded() {
		stats.Successes++
		return
	}
	if stats.Failures == nil {
		stats.Failures = make(map[core.FailureReason]int64)
	}
	stats.Failures[attempt.Reason]++
}

// RecordRequest records the outcome of one served request.
func (ms *MetricsService) RecordRequest(success bool, responseTime int64, model string, source string) {
	now := time.Now()
	ms.historyMu.Lock()
	ms.lastRequestTime = now
	ms.historyMu.Unlock()
	ms.atomicStats.TotalRequests.Add(1)
	ms.atomicStats.TotalResponseTime.Add(responseTime)

	if success {
		ms.atomicStats.SuccessfulRequests.Add(1)
	} else {
		ms.atomicStats.FailedRequests.Add(1)
	}

	ms.recentMu.Lock()
	ms.recentRequests = append(ms.recentRequests, now)
	ms.pruneRecentLocked(now)
	ms.recentMu.Unlock()

	record := core.RequestRecord{
		Timestamp:    now,
		Success:      success,
		ResponseTime: responseTime,
		Model:        model,
		Source:       source,
	}

	ms.bufferMu.Lock()
	ms.historyBuffer = append(ms.historyBuffer, record)
	shouldFlush := len(ms.historyBuffer) >= core.HistoryBatchSize
	ms.bufferMu.Unlock()

	if shouldFlush {
		ms.flushBuffer()
	}

	ms.SaveStatsDebounced()
}

// RecordDiscoveryFailure counts a catalog refresh that fell back to the static set.
func (ms *MetricsService) RecordDiscoveryFailure() {
	ms.atomicStats.DiscoveryFailures.Add(1)
}

// RecordCacheHit records cache hit
func (ms *MetricsService) RecordCacheHit() {
	ms.atomicStats.CacheHits.Add(1)
}

// RecordCacheMiss records cache miss
func (ms *MetricsService) RecordCacheMiss() {
	ms.atomicStats.CacheMisses.Add(1)
}

func (ms *MetricsService) pruneRecentLocked(now time.Time) {
	cutoff := now.Add(-1 * time.Minute)
	startIdx := 0
	for startIdx < len(ms.recentRequests) && ms.recentRequests[startIdx].Before(cutoff) {
		startIdx++
	}
	if startIdx > 0 {
		newRecent := make([]time.Time, len(ms.recentRequests)-startIdx)
		copy(newRecent, ms.recentRequests[startIdx:])
		ms.recentRequests = newRecent
	}
}

// GetQPS returns current QPS over the last minute
func (ms *MetricsService) GetQPS() float64 {
	ms.recentMu.Lock()
	defer ms.recentMu.Unlock()

	ms.pruneRecentLocked(time.Now())
	if len(ms.recentRequests) == 0 {
		return 0
	}

	return math.Round(float64(len(ms.recentRequests))/60.0*1000) / 1000
}

// ModelStats returns per-model counters sorted by identifier.
func (ms *MetricsService) ModelStats() []core.ModelStats {
	ms.modelsMu.Lock()
	defer ms.modelsMu.Unlock()

	result := make([]core.ModelStats, 0, len(ms.models))
	for _, s := range ms.models {
		c := *s
		if s.Failures != nil {
			c.Failures = make(map[core.FailureReason]int64, len(s.Failures))
			for k, v := range s.Failures {
				c.Failures[k] = v
			}
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Model < result[j].Model })
	return result
}

// GetRequestStats returns current stats snapshot
func (ms *MetricsService) GetRequestStats() core.RequestStats {
	ms.flushBuffer()
	models := ms.ModelStats()

	ms.historyMu.RLock()
	defer ms.historyMu.RUnlock()

	historyCopy := make([]core.RequestRecord, len(ms.requestHistory))
	copy(historyCopy, ms.requestHistory)

	return core.RequestStats{
		TotalRequests:      ms.atomicStats.TotalRequests.Load(),
		SuccessfulRequests: ms.atomicStats.SuccessfulRequests.Load(),
		FailedRequests:     ms.atomicStats.FailedRequests.Load(),
		TotalResponseTime:  ms.atomicStats.TotalResponseTime.Load(),
		LastRequestTime:    ms.lastRequestTime,
		DiscoveryFailures:  ms.atomicStats.DiscoveryFailures.Load(),
		Models:             models,
		RequestHistory:     historyCopy,
	}
}

// Snapshot builds the stats endpoint payload.
func (ms *MetricsService) Snapshot() Snapshot {
	stats := ms.GetRequestStats()
	periods := GetPeriodStats(stats.RequestHistory, 24, 24*7, 24*30)

	snap := Snapshot{
		TotalRequests:      stats.TotalRequests,
		SuccessfulRequests: stats.SuccessfulRequests,
		FailedRequests:     stats.FailedRequests,
		DiscoveryFailures:  stats.DiscoveryFailures,
		CacheHits:          ms.atomicStats.CacheHits.Load(),
		CacheMisses:        ms.atomicStats.CacheMisses.Load(),
		QPS:                ms.GetQPS(),
		Last24h:            periods[24],
		Last7d:             periods[24*7],
		Last30d:            periods[24*30],
		Models:             stats.Models,
	}
	if !stats.LastRequestTime.IsZero() {
		snap.LastRequestTime = stats.LastRequestTime.Format(core.TimeFormatDateTime)
	}
	return snap
}

// GetPeriodStats computes period statistics for multiple hour windows in a single pass.
func GetPeriodStats(history []core.RequestRecord, hourPeriods ...int) map[int]core.PeriodStats {
	if len(hourPeriods) == 0 {
		return nil
	}

	now := time.Now()
	cutoffs := make([]time.Time, len(hourPeriods))
	requests := make([]int64, len(hourPeriods))
	successful := make([]int64, len(hourPeriods))
	responseTime := make([]int64, len(hourPeriods))

	for i, hours := range hourPeriods {
		cutoffs[i] = now.Add(-time.Duration(hours) * time.Hour)
	}

	for _, record := range history {
		for i, cutoff := range cutoffs {
			if record.Timestamp.After(cutoff) {
				requests[i]++
				responseTime[i] += record.ResponseTime
				if record.Success {
					successful[i]++
				}
			}
		}
	}

	result := make(map[int]core.PeriodStats, len(hourPeriods))
	for i, hours := range hourPeriods {
		stats := core.PeriodStats{
			Requests: requests[i],
			QPS:      float64(requests[i]) / (float64(hours) * 3600.0),
		}
		if requests[i] > 0 {
			stats.SuccessRate = float64(successful[i]) / float64(requests[i]) * 100
			stats.AvgResponseTime = responseTime[i] / requests[i]
		}
		result[hours] = stats
	}
	return result
}

// LoadStats restores persisted counters from storage.
func (ms *MetricsService) LoadStats() error {
	if ms.storage == nil {
		return nil
	}
	stats, err := ms.storage.LoadStats()
	if err != nil {
		return err
	}

	ms.atomicStats.TotalRequests.Store(stats.TotalRequests)
	ms.atomicStats.SuccessfulRequests.Store(stats.SuccessfulRequests)
	ms.atomicStats.FailedRequests.Store(stats.FailedRequests)
	ms.atomicStats.TotalResponseTime.Store(stats.TotalResponseTime)
	ms.atomicStats.DiscoveryFailures.Store(stats.DiscoveryFailures)

	ms.modelsMu.Lock()
	for i := range stats.Models {
		m := stats.Models[i]
		ms.models[m.Model] = &m
	}
	ms.modelsMu.Unlock()

	history := stats.RequestHistory
	if len(history) > ms.maxHistorySize {
		history = history[len(history)-ms.maxHistorySize:]
	}

	ms.historyMu.Lock()
	ms.lastRequestTime = stats.LastRequestTime
	ms.requestHistory = history
	ms.historyMu.Unlock()

	return nil
}

// SaveStatsDebounced saves stats with debounce
func (ms *MetricsService) SaveStatsDebounced() {
	now := time.Now()
	ms.historyMu.Lock()
	if now.Sub(ms.lastSaveTime) < ms.minSaveInterval {
		ms.historyMu.Unlock()
		return
	}
	ms.lastSaveTime = now
	ms.historyMu.Unlock()

	if ms.storage == nil {
		return
	}

	stats := ms.GetRequestStats()
	if err := ms.storage.SaveStats(&stats); err != nil {
		ms.logger.Warn("Failed to save stats: %v", err)
	}
}

// Close saves final stats and stops. Safe to call more than once.
func (ms *MetricsService) Close() error {
	var err error
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.bufferFlushTimer.Stop()
		ms.flushBuffer()

		if ms.storage != nil {
			stats := ms.GetRequestStats()
			err = ms.storage.SaveStats(&stats)
		}
	})
	return err
}

// RecordSuccessWithMetrics records successful request
func RecordSuccessWithMetrics(metrics core.MetricsCollector, startTime time.Time, model, source string) {
	metrics.RecordRequest(true, time.Since(startTime).Milliseconds(), model, source)
}

// RecordFailureWithMetrics records failed request
func RecordFailureWithMetrics(metrics core.MetricsCollector, startTime time.Time, model, source string) {
	metrics.RecordRequest(false, time.Since(startTime).Milliseconds(), model, source)
}
