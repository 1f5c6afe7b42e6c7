package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"medportal/internal/cache"
	"medportal/internal/core"

	"github.com/stretchr/testify/require"
)

func ids(descs []core.ModelDescriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.ID
	}
	return out
}

func newListingServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRefresh_FiltersListing(t *testing.T) {
	srv := newListingServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1beta/models", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"models":[
			{"name":"models/gemini-1.5-flash","supportedGenerationMethods":["generateContent","countTokens"]},
			{"name":"models/gemini-pro-vision","supportedGenerationMethods":["generateContent"]},
			{"name":"models/text-embedding-004","supportedGenerationMethods":["embedContent"]},
			{"name":"models/gemini-2.5-pro"},
			{"name":"models/gemini-2.0-flash-exp-image-generation","supportedGenerationMethods":["generateContent"]},
			{"name":"models/gemini-2.5-flash","supportedGenerationMethods":["countTokens"]},
			{"name":"models/gemini-1.5-flash","supportedGenerationMethods":["generateContent"]}
		]}`))
	})

	c := New(Config{BaseURL: srv.URL, APIKey: "test-key"})
	descs := c.Refresh(context.Background())

	require.Equal(t, []string{"gemini-1.5-flash", "gemini-2.5-pro"}, ids(descs))
	require.True(t, descs[0].HasTag(core.TagFast))
	require.True(t, descs[1].HasTag(core.TagPrecise))
}

func TestRefresh_FollowsPagination(t *testing.T) {
	srv := newListingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-2.5-flash"}],"nextPageToken":"p2"}`))
			return
		}
		require.Equal(t, "p2", r.URL.Query().Get("pageToken"))
		_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-1.5-pro"}]}`))
	})

	descs := New(Config{BaseURL: srv.URL}).Refresh(context.Background())
	require.Equal(t, []string{"gemini-2.5-flash", "gemini-1.5-pro"}, ids(descs))
}

func TestRefresh_DiscoveryFailureReturnsFallback(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusForbidden) }},
		{"unparseable", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`<html>`)) }},
		{"missing models key", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"items":[]}`)) }},
		{"nothing eligible", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-pro-vision"},{"name":"models/aqa"}]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newListingServer(t, tt.handler)
			metrics := &countingMetrics{}
			c := New(Config{BaseURL: srv.URL, Metrics: metrics})

			require.Equal(t, core.DefaultFallbackModels, ids(c.Refresh(context.Background())))
			require.EqualValues(t, 1, metrics.discoveryFailures.Load())
		})
	}
}

func TestRefresh_UnreachableReturnsExactFallback(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	fallback := []string{"gemini-2.0-flash", "gemini-pro-vision", "gemini-1.0-pro"}
	c := New(Config{BaseURL: base, FallbackModels: fallback})

	require.Equal(t, []string{"gemini-2.0-flash", "gemini-1.0-pro"}, ids(c.Refresh(context.Background())))
}

func TestRefresh_CancelledContext(t *testing.T) {
	srv := newListingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-2.5-flash"}]}`))
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	descs := New(Config{BaseURL: srv.URL}).Refresh(ctx)
	require.NotEmpty(t, descs)
	require.Equal(t, core.DefaultFallbackModels, ids(descs))
}

func TestFallback_NeverEmpty(t *testing.T) {
	c := New(Config{FallbackModels: []string{"gemini-pro-vision", "imagen-3"}})
	require.Equal(t, core.DefaultFallbackModels, ids(c.Fallback()))
}

func TestRefresh_UsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := newListingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-2.5-flash"}]}`))
	})
	lru := cache.NewCache()
	defer lru.Stop()
	metrics := &countingMetrics{}

	c := New(Config{BaseURL: srv.URL, Cache: lru, CacheTTL: time.Minute, Metrics: metrics})
	first := c.Refresh(context.Background())
	first[0].ID = "mutated"
	second := c.Refresh(context.Background())

	require.EqualValues(t, 1, hits.Load())
	require.Equal(t, "gemini-2.5-flash", second[0].ID)
	require.EqualValues(t, 1, metrics.cacheHits.Load())
	require.EqualValues(t, 1, metrics.cacheMisses.Load())
}

func TestInvalidate_ForcesRediscovery(t *testing.T) {
	var hits atomic.Int32
	srv := newListingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-2.5-flash"}]}`))
	})
	lru := cache.NewCache()
	defer lru.Stop()

	c := New(Config{BaseURL: srv.URL, Cache: lru, CacheTTL: time.Minute})
	c.Refresh(context.Background())
	c.Refresh(context.Background())
	require.EqualValues(t, 1, hits.Load())

	c.Invalidate()
	c.Refresh(context.Background())
	require.EqualValues(t, 2, hits.Load())

	// No cache configured: a no-op.
	New(Config{BaseURL: srv.URL}).Invalidate()
}

func TestRefresh_CacheDisabledWithoutTTL(t *testing.T) {
	var hits atomic.Int32
	srv := newListingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-2.5-flash"}]}`))
	})
	lru := cache.NewCache()
	defer lru.Stop()

	c := New(Config{BaseURL: srv.URL, Cache: lru})
	c.Refresh(context.Background())
	c.Refresh(context.Background())
	require.EqualValues(t, 2, hits.Load())
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		id       string
		eligible bool
		tags     []core.CapabilityTag
	}{
		{"gemini-2.5-flash", true, []core.CapabilityTag{core.TagFast}},
		{"gemini-1.5-pro", true, []core.CapabilityTag{core.TagPrecise}},
		{"gemini-pro-vision", false, []core.CapabilityTag{core.TagPrecise, core.TagVision}},
		{"gemini-2.0-flash-preview-image-generation", false, []core.CapabilityTag{core.TagFast, core.TagVision}},
		{"text-embedding-004", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			d := Describe(tt.id, nil)
			require.Equal(t, tt.eligible, d.Eligible)
			require.Equal(t, tt.tags, d.Tags)
		})
	}

	require.False(t, Describe("gemini-2.5-flash-preview-tts", []string{"tts"}).Eligible)
}

func TestRedactURLError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(Config{BaseURL: base, APIKey: "super-secret"})
	_, err := c.discover(context.Background())
	require.Error(t, err)
	require.NotContains(t, err.Error(), "super-secret")
}

type countingMetrics struct {
	core.NopMetrics
	discoveryFailures atomic.Int32
	cacheHits         atomic.Int32
	cacheMisses       atomic.Int32
}

func (m *countingMetrics) RecordDiscoveryFailure() { m.discoveryFailures.Add(1) }
func (m *countingMetrics) RecordCacheHit()         { m.cacheHits.Add(1) }
func (m *countingMetrics) RecordCacheMiss()        { m.cacheMisses.Add(1) }
