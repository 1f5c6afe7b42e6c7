// Package catalog discovers the models the generation provider currently
// serves and falls back to a static set when discovery is unavailable.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"medportal/internal/cache"
	"medportal/internal/core"
	"medportal/internal/util"

	"github.com/bytedance/sonic"
)

// Config configures a Catalog.
type Config struct {
	BaseURL          string
	APIKey           string
	HTTPClient       *http.Client
	FallbackModels   []string
	ExcludedPatterns []string
	CacheTTL         time.Duration
	Cache            core.Cache
	MaxPages         int
	Logger           core.Logger
	Metrics          core.MetricsCollector
}

// Catalog implements core.ModelCatalog against the provider listing endpoint.
type Catalog struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	fallback   []string
	excluded   []string
	cacheTTL   time.Duration
	cache      core.Cache
	cacheKey   string
	maxPages   int
	logger     core.Logger
	metrics    core.MetricsCollector
}

type listResponse struct {
	Models        *[]listedModel `json:"models"`
	NextPageToken string         `json:"nextPageToken"`
}

type listedModel struct {
	Name                       string   `json:"name"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

// New creates a Catalog. Missing fallback or exclusion lists use the built-in defaults.
func New(cfg Config) *Catalog {
	if cfg.Logger == nil {
		cfg.Logger = &core.NopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &core.NopMetrics{}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: core.HTTPRequestTimeout}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = core.DefaultGeminiBaseURL
	}
	if len(cfg.FallbackModels) == 0 {
		cfg.FallbackModels = core.DefaultFallbackModels
	}
	if len(cfg.ExcludedPatterns) == 0 {
		cfg.ExcludedPatterns = core.ExcludedModelPatterns
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = core.CatalogMaxPages
	}

	c := &Catalog{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		fallback:   append([]string(nil), cfg.FallbackModels...),
		excluded:   append([]string(nil), cfg.ExcludedPatterns...),
		cacheTTL:   cfg.CacheTTL,
		maxPages:   cfg.MaxPages,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if cfg.CacheTTL > 0 && cfg.Cache != nil {
		c.cache = cfg.Cache
		c.cacheKey = cache.CatalogKey(c.baseURL, c.apiKey)
	}
	return c
}

// Refresh returns the eligible models. It never fails and never returns an
// empty slice: any discovery problem yields the static fallback set.
func (c *Catalog) Refresh(ctx context.Context) []core.ModelDescriptor {
	if c.cache != nil {
		if cached, ok := c.cache.Get(c.cacheKey); ok {
			if descs, ok := cached.([]core.ModelDescriptor); ok {
				c.metrics.RecordCacheHit()
				c.logger.Debug("Catalog cache hit %s", cache.TruncateCacheKey(c.cacheKey, 24))
				return cloneDescriptors(descs)
			}
		}
		c.metrics.RecordCacheMiss()
	}

	descs, err := c.discover(ctx)
	if err != nil {
		c.metrics.RecordDiscoveryFailure()
		c.logger.Warn("Model discovery failed, using %d fallback models: %v", len(c.fallback), err)
		return c.Fallback()
	}

	c.logger.Debug("Discovered %d eligible models", len(descs))
	if c.cache != nil {
		c.cache.Set(c.cacheKey, cloneDescriptors(descs), c.cacheTTL)
	}
	return descs
}

// Invalidate drops the cached listing so the next Refresh rediscovers.
func (c *Catalog) Invalidate() {
	if c.cache != nil {
		c.cache.Delete(c.cacheKey)
	}
}

// Fallback returns the static candidate set after eligibility filtering.
func (c *Catalog) Fallback() []core.ModelDescriptor {
	descs := c.filter(c.fallback)
	if len(descs) == 0 {
		// A configured set that filters to nothing still must not starve the cascade.
		descs = c.filter(core.DefaultFallbackModels)
	}
	return descs
}

func (c *Catalog) discover(ctx context.Context) ([]core.ModelDescriptor, error) {
	var ids []string
	pageToken := ""

	for page := 0; page < c.maxPages; page++ {
		resp, err := c.fetchPage(ctx, pageToken)
		if err != nil {
			if page > 0 && len(ids) > 0 {
				c.logger.Warn("Model listing page %d failed, keeping %d identifiers: %v", page+1, len(ids), err)
				break
			}
			return nil, err
		}
		for _, m := range *resp.Models {
			if m.Name == "" || !supportsGeneration(m) {
				continue
			}
			ids = append(ids, m.Name)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	descs := c.filter(ids)
	if len(descs) == 0 {
		return nil, fmt.Errorf("listing returned no eligible models")
	}
	return descs, nil
}

func (c *Catalog) fetchPage(ctx context.Context, pageToken string) (*listResponse, error) {
	query := url.Values{}
	query.Set("key", c.apiKey)
	query.Set("pageSize", strconv.Itoa(core.CatalogPageSize))
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	endpoint := c.baseURL + "/v1beta/models?" + query.Encode()

	req, err := util.NewJSONRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the query string; strip it so the key never reaches the log.
		return nil, fmt.Errorf("listing request: %w", util.RedactURLError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := util.ReadLimitedBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned status %d: %s", resp.StatusCode, util.TruncateString(string(body), 200, 0, "..."))
	}

	var parsed listResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	if parsed.Models == nil {
		return nil, fmt.Errorf("listing has no models field")
	}
	return &parsed, nil
}

func supportsGeneration(m listedModel) bool {
	if m.SupportedGenerationMethods == nil {
		return true
	}
	for _, method := range m.SupportedGenerationMethods {
		if method == core.GenerateContentMethod {
			return true
		}
	}
	return false
}

// filter strips the namespace prefix, drops duplicates and ineligible names,
// keeping first-seen order.
func (c *Catalog) filter(names []string) []core.ModelDescriptor {
	seen := make(map[string]struct{}, len(names))
	result := make([]core.ModelDescriptor, 0, len(names))
	for _, name := range names {
		id := strings.TrimPrefix(strings.TrimSpace(name), core.ModelNamespacePrefix)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		desc := Describe(id, c.excluded)
		if desc.Eligible {
			result = append(result, desc)
		}
	}
	return result
}

// Describe tags an identifier and decides its eligibility.
func Describe(id string, excluded []string) core.ModelDescriptor {
	lower := strings.ToLower(id)
	desc := core.ModelDescriptor{ID: id}

	if strings.Contains(lower, "flash") {
		desc.Tags = append(desc.Tags, core.TagFast)
	}
	if strings.Contains(lower, "pro") {
		desc.Tags = append(desc.Tags, core.TagPrecise)
	}
	if util.ContainsAny(lower, core.ExcludedModelPatterns) {
		desc.Tags = append(desc.Tags, core.TagVision)
	}

	desc.Eligible = util.ContainsAny(lower, core.EligibleModelPatterns) &&
		!desc.HasTag(core.TagVision) &&
		!util.ContainsAny(lower, excluded)
	return desc
}

func cloneDescriptors(in []core.ModelDescriptor) []core.ModelDescriptor {
	out := make([]core.ModelDescriptor, len(in))
	for i, d := range in {
		out[i] = d
		out[i].Tags = append([]core.CapabilityTag(nil), d.Tags...)
	}
	return out
}
