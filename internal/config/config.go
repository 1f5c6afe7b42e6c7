package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"medportal/internal/core"
	"medportal/internal/util"

	"github.com/bytedance/sonic"
)

// ServerConfig server configuration
type ServerConfig struct {
	Port               string
	GinMode            string
	ClientAPIKeys      []string
	ModelsConfigPath   string
	CORSAllowOrigin    string
	RateLimit          int
	DatabaseURL        string
	Generation         GenerationSettings
	HTTPClientSettings HTTPClientSettings
	Storage            core.StorageInterface
	Logger             core.Logger
}

// GenerationSettings groups everything the catalog, providers and cascade need.
type GenerationSettings struct {
	Provider         string
	APIKey           string
	GeminiBaseURL    string
	OpenAIBaseURL    string
	AttemptTimeout   time.Duration
	SessionIdleTTL   time.Duration
	CatalogCacheTTL  time.Duration
	FallbackModels   []string
	ExcludedPatterns []string
}

// HTTPClientSettings HTTP client configuration
type HTTPClientSettings struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
	RequestTimeout      time.Duration
}

// DefaultHTTPClientSettings default HTTP client settings
func DefaultHTTPClientSettings() HTTPClientSettings {
	return HTTPClientSettings{
		MaxIdleConns:        core.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: core.HTTPMaxIdleConnsPerHost,
		MaxConnsPerHost:     core.HTTPMaxConnsPerHost,
		IdleConnTimeout:     core.HTTPIdleConnTimeout,
		TLSHandshakeTimeout: core.HTTPTLSHandshakeTimeout,
		RequestTimeout:      core.HTTPRequestTimeout,
	}
}

// LoadModelsConfig loads the static candidate configuration. Both the object
// form {"fallback_models":[...]} and a bare array of identifiers are accepted.
func LoadModelsConfig(path string) (core.ModelsConfig, error) {
	var config core.ModelsConfig

	data, err := os.ReadFile(path) //nolint:gosec // G304: path from config, not user input
	if err != nil {
		return config, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := sonic.Unmarshal(data, &config); err != nil {
		var modelIDs []string
		if err := sonic.Unmarshal(data, &modelIDs); err != nil {
			return config, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		config.FallbackModels = modelIDs
	}

	config.FallbackModels = normalizeModelList(config.FallbackModels)
	return config, nil
}

func normalizeModelList(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimPrefix(strings.TrimSpace(id), core.ModelNamespacePrefix)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

// ResolveModelsConfig loads path and fills gaps with built-in defaults.
// It never fails: a missing file is normal, a broken one is logged.
func ResolveModelsConfig(path string, logger core.Logger) core.ModelsConfig {
	config, err := LoadModelsConfig(path)
	switch {
	case err == nil:
		logger.Info("Loaded %d fallback models from %s", len(config.FallbackModels), path)
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("%s not found, using built-in fallback models", path)
	default:
		logger.Warn("%v, using built-in fallback models", core.ErrConfigLoadFailed("models", err))
	}

	if len(config.FallbackModels) == 0 {
		config.FallbackModels = append([]string(nil), core.DefaultFallbackModels...)
	}
	if len(config.ExcludedPatterns) == 0 {
		config.ExcludedPatterns = append([]string(nil), core.ExcludedModelPatterns...)
	}
	return config
}

// LoadServerConfigFromEnv loads server config from environment variables
func LoadServerConfigFromEnv(logger core.Logger) (ServerConfig, error) {
	if logger == nil {
		logger = &core.NopLogger{}
	}

	clientAPIKeys := util.ParseEnvList(os.Getenv("CLIENT_API_KEYS"))
	if len(clientAPIKeys) == 0 {
		logger.Warn("CLIENT_API_KEYS environment variable is empty")
	} else {
		logger.Info("Loaded %d client API keys", len(clientAPIKeys))
	}

	modelsPath := util.GetEnvWithDefault("MODELS_CONFIG_PATH", core.DefaultModelsConfigPath)
	models := ResolveModelsConfig(modelsPath, logger)

	generation := GenerationSettings{
		Provider:         strings.ToLower(util.GetEnvWithDefault("GENERATION_PROVIDER", core.DefaultProviderName)),
		APIKey:           os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:    strings.TrimRight(util.GetEnvWithDefault("GEMINI_BASE_URL", core.DefaultGeminiBaseURL), "/"),
		OpenAIBaseURL:    util.GetEnvWithDefault("OPENAI_BASE_URL", core.DefaultOpenAIBaseURL),
		AttemptTimeout:   util.GetEnvDuration("ATTEMPT_TIMEOUT", core.DefaultAttemptTimeout, logger),
		SessionIdleTTL:   util.GetEnvDuration("SESSION_IDLE_TTL", core.DefaultSessionIdleTTL, logger),
		CatalogCacheTTL:  util.GetEnvDuration("CATALOG_CACHE_TTL", core.DefaultCatalogCacheTTL, logger),
		FallbackModels:   models.FallbackModels,
		ExcludedPatterns: models.ExcludedPatterns,
	}
	if generation.APIKey == "" {
		logger.Warn("GEMINI_API_KEY is empty, every generation attempt will be rejected upstream")
	} else {
		logger.Info("Using %s provider with key %s", generation.Provider, util.MaskSecret(generation.APIKey))
	}

	config := ServerConfig{
		Port:               util.GetEnvWithDefault("PORT", core.DefaultPort),
		GinMode:            util.GetEnvWithDefault("GIN_MODE", core.DefaultGinMode),
		ClientAPIKeys:      clientAPIKeys,
		ModelsConfigPath:   modelsPath,
		CORSAllowOrigin:    util.GetEnvWithDefault("CORS_ALLOW_ORIGIN", "*"),
		RateLimit:          util.GetEnvInt("RATE_LIMIT", core.DefaultRateLimit, logger),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Generation:         generation,
		HTTPClientSettings: DefaultHTTPClientSettings(),
		Logger:             logger,
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate checks values that cannot be defaulted.
func (c ServerConfig) Validate() error {
	switch c.Generation.Provider {
	case core.ProviderNameGemini, core.ProviderNameOpenAI:
	default:
		return core.ErrInvalidConfig("GENERATION_PROVIDER", fmt.Sprintf("unsupported provider %q", c.Generation.Provider))
	}
	if c.Generation.AttemptTimeout <= 0 {
		return core.ErrInvalidConfig("ATTEMPT_TIMEOUT", "must be positive")
	}
	if len(c.Generation.FallbackModels) == 0 {
		return core.ErrInvalidConfig("fallback_models", "static candidate set must not be empty")
	}
	return nil
}
