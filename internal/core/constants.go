package core

import "time"

// HTTP client config constants
const (
	HTTPMaxIdleConns          = 100
	HTTPMaxIdleConnsPerHost   = 20
	HTTPMaxConnsPerHost       = 50
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 10 * time.Second
	HTTPResponseHeaderTimeout = 60 * time.Second
	HTTPExpectContinueTimeout = 2 * time.Second
	HTTPRequestTimeout        = 2 * time.Minute
)

// Cache config constants
const (
	CacheDefaultCapacity = 256
	CacheCleanupInterval = 5 * time.Minute
	CacheKeyVersion      = "v1"
)

// Stats and monitoring constants
const (
	StatsFilePath        = "stats.json"
	StatsRedisKey        = "medportal:stats"
	MinSaveInterval      = 5 * time.Second
	HistoryBufferSize    = 1000
	HistoryBatchSize     = 100
	HistoryFlushInterval = 100 * time.Millisecond
)

// Generation defaults
const (
	DefaultAttemptTimeout   = 60 * time.Second
	DefaultSessionIdleTTL   = 2 * time.Hour
	SessionJanitorInterval  = 5 * time.Minute
	DefaultCatalogCacheTTL  = 0
	CatalogMaxPages         = 5
	CatalogPageSize         = 1000
	ModelNamespacePrefix    = "models/"
	GenerateContentMethod   = "generateContent"
	ProviderNameGemini      = "gemini"
	ProviderNameOpenAI      = "openai"
	DefaultProviderName     = ProviderNameGemini
	DefaultGeminiBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultOpenAIBaseURL    = "https://generativelanguage.googleapis.com/v1beta/openai/"
	GenerationTemperature   = 0.2
	InstructionAcknowledged = "Understood."
)

// DefaultFallbackModels is the static candidate set used when discovery fails.
var DefaultFallbackModels = []string{
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-pro",
}

// Eligibility name patterns
var (
	EligibleModelPatterns = []string{"flash", "pro"}
	ExcludedModelPatterns = []string{"vision", "image"}
)

// Response body size limits
const (
	MaxResponseBodySize = 10 * 1024 * 1024
)

// Logging config constants
const (
	MaxDebugFilePathLength = 260
)

// File permission constants
const (
	FilePermissionReadWrite = 0644
)

// Time format constants
const (
	TimeFormatDateTime = "2006-01-02 15:04:05"
)

// Default config constants
const (
	DefaultPort             = "8080"
	DefaultGinMode          = "release"
	DefaultModelsConfigPath = "models.json"
	DefaultRateLimit        = 120
	CORSMaxAge              = "86400"
)

// HTTP constants
const (
	ContentTypeJSON     = "application/json"
	HeaderContentType   = "Content-Type"
	HeaderAuthorization = "Authorization"
	HeaderXAPIKey       = "x-api-key"
	HeaderPortalUser    = "X-Portal-User"
	AuthBearerPrefix    = "Bearer "
)

// Request sources recorded in metrics
const (
	SourceConsultation = "consultation"
	SourceDrugFeedback = "drug_feedback"
	SourceTurn         = "turn"
)
