package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

const (
	JudgeProviderOpenAI = "openai"
	JudgeProviderOllama = "ollama"
)

type Config struct {
	LogLevel    string
	MetricsPort string

	ResultsDir         string
	CategoryInfoPath   string
	PromptTemplatePath string
	VariantsFile       string

	SearchURL            string
	SearchIndex          string
	SearchTimeoutSeconds int
	ResultSize           int

	FeaturePlatformEndpoint       string
	FeaturePlatformService        string
	FeaturePlatformMethod         string
	FeaturePlatformClientName     string
	FeaturePlatformTimeoutSeconds int

	JudgeProvider       string
	JudgeMaxRows        int
	JudgeWorkers        int
	JudgeTimeoutSeconds int

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	OllamaURL   string
	OllamaModel string

	KeywordDelayMS int

	RetryMaxAttempts      int
	RetryInitialBackoffMS int
	RetryMaxBackoffMS     int
	BreakerEnabled        bool

	// Optional sinks; empty disables them.
	PostgresDSN         string
	NATSURL             string
	NATSEventsSubject   string
	NATSRequestsSubject string
}

func Load() Config {
	return Config{
		LogLevel:    mustEnv("LOG_LEVEL", "info"),
		MetricsPort: mustEnv("METRICS_PORT", ""),

		ResultsDir:         mustEnv("RESULTS_DIR", "./results"),
		CategoryInfoPath:   mustEnv("CATEGORY_INFO_PATH", "./data/category_info.csv"),
		PromptTemplatePath: mustEnv("PROMPT_TEMPLATE_PATH", ""),
		VariantsFile:       mustEnv("VARIANTS_FILE", ""),

		SearchURL:            mustEnv("SEARCH_URL", "http://localhost:9200"),
		SearchIndex:          mustEnv("SEARCH_INDEX", "ads-catalog-product-v3"),
		SearchTimeoutSeconds: mustEnvInt("SEARCH_TIMEOUT_SECONDS", 30),
		ResultSize:           mustEnvInt("RESULT_SIZE", 100),

		FeaturePlatformEndpoint:       mustEnv("FEATURE_PLATFORM_ENDPOINT", "localhost:50051"),
		FeaturePlatformService:        mustEnv("FEATURE_PLATFORM_SERVICE", "featureplatform.featureserving.rpc.v1.FeatureServingService"),
		FeaturePlatformMethod:         mustEnv("FEATURE_PLATFORM_METHOD", "GetSearchKeywordViewEntity"),
		FeaturePlatformClientName:     mustEnv("FEATURE_PLATFORM_CLIENT_NAME", "search-dsl-eval"),
		FeaturePlatformTimeoutSeconds: mustEnvInt("FEATURE_PLATFORM_TIMEOUT_SECONDS", 5),

		JudgeProvider:       strings.ToLower(mustEnv("JUDGE_PROVIDER", JudgeProviderOpenAI)),
		JudgeMaxRows:        mustEnvInt("JUDGE_MAX_ROWS", 64),
		JudgeWorkers:        mustEnvInt("JUDGE_WORKERS", 16),
		JudgeTimeoutSeconds: mustEnvInt("JUDGE_TIMEOUT_SECONDS", 60),

		OpenAIAPIKey:  mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: mustEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:   mustEnv("OPENAI_MODEL", "gpt-4o-mini"),

		OllamaURL:   mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel: mustEnv("OLLAMA_MODEL", "qwen2.5:7b"),

		KeywordDelayMS: mustEnvInt("KEYWORD_DELAY_MS", 1000),

		RetryMaxAttempts:      mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoffMS: mustEnvInt("RETRY_INITIAL_BACKOFF_MS", 200),
		RetryMaxBackoffMS:     mustEnvInt("RETRY_MAX_BACKOFF_MS", 2000),
		BreakerEnabled:        mustEnvBool("BREAKER_ENABLED", true),

		PostgresDSN:         mustEnv("POSTGRES_DSN", ""),
		NATSURL:             mustEnv("NATS_URL", ""),
		NATSEventsSubject:   mustEnv("NATS_EVENTS_SUBJECT", "dsl_eval.runs.completed"),
		NATSRequestsSubject: mustEnv("NATS_REQUESTS_SUBJECT", "dsl_eval.requests"),
	}
}

// Validate reports the first setting that would make a run fail before any
// external call is made.
func (c Config) Validate() error {
	switch c.JudgeProvider {
	case JudgeProviderOpenAI:
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return domain.ConfigError("validate config", "OPENAI_API_KEY is required for the openai judge")
		}
	case JudgeProviderOllama:
		if strings.TrimSpace(c.OllamaURL) == "" || strings.TrimSpace(c.OllamaModel) == "" {
			return domain.ConfigError("validate config", "OLLAMA_URL and OLLAMA_MODEL are required for the ollama judge")
		}
	default:
		return domain.ConfigError("validate config", "unknown JUDGE_PROVIDER %q (want %s or %s)", c.JudgeProvider, JudgeProviderOpenAI, JudgeProviderOllama)
	}

	required := map[string]string{
		"SEARCH_URL":                c.SearchURL,
		"SEARCH_INDEX":              c.SearchIndex,
		"FEATURE_PLATFORM_ENDPOINT": c.FeaturePlatformEndpoint,
		"FEATURE_PLATFORM_SERVICE":  c.FeaturePlatformService,
		"FEATURE_PLATFORM_METHOD":   c.FeaturePlatformMethod,
		"RESULTS_DIR":               c.ResultsDir,
		"CATEGORY_INFO_PATH":        c.CategoryInfoPath,
	}
	for _, key := range sortedKeys(required) {
		if strings.TrimSpace(required[key]) == "" {
			return domain.ConfigError("validate config", "%s is required", key)
		}
	}

	positive := map[string]int{
		"SEARCH_TIMEOUT_SECONDS":           c.SearchTimeoutSeconds,
		"RESULT_SIZE":                      c.ResultSize,
		"FEATURE_PLATFORM_TIMEOUT_SECONDS": c.FeaturePlatformTimeoutSeconds,
		"JUDGE_MAX_ROWS":                   c.JudgeMaxRows,
		"JUDGE_WORKERS":                    c.JudgeWorkers,
		"JUDGE_TIMEOUT_SECONDS":            c.JudgeTimeoutSeconds,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] <= 0 {
			return domain.ConfigError("validate config", "%s must be positive, got %d", key, positive[key])
		}
	}
	if c.KeywordDelayMS < 0 {
		return domain.ConfigError("validate config", "KEYWORD_DELAY_MS must not be negative")
	}
	return nil
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
