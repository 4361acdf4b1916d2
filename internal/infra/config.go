package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	DefaultLocale string
	JobIDPrefix   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	StoragePath        string
	StorageBaseURL     string
	GCSBucket          string
	GCSPublicBaseURL   string
	GCSCredentialsFile string
	GeoIPDBPath        string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIOrg        string
	OpenAIModels     []string
	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiTextModels []string
	GeminiImageModel string
	QwenAPIKey       string
	QwenBaseURL      string
	QwenImageModel   string
	AudioAPIURL      string
	AudioAPIKey      string

	TextTimeout  time.Duration
	AssetTimeout time.Duration
	StepTimeout  time.Duration
	JobTTL       time.Duration

	PipelineMaxRetries int
	WorkerConcurrency  int
	WorkerInline       bool
	WorkerPollInterval time.Duration

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// Nothing is mandatory: missing infrastructure falls back to in-process
// implementations and missing provider keys fall back to mock content.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          port,
		DefaultLocale: strings.ToLower(getEnv("DEFAULT_LOCALE", "ja")),
		JobIDPrefix:   getEnv("JOB_ID_PREFIX", "school"),

		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),

		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
		GCSBucket:          strings.TrimSpace(os.Getenv("GCS_BUCKET")),
		GCSPublicBaseURL:   strings.TrimSpace(os.Getenv("GCS_PUBLIC_BASE_URL")),
		GCSCredentialsFile: strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_FILE")),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),

		OpenAIAPIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:        os.Getenv("OPENAI_ORG"),
		OpenAIModels:     getEnvList("OPENAI_MODELS", []string{"gpt-4o-mini", "gpt-4.1-mini"}),
		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiTextModels: getEnvList("GEMINI_TEXT_MODELS", []string{"gemini-2.5-flash", "gemini-2.0-flash"}),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		QwenAPIKey:       strings.TrimSpace(os.Getenv("QWEN_API_KEY")),
		QwenBaseURL:      getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		QwenImageModel:   getEnv("QWEN_IMAGE_MODEL", "qwen-image-plus"),
		AudioAPIURL:      strings.TrimSpace(os.Getenv("AUDIO_API_URL")),
		AudioAPIKey:      strings.TrimSpace(os.Getenv("AUDIO_API_KEY")),

		TextTimeout:  time.Second * time.Duration(getEnvInt("TEXT_TIMEOUT_SECONDS", 45)),
		AssetTimeout: time.Second * time.Duration(getEnvInt("ASSET_TIMEOUT_SECONDS", 90)),
		StepTimeout:  time.Second * time.Duration(getEnvInt("STEP_TIMEOUT_SECONDS", 240)),
		JobTTL:       time.Minute * time.Duration(getEnvInt("JOB_TTL_MINUTES", 60)),

		PipelineMaxRetries: getEnvInt("PIPELINE_MAX_RETRIES", 2),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 2)),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}
	// Without a shared queue the API process has to run the pipeline itself.
	cfg.WorkerInline = getEnvBool("WORKER_INLINE", cfg.DatabaseURL == "")

	if cfg.PipelineMaxRetries < 0 {
		return nil, fmt.Errorf("PIPELINE_MAX_RETRIES must not be negative")
	}
	if cfg.WorkerConcurrency <= 0 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if cfg.JobTTL <= 0 {
		return nil, fmt.Errorf("JOB_TTL_MINUTES must be positive")
	}
	if cfg.TextTimeout <= 0 || cfg.AssetTimeout <= 0 || cfg.StepTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be positive")
	}
	if cfg.TextTimeout >= cfg.StepTimeout || cfg.AssetTimeout >= cfg.StepTimeout {
		return nil, fmt.Errorf("TEXT_TIMEOUT_SECONDS and ASSET_TIMEOUT_SECONDS must be below STEP_TIMEOUT_SECONDS")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
