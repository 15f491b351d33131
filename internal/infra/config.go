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
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	// Generation provider.
	ProviderBaseURL       string
	ProviderAPIToken      string
	ProviderModelVersion  string
	ProviderSubmitTimeout time.Duration

	// Webhook callbacks from the provider.
	WebhookSecret      string
	WebhookCallbackURL string

	// Object storage.
	StorageBackend    string // "filesystem" or "s3"
	StoragePath       string
	StorageBaseURL    string
	S3Bucket          string
	S3Region          string
	S3EndpointURL     string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string

	// Usage accounting.
	MonthlyGenerationLimit int

	GeoIPDBPath        string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		ProviderBaseURL:       getEnv("PROVIDER_BASE_URL", "https://api.replicate.com/v1"),
		ProviderAPIToken:      os.Getenv("PROVIDER_API_TOKEN"),
		ProviderModelVersion:  os.Getenv("PROVIDER_MODEL_VERSION"),
		ProviderSubmitTimeout: time.Second * time.Duration(getEnvInt("PROVIDER_SUBMIT_TIMEOUT_SECONDS", 30)),

		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		WebhookCallbackURL: os.Getenv("WEBHOOK_CALLBACK_URL"),

		StorageBackend:    getEnv("STORAGE_BACKEND", "filesystem"),
		StoragePath:       getEnv("STORAGE_PATH", "./data/storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3EndpointURL:     os.Getenv("S3_ENDPOINT_URL"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),

		MonthlyGenerationLimit: getEnvInt("MONTHLY_GENERATION_LIMIT", 30),

		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		CORSAllowedOrigins: splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.StorageBackend != "filesystem" && cfg.StorageBackend != "s3" {
		return nil, fmt.Errorf("STORAGE_BACKEND must be filesystem or s3, got %q", cfg.StorageBackend)
	}

	if cfg.StorageBackend == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
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

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
