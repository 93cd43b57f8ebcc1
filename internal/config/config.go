package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the evaluation service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string

	NATSURL      string
	QueueSubject string
	QueueGroup   string
	WorkerCount  int

	RetryCeiling int
	BackoffBase  time.Duration
	OcrTimeout   time.Duration
	ScoreTimeout time.Duration
	ScoreRetries int

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	OpenAIAPIKey string
	ScoringModel string
	OcrModel     string

	ResultCacheTTL time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADEFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GradeFlow API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("queue.subject", "gradeflow.submissions")
	v.SetDefault("queue.group", "evaluators")
	v.SetDefault("worker.count", 4)
	v.SetDefault("retry.ceiling", 3)
	v.SetDefault("retry.backoff_base", "2s")
	v.SetDefault("ocr.timeout", "60s")
	v.SetDefault("ocr.model", "gpt-4o-mini")
	v.SetDefault("scoring.timeout", "60s")
	v.SetDefault("scoring.retries", 2)
	v.SetDefault("scoring.model", "gpt-4o-mini")
	v.SetDefault("cloudinary.folder", "gradeflow/answer-sheets")
	v.SetDefault("minio.bucket", "gradeflow-rubrics")
	v.SetDefault("result.cache_ttl", "10m")

	backoff, err := parseDuration(v, "retry.backoff_base")
	if err != nil {
		return Config{}, err
	}
	ocrTimeout, err := parseDuration(v, "ocr.timeout")
	if err != nil {
		return Config{}, err
	}
	scoreTimeout, err := parseDuration(v, "scoring.timeout")
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "result.cache_ttl")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      v.GetString("app.env"),
		AppPort:     v.GetString("app.port"),
		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),

		NATSURL:      v.GetString("nats.url"),
		QueueSubject: v.GetString("queue.subject"),
		QueueGroup:   v.GetString("queue.group"),
		WorkerCount:  v.GetInt("worker.count"),

		RetryCeiling: v.GetInt("retry.ceiling"),
		BackoffBase:  backoff,
		OcrTimeout:   ocrTimeout,
		ScoreTimeout: scoreTimeout,
		ScoreRetries: v.GetInt("scoring.retries"),

		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),

		MinioEndpoint:  v.GetString("minio.endpoint"),
		MinioAccessKey: v.GetString("minio.access_key"),
		MinioSecretKey: v.GetString("minio.secret_key"),
		MinioBucket:    v.GetString("minio.bucket"),
		MinioUseSSL:    v.GetBool("minio.use_ssl"),

		OpenAIAPIKey: v.GetString("openai_api_key"),
		ScoringModel: v.GetString("scoring.model"),
		OcrModel:     v.GetString("ocr.model"),

		ResultCacheTTL: cacheTTL,
	}

	if cfg.RetryCeiling <= 0 {
		cfg.RetryCeiling = 3
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return 0, fmt.Errorf("missing duration for %s", key)
	}

	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}

	return duration, nil
}
