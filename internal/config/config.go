package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/GregMSThompson/finance-workers/internal/dto"
)

type Config struct {
	LogLevel string

	RedisURL    string
	DatabaseURL string
	ProjectID   string
	Region      string

	PlaidClientID    string
	PlaidSecret      string
	PlaidEnvironment dto.PlaidEnvironment
	PlaidRateLimit   float64 // requests per second, 0 disables

	KMSKeyName string

	VertexModel  string
	GoogleAPIKey string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	AppBaseURL             string
	SupabaseURL            string
	SupabaseServiceRoleKey string
	CSVBucket              string
	AttachmentBucket       string

	Workers               []string
	WorkerConcurrency     int
	SmartInputConcurrency int
	JobLockDuration       time.Duration
	ShutdownTimeout       time.Duration
	HealthAddr            string
}

// New reads configuration from the environment, after loading a .env file
// when one is present.
func New() *Config {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REDIS_URL", "redis://localhost:6379")
	v.SetDefault("PLAID_ENV", "sandbox")
	v.SetDefault("PLAID_RATE_LIMIT", 10)
	v.SetDefault("VERTEX_MODEL", "gemini-2.0-flash")
	v.SetDefault("CSV_BUCKET", "csv-imports")
	v.SetDefault("ATTACHMENT_BUCKET", "smart-input-attachments")
	v.SetDefault("WORKERS", strings.Join([]string{
		dto.QueuePlaidSync,
		dto.QueueImportTransactions,
		dto.QueueCalendarSync,
		dto.QueueSmartInput,
	}, ","))
	v.SetDefault("WORKER_CONCURRENCY", 3)
	v.SetDefault("SMART_INPUT_CONCURRENCY", 1)
	v.SetDefault("JOB_LOCK_DURATION", "5m")
	v.SetDefault("SHUTDOWN_TIMEOUT", "8s")
	v.SetDefault("HEALTH_ADDR", ":8080")
	return v
}

func FromViper(v *viper.Viper) *Config {
	return &Config{
		LogLevel:               v.GetString("LOG_LEVEL"),
		RedisURL:               v.GetString("REDIS_URL"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		ProjectID:              v.GetString("PROJECT_ID"),
		Region:                 v.GetString("REGION"),
		PlaidClientID:          v.GetString("PLAID_CLIENT_ID"),
		PlaidSecret:            v.GetString("PLAID_API_KEY"),
		PlaidEnvironment:       getPlaidEnvironment(v.GetString("PLAID_ENV")),
		PlaidRateLimit:         v.GetFloat64("PLAID_RATE_LIMIT"),
		KMSKeyName:             v.GetString("KMS_KEY_NAME"),
		VertexModel:            v.GetString("VERTEX_MODEL"),
		GoogleAPIKey:           v.GetString("GOOGLE_API_KEY"),
		GoogleClientID:         v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:     v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURI:      v.GetString("GOOGLE_REDIRECT_URI"),
		AppBaseURL:             v.GetString("APP_BASE_URL"),
		SupabaseURL:            v.GetString("SUPABASE_URL"),
		SupabaseServiceRoleKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		CSVBucket:              v.GetString("CSV_BUCKET"),
		AttachmentBucket:       v.GetString("ATTACHMENT_BUCKET"),
		Workers:                splitList(v.GetString("WORKERS")),
		WorkerConcurrency:      positive(v.GetInt("WORKER_CONCURRENCY"), 3),
		SmartInputConcurrency:  positive(v.GetInt("SMART_INPUT_CONCURRENCY"), 1),
		JobLockDuration:        v.GetDuration("JOB_LOCK_DURATION"),
		ShutdownTimeout:        v.GetDuration("SHUTDOWN_TIMEOUT"),
		HealthAddr:             v.GetString("HEALTH_ADDR"),
	}
}

func getPlaidEnvironment(env string) dto.PlaidEnvironment {
	switch env {
	case "sandbox":
		return dto.PlaidSandbox
	case "development":
		return dto.PalidDevelopment
	default: // "production"
		return dto.PlaidProduction
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func positive(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
