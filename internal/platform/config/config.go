package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ArchiveBackendLocal = "local"
	ArchiveBackendS3    = "s3"

	EmailProviderSMTP = "smtp"
	EmailProviderSES  = "ses"
)

type Config struct {
	Addr                string
	Environment         string
	DatabaseURL         string
	JWTSecret           string
	DataEncryptionKey   string
	SeedAdminEmail      string
	SeedAdminPassword   string
	RunMigrations       bool
	RunSeed             bool
	RedisAddr           string
	RedisPassword       string
	ArchiveBackend      string
	ArchiveDir          string
	ArchiveS3Bucket     string
	ArchiveS3Region     string
	ArchiveS3Endpoint   string
	EmailEnabled        bool
	EmailProvider       string
	EmailFrom           string
	AlertEmailTo        string
	SMTPHost            string
	SMTPPort            int
	SMTPUser            string
	SMTPPassword        string
	SMTPUseTLS          bool
	SlackWebhookURL     string
	OverdueScanInterval time.Duration
	OverdueGracePeriod  time.Duration
	AlertDedupWindow    time.Duration
	PayPeriodStartDay   time.Weekday
	MaxBodyBytes        int64
	RateLimitPerMinute  int
	CORSAllowedOrigins  []string
	MetricsEnabled      bool
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	v := viper.New()
	v.SetConfigFile("configs/config.yaml")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		slog.Debug("no config file found, using environment and defaults", "err", err)
	}

	return Config{
		Addr:                v.GetString("APP_ADDR"),
		Environment:         v.GetString("APP_ENV"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		JWTSecret:           v.GetString("JWT_SECRET"),
		DataEncryptionKey:   v.GetString("DATA_ENCRYPTION_KEY"),
		SeedAdminEmail:      v.GetString("SEED_ADMIN_EMAIL"),
		SeedAdminPassword:   v.GetString("SEED_ADMIN_PASSWORD"),
		RunMigrations:       v.GetBool("RUN_MIGRATIONS"),
		RunSeed:             v.GetBool("RUN_SEED"),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		ArchiveBackend:      strings.ToLower(v.GetString("ARCHIVE_BACKEND")),
		ArchiveDir:          v.GetString("ARCHIVE_DIR"),
		ArchiveS3Bucket:     v.GetString("ARCHIVE_S3_BUCKET"),
		ArchiveS3Region:     v.GetString("ARCHIVE_S3_REGION"),
		ArchiveS3Endpoint:   v.GetString("ARCHIVE_S3_ENDPOINT"),
		EmailEnabled:        v.GetBool("EMAIL_ENABLED"),
		EmailProvider:       strings.ToLower(v.GetString("EMAIL_PROVIDER")),
		EmailFrom:           v.GetString("EMAIL_FROM"),
		AlertEmailTo:        v.GetString("ALERT_EMAIL_TO"),
		SMTPHost:            v.GetString("SMTP_HOST"),
		SMTPPort:            v.GetInt("SMTP_PORT"),
		SMTPUser:            v.GetString("SMTP_USER"),
		SMTPPassword:        v.GetString("SMTP_PASSWORD"),
		SMTPUseTLS:          v.GetBool("SMTP_USE_TLS"),
		SlackWebhookURL:     v.GetString("SLACK_WEBHOOK_URL"),
		OverdueScanInterval: v.GetDuration("OVERDUE_SCAN_INTERVAL"),
		OverdueGracePeriod:  v.GetDuration("OVERDUE_GRACE_PERIOD"),
		AlertDedupWindow:    v.GetDuration("ALERT_DEDUP_WINDOW"),
		PayPeriodStartDay:   parseWeekday(v.GetString("PAY_PERIOD_START_WEEKDAY")),
		MaxBodyBytes:        v.GetInt64("MAX_BODY_BYTES"),
		RateLimitPerMinute:  v.GetInt("RATE_LIMIT_PER_MINUTE"),
		CORSAllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		MetricsEnabled:      v.GetBool("METRICS_ENABLED"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("RUN_SEED", true)
	v.SetDefault("ARCHIVE_BACKEND", ArchiveBackendLocal)
	v.SetDefault("ARCHIVE_DIR", "storage/documents")
	v.SetDefault("ARCHIVE_S3_REGION", "us-east-1")
	v.SetDefault("EMAIL_ENABLED", false)
	v.SetDefault("EMAIL_PROVIDER", EmailProviderSMTP)
	v.SetDefault("EMAIL_FROM", "no-reply@example.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USE_TLS", true)
	v.SetDefault("OVERDUE_SCAN_INTERVAL", 6*time.Hour)
	v.SetDefault("OVERDUE_GRACE_PERIOD", 7*24*time.Hour)
	v.SetDefault("ALERT_DEDUP_WINDOW", 24*time.Hour)
	v.SetDefault("PAY_PERIOD_START_WEEKDAY", "monday")
	v.SetDefault("MAX_BODY_BYTES", 1048576)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("METRICS_ENABLED", true)
}

func parseWeekday(value string) time.Weekday {
	value = strings.ToLower(strings.TrimSpace(value))
	for day := time.Sunday; day <= time.Saturday; day++ {
		if strings.ToLower(day.String()) == value {
			return day
		}
	}
	return time.Monday
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for document encryption at rest")
		}
		if c.RunSeed && strings.TrimSpace(c.SeedAdminPassword) == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be changed or RUN_SEED disabled in production")
		}
	}
	switch c.ArchiveBackend {
	case ArchiveBackendLocal:
		if strings.TrimSpace(c.ArchiveDir) == "" {
			return fmt.Errorf("ARCHIVE_DIR must be set for the local archive backend")
		}
	case ArchiveBackendS3:
		if strings.TrimSpace(c.ArchiveS3Bucket) == "" {
			return fmt.Errorf("ARCHIVE_S3_BUCKET must be set for the s3 archive backend")
		}
	default:
		return fmt.Errorf("ARCHIVE_BACKEND must be %q or %q", ArchiveBackendLocal, ArchiveBackendS3)
	}
	if c.EmailEnabled {
		switch c.EmailProvider {
		case EmailProviderSMTP:
			if c.SMTPHost == "" {
				return fmt.Errorf("SMTP_HOST must be set when EMAIL_PROVIDER is smtp")
			}
		case EmailProviderSES:
		default:
			return fmt.Errorf("EMAIL_PROVIDER must be %q or %q", EmailProviderSMTP, EmailProviderSES)
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.OverdueGracePeriod <= 0 {
		return fmt.Errorf("OVERDUE_GRACE_PERIOD must be positive")
	}
	if c.AlertDedupWindow <= 0 {
		return fmt.Errorf("ALERT_DEDUP_WINDOW must be positive")
	}
	return nil
}
