package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		Driver string
		DSN    string
	}
	Kafka struct {
		Enabled bool
		Brokers []string
		Topic   string
		GroupID string
	}
	API struct {
		Port     string
		BasePath string
	}
	Scheduler struct {
		Interval        time.Duration
		BatchSize       int
		MaxWorkers      int
		RetryFailed     bool
		DistributedLock bool
		LockKey         int64
	}
	Notification struct {
		MaxRetry  int
		Timezone  string
		AgentCode string
	}
	Transport struct {
		Driver           string
		SNSRegion        string
		TelegramBotToken string
		TelegramRate     int
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment.
func FromEnv() (Config, error) {
	var cfg Config

	// Database
	cfg.DB.Driver = getEnv("DB_DRIVER", "postgres")
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Kafka ingestion
	cfg.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", false)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", "vessel_alerts")
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", "ship-notification-service")

	// API settings
	cfg.API.Port = getEnv("API_PORT", ":9191")
	cfg.API.BasePath = getEnv("API_BASE_PATH", "/api/v0")

	// Scheduler
	cfg.Scheduler.Interval = getEnvDuration("SCHEDULER_INTERVAL", 30*time.Second)
	cfg.Scheduler.BatchSize = getEnvInt("SCHEDULER_BATCH_SIZE", 200)
	cfg.Scheduler.MaxWorkers = getEnvInt("MAX_WORKERS", 10)
	cfg.Scheduler.RetryFailed = getEnvBool("SCHEDULER_RETRY_FAILED", false)
	cfg.Scheduler.DistributedLock = getEnvBool("SCHEDULER_DISTRIBUTED_LOCK", false)
	cfg.Scheduler.LockKey = int64(getEnvInt("SCHEDULER_LOCK_KEY", 7301))

	// Notification defaults
	cfg.Notification.MaxRetry = getEnvInt("NOTIFICATION_MAX_RETRY", 3)
	cfg.Notification.Timezone = getEnv("NOTIFICATION_TIMEZONE", "Asia/Ho_Chi_Minh")
	cfg.Notification.AgentCode = os.Getenv("NOTIFICATION_AGENT_CODE")

	// Transport
	cfg.Transport.Driver = getEnv("TRANSPORT_DRIVER", "log")
	cfg.Transport.SNSRegion = getEnv("SNS_REGION", "ap-southeast-1")
	cfg.Transport.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Transport.TelegramRate = getEnvInt("TELEGRAM_RATE_LIMIT", 25)

	// Logging
	cfg.Logging.Dir = getEnv("LOG_DIR", "logs")
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")

	// Validate required settings
	missing := []string{}
	if cfg.DB.Driver == "postgres" && cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		missing = append(missing, "KAFKA_BROKERS")
	}
	if cfg.Transport.Driver == "telegram" && cfg.Transport.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	switch cfg.DB.Driver {
	case "postgres", "memory":
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	switch cfg.Transport.Driver {
	case "sns", "telegram", "log":
	default:
		return Config{}, fmt.Errorf("unsupported TRANSPORT_DRIVER %q", cfg.Transport.Driver)
	}
	if cfg.Notification.MaxRetry < 1 {
		cfg.Notification.MaxRetry = 1
	}
	if cfg.Scheduler.MaxWorkers < 1 {
		cfg.Scheduler.MaxWorkers = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
