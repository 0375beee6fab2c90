package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database   DatabaseConfig
	JWT        JWTConfig
	App        AppConfig
	Attendance AttendanceConfig
	Queue      QueueConfig
	Notifier   NotifierConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
	MinConns int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
}

// AttendanceConfig holds the period-resolution knobs.
type AttendanceConfig struct {
	Timezone          string
	GraceMinutes      int
	EarlyCheckInSlack time.Duration
	LateCheckOutSlack time.Duration
}

// QueueConfig sizes the check-in/out submission gate.
type QueueConfig struct {
	Workers       int
	TaskTimeout   time.Duration
	RetryMaxTries int
	RetryInterval time.Duration
}

// NotifierConfig sizes the background notification dispatcher.
type NotifierConfig struct {
	Workers       int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

func Load() (*Config, error) {
	// A missing .env is fine in deployed environments; variables come
	// from the process environment there.
	_ = godotenv.Load()

	config := &Config{}

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	dbMaxConns, err := strconv.Atoi(getEnv("DB_MAX_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	dbMinConns, err := strconv.Atoi(getEnv("DB_MIN_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "attendly"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: dbMaxConns,
		MinConns: dbMinConns,
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:     appPort,
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// JWT configuration
	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "12h"),
	}

	graceMinutes, err := strconv.Atoi(getEnv("ATTENDANCE_GRACE_MINUTES", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_GRACE_MINUTES: %w", err)
	}

	earlySlack, err := time.ParseDuration(getEnv("ATTENDANCE_EARLY_CHECKIN_SLACK", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_EARLY_CHECKIN_SLACK: %w", err)
	}

	lateSlack, err := time.ParseDuration(getEnv("ATTENDANCE_LATE_CHECKOUT_SLACK", "4h"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTENDANCE_LATE_CHECKOUT_SLACK: %w", err)
	}

	config.Attendance = AttendanceConfig{
		Timezone:          getEnv("ATTENDANCE_TIMEZONE", "UTC"),
		GraceMinutes:      graceMinutes,
		EarlyCheckInSlack: earlySlack,
		LateCheckOutSlack: lateSlack,
	}

	queueWorkers, err := strconv.Atoi(getEnv("QUEUE_WORKERS", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_WORKERS: %w", err)
	}

	taskTimeout, err := time.ParseDuration(getEnv("QUEUE_TASK_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_TASK_TIMEOUT: %w", err)
	}

	retryMax, err := strconv.Atoi(getEnv("QUEUE_RETRY_MAX_TRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_RETRY_MAX_TRIES: %w", err)
	}

	retryInterval, err := time.ParseDuration(getEnv("QUEUE_RETRY_INTERVAL", "200ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_RETRY_INTERVAL: %w", err)
	}

	config.Queue = QueueConfig{
		Workers:       queueWorkers,
		TaskTimeout:   taskTimeout,
		RetryMaxTries: retryMax,
		RetryInterval: retryInterval,
	}

	notifierWorkers, err := strconv.Atoi(getEnv("NOTIFIER_WORKERS", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFIER_WORKERS: %w", err)
	}

	notifierQueueSize, err := strconv.Atoi(getEnv("NOTIFIER_QUEUE_SIZE", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFIER_QUEUE_SIZE: %w", err)
	}

	notifierBatchSize, err := strconv.Atoi(getEnv("NOTIFIER_BATCH_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFIER_BATCH_SIZE: %w", err)
	}

	flushInterval, err := time.ParseDuration(getEnv("NOTIFIER_FLUSH_INTERVAL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFIER_FLUSH_INTERVAL: %w", err)
	}

	config.Notifier = NotifierConfig{
		Workers:       notifierWorkers,
		QueueSize:     notifierQueueSize,
		BatchSize:     notifierBatchSize,
		FlushInterval: flushInterval,
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("QUEUE_WORKERS must be at least 1")
	}
	if c.Attendance.GraceMinutes < 0 {
		return fmt.Errorf("ATTENDANCE_GRACE_MINUTES must not be negative")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
