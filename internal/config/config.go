package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the api and worker binaries read from the environment.
type Config struct {
	HTTPAddr string
	RunLocal bool
	LogLevel string

	AWSRegion   string
	AWSEndpoint string

	OrdersTable        string
	UsersTable         string
	NotificationsTable string
	IdempotencyTable   string
	IdempotencyTTL     time.Duration

	NotificationsQueueURL string

	MetricsEnabled   bool
	MetricsNamespace string

	AppBaseURL string

	NOWPayments NOWPaymentsConfig
	MoneyMotion MoneyMotionConfig
	PayPal      PayPalConfig

	ProviderTimeout time.Duration
	Retry           RetryConfig
}

type NOWPaymentsConfig struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
}

type MoneyMotionConfig struct {
	APIKey  string
	BaseURL string
}

type PayPalConfig struct {
	BusinessEmail string
}

// RetryConfig drives the read-retry helper.
type RetryConfig struct {
	Attempts       int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
	ReportInterval time.Duration
}

func Load() *Config {
	return &Config{
		HTTPAddr: getEnvOrDefault("HTTP_ADDR", ":8080"),
		RunLocal: getEnvAsBool("RUN_LOCAL", false),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		AWSRegion:   getEnvOrDefault("AWS_REGION", "us-east-1"),
		AWSEndpoint: os.Getenv("AWS_ENDPOINT_OVERRIDE"),

		OrdersTable:        getEnvOrDefault("ORDERS_TABLE", "orders"),
		UsersTable:         getEnvOrDefault("USERS_TABLE", "users"),
		NotificationsTable: getEnvOrDefault("NOTIFICATIONS_TABLE", "notifications"),
		IdempotencyTable:   getEnvOrDefault("IDEMPOTENCY_TABLE", "idempotency"),
		IdempotencyTTL:     getEnvAsDuration("IDEMPOTENCY_TTL", 48*time.Hour),

		NotificationsQueueURL: os.Getenv("NOTIFICATIONS_QUEUE_URL"),

		MetricsEnabled:   getEnvAsBool("METRICS_ENABLED", false),
		MetricsNamespace: getEnvOrDefault("METRICS_NAMESPACE", "Storefront"),

		AppBaseURL: getEnvOrDefault("APP_BASE_URL", "http://localhost:3000"),

		NOWPayments: NOWPaymentsConfig{
			APIKey:        os.Getenv("NOWPAYMENTS_API_KEY"),
			BaseURL:       getEnvOrDefault("NOWPAYMENTS_BASE_URL", "https://api.nowpayments.io/v1"),
			WebhookSecret: os.Getenv("NOWPAYMENTS_WEBHOOK_SECRET"),
		},
		MoneyMotion: MoneyMotionConfig{
			APIKey:  os.Getenv("MONEY_MOTION_API_KEY"),
			BaseURL: getEnvOrDefault("MONEY_MOTION_BASE_URL", "https://api.moneymotion.com/v1"),
		},
		PayPal: PayPalConfig{
			BusinessEmail: os.Getenv("PAYPAL_BUSINESS_EMAIL"),
		},

		ProviderTimeout: getEnvAsDuration("PROVIDER_TIMEOUT", 15*time.Second),
		Retry: RetryConfig{
			Attempts:       getEnvAsInt("RETRY_ATTEMPTS", 3),
			BaseDelay:      getEnvAsDuration("RETRY_BASE_DELAY", time.Second),
			AttemptTimeout: getEnvAsDuration("RETRY_ATTEMPT_TIMEOUT", 5*time.Second),
			ReportInterval: getEnvAsDuration("RETRY_REPORT_INTERVAL", 30*time.Second),
		},
	}
}

// Warnings lists missing payment settings. None of them are fatal: the
// affected endpoint fails at request time instead.
func (c *Config) Warnings() []string {
	var out []string
	if c.NOWPayments.APIKey == "" {
		out = append(out, "NOWPAYMENTS_API_KEY is not set")
	}
	if c.NOWPayments.WebhookSecret == "" {
		out = append(out, "NOWPAYMENTS_WEBHOOK_SECRET is not set, all webhooks will be rejected")
	}
	if c.MoneyMotion.APIKey == "" {
		out = append(out, "MONEY_MOTION_API_KEY is not set")
	}
	if c.PayPal.BusinessEmail == "" {
		out = append(out, "PAYPAL_BUSINESS_EMAIL is not set")
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
