// Package config reads runtime settings from the environment. Each binary
// loads the full Config and checks the fields it needs with Require.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	defaultNotificationsTopic  = "order.notifications"
	defaultPaymentTimeout      = 15 * time.Second
	defaultDeliveryTimeout     = 10 * time.Second
	defaultOutboxPollInterval  = time.Second
	defaultOutboxBatchSize     = 100
	defaultMigrationsPath      = "file://migrations"
	defaultFrontendURL         = "http://localhost:3000"
	defaultOTLPEndpoint        = "localhost:4317"
	defaultWebhookClockSkew    = 5 * time.Minute
	defaultHTTPTimeout         = 10 * time.Second
	defaultWorkerConsumerGroup = "notification-worker"
)

type Config struct {
	Env  string
	Port string

	PostgresURL    string
	MigrationsPath string

	KafkaBrokers       []string
	NotificationsTopic string
	ConsumerGroup      string

	JWTSecret            string
	PaymentWebhookSecret string
	WebhookClockSkew     time.Duration
	RedisAddr            string

	FrontendURL        string
	EmailServiceURL    string
	OrdersServiceURL   string
	PaymentsServiceURL string
	NotificationsURL   string
	OTLPEndpoint       string
	TraceSampleRatio   float64
	HTTPTimeout        time.Duration
	PaymentTimeout     time.Duration
	DeliveryTimeout    time.Duration
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	SimulatedLatency   time.Duration
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load builds a Config from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds a Config using the supplied lookup, which makes tests
// independent of the process environment.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Env:                  stringOr(getenv("APP_ENV"), EnvDevelopment),
		Port:                 getenv("PORT"),
		PostgresURL:          getenv("POSTGRES_URL"),
		MigrationsPath:       stringOr(getenv("MIGRATIONS_PATH"), defaultMigrationsPath),
		KafkaBrokers:         splitList(getenv("KAFKA_BROKERS")),
		NotificationsTopic:   stringOr(getenv("NOTIFICATIONS_TOPIC"), defaultNotificationsTopic),
		ConsumerGroup:        stringOr(getenv("KAFKA_CONSUMER_GROUP"), defaultWorkerConsumerGroup),
		JWTSecret:            getenv("JWT_SECRET"),
		PaymentWebhookSecret: getenv("PAYMENT_WEBHOOK_SECRET"),
		RedisAddr:            getenv("REDIS_ADDR"),
		FrontendURL:          strings.TrimRight(stringOr(getenv("FRONTEND_URL"), defaultFrontendURL), "/"),
		EmailServiceURL:      strings.TrimRight(getenv("EMAIL_SERVICE_URL"), "/"),
		OrdersServiceURL:     strings.TrimRight(getenv("ORDERS_SERVICE_URL"), "/"),
		PaymentsServiceURL:   strings.TrimRight(getenv("PAYMENTS_SERVICE_URL"), "/"),
		NotificationsURL:     strings.TrimRight(getenv("NOTIFICATIONS_SERVICE_URL"), "/"),
		OTLPEndpoint:         stringOr(getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), defaultOTLPEndpoint),
	}

	var errs []error
	parseDuration := func(key string, fallback time.Duration) time.Duration {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			return fallback
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, raw))
			return fallback
		}
		return d
	}

	cfg.WebhookClockSkew = parseDuration("PAYMENT_WEBHOOK_CLOCK_SKEW", defaultWebhookClockSkew)
	cfg.HTTPTimeout = parseDuration("HTTP_CLIENT_TIMEOUT", defaultHTTPTimeout)
	cfg.PaymentTimeout = parseDuration("PAYMENT_PROVIDER_TIMEOUT", defaultPaymentTimeout)
	cfg.DeliveryTimeout = parseDuration("NOTIFICATION_DELIVERY_TIMEOUT", defaultDeliveryTimeout)
	cfg.OutboxPollInterval = parseDuration("OUTBOX_POLL_INTERVAL", defaultOutboxPollInterval)

	if raw := strings.TrimSpace(getenv("SIMULATED_PROVIDER_LATENCY")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("SIMULATED_PROVIDER_LATENCY: invalid duration %q", raw))
		} else {
			cfg.SimulatedLatency = d
		}
	}

	cfg.TraceSampleRatio = 1
	if raw := strings.TrimSpace(getenv("OTEL_TRACES_SAMPLER_ARG")); raw != "" {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			errs = append(errs, fmt.Errorf("OTEL_TRACES_SAMPLER_ARG: ratio must be between 0 and 1, got %q", raw))
		} else {
			cfg.TraceSampleRatio = ratio
		}
	}

	cfg.OutboxBatchSize = defaultOutboxBatchSize
	if raw := strings.TrimSpace(getenv("OUTBOX_BATCH_SIZE")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("OUTBOX_BATCH_SIZE: invalid size %q", raw))
		} else {
			cfg.OutboxBatchSize = n
		}
	}

	switch cfg.Env {
	case EnvProduction, EnvDevelopment, "test":
	default:
		errs = append(errs, fmt.Errorf("APP_ENV: unknown environment %q", cfg.Env))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Require returns an error naming every listed variable whose value is empty.
func (c *Config) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if c.lookup(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) lookup(name string) string {
	switch name {
	case "POSTGRES_URL":
		return c.PostgresURL
	case "KAFKA_BROKERS":
		return strings.Join(c.KafkaBrokers, ",")
	case "JWT_SECRET":
		return c.JWTSecret
	case "PAYMENT_WEBHOOK_SECRET":
		return c.PaymentWebhookSecret
	case "EMAIL_SERVICE_URL":
		return c.EmailServiceURL
	case "ORDERS_SERVICE_URL":
		return c.OrdersServiceURL
	case "PAYMENTS_SERVICE_URL":
		return c.PaymentsServiceURL
	case "NOTIFICATIONS_SERVICE_URL":
		return c.NotificationsURL
	case "REDIS_ADDR":
		return c.RedisAddr
	default:
		return ""
	}
}

// PortOr returns the configured port or the binary's default.
func (c *Config) PortOr(fallback string) string {
	return stringOr(c.Port, fallback)
}

func stringOr(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
