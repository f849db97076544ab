package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ClientConfig captures all tunable parameters for an agent process.
// Values are primarily loaded from environment variables with sane
// defaults so the binary can run locally without excessive setup.
type ClientConfig struct {
	BackendURL    string
	WSURL         string
	OSRMEndpoint  string
	SessionCookie string

	HTTPTimeout    time.Duration
	ReconnectDelay time.Duration

	LocationInterval    time.Duration
	CompletedResetDelay time.Duration

	StatusAddr string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	StripeKey string

	RouteCacheTTL time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		BackendURL:          "http://localhost:8081",
		WSURL:               "ws://localhost:8081/ws",
		OSRMEndpoint:        "https://router.project-osrm.org",
		HTTPTimeout:         10 * time.Second,
		ReconnectDelay:      5 * time.Second,
		LocationInterval:    5 * time.Second,
		CompletedResetDelay: 3 * time.Second,
		StatusAddr:          ":2112",
		KafkaTopic:          "driver-locations",
		RouteCacheTTL:       time.Minute,
		LogLevel:            "info",
	}
}

func LoadClientConfig() (ClientConfig, error) {
	cfg := defaultClientConfig()
	var errs []error

	setStringFromEnv(&cfg.BackendURL, "BACKEND_URL")
	setStringFromEnv(&cfg.WSURL, "WS_URL")
	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	cfg.SessionCookie = os.Getenv("SESSION_COOKIE")

	setDurationFromEnv(&cfg.HTTPTimeout, "HTTP_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ReconnectDelay, "WS_RECONNECT_DELAY", &errs)
	setDurationFromEnv(&cfg.LocationInterval, "LOCATION_INTERVAL", &errs)
	setDurationFromEnv(&cfg.CompletedResetDelay, "COMPLETED_RESET_DELAY", &errs)
	setDurationFromEnv(&cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)

	setStringFromEnv(&cfg.StatusAddr, "STATUS_ADDR")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.StripeKey = os.Getenv("STRIPE_API_KEY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("WS_RECONNECT_DELAY must be > 0"))
	}
	if cfg.LocationInterval <= 0 {
		errs = append(errs, fmt.Errorf("LOCATION_INTERVAL must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
