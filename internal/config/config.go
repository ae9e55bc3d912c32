package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime configuration required by the service.
type Config struct {
	Port string
	Env  string // "development" or "production"

	DBURL    string
	RedisURL string

	// WebhookSecret is the shared secret deliveries are signed with.
	WebhookSecret string
	// AdminAPIKey protects the query/admin API (X-API-Key).
	AdminAPIKey string

	// CartItemCap is the maximum summed quantity a cart may hold before the
	// policy engine computes a reduction plan.
	CartItemCap int

	// AdminAPIVersion is the remote admin API version segment, e.g. 2023-10.
	AdminAPIVersion string
	// AppURL is this service's public base URL, used as the webhook address
	// when registering subscriptions.
	AppURL string
	// MutationTimeout bounds each remote mutation tier's HTTP call.
	MutationTimeout time.Duration
}

// Load reads required values from environment variables.
func Load() (Config, error) {
	cfg := Config{
		Port:            envOr("PORT", "8080"),
		Env:             envOr("GO_ENV", "development"),
		DBURL:           strings.TrimSpace(os.Getenv("DB_URL")),
		RedisURL:        strings.TrimSpace(os.Getenv("REDIS_URL")),
		WebhookSecret:   strings.TrimSpace(os.Getenv("WEBHOOK_SECRET")),
		AdminAPIKey:     strings.TrimSpace(os.Getenv("ADMIN_API_KEY")),
		AdminAPIVersion: envOr("ADMIN_API_VERSION", "2023-10"),
		AppURL:          strings.TrimSpace(os.Getenv("APP_URL")),
	}

	if cfg.DBURL == "" {
		return Config{}, errors.New("DB_URL required")
	}
	if cfg.RedisURL == "" {
		return Config{}, errors.New("REDIS_URL required")
	}
	if cfg.WebhookSecret == "" {
		return Config{}, errors.New("WEBHOOK_SECRET required")
	}

	// Local dev fallback so the service runs out-of-the-box.
	if cfg.AdminAPIKey == "" {
		cfg.AdminAPIKey = "dev-admin-key"
	}

	capStr := envOr("CART_ITEM_CAP", "5")
	itemCap, err := strconv.Atoi(capStr)
	if err != nil || itemCap < 1 {
		return Config{}, fmt.Errorf("CART_ITEM_CAP must be a positive integer, got %q", capStr)
	}
	cfg.CartItemCap = itemCap

	timeoutStr := envOr("MUTATION_TIMEOUT", "5s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil || timeout <= 0 {
		return Config{}, fmt.Errorf("MUTATION_TIMEOUT must be a positive duration, got %q", timeoutStr)
	}
	cfg.MutationTimeout = timeout

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
