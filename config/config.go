package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment.
type Config struct {
	DatabaseURL      string
	Port             int
	GameServiceToken string
	AllowedOrigins   []string
	LogLevel         slog.Level

	// Auth service used to validate SSE stream tokens.
	AuthServiceURL string

	// Optional profile sync; the worker is disabled when the URL is empty.
	ProfileSyncURL      string
	ProfileSyncPath     string
	ProfileSyncInterval time.Duration

	// Serve an ephemeral profile when the store is unreachable.
	AllowDegradedIdentity bool

	// Realtime fan-out across instances through LISTEN/NOTIFY.
	NotifyCrossInstance bool

	QueueEntryTTL      time.Duration
	QueueSweepInterval time.Duration

	R2 R2Config
}

// R2Config configures the object storage used for team and player media.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether uploads can be served.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

// Load reads the configuration, loading a .env file first when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		GameServiceToken: os.Getenv("GAME_SERVICE_TOKEN"),
		AuthServiceURL:   os.Getenv("AUTH_SERVICE_URL"),
		ProfileSyncURL:   os.Getenv("PROFILE_SYNC_URL"),
		ProfileSyncPath:  getEnvOrDefault("PROFILE_SYNC_PATH", "/api/v1/public/profiles"),
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if cfg.GameServiceToken == "" {
		return nil, fmt.Errorf("GAME_SERVICE_TOKEN environment variable is not set")
	}

	port, err := strconv.Atoi(getEnvOrDefault("SERVER_PORT", "5200"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}
	cfg.Port = port

	for _, origin := range strings.Split(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnvOrDefault("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if cfg.AllowDegradedIdentity, err = parseBool("ALLOW_DEGRADED_IDENTITY", false); err != nil {
		return nil, err
	}
	if cfg.NotifyCrossInstance, err = parseBool("NOTIFY_CROSS_INSTANCE", true); err != nil {
		return nil, err
	}
	if cfg.QueueEntryTTL, err = parseDuration("QUEUE_ENTRY_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.QueueSweepInterval, err = parseDuration("QUEUE_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ProfileSyncInterval, err = parseDuration("PROFILE_SYNC_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
