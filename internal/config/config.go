// Package config loads tollwatch configuration from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

// Prefix is the environment variable prefix, e.g. TOLLWATCH_SERVER_PORT.
const Prefix = "TOLLWATCH"

// Load starts from domain.DefaultConfig, overlays environment variables and
// validates the result.
func Load() (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks enums and ranges that envconfig cannot express.
func Validate(cfg *domain.Config) error {
	if err := oneOf("repository driver", cfg.Repository.Driver, "sqlite", "postgres"); err != nil {
		return err
	}
	if err := oneOf("cache type", cfg.Cache.Type, "memory", "redis"); err != nil {
		return err
	}
	if err := oneOf("bus type", cfg.EventBus.Type, "channel", "nats"); err != nil {
		return err
	}
	if err := oneOf("storage type", cfg.Storage.Type, "local", "gcs"); err != nil {
		return err
	}
	if err := oneOf("logging format", cfg.Logging.Format, "json", "text"); err != nil {
		return err
	}
	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		return err
	}

	if cfg.Storage.Type == "gcs" && cfg.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required for gcs")
	}
	if cfg.Warehouse.Enabled && cfg.Warehouse.ProjectID == "" {
		return fmt.Errorf("warehouse project id is required when the warehouse export is enabled")
	}

	s := cfg.Scoring
	if s.AmountPercentile <= 0 || s.AmountPercentile >= 1 {
		return fmt.Errorf("amount percentile must be in (0, 1), got %v", s.AmountPercentile)
	}
	if s.FlagThreshold <= 0 || s.InvestigateThreshold <= s.FlagThreshold {
		return fmt.Errorf("thresholds must satisfy 0 < flag < investigate, got %d and %d",
			s.FlagThreshold, s.InvestigateThreshold)
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if r := cfg.Tracing.SamplingRate; r < 0 || r > 1 {
		return fmt.Errorf("tracing sampling rate must be in [0, 1], got %v", r)
	}
	if cfg.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported %s %q (want one of %s)", field, value, strings.Join(allowed, ", "))
}

// ParseLevel maps a level name onto slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported logging level %q", level)
	}
}

// NewLogger builds the process logger from the logging settings.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	level, _ := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
