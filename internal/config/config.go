// Package config loads the Settle configuration from an optional YAML file
// layered over the tier defaults, then applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/settle/internal/domain"
)

// Environment variables read by Load.
const (
	EnvConfig     = "SETTLE_CONFIG"
	EnvTier       = "SETTLE_TIER"
	EnvPort       = "SETTLE_PORT"
	EnvSQLitePath = "SETTLE_SQLITE_PATH"
	EnvDatabase   = "SETTLE_DATABASE_URL"
	EnvRedisAddr  = "SETTLE_REDIS_ADDR"
	EnvNATSURL    = "SETTLE_NATS_URL"
	EnvTenants    = "SETTLE_TENANTS"
	EnvDebug      = "SETTLE_DEBUG"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Load builds the configuration. path may be empty; SETTLE_CONFIG takes
// precedence over it. The tier is chosen first (file, then SETTLE_TIER) so
// the file only needs to list what differs from that tier's defaults.
func Load(path string) (*domain.Config, error) {
	if env := os.Getenv(EnvConfig); env != "" {
		path = env
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	tier := domain.TierCommunity
	if len(data) > 0 {
		var peek struct {
			Tier domain.Tier `yaml:"tier"`
		}
		if err := yaml.Unmarshal(data, &peek); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if peek.Tier != "" {
			tier = peek.Tier
		}
	}
	if env := os.Getenv(EnvTier); env != "" {
		tier = domain.Tier(env)
	}

	var cfg *domain.Config
	switch tier {
	case domain.TierCommunity:
		cfg = domain.DefaultConfig()
	case domain.TierPro:
		cfg = domain.ProConfig()
	default:
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalid, tier)
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.Tier = tier

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *domain.Config) error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvPort, v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv(EnvSQLitePath); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		cfg.Repository.PostgresURL = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv(EnvTenants); v != "" {
		cfg.Worker.Tenants = nil
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				cfg.Worker.Tenants = append(cfg.Worker.Tenants, t)
			}
		}
	}
	if os.Getenv(EnvDebug) == "true" {
		cfg.Logging.Level = "debug"
	}
	return nil
}

// Validate checks the parts of cfg that would otherwise fail late, at the
// first run.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, cfg.Server.Port)
	}
	if cfg.Server.CollectPerMinute < 0 {
		return fmt.Errorf("%w: collect_per_minute must not be negative", ErrInvalid)
	}
	if cfg.Engine.FetchTimeout < 0 {
		return fmt.Errorf("%w: fetch_timeout must not be negative", ErrInvalid)
	}

	th := cfg.Engine.Thresholds
	if th.TransitDays < 0 || th.MinCitySample < 0 || th.DisplayLimit < 0 ||
		th.ReturnRatePercent < 0 || th.PerformanceRatePercent < 0 || th.ProblemCityFloorPercent < 0 {
		return fmt.Errorf("%w: thresholds must not be negative", ErrInvalid)
	}

	known := make(map[domain.Source]bool)
	for _, s := range domain.Sources() {
		known[s] = true
	}

	seen := make(map[domain.Source]bool)
	for i, sc := range cfg.Sources {
		if !known[sc.Source] {
			return fmt.Errorf("%w: sources[%d]: unknown source %q", ErrInvalid, i, sc.Source)
		}
		if seen[sc.Source] {
			return fmt.Errorf("%w: sources[%d]: %s listed twice", ErrInvalid, i, sc.Source)
		}
		seen[sc.Source] = true
		if sc.OrdersLocation == "" {
			return fmt.Errorf("%w: sources[%d]: orders location is required", ErrInvalid, i)
		}
		switch sc.Kind {
		case "", "file", "http":
		default:
			return fmt.Errorf("%w: sources[%d]: unsupported kind %q", ErrInvalid, i, sc.Kind)
		}
	}

	for i, fs := range cfg.Engine.FeeSchedules {
		if !known[fs.Source] {
			return fmt.Errorf("%w: fee_schedules[%d]: unknown source %q", ErrInvalid, i, fs.Source)
		}
	}

	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, cfg.Logging.Format)
	}
	return nil
}

// LogLevel maps the configured level name to a slog level. Unknown names
// fall back to info.
func LogLevel(cfg *domain.Config) slog.Level {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
