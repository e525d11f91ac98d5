package domain

import "time"

// Config holds the complete Settle configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier" yaml:"tier"`

	// Engine parameters
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Sources the intake layer fetches from
	Sources []SourceConfig `json:"sources" yaml:"sources"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus"`

	// Async run worker
	Worker WorkerConfig `json:"worker" yaml:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// EngineConfig holds the financial and alerting parameters.
type EngineConfig struct {
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`

	// AcceptedStatuses lists, per source, the receipt statuses that count as paid.
	AcceptedStatuses map[Source][]string `json:"acceptedStatuses" yaml:"accepted_statuses"`

	// FeeSchedules replace the built-in schedule rows for the listed sources.
	FeeSchedules []FeeSchedule `json:"feeSchedules,omitempty" yaml:"fee_schedules"`

	// FetchTimeout bounds each source fetch.
	FetchTimeout time.Duration `json:"fetchTimeout" yaml:"fetch_timeout"`
}

// SourceConfig describes how to fetch one source.
type SourceConfig struct {
	Source Source `json:"source" yaml:"source"`

	// Kind is "http" or "file"
	Kind string `json:"kind" yaml:"kind"`

	OrdersLocation   string `json:"ordersLocation" yaml:"orders"`
	ReceiptsLocation string `json:"receiptsLocation" yaml:"receipts"`

	// HTTP settings
	RatePerSecond float64       `json:"ratePerSecond" yaml:"rate_per_second"`
	Burst         int           `json:"burst" yaml:"burst"`
	CacheTTL      time.Duration `json:"cacheTtl" yaml:"cache_ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"` // seconds

	// CollectPerMinute caps POST /runs/collect per tenant. Zero disables the cap.
	CollectPerMinute int `json:"collectPerMinute" yaml:"collect_per_minute"`
}

// WorkerConfig controls the bus-driven run worker.
type WorkerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Tenants to subscribe for. Empty means every tenant.
	Tenants []string `json:"tenants,omitempty" yaml:"tenants"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"service_name"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultAcceptedStatuses returns the receipt statuses each source reports
// once money has actually moved.
func DefaultAcceptedStatuses() map[Source][]string {
	return map[Source][]string{
		SourceRapidPost:  {"Settled", "Paid"},
		SourceCityLink:   {"Transferred", "Paid"},
		SourceStorefront: {"paid", "payout_paid"},
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30,
			WriteTimeout:     30,
			CollectPerMinute: 30,
		},
		Tier: TierCommunity,
		Engine: EngineConfig{
			Thresholds:       DefaultThresholds(),
			AcceptedStatuses: DefaultAcceptedStatuses(),
			FetchTimeout:     15 * time.Second,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./settle.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Worker: WorkerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "settle",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "settle",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
