package domain

import "time"

// Config holds the complete tollwatch configuration.
type Config struct {
	Server ServerConfig `json:"server" envconfig:"SERVER"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" envconfig:"REPOSITORY"`
	Cache      CacheConfig      `json:"cache" envconfig:"CACHE"`
	EventBus   EventBusConfig   `json:"eventBus" envconfig:"BUS"`
	Storage    StorageConfig    `json:"storage" envconfig:"STORAGE"`
	Warehouse  WarehouseConfig  `json:"warehouse" envconfig:"WAREHOUSE"`
	Export     ExportConfig     `json:"export" envconfig:"EXPORT"`
	Scoring    ScoringConfig    `json:"scoring" envconfig:"SCORING"`

	// Observability
	Logging LoggingConfig `json:"logging" envconfig:"LOGGING"`
	Tracing TracingConfig `json:"tracing" envconfig:"TRACING"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `json:"host" envconfig:"HOST" default:"0.0.0.0"`
	Port         int           `json:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `json:"readTimeout" envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `json:"writeTimeout" envconfig:"WRITE_TIMEOUT" default:"60s"`

	// MaxUploadMB caps multipart uploads.
	MaxUploadMB int64 `json:"maxUploadMB" envconfig:"MAX_UPLOAD_MB" default:"10"`
}

// StorageConfig selects where raw files are kept.
type StorageConfig struct {
	// Type is "local" or "gcs"
	Type string `json:"type" envconfig:"TYPE" default:"local"`

	Bucket          string `json:"bucket" envconfig:"BUCKET"`
	ProjectID       string `json:"projectId" envconfig:"PROJECT_ID"`
	CredentialsPath string `json:"-" envconfig:"CREDENTIALS"`

	// LocalDir backs the local store.
	LocalDir string `json:"localDir" envconfig:"LOCAL_DIR" default:"./data/store"`

	RawPrefix string `json:"rawPrefix" envconfig:"RAW_PREFIX" default:"data/raw/"`

	// InboxDir is scanned by the intake command; InterimDir receives the
	// renamed copy of each file.
	InboxDir   string `json:"inboxDir" envconfig:"INBOX_DIR" default:"./data/inbox"`
	InterimDir string `json:"interimDir" envconfig:"INTERIM_DIR" default:"./data/interim"`
}

// WarehouseConfig controls the BigQuery export of processed batches.
type WarehouseConfig struct {
	Enabled         bool   `json:"enabled" envconfig:"ENABLED"`
	ProjectID       string `json:"projectId" envconfig:"PROJECT_ID"`
	Dataset         string `json:"dataset" envconfig:"DATASET" default:"ezpass_data"`
	Table           string `json:"table" envconfig:"TABLE" default:"master_viz"`
	CredentialsPath string `json:"-" envconfig:"CREDENTIALS"`
}

// ExportConfig controls the processed-CSV export.
type ExportConfig struct {
	// Dir receives one CSV per processed batch. Empty disables the export.
	Dir string `json:"dir" envconfig:"DIR" default:"./data/processed"`
}

// ScoringConfig holds the tunable scoring parameters.
type ScoringConfig struct {
	AmountPercentile     float64 `json:"amountPercentile" envconfig:"AMOUNT_PERCENTILE" default:"0.95"`
	FlagThreshold        int     `json:"flagThreshold" envconfig:"FLAG_THRESHOLD" default:"50"`
	InvestigateThreshold int     `json:"investigateThreshold" envconfig:"INVESTIGATE_THRESHOLD" default:"80"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" envconfig:"LEVEL" default:"info"`   // debug, info, warn, error
	Format string `json:"format" envconfig:"FORMAT" default:"json"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" envconfig:"ENABLED"`
	ServiceName string `json:"serviceName" envconfig:"SERVICE_NAME" default:"tollwatch"`

	// Endpoint is the OTLP/gRPC collector address.
	Endpoint     string  `json:"endpoint" envconfig:"ENDPOINT" default:"localhost:4317"`
	SamplingRate float64 `json:"samplingRate" envconfig:"SAMPLING_RATE" default:"1.0"`
	Insecure     bool    `json:"insecure" envconfig:"INSECURE" default:"true"`
}

// DefaultConfig returns the single-process configuration:
// SQLite, in-memory cache, channel bus and a local object store.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			MaxUploadMB:  10,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./tollwatch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
			TTL:          time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
			NATSMaxReconnects: 10,
			NATSReconnectWait: 5,
			NATSQueueGroup:    "tollwatch-workers",
		},
		Storage: StorageConfig{
			Type:       "local",
			LocalDir:   "./data/store",
			RawPrefix:  "data/raw/",
			InboxDir:   "./data/inbox",
			InterimDir: "./data/interim",
		},
		Warehouse: WarehouseConfig{
			Dataset: "ezpass_data",
			Table:   "master_viz",
		},
		Export: ExportConfig{
			Dir: "./data/processed",
		},
		Scoring: ScoringConfig{
			AmountPercentile:     0.95,
			FlagThreshold:        50,
			InvestigateThreshold: 80,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName:  "tollwatch",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Insecure:     true,
		},
	}
}
