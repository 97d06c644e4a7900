package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Mode determines the deployment shape
	// - "embedded": SQLite + in-memory cache + channel bus (single node)
	// - "distributed": search index + Redis + NATS (fleet deployment)
	Mode Mode `json:"mode"`

	// Scoring pipeline
	Model     ModelConfig     `json:"model"`
	Explainer ExplainerConfig `json:"explainer"`

	// Component configurations
	Store    StoreConfig    `json:"store"`
	Cache    CacheConfig    `json:"cache"`
	EventBus EventBusConfig `json:"eventBus"`
	Worker   WorkerConfig   `json:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// Mode represents the deployment shape.
type Mode string

const (
	// ModeEmbedded runs everything in-process: SQLite and channels.
	ModeEmbedded Mode = "embedded"

	// ModeDistributed targets a SOC fleet: remote index, Redis, NATS.
	ModeDistributed Mode = "distributed"
)

// ModelConfig holds paths to the scoring artifacts.
type ModelConfig struct {
	// Path to the model artifact (JSON tree ensemble + calibration).
	Path string `json:"path"`

	// FeatureMapPath is the ordered feature map (YAML or JSON).
	FeatureMapPath string `json:"featureMapPath"`

	// PolicyPath is the criticality policy file (YAML).
	PolicyPath string `json:"policyPath"`

	// Threshold overrides the policy decision threshold when > 0.
	Threshold float64 `json:"threshold"`
}

// ExplainerConfig holds attribution settings.
type ExplainerConfig struct {
	// Strategy is "tree" (exact path attribution for tree ensembles,
	// sampling fallback otherwise) or "surrogate" (local linear fit).
	Strategy string `json:"strategy"`

	// TopK is how many ranked contributions to keep per record.
	TopK int `json:"topK"`

	// TopEvents is how many decisive events to keep per record.
	TopEvents int `json:"topEvents"`

	// Samples bounds the perturbation budget for approximate
	// strategies.
	Samples int `json:"samples"`
}

// WorkerConfig holds async ingestion settings.
type WorkerConfig struct {
	// Enabled starts the bus consumer alongside the HTTP server.
	Enabled bool `json:"enabled"`

	// Concurrency bounds in-flight alerts per worker.
	Concurrency int `json:"concurrency"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// DefaultConfig returns a default configuration for embedded mode.
// Everything runs in-process; no external services required.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Mode: ModeEmbedded,
		Model: ModelConfig{
			Path:           "./config/model.json",
			FeatureMapPath: "./config/feature_map.yaml",
			PolicyPath:     "./config/policy.yaml",
		},
		Explainer: ExplainerConfig{
			Strategy:  "tree",
			TopK:      5,
			TopEvents: 5,
			Samples:   256,
		},
		Store: StoreConfig{
			Backend:    "sql",
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
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
			Enabled:     false,
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// DistributedConfig returns a configuration for fleet deployment.
// Records land in a remote search index; Redis fronts reads and NATS
// carries ingestion.
func DistributedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Mode = ModeDistributed
	cfg.Store = StoreConfig{
		Backend:        "index",
		IndexURL:       "https://localhost:9200",
		ExplainIndex:   "kestrel-explain-v1",
		FeedbackIndex:  "kestrel-feedback-v1",
		RequestTimeout: 10 * time.Second,
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
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
