// Package config provides configuration structures and validation for the
// application. It handles environment-based configuration for all major
// components including server settings, database connections, message queues,
// matching thresholds and the escalation pipeline.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all
// components. Each field represents a major subsystem's configuration and is
// validated during application startup.
type Config struct {
	Application      ApplicationConfig
	Logging          LoggingConfig
	Server           ServerConfig
	Kafka            KafkaConfig
	Postgres         PostgresConfig
	MongoDB          MongoDBConfig
	Matching         MatchingConfig
	Escalation       EscalationConfig
	EscalationPoller EscalationPollerConfig
	WorkerPool       WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	ScanTopic         string // Topic carrying reconciliation scan requests
	NumPartitions     int    // Number of partitions for topics
	ReplicationFactor int    // Replication factor for topics
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64 // kafka.FirstOffset or kafka.LastOffset
	DLQTopic          string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// MatchingConfig tunes the matching engine. Values mirror the engine's own
// configuration but stay as plain numbers here so they can come straight from
// the environment; the processor converts them to decimals on startup.
type MatchingConfig struct {
	AutoMatchThreshold int // Confidence needed to match without review
	SuggestThreshold   int // Confidence needed to suggest a candidate
	WarnThreshold      int // Confidence needed to suggest with a warning
	AutoMatchMargin    int // Lead over the runner-up required to auto-match
	AmbiguityWindow    int // Top-two gap at or under this presents options
	MaxAlternatives    int

	AmountTolerance        float64 // Exact amount window in currency units
	FeeTolerance           float64 // Fee-adjusted amount window
	MinPartialRatio        float64 // Smallest payment/remaining ratio counted as partial
	CleanFractionTolerance float64 // Window around 1/2, 1/3, 1/4, 1/5
	ApproximateRelDiff     float64 // Relative difference treated as approximate

	FuzzyReferenceThreshold float64
	FuzzyIdentityStrong     float64
	FuzzyIdentityWeak       float64

	AllowCrossCurrency bool

	CombinationMaxItems      int     // Largest allowed combination
	CombinationMaxResults    int     // Stop after this many combinations found
	CombinationMaxIterations int     // Hard ceiling on visited search nodes
	CombinationTolerance     float64 // Acceptable residual between sum and target

	FeeModels []FeeModelConfig
}

// FeeModelConfig is one processor fee schedule parsed from MATCHING_FEE_MODELS
type FeeModelConfig struct {
	Name       string
	Percentage float64
	Fixed      float64
}

// EscalationConfig configures the AI investigation of unresolved scans
type EscalationConfig struct {
	Enabled     bool
	Model       string
	APIKey      string
	Timeout     time.Duration // Budget for one investigation call
	MaxAttempts int           // Attempts per investigation before giving up
	BackoffBase time.Duration // First retry delay, doubled per attempt
}

// EscalationPollerConfig controls the queue poller in the processor
type EscalationPollerConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxAttempts     int // Maximum number of delivery attempts per queued case
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.ScanTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_SCAN_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Matching config
	if c.Matching.AutoMatchThreshold <= 0 || c.Matching.AutoMatchThreshold > 100 {
		validationErrors = append(validationErrors, "MATCHING_AUTO_MATCH_THRESHOLD must be in (0, 100]")
	}
	if c.Matching.SuggestThreshold <= 0 || c.Matching.SuggestThreshold > c.Matching.AutoMatchThreshold {
		validationErrors = append(validationErrors, "MATCHING_SUGGEST_THRESHOLD must be positive and not above MATCHING_AUTO_MATCH_THRESHOLD")
	}
	if c.Matching.WarnThreshold <= 0 || c.Matching.WarnThreshold > c.Matching.SuggestThreshold {
		validationErrors = append(validationErrors, "MATCHING_WARN_THRESHOLD must be positive and not above MATCHING_SUGGEST_THRESHOLD")
	}
	if c.Matching.MinPartialRatio <= 0 || c.Matching.MinPartialRatio >= 1 {
		validationErrors = append(validationErrors, "MATCHING_MIN_PARTIAL_RATIO must be in (0, 1)")
	}
	if c.Matching.CombinationMaxItems < 2 {
		validationErrors = append(validationErrors, "MATCHING_COMBINATION_MAX_ITEMS must be at least 2")
	}
	if c.Matching.CombinationMaxResults <= 0 {
		validationErrors = append(validationErrors, "MATCHING_COMBINATION_MAX_RESULTS must be greater than 0")
	}
	if c.Matching.CombinationMaxIterations <= 0 {
		validationErrors = append(validationErrors, "MATCHING_COMBINATION_MAX_ITERATIONS must be greater than 0")
	}
	for _, m := range c.Matching.FeeModels {
		if m.Name == "" {
			validationErrors = append(validationErrors, "MATCHING_FEE_MODELS entries must be named")
		}
		if m.Percentage < 0 || m.Percentage >= 1 {
			validationErrors = append(validationErrors, "MATCHING_FEE_MODELS percentage must be a fraction in [0, 1)")
		}
		if m.Fixed < 0 {
			validationErrors = append(validationErrors, "MATCHING_FEE_MODELS fixed fee cannot be negative")
		}
	}

	// Validate Escalation config. API key and model only matter when the
	// investigation pipeline is turned on.
	if c.Escalation.Enabled {
		if c.Escalation.Model == "" {
			validationErrors = append(validationErrors, "ESCALATION_MODEL is required when escalation is enabled")
		}
		if c.Escalation.APIKey == "" {
			validationErrors = append(validationErrors, "ESCALATION_API_KEY is required when escalation is enabled")
		}
		if c.Escalation.Timeout <= 0 {
			validationErrors = append(validationErrors, "ESCALATION_TIMEOUT must be greater than 0")
		}
		if c.Escalation.MaxAttempts <= 0 {
			validationErrors = append(validationErrors, "ESCALATION_MAX_ATTEMPTS must be greater than 0")
		}
	}

	// Validate EscalationPoller config
	if c.EscalationPoller.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "ESCALATION_POLLER_INTERVAL must be greater than 0")
	}
	if c.EscalationPoller.BatchSize <= 0 {
		validationErrors = append(validationErrors, "ESCALATION_POLLER_BATCH_SIZE must be greater than 0")
	}
	if c.EscalationPoller.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "ESCALATION_POLLER_MAX_ATTEMPTS must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
