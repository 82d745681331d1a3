package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	HTTPAddr    string   `mapstructure:"http_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	DBDriver    string `mapstructure:"db_driver"` // postgres, sqlite
	DatabaseURL string `mapstructure:"database_url"`

	LogLevel   string `mapstructure:"log_level"`
	LogFile    string `mapstructure:"log_file"`
	LogConsole bool   `mapstructure:"log_console"`

	Matching MatchingConfig `mapstructure:",squash"`

	UndoTTL  time.Duration `mapstructure:"undo_ttl"`
	OpsEmail string        `mapstructure:"ops_email"`

	NATSURL           string `mapstructure:"nats_url"`
	NATSSubjectPrefix string `mapstructure:"nats_subject_prefix"`
}

// MatchingConfig holds the reconciliation tuning knobs.
type MatchingConfig struct {
	MinConfidence     int           `mapstructure:"min_confidence"`
	PriceTolerance    float64       `mapstructure:"price_tolerance"`
	QuantityTolerance float64       `mapstructure:"quantity_tolerance"`
	MaxBatchPairs     int           `mapstructure:"max_batch_pairs"`
	BatchTimeout      time.Duration `mapstructure:"batch_timeout"`
	ScoringWorkers    int           `mapstructure:"scoring_workers"`
	AutoReconcile     bool          `mapstructure:"auto_reconcile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("cors_origins", "http://localhost:3000")
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("log_console", true)
	v.SetDefault("min_confidence", 60)
	v.SetDefault("price_tolerance", 0.001)
	v.SetDefault("quantity_tolerance", 0.0)
	v.SetDefault("max_batch_pairs", 250000)
	v.SetDefault("batch_timeout", "30s")
	v.SetDefault("scoring_workers", 4)
	v.SetDefault("auto_reconcile", true)
	v.SetDefault("undo_ttl", "30m")
	v.SetDefault("ops_email", "operations@example.com")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subject_prefix", "reconciliation")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	// Every key has a default, so AutomaticEnv picks up its upper-cased
	// environment variable during Unmarshal.
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		return fmt.Errorf("invalid db_driver: %s (must be 'postgres' or 'sqlite')", c.DBDriver)
	}
	if c.Matching.MinConfidence < 0 || c.Matching.MinConfidence > 100 {
		return fmt.Errorf("min_confidence must be between 0 and 100")
	}
	if c.Matching.PriceTolerance < 0 || c.Matching.QuantityTolerance < 0 {
		return fmt.Errorf("tolerances must be non-negative")
	}
	if c.Matching.MaxBatchPairs <= 0 {
		return fmt.Errorf("max_batch_pairs must be positive")
	}
	if c.Matching.ScoringWorkers <= 0 {
		return fmt.Errorf("scoring_workers must be positive")
	}
	if c.Matching.BatchTimeout <= 0 {
		return fmt.Errorf("batch_timeout must be positive")
	}
	if c.UndoTTL <= 0 {
		return fmt.Errorf("undo_ttl must be positive")
	}
	return nil
}
