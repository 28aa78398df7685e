// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/abhisek/pathway/internal/llm"
	"github.com/abhisek/pathway/internal/mode"
	"github.com/abhisek/pathway/internal/retry"
)

// Prefix is prepended to every variable name.
const Prefix = "PATHWAY_"

// Backend drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	// DSN is a file path for sqlite and a connection string for postgres.
	// Empty selects the default data path for sqlite.
	DSN string `env:"DB_DSN"`

	CatalogDir string     `env:"CATALOG_DIR"`
	LogLevel   slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	AnswerPolicy    mode.AnswerPolicy `env:"ANSWER_POLICY" envDefault:"first-wins"`
	AutoEvaluate    bool              `env:"AUTO_EVALUATE" envDefault:"true"`
	AnalysisTimeout time.Duration     `env:"ANALYSIS_TIMEOUT" envDefault:"30s"`
	Retry           retry.Policy      `envPrefix:"RETRY_"`

	LLM llm.Config

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom parses the given variables instead of the process environment.
// Keys include the prefix.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("%sDB_DSN is required for the postgres driver", Prefix)
		}
	default:
		return fmt.Errorf("unknown %sDB_DRIVER %q (want sqlite, postgres or memory)", Prefix, c.DBDriver)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%sRETRY_MAX_ATTEMPTS must be at least 1", Prefix)
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("%sANALYSIS_TIMEOUT must be positive", Prefix)
	}
	return c.LLM.Validate()
}
