package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/bighogz/insider-clusters/internal/store"
)

func init() {
	godotenv.Load(".env")
}

// Config is read from the environment (and .env when present).
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"` // "text" or "json"

	DBDriver        string `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite(3) or postgres(ql)
	DBDSN           string `envconfig:"DB_DSN" default:"data/insider_trades.db"`
	WriterBatchSize int    `envconfig:"WRITER_BATCH_SIZE" default:"100"`

	ClusterWindowDays    int      `envconfig:"CLUSTER_WINDOW_DAYS" default:"30"`
	ClusterRequiredRoles []string `envconfig:"CLUSTER_REQUIRED_ROLES" default:"CEO,CFO"`
	ClusterMinInsiders   int      `envconfig:"CLUSTER_MIN_INSIDERS" default:"2"`
	ClusterMinValue      float64  `envconfig:"CLUSTER_MIN_VALUE" default:"50000"`
	ClusterProfile       string   `envconfig:"CLUSTER_PROFILE"`

	WatchlistMaxAgeDays int    `envconfig:"WATCHLIST_MAX_AGE_DAYS" default:"90"`
	FundamentalsSource  string `envconfig:"FUNDAMENTALS_SOURCE" default:"yahoo"` // "yahoo", "fmp" or "none"
	FMPAPIKey           string `envconfig:"FMP_API_KEY"`
	DataDir             string `envconfig:"VIBES_DATA_DIR" default:"data"`

	TraceEnabled bool   `envconfig:"TRACE_ENABLED" default:"false"`
	AdminAPIKey  string `envconfig:"ADMIN_API_KEY"`
	Port         string `envconfig:"PORT" default:"8000"`
}

// Load processes the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env config: %w", err)
	}
	for i, r := range cfg.ClusterRequiredRoles {
		cfg.ClusterRequiredRoles[i] = strings.TrimSpace(r)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := store.DialectFor(c.DBDriver); err != nil {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN cannot be empty")
	}
	if c.WriterBatchSize <= 0 {
		return fmt.Errorf("WRITER_BATCH_SIZE must be greater than 0")
	}
	if c.ClusterWindowDays < 0 {
		return fmt.Errorf("CLUSTER_WINDOW_DAYS cannot be negative")
	}
	if c.ClusterMinInsiders < 0 {
		return fmt.Errorf("CLUSTER_MIN_INSIDERS cannot be negative")
	}
	switch c.FundamentalsSource {
	case "yahoo", "fmp", "none":
	default:
		return fmt.Errorf("unsupported FUNDAMENTALS_SOURCE %q", c.FundamentalsSource)
	}
	if c.FundamentalsSource == "fmp" && c.FMPAPIKey == "" {
		return fmt.Errorf("FMP_API_KEY is required when FUNDAMENTALS_SOURCE=fmp")
	}
	return nil
}
