// Package app wires configuration into the pipeline components shared by
// the command line tool and the API server.
package app

import (
	"context"
	"time"

	"github.com/bighogz/insider-clusters/internal/cache"
	"github.com/bighogz/insider-clusters/internal/cluster"
	"github.com/bighogz/insider-clusters/internal/config"
	"github.com/bighogz/insider-clusters/internal/fmp"
	"github.com/bighogz/insider-clusters/internal/fundamentals"
	"github.com/bighogz/insider-clusters/internal/pipeline"
	"github.com/bighogz/insider-clusters/internal/store"
	"github.com/bighogz/insider-clusters/internal/yahoo"
)

const day = 24 * time.Hour

// Criteria builds the cluster criteria from the environment, then applies
// the YAML profile on top when one is configured.
func Criteria(cfg *config.Config) (cluster.Criteria, error) {
	c := cluster.Criteria{
		WindowDays:    cfg.ClusterWindowDays,
		RequiredRoles: cfg.ClusterRequiredRoles,
		MinInsiders:   cfg.ClusterMinInsiders,
		MinValue:      cfg.ClusterMinValue,
	}
	if cfg.ClusterProfile != "" {
		return cluster.LoadCriteria(cfg.ClusterProfile, c)
	}
	return c, c.Validate()
}

// Scorer returns the fundamentals scorer for FUNDAMENTALS_SOURCE.
func Scorer(cfg *config.Config) fundamentals.Scorer {
	c := cache.New(cfg.DataDir, cache.DefaultMaxAge)
	switch cfg.FundamentalsSource {
	case "yahoo":
		return fundamentals.NewScorer(yahoo.New(), c)
	case "fmp":
		return fundamentals.NewScorer(fmp.New(cfg.FMPAPIKey), c)
	default:
		return fundamentals.Disabled{}
	}
}

func PipelineOptions(cfg *config.Config) (pipeline.Options, error) {
	c, err := Criteria(cfg)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		BatchSize: cfg.WriterBatchSize,
		Criteria:  c,
		MaxAge:    time.Duration(cfg.WatchlistMaxAgeDays) * day,
		Scorer:    Scorer(cfg),
	}, nil
}

func OpenStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	return store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
}
