// Package pipeline drives one full rebuild: bronze rows are normalized into
// the gold tables, cluster buys are detected and fresh hits are scored into
// the watchlist.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bighogz/insider-clusters/internal/cluster"
	"github.com/bighogz/insider-clusters/internal/fundamentals"
	"github.com/bighogz/insider-clusters/internal/logging"
	"github.com/bighogz/insider-clusters/internal/models"
	"github.com/bighogz/insider-clusters/internal/normalize"
	"github.com/bighogz/insider-clusters/internal/store"
	"github.com/bighogz/insider-clusters/internal/telemetry"
	"github.com/bighogz/insider-clusters/internal/transform"
	"github.com/bighogz/insider-clusters/internal/watchlist"
)

type Options struct {
	BatchSize int
	Criteria  cluster.Criteria
	// UseSQL evaluates the cluster predicate in the database instead of in memory.
	UseSQL bool
	MaxAge time.Duration
	Now    time.Time
	// Scorer defaults to fundamentals.Disabled.
	Scorer fundamentals.Scorer
}

type Report struct {
	RunID     string                  `json:"run_id"`
	RawRows   int                     `json:"raw_rows"`
	Companies int                     `json:"companies"`
	Insiders  int                     `json:"insiders"`
	Transform transform.Stats         `json:"transform"`
	Hits      []models.ClusterHit     `json:"hits"`
	Watchlist []models.WatchlistEntry `json:"watchlist"`
	Duration  time.Duration           `json:"duration"`
}

// Run rebuilds the gold tables from bronze and writes a new watchlist.
// Malformed or inconsistent input aborts the run; scorer failures only mark
// the affected watchlist rows.
func Run(ctx context.Context, s *store.Store, opts Options) (*Report, error) {
	if err := opts.Criteria.Validate(); err != nil {
		return nil, err
	}
	if opts.Scorer == nil {
		opts.Scorer = fundamentals.Disabled{}
	}
	start := time.Now()
	rep := &Report{RunID: uuid.NewString()}
	log := logging.Component("pipeline").WithField("run_id", rep.RunID)

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run")
	span.SetAttributes(attribute.String("run_id", rep.RunID))
	defer span.End()

	var raw []models.RawTransaction
	err := stage(ctx, "pipeline.load", func(ctx context.Context) error {
		var err error
		if raw, err = s.LoadRaw(ctx); err != nil {
			return fmt.Errorf("load bronze: %w", err)
		}
		rep.RawRows = len(raw)
		return nil
	})
	if err != nil {
		return nil, fail(span, log, err)
	}

	// Structural errors must surface before the gold tables are dropped.
	err = stage(ctx, "pipeline.validate", func(context.Context) error {
		if err := transform.Validate(raw); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fail(span, log, err)
	}

	err = stage(ctx, "pipeline.normalize", func(ctx context.Context) error {
		if err := s.ResetGold(ctx); err != nil {
			return err
		}
		return s.WithWriter(ctx, opts.BatchSize, func(w *store.Writer) error {
			refs, err := normalize.BuildReferences(ctx, raw, w)
			if err != nil {
				return fmt.Errorf("normalize: %w", err)
			}
			rep.Companies, rep.Insiders = len(refs.Companies), len(refs.Insiders)
			if rep.Transform, err = transform.Transform(ctx, raw, refs, w); err != nil {
				return fmt.Errorf("transform: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, log, err)
	}

	err = stage(ctx, "pipeline.detect", func(ctx context.Context) error {
		var err error
		rep.Hits, err = FindClusters(ctx, s, opts.Criteria, opts.UseSQL)
		return err
	})
	if err != nil {
		return nil, fail(span, log, err)
	}

	err = stage(ctx, "pipeline.watchlist", func(ctx context.Context) error {
		rep.Watchlist = watchlist.Build(ctx, rep.Hits, opts.Scorer, watchlist.Options{Now: opts.Now, MaxAge: opts.MaxAge})
		if err := s.ResetWatchlist(ctx); err != nil {
			return err
		}
		return s.WithWriter(ctx, opts.BatchSize, func(w *store.Writer) error {
			return watchlist.Persist(ctx, rep.Watchlist, w)
		})
	})
	if err != nil {
		return nil, fail(span, log, err)
	}

	rep.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("raw_rows", rep.RawRows),
		attribute.Int("transactions", rep.Transform.Transactions),
		attribute.Int("hits", len(rep.Hits)),
		attribute.Int("watchlist", len(rep.Watchlist)),
	)
	log.WithFields(logger.Fields{
		"raw_rows":     rep.RawRows,
		"companies":    rep.Companies,
		"insiders":     rep.Insiders,
		"transactions": rep.Transform.Transactions,
		"hits":         len(rep.Hits),
		"watchlist":    len(rep.Watchlist),
		"duration":     rep.Duration.String(),
	}).Info("pipeline run complete")
	return rep, nil
}

// FindClusters evaluates the criteria over the current gold tables.
func FindClusters(ctx context.Context, s *store.Store, c cluster.Criteria, useSQL bool) ([]models.ClusterHit, error) {
	if useSQL {
		return s.QueryClusters(ctx, c)
	}
	purchases, err := s.LoadPurchases(ctx)
	if err != nil {
		return nil, err
	}
	return cluster.Detect(purchases, c), nil
}

func stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func fail(span trace.Span, log *logger.Entry, err error) error {
	span.SetStatus(codes.Error, err.Error())
	log.WithError(err).Error("pipeline run failed")
	return err
}
