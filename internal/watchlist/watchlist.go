// Package watchlist turns fresh cluster hits into scored watchlist rows.
package watchlist

import (
	"context"
	"fmt"
	"time"

	"github.com/bighogz/insider-clusters/internal/cluster"
	"github.com/bighogz/insider-clusters/internal/fundamentals"
	"github.com/bighogz/insider-clusters/internal/logging"
	"github.com/bighogz/insider-clusters/internal/models"
	"github.com/bighogz/insider-clusters/internal/store"
)

const DefaultMaxAge = 90 * 24 * time.Hour

type Options struct {
	// Now is the reference time for staleness; zero means time.Now.
	Now time.Time
	// MaxAge drops hits at least this old. Non-positive keeps every hit.
	MaxAge time.Duration
}

// Build scores every hit younger than opts.MaxAge, one ticker at a time.
// Scorer failures are recorded on the entry and never stop the loop.
func Build(ctx context.Context, hits []models.ClusterHit, scorer fundamentals.Scorer, opts Options) []models.WatchlistEntry {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	log := logging.Component("watchlist")

	fresh := cluster.Fresh(hits, now, opts.MaxAge)
	entries := make([]models.WatchlistEntry, 0, len(fresh))
	for _, h := range fresh {
		if ctx.Err() != nil {
			msg := ctx.Err().Error()
			entries = append(entries, models.WatchlistEntry{Ticker: h.Ticker, Timestamp: h.Timestamp, Error: &msg})
			continue
		}
		res := scorer.Score(ctx, h.Ticker)
		e := models.WatchlistEntry{Ticker: h.Ticker, Timestamp: h.Timestamp}
		if res.Err != nil {
			msg := res.Err.Error()
			e.Error = &msg
		} else {
			e.Score = res.Score
		}
		entries = append(entries, e)
	}
	log.WithFields(map[string]interface{}{
		"hits":  len(hits),
		"fresh": len(fresh),
	}).Info("watchlist scored")
	return entries
}

// Persist appends entries to the watchlist table and fills their ids.
func Persist(ctx context.Context, entries []models.WatchlistEntry, w store.RowWriter) error {
	for i := range entries {
		e := &entries[i]
		var score, msg any
		if e.Score != nil {
			score = *e.Score
		}
		if e.Error != nil {
			msg = *e.Error
		}
		id, err := w.Write(ctx, store.WatchlistTable, store.WatchlistColumns, []any{e.Ticker, score, e.Timestamp, msg})
		if err != nil {
			return fmt.Errorf("write watchlist %s: %w", e.Ticker, err)
		}
		e.ID = id
	}
	return nil
}
