// Package backtest measures the 12-month return of watchlist entries from
// daily closes.
package backtest

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/bighogz/insider-clusters/internal/logging"
	"github.com/bighogz/insider-clusters/internal/models"
)

const HorizonMonths = 12

// exit search runs a little past the horizon to cover weekends and holidays.
const lookahead = 10 * 24 * time.Hour

var ErrNoEntryPrice = errors.New("backtest: no close on or after entry date")

// PriceSource returns daily closes between from and to.
type PriceSource interface {
	History(ctx context.Context, ticker string, from, to time.Time) ([]models.PricePoint, error)
}

type Result struct {
	Ticker     string     `json:"ticker"`
	EntryDate  time.Time  `json:"entry_date"`
	EntryPrice float64    `json:"entry_price"`
	ExitDate   *time.Time `json:"exit_date,omitempty"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	Return     *float64   `json:"return,omitempty"`
	// Matured is false while the horizon close is not available yet; the
	// exit is then the latest close and the return is provisional.
	Matured bool   `json:"matured"`
	Trend   *Trend `json:"trend,omitempty"`
	Err     error  `json:"-"`
}

// OnOrAfter returns the first close dated on or after t. points must be
// sorted by date.
func OnOrAfter(points []models.PricePoint, t time.Time) (models.PricePoint, bool) {
	day := truncateDay(t)
	i := sort.Search(len(points), func(i int) bool {
		return !truncateDay(points[i].Date).Before(day)
	})
	if i == len(points) {
		return models.PricePoint{}, false
	}
	return points[i], true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Evaluate computes the return from the first close on or after entry to the
// first close on or after entry plus the horizon. Before the horizon has
// passed the latest close stands in for the exit.
func Evaluate(ticker string, points []models.PricePoint, entry time.Time) Result {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	res := Result{Ticker: ticker}

	in, ok := OnOrAfter(points, entry)
	if !ok || in.Close <= 0 {
		res.Err = ErrNoEntryPrice
		return res
	}
	res.EntryDate, res.EntryPrice = in.Date, in.Close

	out, matured := OnOrAfter(points, entry.AddDate(0, HorizonMonths, 0))
	if !matured {
		out = points[len(points)-1]
	}
	r := math.Round((out.Close/in.Close-1)*10000) / 10000
	res.ExitDate, res.ExitPrice, res.Return, res.Matured = &out.Date, &out.Close, &r, matured
	res.Trend = HoldingTrend(points, in.Date, out.Date)
	return res
}

// Run backtests every entry sequentially. Provider failures are recorded per
// result.
func Run(ctx context.Context, src PriceSource, entries []models.WatchlistEntry) []Result {
	log := logging.Component("backtest")
	out := make([]Result, 0, len(entries))
	for _, e := range entries {
		entry := time.Unix(e.Timestamp, 0).UTC()
		to := entry.AddDate(0, HorizonMonths, 0).Add(lookahead)
		points, err := src.History(ctx, e.Ticker, entry, to)
		if err != nil {
			log.WithError(err).WithField("ticker", e.Ticker).Warn("price history unavailable")
			out = append(out, Result{Ticker: e.Ticker, Err: err})
			continue
		}
		out = append(out, Evaluate(e.Ticker, points, entry))
	}
	return out
}
