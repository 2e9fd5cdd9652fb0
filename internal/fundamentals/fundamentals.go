// Package fundamentals scores a company from 0 to 100 using metrics pulled
// from an external data provider. Provider failures never abort a run: they
// are returned inside the Result.
package fundamentals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bighogz/insider-clusters/internal/cache"
	"github.com/bighogz/insider-clusters/internal/logging"
)

var (
	ErrNoData   = errors.New("fundamentals: no data for ticker")
	ErrProvider = errors.New("fundamentals: provider request failed")
)

// Metric names shared by every provider.
const (
	GrossMargin     = "gross_margin"
	OperatingMargin = "operating_margin"
	NetMargin       = "net_margin"
	ROE             = "roe"
	ROA             = "roa"
	RevenueGrowth   = "revenue_growth"
	EPSGrowth       = "eps_growth"
	DebtToEquity    = "de_ratio"
	CurrentRatio    = "current_ratio"
	PERatio         = "pe_ratio"
	PBRatio         = "pb_ratio"
)

// Names lists every metric the model reads.
var Names = []string{
	GrossMargin, OperatingMargin, NetMargin, ROE, ROA,
	RevenueGrowth, EPSGrowth, DebtToEquity, CurrentRatio, PERatio, PBRatio,
}

// Metrics maps a metric name to its value; nil means it could not be computed.
type Metrics map[string]*float64

// Get returns the value and whether it is present and finite.
func (m Metrics) Get(name string) (float64, bool) {
	v, ok := m[name]
	if !ok || v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

// Source fetches raw metrics for a ticker.
type Source interface {
	Metrics(ctx context.Context, ticker string) (Metrics, error)
}

// Result is the collaborator's answer for one ticker. Score is nil when Err is set.
type Result struct {
	Ticker  string
	Score   *float64
	Metrics Metrics
	Err     error
}

// Scorer is the contract the watchlist builder depends on.
type Scorer interface {
	Score(ctx context.Context, ticker string) Result
}

// ModelScorer applies the weighted model to metrics from Source. Metrics are
// cached per ticker when Cache is set.
type ModelScorer struct {
	Source Source
	Cache  *cache.Cache
}

func NewScorer(src Source, c *cache.Cache) *ModelScorer {
	return &ModelScorer{Source: src, Cache: c}
}

func (s *ModelScorer) Score(ctx context.Context, ticker string) Result {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	log := logging.Component("fundamentals").WithField("ticker", ticker)

	m, ok := s.cached(ticker)
	if !ok {
		var err error
		m, err = s.Source.Metrics(ctx, ticker)
		if err != nil {
			if !errors.Is(err, ErrNoData) {
				err = fmt.Errorf("%w: %v", ErrProvider, err)
			}
			log.WithError(err).Warn("fundamentals unavailable")
			return Result{Ticker: ticker, Metrics: Metrics{}, Err: err}
		}
		if s.Cache != nil {
			if err := s.Cache.Write(cacheKey(ticker), m); err != nil {
				log.WithError(err).Debug("failed to cache fundamentals")
			}
		}
	}
	score := ScoreMetrics(m)
	return Result{Ticker: ticker, Score: &score, Metrics: m}
}

func (s *ModelScorer) cached(ticker string) (Metrics, bool) {
	if s.Cache == nil {
		return nil, false
	}
	var m Metrics
	if _, ok := s.Cache.Read(cacheKey(ticker), &m, false); !ok {
		return nil, false
	}
	return m, true
}

func cacheKey(ticker string) string {
	return "fundamentals_" + strings.ReplaceAll(ticker, "/", "_")
}

// Disabled scores nothing; every ticker gets a nil score without an error.
type Disabled struct{}

func (Disabled) Score(_ context.Context, ticker string) Result {
	return Result{Ticker: ticker, Metrics: Metrics{}}
}

// ScoreMetrics weights profitability 30%, growth 20%, leverage 20% and
// valuation 30%. Missing profitability and growth inputs score 0; missing
// leverage and valuation inputs score half. The result is clamped to
// [0, 100] and rounded to two decimals.
func ScoreMetrics(m Metrics) float64 {
	var total float64

	for _, k := range []string{GrossMargin, OperatingMargin, NetMargin, ROE, ROA} {
		v, _ := m.Get(k)
		total += clamp(v, 0, 0.5) / 0.5 * 6
	}
	for _, k := range []string{RevenueGrowth, EPSGrowth} {
		v, _ := m.Get(k)
		total += clamp(v, 0, 0.3) / 0.3 * 10
	}

	deScore := 0.5
	if de, ok := m.Get(DebtToEquity); ok {
		deScore = clamp(2-de, 0, 2) / 2
	}
	total += deScore * 10

	crScore := 0.5
	if cr, ok := m.Get(CurrentRatio); ok {
		crScore = clamp(cr, 0, 3) / 3
	}
	total += crScore * 10

	peScore := 0.5
	if pe, ok := m.Get(PERatio); ok && pe > 0 {
		peScore = clamp(50-pe, 0, 50) / 50
	}
	total += peScore * 15

	pbScore := 0.5
	if pb, ok := m.Get(PBRatio); ok && pb > 0 {
		pbScore = clamp(10-pb, 0, 10) / 10
	}
	total += pbScore * 15

	total = clamp(total, 0, 100)
	return math.Round(total*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Float is a helper for building Metrics literals.
func Float(v float64) *float64 { return &v }
