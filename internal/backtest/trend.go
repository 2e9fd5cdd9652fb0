package backtest

import (
	"time"

	"github.com/bighogz/insider-clusters/internal/models"
)

// minTrendPoints is the fewest positive closes a trend is fitted on.
const minTrendPoints = 30

// quarterPoints is roughly one quarter of trading days.
const quarterPoints = 63

// Trend describes the price path over a holding period.
type Trend struct {
	Points int `json:"points"`
	// Slope is the least squares slope of closes per trading day, relative
	// to the first close of the period.
	Slope float64 `json:"slope"`
	// LastQuarter is the return over the final quarter of the period, or
	// over its second half when the period is shorter than two quarters.
	LastQuarter float64 `json:"last_quarter"`
}

// HoldingTrend fits a trend to the positive closes dated in [from, to].
// points must be sorted by date. It returns nil below minTrendPoints.
func HoldingTrend(points []models.PricePoint, from, to time.Time) *Trend {
	lo, hi := truncateDay(from), truncateDay(to)
	closes := make([]float64, 0, len(points))
	for _, p := range points {
		d := truncateDay(p.Date)
		if d.Before(lo) || d.After(hi) || p.Close <= 0 {
			continue
		}
		closes = append(closes, p.Close)
	}
	if len(closes) < minTrendPoints {
		return nil
	}

	lookback := quarterPoints
	if len(closes) <= 2*quarterPoints {
		lookback = len(closes) / 2
	}
	last := closes[len(closes)-1]
	prev := closes[len(closes)-lookback]
	return &Trend{
		Points:      len(closes),
		Slope:       linearSlope(closes) / closes[0],
		LastQuarter: last/prev - 1,
	}
}

func linearSlope(y []float64) float64 {
	n := float64(len(y))
	if n < 2 {
		return 0
	}
	xMean := (n - 1) / 2
	var ySum float64
	for _, v := range y {
		ySum += v
	}
	yMean := ySum / n
	var num, den float64
	for i, yi := range y {
		xi := float64(i)
		num += (xi - xMean) * (yi - yMean)
		den += (xi - xMean) * (xi - xMean)
	}
	if den == 0 {
		return 0
	}
	return num / den
}
