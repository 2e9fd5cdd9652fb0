package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bighogz/insider-clusters/internal/models"
)

func linear(n int) []models.PricePoint {
	points := make([]models.PricePoint, n)
	start := date(2024, 1, 1)
	for i := range points {
		points[i] = models.PricePoint{Date: start.AddDate(0, 0, i), Close: 100 + float64(i)}
	}
	return points
}

func TestHoldingTrend(t *testing.T) {
	points := linear(40)
	tr := HoldingTrend(points, points[0].Date, points[39].Date)
	require.NotNil(t, tr)
	assert.Equal(t, 40, tr.Points)
	assert.InDelta(t, 0.01, tr.Slope, 1e-12)
	assert.InDelta(t, 139.0/120.0-1, tr.LastQuarter, 1e-12)
}

func TestHoldingTrendNeedsEnoughCloses(t *testing.T) {
	points := linear(40)
	assert.Nil(t, HoldingTrend(points, points[15].Date, points[39].Date))

	points[5].Close = 0
	assert.NotNil(t, HoldingTrend(points, points[0].Date, points[39].Date))
	assert.Nil(t, HoldingTrend(points[:30], points[0].Date, points[29].Date), "zero closes are skipped")
}

func TestEvaluateAttachesTrend(t *testing.T) {
	points := linear(400)
	res := Evaluate("XYZ", points, points[0].Date)
	require.True(t, res.Matured)
	require.NotNil(t, res.Trend)
	assert.Equal(t, 367, res.Trend.Points, "2024 is a leap year")
}
