package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bighogz/insider-clusters/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func series() []models.PricePoint {
	return []models.PricePoint{
		{Date: date(2023, 1, 3), Close: 100},
		{Date: date(2023, 1, 4), Close: 101},
		{Date: date(2024, 1, 2), Close: 150},
		{Date: date(2024, 1, 3), Close: 152},
	}
}

func TestOnOrAfter(t *testing.T) {
	p, ok := OnOrAfter(series(), date(2023, 1, 1))
	require.True(t, ok)
	assert.Equal(t, 100.0, p.Close)

	p, ok = OnOrAfter(series(), date(2023, 1, 4).Add(15*time.Hour))
	require.True(t, ok)
	assert.Equal(t, 101.0, p.Close, "same calendar day matches")

	_, ok = OnOrAfter(series(), date(2024, 2, 1))
	assert.False(t, ok)
}

func TestEvaluate(t *testing.T) {
	res := Evaluate("XYZ", series(), date(2022, 12, 31))
	require.NoError(t, res.Err)
	assert.True(t, res.Matured)
	assert.Equal(t, date(2023, 1, 3), res.EntryDate)
	assert.Equal(t, 100.0, res.EntryPrice)
	require.NotNil(t, res.Return)
	assert.Equal(t, 0.5, *res.Return)
	assert.Equal(t, date(2024, 1, 2), *res.ExitDate)
}

func TestEvaluateNotMatured(t *testing.T) {
	res := Evaluate("XYZ", series(), date(2023, 6, 1))
	require.NoError(t, res.Err)
	assert.Equal(t, 150.0, res.EntryPrice)
	assert.False(t, res.Matured)
	require.NotNil(t, res.Return)
	assert.InDelta(t, 0.0133, *res.Return, 1e-9, "latest close stands in for the exit")
	require.NotNil(t, res.ExitDate)
	assert.Equal(t, date(2024, 1, 3), *res.ExitDate)
	assert.Equal(t, 152.0, *res.ExitPrice)
}

func TestEvaluateNoEntry(t *testing.T) {
	res := Evaluate("XYZ", series(), date(2025, 1, 1))
	assert.ErrorIs(t, res.Err, ErrNoEntryPrice)
}

type fakePrices map[string][]models.PricePoint

func (f fakePrices) History(_ context.Context, ticker string, _, _ time.Time) ([]models.PricePoint, error) {
	p, ok := f[ticker]
	if !ok {
		return nil, errors.New("unknown ticker")
	}
	return p, nil
}

func TestRun(t *testing.T) {
	src := fakePrices{"XYZ": series()}
	entries := []models.WatchlistEntry{
		{Ticker: "XYZ", Timestamp: date(2023, 1, 3).Unix()},
		{Ticker: "NOPE", Timestamp: date(2023, 1, 3).Unix()},
	}
	results := Run(context.Background(), src, entries)
	require.Len(t, results, 2)
	assert.True(t, results[0].Matured)
	assert.Equal(t, 0.52, *results[0].Return)
	assert.Error(t, results[1].Err)
}
