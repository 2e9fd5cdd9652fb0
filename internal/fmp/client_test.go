package fmp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bighogz/insider-clusters/internal/fundamentals"
)

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("apikey"))
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`[]`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/ratios-ttm": `[{"symbol":"XYZ","grossProfitMarginTTM":0.4,"operatingProfitMarginTTM":0.2,"netProfitMarginTTM":0.1,
			"currentRatioTTM":1.8,"priceToEarningsRatioTTM":22.5,"priceToBookRatioTTM":"3.1","debtToEquityRatioTTM":0.7}]`,
		"/key-metrics-ttm":  `[{"symbol":"XYZ","returnOnEquityTTM":0.18,"returnOnAssetsTTM":0.07}]`,
		"/financial-growth": `[{"symbol":"XYZ","revenueGrowth":0.12,"epsgrowth":0.2}]`,
	})

	m, err := NewWithBaseURL("secret", srv.URL).Metrics(context.Background(), "xyz")
	require.NoError(t, err)
	for name, want := range map[string]float64{
		fundamentals.GrossMargin:   0.4,
		fundamentals.ROE:           0.18,
		fundamentals.RevenueGrowth: 0.12,
		fundamentals.EPSGrowth:     0.2,
		fundamentals.DebtToEquity:  0.7,
		fundamentals.PBRatio:       3.1,
	} {
		got, ok := m.Get(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
}

func TestMetricsUnknownTicker(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/ratios-ttm":       `[]`,
		"/key-metrics-ttm":  `[]`,
		"/financial-growth": `[]`,
	})
	_, err := NewWithBaseURL("secret", srv.URL).Metrics(context.Background(), "NOPE")
	assert.ErrorIs(t, err, fundamentals.ErrNoData)
}

func TestGetErrors(t *testing.T) {
	_, err := NewWithBaseURL("", "http://127.0.0.1:1").Metrics(context.Background(), "XYZ")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	limited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer limited.Close()
	_, err = NewWithBaseURL("secret", limited.URL).Metrics(context.Background(), "XYZ")
	assert.ErrorIs(t, err, ErrRateLimit)

	srv := newTestServer(t, map[string]string{
		"/ratios-ttm": `{"Error Message":"Invalid API KEY."}`,
	})
	_, err = NewWithBaseURL("secret", srv.URL).Metrics(context.Background(), "XYZ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API KEY")
}
