package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bighogz/insider-clusters/internal/fundamentals"
)

const summaryBody = `{"quoteSummary":{"result":[{
	"financialData":{
		"grossMargins":{"raw":0.45,"fmt":"45%"},
		"operatingMargins":{"raw":0.3},
		"profitMargins":{"raw":0.25},
		"returnOnEquity":{"raw":1.5},
		"returnOnAssets":{},
		"revenueGrowth":{"raw":0.06},
		"earningsGrowth":{},
		"debtToEquity":{"raw":150.0},
		"currentRatio":{"raw":0.9}
	},
	"defaultKeyStatistics":{
		"priceToBook":{"raw":45.2},
		"earningsQuarterlyGrowth":{"raw":0.11}
	},
	"summaryDetail":{"trailingPE":{"raw":31.4}}
}],"error":null}}`

func TestMetrics(t *testing.T) {
	var gotPath, gotModules, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotModules = r.URL.Query().Get("modules")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(summaryBody))
	}))
	defer srv.Close()

	m, err := NewWithBaseURL(srv.URL).Metrics(context.Background(), "BRK.B")
	require.NoError(t, err)
	assert.Equal(t, "/v10/finance/quoteSummary/BRK-B", gotPath)
	assert.Equal(t, summaryModules, gotModules)
	assert.Equal(t, yahooUserAgent, gotUA)

	v, ok := m.Get(fundamentals.GrossMargin)
	assert.True(t, ok)
	assert.Equal(t, 0.45, v)
	_, ok = m.Get(fundamentals.ROA)
	assert.False(t, ok, "empty objects are missing metrics")
	assert.Contains(t, m, fundamentals.ROA)

	v, _ = m.Get(fundamentals.EPSGrowth)
	assert.Equal(t, 0.11, v, "quarterly growth backs up annual growth")
	v, _ = m.Get(fundamentals.DebtToEquity)
	assert.InDelta(t, 1.5, v, 1e-9, "percentage converted to a ratio")
	v, _ = m.Get(fundamentals.PERatio)
	assert.Equal(t, 31.4, v)
	v, _ = m.Get(fundamentals.PBRatio)
	assert.Equal(t, 45.2, v)
}

func TestMetricsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "not found status", status: http.StatusNotFound, body: `{}`, want: fundamentals.ErrNoData},
		{name: "not found payload", status: http.StatusOK, body: `{"quoteSummary":{"result":null,"error":{"code":"Not Found","description":"No fundamentals data found"}}}`, want: fundamentals.ErrNoData},
		{name: "empty result", status: http.StatusOK, body: `{"quoteSummary":{"result":[]}}`, want: fundamentals.ErrNoData},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, want: ErrBadResponse},
		{name: "bad json", status: http.StatusOK, body: `<html>`, want: ErrBadResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewWithBaseURL(srv.URL).Metrics(context.Background(), "XYZ")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHistory(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/XYZ", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "1704067200", r.URL.Query().Get("period1"))
		w.Write([]byte(`{"chart":{"result":[{"timestamp":[1704153600,1704240000,1704326400],
			"indicators":{"quote":[{"close":[10.5,null,11.25]}]}}]}}`))
	}))
	defer srv.Close()

	points, err := NewWithBaseURL(srv.URL).History(context.Background(), "XYZ", from, to)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), points[0].Date)
	assert.Equal(t, 10.5, points[0].Close)
	assert.Equal(t, 11.25, points[1].Close)
}

func TestSymbols(t *testing.T) {
	assert.Equal(t, "BRK-B", ToYahooSymbol(" BRK.B "))
	assert.Equal(t, "BF.B", FromYahooSymbol("BF-B"))
	assert.Equal(t, "AAPL", ToYahooSymbol("AAPL"))
}
