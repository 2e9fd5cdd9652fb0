package fmp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/bighogz/insider-clusters/internal/fundamentals"
	"github.com/bighogz/insider-clusters/internal/httpclient"
)

const DefaultBaseURL = "https://financialmodelingprep.com/stable"

var (
	ErrNoAPIKey  = errors.New("fmp: API key not configured")
	ErrRateLimit = errors.New("fmp: rate limited")
)

type Client struct {
	APIKey string
	http   *resty.Client
}

func New(apiKey string) *Client {
	return NewWithBaseURL(apiKey, DefaultBaseURL)
}

func NewWithBaseURL(apiKey, base string) *Client {
	rc := resty.NewWithClient(httpclient.Default).SetBaseURL(strings.TrimRight(base, "/"))
	return &Client{APIKey: apiKey, http: rc}
}

func (c *Client) get(ctx context.Context, path string, params map[string]string) (interface{}, error) {
	if c.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("apikey", c.APIKey).
		Get(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, ErrRateLimit
	}
	var data interface{}
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return nil, fmt.Errorf("fmp %s: %s: %w", path, resp.Status(), err)
	}
	if m, ok := data.(map[string]interface{}); ok {
		if msg, ok := m["Error Message"].(string); ok && msg != "" {
			return nil, fmt.Errorf("fmp %s: %s", path, msg)
		}
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fmp %s: %s", path, resp.Status())
	}
	return data, nil
}

// firstRow returns the first object of an array response.
func (c *Client) firstRow(ctx context.Context, path string, params map[string]string) (map[string]interface{}, error) {
	data, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	arr, ok := data.([]interface{})
	if !ok || len(arr) == 0 {
		return nil, nil
	}
	m, _ := arr[0].(map[string]interface{})
	return m, nil
}

// Metrics implements fundamentals.Source from the TTM ratio, TTM key metric
// and annual growth endpoints. A ticker unknown to every endpoint yields
// fundamentals.ErrNoData.
func (c *Client) Metrics(ctx context.Context, ticker string) (fundamentals.Metrics, error) {
	sym := strings.ToUpper(strings.TrimSpace(ticker))
	if sym == "" {
		return nil, fundamentals.ErrNoData
	}
	params := map[string]string{"symbol": sym}

	ratios, err := c.firstRow(ctx, "/ratios-ttm", params)
	if err != nil {
		return nil, err
	}
	keys, err := c.firstRow(ctx, "/key-metrics-ttm", params)
	if err != nil {
		return nil, err
	}
	growth, err := c.firstRow(ctx, "/financial-growth", map[string]string{"symbol": sym, "limit": "1"})
	if err != nil {
		return nil, err
	}
	if ratios == nil && keys == nil && growth == nil {
		return nil, fundamentals.ErrNoData
	}

	return fundamentals.Metrics{
		fundamentals.GrossMargin:     toFloat(ratios["grossProfitMarginTTM"]),
		fundamentals.OperatingMargin: toFloat(ratios["operatingProfitMarginTTM"]),
		fundamentals.NetMargin:       toFloat(ratios["netProfitMarginTTM"]),
		fundamentals.ROE:             toFloat(keys["returnOnEquityTTM"], ratios["returnOnEquityTTM"]),
		fundamentals.ROA:             toFloat(keys["returnOnAssetsTTM"], ratios["returnOnAssetsTTM"]),
		fundamentals.RevenueGrowth:   toFloat(growth["revenueGrowth"]),
		fundamentals.EPSGrowth:       toFloat(growth["epsgrowth"], growth["epsGrowth"]),
		fundamentals.DebtToEquity:    toFloat(ratios["debtToEquityRatioTTM"], ratios["debtEquityRatioTTM"]),
		fundamentals.CurrentRatio:    toFloat(ratios["currentRatioTTM"], keys["currentRatioTTM"]),
		fundamentals.PERatio:         toFloat(ratios["priceToEarningsRatioTTM"], ratios["peRatioTTM"]),
		fundamentals.PBRatio:         toFloat(ratios["priceToBookRatioTTM"], ratios["priceBookValueRatioTTM"]),
	}, nil
}

// toFloat returns the first numeric value among vals, or nil.
func toFloat(vals ...interface{}) *float64 {
	for _, v := range vals {
		switch x := v.(type) {
		case float64:
			return &x
		case int:
			f := float64(x)
			return &f
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}
