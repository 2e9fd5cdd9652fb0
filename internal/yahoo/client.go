package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bighogz/insider-clusters/internal/fundamentals"
	"github.com/bighogz/insider-clusters/internal/httpclient"
	"github.com/bighogz/insider-clusters/internal/models"
)

var ErrBadResponse = errors.New("yahoo: unexpected response")

// User-Agent required: Yahoo blocks generic clients (401/429)
const yahooUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const DefaultBaseURL = "https://query1.finance.yahoo.com"

const summaryModules = "financialData,defaultKeyStatistics,summaryDetail"

type Client struct {
	http *resty.Client
}

func New() *Client {
	return NewWithBaseURL(DefaultBaseURL)
}

func NewWithBaseURL(base string) *Client {
	rc := resty.NewWithClient(httpclient.Default).
		SetBaseURL(strings.TrimRight(base, "/")).
		SetHeader("User-Agent", yahooUserAgent).
		SetHeader("Accept", "application/json")
	return &Client{http: rc}
}

func toYahooSymbol(sym string) string {
	switch sym {
	case "BRK.B":
		return "BRK-B"
	case "BF.B":
		return "BF-B"
	default:
		return sym
	}
}

func fromYahooSymbol(sym string) string {
	switch sym {
	case "BRK-B":
		return "BRK.B"
	case "BF-B":
		return "BF.B"
	default:
		return sym
	}
}

func ToYahooSymbol(s string) string   { return toYahooSymbol(strings.TrimSpace(s)) }
func FromYahooSymbol(s string) string { return fromYahooSymbol(strings.TrimSpace(s)) }

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return fundamentals.ErrNoData
	case resp.IsError():
		return fmt.Errorf("%w: %s", ErrBadResponse, resp.Status())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

// value is Yahoo's {"raw": 1.23, "fmt": "1.23"} wrapper; empty objects mean missing.
type value struct {
	Raw *float64 `json:"raw"`
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			FinancialData struct {
				GrossMargins     value `json:"grossMargins"`
				OperatingMargins value `json:"operatingMargins"`
				ProfitMargins    value `json:"profitMargins"`
				ReturnOnEquity   value `json:"returnOnEquity"`
				ReturnOnAssets   value `json:"returnOnAssets"`
				RevenueGrowth    value `json:"revenueGrowth"`
				EarningsGrowth   value `json:"earningsGrowth"`
				DebtToEquity     value `json:"debtToEquity"`
				CurrentRatio     value `json:"currentRatio"`
			} `json:"financialData"`
			DefaultKeyStatistics struct {
				PriceToBook             value `json:"priceToBook"`
				EarningsQuarterlyGrowth value `json:"earningsQuarterlyGrowth"`
				TrailingPE              value `json:"trailingPE"`
			} `json:"defaultKeyStatistics"`
			SummaryDetail struct {
				TrailingPE  value `json:"trailingPE"`
				PriceToBook value `json:"priceToBook"`
			} `json:"summaryDetail"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

func first(vals ...value) *float64 {
	for _, v := range vals {
		if v.Raw != nil {
			f := *v.Raw
			return &f
		}
	}
	return nil
}

// Metrics implements fundamentals.Source using the quoteSummary endpoint.
// Yahoo reports debt to equity as a percentage; it is converted to a ratio.
func (c *Client) Metrics(ctx context.Context, ticker string) (fundamentals.Metrics, error) {
	sym := ToYahooSymbol(ticker)
	if sym == "" {
		return nil, fundamentals.ErrNoData
	}
	var data summaryResponse
	err := c.get(ctx, "/v10/finance/quoteSummary/"+sym, map[string]string{"modules": summaryModules}, &data)
	if err != nil {
		return nil, err
	}
	if e := data.QuoteSummary.Error; e != nil {
		if strings.EqualFold(e.Code, "Not Found") {
			return nil, fundamentals.ErrNoData
		}
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, e.Description)
	}
	if len(data.QuoteSummary.Result) == 0 {
		return nil, fundamentals.ErrNoData
	}
	r := data.QuoteSummary.Result[0]
	fd, ks, sd := r.FinancialData, r.DefaultKeyStatistics, r.SummaryDetail

	m := fundamentals.Metrics{
		fundamentals.GrossMargin:     first(fd.GrossMargins),
		fundamentals.OperatingMargin: first(fd.OperatingMargins),
		fundamentals.NetMargin:       first(fd.ProfitMargins),
		fundamentals.ROE:             first(fd.ReturnOnEquity),
		fundamentals.ROA:             first(fd.ReturnOnAssets),
		fundamentals.RevenueGrowth:   first(fd.RevenueGrowth),
		fundamentals.EPSGrowth:       first(fd.EarningsGrowth, ks.EarningsQuarterlyGrowth),
		fundamentals.DebtToEquity:    first(fd.DebtToEquity),
		fundamentals.CurrentRatio:    first(fd.CurrentRatio),
		fundamentals.PERatio:         first(sd.TrailingPE, ks.TrailingPE),
		fundamentals.PBRatio:         first(ks.PriceToBook, sd.PriceToBook),
	}
	if de := m[fundamentals.DebtToEquity]; de != nil {
		*de /= 100
	}
	return m, nil
}

// History returns daily closes between from and to, oldest first. Days
// without a close are skipped.
func (c *Client) History(ctx context.Context, ticker string, from, to time.Time) ([]models.PricePoint, error) {
	sym := ToYahooSymbol(ticker)
	if sym == "" {
		return nil, fundamentals.ErrNoData
	}
	var data struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}
	params := map[string]string{
		"interval": "1d",
		"period1":  strconv.FormatInt(from.Unix(), 10),
		"period2":  strconv.FormatInt(to.Unix(), 10),
	}
	if err := c.get(ctx, "/v8/finance/chart/"+sym, params, &data); err != nil {
		return nil, err
	}
	if len(data.Chart.Result) == 0 || len(data.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fundamentals.ErrNoData
	}
	r := data.Chart.Result[0]
	closes := r.Indicators.Quote[0].Close
	out := make([]models.PricePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) {
			break
		}
		if closes[i] == nil {
			continue
		}
		out = append(out, models.PricePoint{Date: time.Unix(ts, 0).UTC(), Close: *closes[i]})
	}
	return out, nil
}
