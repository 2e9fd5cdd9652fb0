// Package transform maps bronze records onto normalized transactions and
// their title rows.
package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bighogz/insider-clusters/internal/logging"
	"github.com/bighogz/insider-clusters/internal/models"
	"github.com/bighogz/insider-clusters/internal/normalize"
	"github.com/bighogz/insider-clusters/internal/store"
)

const tradeDateLayout = "2006-01-02"

var (
	ErrMalformedDate       = errors.New("transform: malformed trade date")
	ErrUnresolvedReference = errors.New("transform: reference not found in normalized tables")
	ErrMissingField        = normalize.ErrMissingField
)

// Stats summarizes one transform run.
type Stats struct {
	Transactions    int
	Purchases       int
	Titles          int
	ValueMismatches int
}

// ParseTradeDate parses a YYYY-MM-DD date into seconds since epoch at UTC midnight.
func ParseTradeDate(s string) (int64, error) {
	t, err := time.Parse(tradeDateLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	return t.UTC().Unix(), nil
}

// IsPurchase reports whether the trade type starts with 'P' or 'p'.
func IsPurchase(tradeType string) bool {
	r, _ := utf8.DecodeRuneInString(tradeType)
	return unicode.ToUpper(r) == 'P'
}

// SplitTitles splits a comma separated role list, trimming each role and
// dropping empty entries.
func SplitTitles(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// check returns the trade timestamp of r or the structural error that would
// abort its normalization.
func check(r models.RawTransaction) (int64, error) {
	switch {
	case normalize.TickerKey(r.Ticker) == "":
		return 0, fmt.Errorf("ticker: %w", ErrMissingField)
	case normalize.InsiderKey(r.InsiderName) == "":
		return 0, fmt.Errorf("insider name: %w", ErrMissingField)
	case strings.TrimSpace(r.TradeDate) == "":
		return 0, fmt.Errorf("trade date: %w", ErrMissingField)
	case strings.TrimSpace(r.TradeType) == "":
		return 0, fmt.Errorf("trade type: %w", ErrMissingField)
	}
	return ParseTradeDate(r.TradeDate)
}

// Validate reports the first record Normalize would reject for a missing
// field or a malformed date. Nothing is written.
func Validate(records []models.RawTransaction) error {
	for i, r := range records {
		if _, err := check(r); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// Normalize maps one raw record onto a transaction using refs for key
// resolution. The value is always recomputed as price * quantity.
func Normalize(r models.RawTransaction, refs *normalize.References) (models.Transaction, error) {
	ts, err := check(r)
	if err != nil {
		return models.Transaction{}, err
	}
	companyID, ok := refs.CompanyID(r.Ticker)
	if !ok {
		return models.Transaction{}, fmt.Errorf("%w: ticker %q", ErrUnresolvedReference, r.Ticker)
	}
	insiderID, ok := refs.InsiderID(r.InsiderName)
	if !ok {
		return models.Transaction{}, fmt.Errorf("%w: insider %q", ErrUnresolvedReference, r.InsiderName)
	}
	return models.Transaction{
		TradeDate:    ts,
		CompanyID:    companyID,
		InsiderID:    insiderID,
		IsPurchase:   IsPurchase(strings.TrimSpace(r.TradeType)),
		UnitPrice:    r.Price,
		UnitQuantity: r.Quantity,
		Value:        r.Price * r.Quantity,
	}, nil
}

// Transform writes one transaction per raw record plus one title row per
// role listed on the record. Any error aborts the run.
func Transform(ctx context.Context, records []models.RawTransaction, refs *normalize.References, w store.RowWriter) (Stats, error) {
	log := logging.Component("transform")
	var st Stats
	for i, r := range records {
		tx, err := Normalize(r, refs)
		if err != nil {
			return st, fmt.Errorf("record %d: %w", i, err)
		}
		if r.Value != nil && *r.Value != tx.Value {
			st.ValueMismatches++
			log.WithFields(map[string]interface{}{
				"record":   i,
				"ticker":   r.Ticker,
				"raw":      *r.Value,
				"computed": tx.Value,
			}).Debug("raw value differs from price * quantity")
		}

		purchase := 0
		if tx.IsPurchase {
			purchase = 1
			st.Purchases++
		}
		id, err := w.Write(ctx, store.TransactionsTable, store.TransactionColumns, []any{
			tx.TradeDate, tx.CompanyID, tx.InsiderID, purchase, tx.UnitPrice, tx.UnitQuantity, tx.Value,
		})
		if err != nil {
			return st, fmt.Errorf("record %d: %w", i, err)
		}
		st.Transactions++

		for _, title := range SplitTitles(r.Title) {
			if _, err := w.Write(ctx, store.TitlesTable, store.TitleColumns, []any{id, title, tx.InsiderID}); err != nil {
				return st, fmt.Errorf("record %d: title %q: %w", i, title, err)
			}
			st.Titles++
		}
	}
	log.WithFields(map[string]interface{}{
		"transactions":     st.Transactions,
		"purchases":        st.Purchases,
		"titles":           st.Titles,
		"value_mismatches": st.ValueMismatches,
	}).Info("transactions normalized")
	return st, nil
}
