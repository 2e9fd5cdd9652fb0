// Package normalize builds the deduplicated company and insider reference
// tables from raw transaction records.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bighogz/insider-clusters/internal/logging"
	"github.com/bighogz/insider-clusters/internal/models"
	"github.com/bighogz/insider-clusters/internal/store"
)

// ErrMissingField marks a raw record without a required field.
var ErrMissingField = errors.New("normalize: required field is empty")

// References holds the reference rows keyed by their business keys. Slices
// keep first-appearance order.
type References struct {
	Companies []models.Company
	Insiders  []models.Insider

	companyByTicker map[string]int
	insiderByName   map[string]int
}

// TickerKey and InsiderKey are the business keys used for deduplication
// and for later lookups.
func TickerKey(s string) string  { return strings.TrimSpace(s) }
func InsiderKey(s string) string { return strings.TrimSpace(s) }

// Collect deduplicates companies by ticker and insiders by name. The first
// company name seen for a ticker wins. IDs are left zero.
func Collect(records []models.RawTransaction) (*References, error) {
	refs := &References{
		companyByTicker: make(map[string]int),
		insiderByName:   make(map[string]int),
	}
	for i, r := range records {
		ticker := TickerKey(r.Ticker)
		if ticker == "" {
			return nil, fmt.Errorf("record %d: ticker: %w", i, ErrMissingField)
		}
		name := InsiderKey(r.InsiderName)
		if name == "" {
			return nil, fmt.Errorf("record %d: insider name: %w", i, ErrMissingField)
		}
		if _, ok := refs.companyByTicker[ticker]; !ok {
			refs.companyByTicker[ticker] = len(refs.Companies)
			refs.Companies = append(refs.Companies, models.Company{Ticker: ticker, Name: strings.TrimSpace(r.CompanyName)})
		}
		if _, ok := refs.insiderByName[name]; !ok {
			refs.insiderByName[name] = len(refs.Insiders)
			refs.Insiders = append(refs.Insiders, models.Insider{Name: name})
		}
	}
	return refs, nil
}

// BuildReferences collects the reference rows and writes them, filling in
// the surrogate ids returned by the writer.
func BuildReferences(ctx context.Context, records []models.RawTransaction, w store.RowWriter) (*References, error) {
	refs, err := Collect(records)
	if err != nil {
		return nil, err
	}
	for i := range refs.Companies {
		c := &refs.Companies[i]
		id, err := w.Write(ctx, store.CompaniesTable, store.CompanyColumns, []any{c.Ticker, c.Name})
		if err != nil {
			return nil, fmt.Errorf("write company %s: %w", c.Ticker, err)
		}
		c.ID = id
	}
	for i := range refs.Insiders {
		ins := &refs.Insiders[i]
		id, err := w.Write(ctx, store.InsidersTable, store.InsiderColumns, []any{ins.Name})
		if err != nil {
			return nil, fmt.Errorf("write insider %s: %w", ins.Name, err)
		}
		ins.ID = id
	}
	logging.Component("normalize").WithFields(map[string]interface{}{
		"companies": len(refs.Companies),
		"insiders":  len(refs.Insiders),
	}).Info("reference tables built")
	return refs, nil
}

// CompanyID resolves a ticker to its surrogate id.
func (r *References) CompanyID(ticker string) (int64, bool) {
	i, ok := r.companyByTicker[TickerKey(ticker)]
	if !ok {
		return 0, false
	}
	return r.Companies[i].ID, true
}

// InsiderID resolves an insider name to its surrogate id.
func (r *References) InsiderID(name string) (int64, bool) {
	i, ok := r.insiderByName[InsiderKey(name)]
	if !ok {
		return 0, false
	}
	return r.Insiders[i].ID, true
}
