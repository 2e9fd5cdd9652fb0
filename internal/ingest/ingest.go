// Package ingest loads screener CSV exports into the bronze table.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bighogz/insider-clusters/internal/logging"
	"github.com/bighogz/insider-clusters/internal/models"
	"github.com/bighogz/insider-clusters/internal/store"
)

var (
	ErrMissingColumn = errors.New("ingest: required column missing from header")
	ErrBadNumber     = errors.New("ingest: malformed number")
)

// Header names as exported by the screener, matched case-insensitively.
const (
	colFilingDate  = "filing date"
	colTradeDate   = "trade date"
	colTicker      = "ticker"
	colCompanyName = "company name"
	colInsiderName = "insider name"
	colTitle       = "title"
	colTradeType   = "trade type"
	colPrice       = "price"
	colQty         = "qty"
	colValue       = "value"
)

var required = []string{colTradeDate, colTicker, colInsiderName, colTradeType, colPrice, colQty}

func normalizeHeader(h string) string {
	h = strings.ReplaceAll(h, "\u00a0", " ")
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// ParseNumber strips currency symbols, signs and thousands separators.
// An empty cell returns ok == false.
func ParseNumber(s string) (float64, bool, error) {
	s = strings.NewReplacer("$", "", "+", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q", ErrBadNumber, s)
	}
	return f, true, nil
}

// Parse reads every data row of a CSV export.
func Parse(r io.Reader) ([]models.RawTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[normalizeHeader(h)] = i
	}
	for _, c := range required {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, c)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make([]models.RawTransaction, 0)
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		rec := models.RawTransaction{
			TradeDate:   cell(row, colTradeDate),
			Ticker:      cell(row, colTicker),
			CompanyName: cell(row, colCompanyName),
			InsiderName: cell(row, colInsiderName),
			Title:       cell(row, colTitle),
			TradeType:   cell(row, colTradeType),
		}
		if fd := cell(row, colFilingDate); fd != "" {
			rec.FilingDate = &fd
		}
		price, ok, err := ParseNumber(cell(row, colPrice))
		if err != nil || !ok {
			return nil, fmt.Errorf("line %d: price: %w", line, orBad(err))
		}
		qty, ok, err := ParseNumber(cell(row, colQty))
		if err != nil || !ok {
			return nil, fmt.Errorf("line %d: qty: %w", line, orBad(err))
		}
		rec.Price, rec.Quantity = price, qty
		if v, ok, err := ParseNumber(cell(row, colValue)); err != nil {
			return nil, fmt.Errorf("line %d: value: %w", line, err)
		} else if ok {
			rec.Value = &v
		}
		out = append(out, rec)
	}
	return out, nil
}

func orBad(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: empty", ErrBadNumber)
}

// Load appends the parsed rows to the bronze table, creating it if needed.
func Load(ctx context.Context, s *store.Store, r io.Reader, batchSize int) (int, error) {
	records, err := Parse(r)
	if err != nil {
		return 0, err
	}
	if err := s.EnsureBronze(ctx); err != nil {
		return 0, err
	}
	err = s.WithWriter(ctx, batchSize, func(w *store.Writer) error {
		return Write(ctx, records, w)
	})
	if err != nil {
		return 0, err
	}
	logging.Component("ingest").WithField("rows", len(records)).Info("bronze rows loaded")
	return len(records), nil
}

// Write inserts records into the bronze table.
func Write(ctx context.Context, records []models.RawTransaction, w store.RowWriter) error {
	for i, r := range records {
		var filing, value any
		if r.FilingDate != nil {
			filing = *r.FilingDate
		}
		if r.Value != nil {
			value = *r.Value
		}
		_, err := w.Write(ctx, store.BronzeTable, store.BronzeColumns, []any{
			filing, r.TradeDate, r.Ticker, r.CompanyName, r.InsiderName, r.Title, r.TradeType, r.Price, r.Quantity, value,
		})
		if err != nil {
			return fmt.Errorf("bronze row %d: %w", i, err)
		}
	}
	return nil
}
