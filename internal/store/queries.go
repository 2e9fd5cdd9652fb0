package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/bighogz/insider-clusters/internal/cluster"
	"github.com/bighogz/insider-clusters/internal/models"
)

// LoadRaw reads every bronze row in insertion order.
func (s *Store) LoadRaw(ctx context.Context) ([]models.RawTransaction, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, filing_date, trade_date, ticker, company_name, insider_name, title, trade_type, price, quantity, value
		FROM transactions_bronze
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", BronzeTable, err)
	}
	defer rows.Close()

	out := make([]models.RawTransaction, 0)
	for rows.Next() {
		var id int64
		var filing, trade, ticker, company, insider, title, tt sql.NullString
		var price, qty, value sql.NullFloat64
		if err := rows.Scan(&id, &filing, &trade, &ticker, &company, &insider, &title, &tt, &price, &qty, &value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", BronzeTable, err)
		}
		if !price.Valid {
			return nil, fmt.Errorf("bronze row %d: price: %w", id, ErrNullColumn)
		}
		if !qty.Valid {
			return nil, fmt.Errorf("bronze row %d: quantity: %w", id, ErrNullColumn)
		}
		r := models.RawTransaction{
			TradeDate:   trade.String,
			Ticker:      ticker.String,
			CompanyName: company.String,
			InsiderName: insider.String,
			Title:       title.String,
			TradeType:   tt.String,
			Price:       price.Float64,
			Quantity:    qty.Float64,
		}
		if filing.Valid {
			f := filing.String
			r.FilingDate = &f
		}
		if value.Valid {
			v := value.Float64
			r.Value = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadPurchases returns every purchase with its titles, ordered by transaction id.
func (s *Store) LoadPurchases(ctx context.Context) ([]models.Purchase, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT t.id, t.company_id, c.ticker, t.insider_id, t.trade_date, t.value, tt.title
		FROM transactions_gold t
		JOIN companies_gold c
			ON c.id = t.company_id
		LEFT JOIN transactions_titles_gold tt
			ON tt.transaction_id = t.id AND tt.insider_id = t.insider_id
		WHERE t.is_purchase = 1
		ORDER BY t.id, tt.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	out := make([]models.Purchase, 0)
	for rows.Next() {
		var (
			p     models.Purchase
			value sql.NullFloat64
			title sql.NullString
		)
		if err := rows.Scan(&p.TransactionID, &p.CompanyID, &p.Ticker, &p.InsiderID, &p.Timestamp, &value, &title); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		p.Value = value.Float64
		if n := len(out); n > 0 && out[n-1].TransactionID == p.TransactionID {
			if title.Valid {
				out[n-1].Titles = append(out[n-1].Titles, title.String)
			}
			continue
		}
		if title.Valid {
			p.Titles = []string{title.String}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// QueryClusters evaluates the cluster predicate in SQL. Every criteria value
// is bound as a parameter; the role list gets one placeholder per role.
func (s *Store) QueryClusters(ctx context.Context, c cluster.Criteria) ([]models.ClusterHit, error) {
	query, args := clusterQuery(c)
	rows, err := s.DB.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	out := make([]models.ClusterHit, 0)
	for rows.Next() {
		var h models.ClusterHit
		if err := rows.Scan(&h.Ticker, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan cluster hit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func clusterQuery(c cluster.Criteria) (string, []any) {
	span := c.WindowSeconds()
	roles := c.Roles()
	args := make([]any, 0, len(roles)+6)

	var b strings.Builder
	b.WriteString(`
		SELECT c.ticker, MAX(t.trade_date)
		FROM transactions_gold t
		JOIN companies_gold c
			ON c.id = t.company_id
		WHERE t.is_purchase = 1`)

	if len(roles) > 0 {
		b.WriteString(`
			AND EXISTS (
				SELECT 1
				FROM transactions_gold t2
				JOIN transactions_titles_gold tt2
					ON tt2.transaction_id = t2.id AND tt2.insider_id = t2.insider_id
				WHERE t2.company_id = t.company_id
				AND t2.is_purchase = 1
				AND ABS(t2.trade_date - t.trade_date) <= ?
				AND tt2.title IN (` + placeholders(len(roles)) + `)
				GROUP BY t2.company_id
				HAVING COUNT(DISTINCT tt2.title) >= ?
			)`)
		args = append(args, span)
		for _, r := range roles {
			args = append(args, r)
		}
		args = append(args, len(roles))
	}

	b.WriteString(`
			AND EXISTS (
				SELECT 1
				FROM transactions_gold t3
				WHERE t3.company_id = t.company_id
				AND t3.is_purchase = 1
				AND ABS(t3.trade_date - t.trade_date) <= ?
				GROUP BY t3.company_id
				HAVING COUNT(DISTINCT t3.insider_id) >= ?
			)
			AND EXISTS (
				SELECT 1
				FROM transactions_gold t4
				WHERE t4.company_id = t.company_id
				AND t4.is_purchase = 1
				AND ABS(t4.trade_date - t.trade_date) <= ?
				AND t4.value > ?
			)
		GROUP BY c.ticker
		ORDER BY c.ticker`)
	args = append(args, span, c.MinInsiders, span, c.MinValue)
	return b.String(), args
}

func (s *Store) LoadCompanies(ctx context.Context) ([]models.Company, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, ticker, name FROM companies_gold ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", CompaniesTable, err)
	}
	defer rows.Close()
	out := make([]models.Company, 0)
	for rows.Next() {
		var c models.Company
		var name sql.NullString
		if err := rows.Scan(&c.ID, &c.Ticker, &name); err != nil {
			return nil, err
		}
		c.Name = name.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) LoadInsiders(ctx context.Context) ([]models.Insider, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name FROM insiders_gold ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", InsidersTable, err)
	}
	defer rows.Close()
	out := make([]models.Insider, 0)
	for rows.Next() {
		var i models.Insider
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) LoadTransactions(ctx context.Context) ([]models.Transaction, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, trade_date, company_id, insider_id, is_purchase, unit_price, unit_quantity, value
		FROM transactions_gold
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", TransactionsTable, err)
	}
	defer rows.Close()
	out := make([]models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		var purchase int64
		if err := rows.Scan(&t.ID, &t.TradeDate, &t.CompanyID, &t.InsiderID, &purchase, &t.UnitPrice, &t.UnitQuantity, &t.Value); err != nil {
			return nil, err
		}
		t.IsPurchase = purchase == 1
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) LoadTitles(ctx context.Context) ([]models.TransactionTitle, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, transaction_id, insider_id, title FROM transactions_titles_gold ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", TitlesTable, err)
	}
	defer rows.Close()
	out := make([]models.TransactionTitle, 0)
	for rows.Next() {
		var t models.TransactionTitle
		if err := rows.Scan(&t.ID, &t.TransactionID, &t.InsiderID, &t.Title); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadWatchlist returns the watchlist, most recent cluster first.
func (s *Store) LoadWatchlist(ctx context.Context) ([]models.WatchlistEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, ticker, score, timestamp, error
		FROM watchlist_companies_gold
		ORDER BY timestamp DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", WatchlistTable, err)
	}
	defer rows.Close()
	out := make([]models.WatchlistEntry, 0)
	for rows.Next() {
		var (
			e     models.WatchlistEntry
			score sql.NullFloat64
			msg   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Ticker, &score, &e.Timestamp, &msg); err != nil {
			return nil, err
		}
		if score.Valid {
			v := score.Float64
			e.Score = &v
		}
		if msg.Valid {
			m := msg.String
			e.Error = &m
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
