package store

import (
	"context"
	"fmt"
)

const (
	BronzeTable       = "transactions_bronze"
	CompaniesTable    = "companies_gold"
	InsidersTable     = "insiders_gold"
	TransactionsTable = "transactions_gold"
	TitlesTable       = "transactions_titles_gold"
	WatchlistTable    = "watchlist_companies_gold"
)

var (
	BronzeColumns      = []string{"filing_date", "trade_date", "ticker", "company_name", "insider_name", "title", "trade_type", "price", "quantity", "value"}
	CompanyColumns     = []string{"ticker", "name"}
	InsiderColumns     = []string{"name"}
	TransactionColumns = []string{"trade_date", "company_id", "insider_id", "is_purchase", "unit_price", "unit_quantity", "value"}
	TitleColumns       = []string{"transaction_id", "title", "insider_id"}
	WatchlistColumns   = []string{"ticker", "score", "timestamp", "error"}
)

const bronzeDDL = `CREATE TABLE IF NOT EXISTS transactions_bronze (
	id           {{pk}},
	filing_date  TEXT,
	trade_date   TEXT,
	ticker       TEXT,
	company_name TEXT,
	insider_name TEXT,
	title        TEXT,
	trade_type   TEXT,
	price        {{real}},
	quantity     {{real}},
	value        {{real}}
)`

// Gold tables are created in dependency order and dropped in reverse.
var goldDDL = []string{
	`CREATE TABLE companies_gold (
		id     {{pk}},
		ticker TEXT NOT NULL UNIQUE,
		name   TEXT
	)`,
	`CREATE TABLE insiders_gold (
		id   {{pk}},
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE transactions_gold (
		id            {{pk}},
		trade_date    {{int}} NOT NULL,
		company_id    {{int}} NOT NULL,
		insider_id    {{int}} NOT NULL,
		is_purchase   {{int}} NOT NULL,
		unit_price    {{real}},
		unit_quantity {{real}},
		value         {{real}},
		FOREIGN KEY (company_id) REFERENCES companies_gold(id),
		FOREIGN KEY (insider_id) REFERENCES insiders_gold(id)
	)`,
	`CREATE TABLE transactions_titles_gold (
		id             {{pk}},
		transaction_id {{int}} NOT NULL,
		title          TEXT NOT NULL,
		insider_id     {{int}} NOT NULL,
		FOREIGN KEY (transaction_id) REFERENCES transactions_gold(id),
		FOREIGN KEY (insider_id) REFERENCES insiders_gold(id)
	)`,
	`CREATE INDEX idx_transactions_gold_company_id ON transactions_gold(company_id)`,
	`CREATE INDEX idx_transactions_gold_insider_id ON transactions_gold(insider_id)`,
	`CREATE INDEX idx_transactions_gold_purchase_window ON transactions_gold(is_purchase, company_id, trade_date)`,
	`CREATE INDEX idx_transactions_titles_gold_transaction_id ON transactions_titles_gold(transaction_id)`,
	`CREATE INDEX idx_transactions_titles_gold_insider_id ON transactions_titles_gold(insider_id)`,
}

var goldDrop = []string{TitlesTable, TransactionsTable, InsidersTable, CompaniesTable}

const watchlistDDL = `CREATE TABLE IF NOT EXISTS watchlist_companies_gold (
	id        {{pk}},
	ticker    TEXT NOT NULL,
	score     {{real}},
	timestamp {{int}} NOT NULL,
	error     TEXT
)`

// EnsureBronze creates the raw source table if it does not exist yet.
func (s *Store) EnsureBronze(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.ddl(bronzeDDL)); err != nil {
		return fmt.Errorf("failed to create %s: %w", BronzeTable, err)
	}
	return nil
}

// ResetGold drops and recreates the normalized tables and their indices.
func (s *Store) ResetGold(ctx context.Context) error {
	for _, t := range goldDrop {
		if _, err := s.DB.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("failed to drop %s: %w", t, err)
		}
	}
	for _, stmt := range goldDDL {
		if _, err := s.DB.ExecContext(ctx, s.Dialect.ddl(stmt)); err != nil {
			return fmt.Errorf("failed to create gold schema: %w", err)
		}
	}
	s.log.Debug("gold tables recreated")
	return nil
}

// ResetWatchlist drops and recreates the watchlist output table.
func (s *Store) ResetWatchlist(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "DROP TABLE IF EXISTS "+WatchlistTable); err != nil {
		return fmt.Errorf("failed to drop %s: %w", WatchlistTable, err)
	}
	return s.EnsureWatchlist(ctx)
}

func (s *Store) EnsureWatchlist(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.ddl(watchlistDDL)); err != nil {
		return fmt.Errorf("failed to create %s: %w", WatchlistTable, err)
	}
	return nil
}
