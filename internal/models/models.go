package models

import "time"

// RawTransaction is one row of the bronze table as exported by the filing source.
type RawTransaction struct {
	TradeDate   string   `json:"trade_date"`
	FilingDate  *string  `json:"filing_date,omitempty"`
	Ticker      string   `json:"ticker"`
	CompanyName string   `json:"company_name"`
	InsiderName string   `json:"insider_name"`
	Title       string   `json:"title"`
	TradeType   string   `json:"trade_type"`
	Price       float64  `json:"price"`
	Quantity    float64  `json:"quantity"`
	Value       *float64 `json:"value,omitempty"`
}

type Company struct {
	ID     int64  `json:"id"`
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

type Insider struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Transaction is the normalized trade. TradeDate is seconds since epoch at UTC midnight.
type Transaction struct {
	ID           int64   `json:"id"`
	TradeDate    int64   `json:"trade_date"`
	CompanyID    int64   `json:"company_id"`
	InsiderID    int64   `json:"insider_id"`
	IsPurchase   bool    `json:"is_purchase"`
	UnitPrice    float64 `json:"unit_price"`
	UnitQuantity float64 `json:"unit_quantity"`
	Value        float64 `json:"value"`
}

// TransactionTitle binds one role string to a transaction. InsiderID always
// matches the parent transaction's insider.
type TransactionTitle struct {
	ID            int64  `json:"id"`
	TransactionID int64  `json:"transaction_id"`
	InsiderID     int64  `json:"insider_id"`
	Title         string `json:"title"`
}

// Purchase is the read model the cluster filter works on.
type Purchase struct {
	CompanyID     int64    `json:"company_id"`
	Ticker        string   `json:"ticker"`
	TransactionID int64    `json:"transaction_id"`
	InsiderID     int64    `json:"insider_id"`
	Timestamp     int64    `json:"timestamp"`
	Value         float64  `json:"value"`
	Titles        []string `json:"titles,omitempty"`
}

// ClusterHit is the latest qualifying purchase timestamp for a company.
type ClusterHit struct {
	Ticker    string `json:"ticker"`
	Timestamp int64  `json:"timestamp"`
}

type WatchlistEntry struct {
	ID        int64    `json:"id"`
	Ticker    string   `json:"ticker"`
	Score     *float64 `json:"score,omitempty"`
	Timestamp int64    `json:"timestamp"`
	Error     *string  `json:"error,omitempty"`
}

// PricePoint is one daily close.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}
