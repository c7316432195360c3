// Package finance defines the read-only financial-data collaborator the
// voice pipeline queries on behalf of the conversational backend. The
// dashboard owns all writes; nothing here mutates account data.
package finance

import (
	"context"
	"time"
)

type Transaction struct {
	ID          string    `json:"id"`
	PostedAt    time.Time `json:"posted_at"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Category    string    `json:"category"`
	Account     string    `json:"account"`
}

type CategorySpend struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

type Balance struct {
	Account   string  `json:"account"`
	Available float64 `json:"available"`
	Current   float64 `json:"current"`
	Currency  string  `json:"currency"`
}

// Collaborator is the external financial-data store, reduced to the three
// read-only queries the voice pipeline needs.
type Collaborator interface {
	RecentTransactions(ctx context.Context, limit int) ([]Transaction, error)
	SpendingByCategory(ctx context.Context, lookbackDays int) ([]CategorySpend, error)
	AccountBalances(ctx context.Context) ([]Balance, error)
}

const (
	DefaultTransactionLimit = 10
	MaxTransactionLimit     = 50
	DefaultLookbackDays     = 30
)
