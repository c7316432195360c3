package finance

import (
	"context"
	"sort"
	"time"
)

// Static serves fixture data. Used by tests and by the demo binary when no
// dashboard API is configured.
type Static struct {
	Transactions []Transaction
	Balances     []Balance
}

func NewStaticDemo() *Static {
	now := time.Now()
	return &Static{
		Transactions: []Transaction{
			{ID: "txn_1001", PostedAt: now.Add(-4 * time.Hour), Description: "Blue Bottle Coffee", Amount: -6.75, Currency: "USD", Category: "dining", Account: "checking"},
			{ID: "txn_1002", PostedAt: now.Add(-26 * time.Hour), Description: "Whole Foods Market", Amount: -84.12, Currency: "USD", Category: "groceries", Account: "checking"},
			{ID: "txn_1003", PostedAt: now.Add(-3 * 24 * time.Hour), Description: "Monthly salary", Amount: 4200.00, Currency: "USD", Category: "income", Account: "checking"},
			{ID: "txn_1004", PostedAt: now.Add(-5 * 24 * time.Hour), Description: "City Transit", Amount: -2.90, Currency: "USD", Category: "transport", Account: "checking"},
			{ID: "txn_1005", PostedAt: now.Add(-9 * 24 * time.Hour), Description: "Streaming subscription", Amount: -15.99, Currency: "USD", Category: "entertainment", Account: "credit"},
		},
		Balances: []Balance{
			{Account: "checking", Available: 3250.40, Current: 3250.40, Currency: "USD"},
			{Account: "savings", Available: 12034.88, Current: 12034.88, Currency: "USD"},
			{Account: "credit", Available: 4820.00, Current: -179.99, Currency: "USD"},
		},
	}
}

func (s *Static) RecentTransactions(_ context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}
	out := append([]Transaction(nil), s.Transactions...)
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.After(out[j].PostedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Static) SpendingByCategory(_ context.Context, lookbackDays int) ([]CategorySpend, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	cutoff := time.Now().Add(-time.Duration(lookbackDays) * 24 * time.Hour)
	totals := map[string]float64{}
	currency := "USD"
	for _, txn := range s.Transactions {
		if txn.PostedAt.Before(cutoff) || txn.Amount >= 0 {
			continue
		}
		totals[txn.Category] += -txn.Amount
		currency = txn.Currency
	}
	out := make([]CategorySpend, 0, len(totals))
	for category, total := range totals {
		out = append(out, CategorySpend{Category: category, Total: total, Currency: currency})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out, nil
}

func (s *Static) AccountBalances(_ context.Context) ([]Balance, error) {
	return append([]Balance(nil), s.Balances...), nil
}

var _ Collaborator = (*Static)(nil)
