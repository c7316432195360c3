package tools

import (
	"context"

	"github.com/centavohq/voicecore/pkg/configutil"
	"github.com/centavohq/voicecore/pkg/finance"
)

type recentTransactionsParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"minimum=1,maximum=50,description=How many transactions to return (newest first)"`
}

type spendingByCategoryParams struct {
	Days int `json:"days,omitempty" jsonschema:"minimum=1,maximum=365,description=Lookback window in days"`
}

type accountBalancesParams struct{}

// RegisterFinanceTools exposes the financial-data collaborator's three
// read-only queries as callable tools.
func RegisterFinanceTools(registry *Registry, collab finance.Collaborator) error {
	if err := registry.Register(Definition{
		Name:        "get_recent_transactions",
		Description: "Fetch the user's most recent transactions, newest first.",
		Parameters:  ParametersFor(recentTransactionsParams{}),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		if err := configutil.ValidateSettings(args, configutil.Schema{Optional: []string{"limit"}}); err != nil {
			return nil, err
		}
		var params recentTransactionsParams
		if err := configutil.DecodeSettings(args, &params); err != nil {
			return nil, err
		}
		return collab.RecentTransactions(ctx, params.Limit)
	}); err != nil {
		return err
	}

	if err := registry.Register(Definition{
		Name:        "get_spending_by_category",
		Description: "Summarize spending per category over a lookback window.",
		Parameters:  ParametersFor(spendingByCategoryParams{}),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		if err := configutil.ValidateSettings(args, configutil.Schema{Optional: []string{"days"}}); err != nil {
			return nil, err
		}
		var params spendingByCategoryParams
		if err := configutil.DecodeSettings(args, &params); err != nil {
			return nil, err
		}
		return collab.SpendingByCategory(ctx, params.Days)
	}); err != nil {
		return err
	}

	return registry.Register(Definition{
		Name:        "get_account_balances",
		Description: "Fetch current balances for all linked accounts.",
		Parameters:  ParametersFor(accountBalancesParams{}),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		if err := configutil.ValidateSettings(args, configutil.Schema{}); err != nil {
			return nil, err
		}
		return collab.AccountBalances(ctx)
	})
}
