package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/centavohq/voicecore/pkg/errorsx"
	"github.com/centavohq/voicecore/pkg/resilience"
)

// HTTPClient queries the dashboard's REST API. Credentials come from the
// authentication collaborator and are opaque here.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      resilience.RetryPolicy
}

func NewHTTPClient(baseURL, token string, retry resilience.RetryPolicy) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      retry,
	}
}

func (c *HTTPClient) RecentTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}
	if limit > MaxTransactionLimit {
		limit = MaxTransactionLimit
	}
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	var out []Transaction
	if err := c.getJSON(ctx, "/api/v1/transactions", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) SpendingByCategory(ctx context.Context, lookbackDays int) ([]CategorySpend, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	query := url.Values{"days": {strconv.Itoa(lookbackDays)}}
	var out []CategorySpend
	if err := c.getJSON(ctx, "/api/v1/spending/categories", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) AccountBalances(ctx context.Context) ([]Balance, error) {
	var out []Balance
	if err := c.getJSON(ctx, "/api/v1/balances", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	err := c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("dashboard API %s: status %d", path, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return resilience.Permanent(fmt.Errorf("dashboard API %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body))))
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
	return errorsx.Wrap(err, errorsx.ReasonFinanceQuery)
}

var _ Collaborator = (*HTTPClient)(nil)
