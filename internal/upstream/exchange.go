package upstream

import (
	"context"
	"fmt"
	"net/http"
)

// ExchangeClient fetches the latest USD-based conversion table from ExchangeRate-API.
type ExchangeClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

const exchangeDefaultURL = "https://v6.exchangerate-api.com/v6/latest/USD"

// NewExchangeClient constructs an ExchangeClient with the given API key.
func NewExchangeClient(apiKey string) *ExchangeClient {
	return &ExchangeClient{apiKey: apiKey, baseURL: exchangeDefaultURL, client: newHTTPClient()}
}

// NewExchangeClientWithURL constructs an ExchangeClient pointing at a custom URL (for tests).
func NewExchangeClientWithURL(baseURL, apiKey string) *ExchangeClient {
	return &ExchangeClient{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

type exchangeResponse struct {
	Result          string             `json:"result"`
	ErrorType       string             `json:"error-type"`
	BaseCode        string             `json:"base_code"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// Fetch retrieves the full conversion table.
func (c *ExchangeClient) Fetch(ctx context.Context) (ExchangeRates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating exchange request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var raw exchangeResponse
	if err := doRequest(c.client, "exchangerate", req, &raw); err != nil {
		return nil, fmt.Errorf("exchangerate fetch: %w", err)
	}

	if raw.Result != "" && raw.Result != "success" {
		return nil, fmt.Errorf("exchangerate fetch: %w", &Error{
			Upstream: "exchangerate",
			Err:      fmt.Errorf("result %q: %s", raw.Result, raw.ErrorType),
		})
	}

	return ExchangeRates(raw.ConversionRates), nil
}

// Rate returns the rate for code, or nil when the table has no entry.
func (r ExchangeRates) Rate(code string) *float64 {
	v, ok := r[code]
	if !ok || code == "" {
		return nil
	}
	return &v
}
