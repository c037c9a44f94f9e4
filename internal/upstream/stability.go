package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// StabilityClient fetches the World Bank "Political Stability and Absence of
// Violence" estimate (indicator PV.EST, about -2.5..+2.5).
type StabilityClient struct {
	baseURL string
	client  *http.Client
}

const worldBankDefaultURL = "https://api.worldbank.org/v2/country"

const stabilityIndicator = "PV.EST"

// NewStabilityClient constructs a StabilityClient.
func NewStabilityClient() *StabilityClient {
	return &StabilityClient{baseURL: worldBankDefaultURL, client: newHTTPClient()}
}

// NewStabilityClientWithURL constructs a StabilityClient pointing at a custom base URL (for tests).
func NewStabilityClientWithURL(baseURL string) *StabilityClient {
	return &StabilityClient{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient()}
}

type worldBankPoint struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// Fetch returns the most recent non-null reading for iso3. A response with
// no usable value yields a reading with a nil Value, not an error.
func (c *StabilityClient) Fetch(ctx context.Context, iso3 string) (*StabilityReading, error) {
	endpoint := fmt.Sprintf("%s/%s/indicator/%s?format=json&per_page=30",
		c.baseURL, url.PathEscape(strings.ToLower(iso3)), stabilityIndicator)

	// The World Bank wraps results as [pageInfo, points].
	var raw []json.RawMessage
	if err := doGet(ctx, c.client, "worldbank", endpoint, &raw); err != nil {
		return nil, fmt.Errorf("worldbank stability fetch for %s: %w", iso3, err)
	}

	reading := &StabilityReading{}
	if len(raw) < 2 {
		return reading, nil
	}

	var points []worldBankPoint
	if err := json.Unmarshal(raw[1], &points); err != nil {
		return nil, fmt.Errorf("worldbank stability fetch for %s: %w",
			iso3, &Error{Upstream: "worldbank", Err: fmt.Errorf("decoding points: %w", err)})
	}

	latest := ""
	for _, p := range points {
		if p.Value == nil {
			continue
		}
		if reading.Value == nil || p.Date > latest {
			v := *p.Value
			reading.Value = &v
			reading.Year = p.Date
			latest = p.Date
		}
	}

	return reading, nil
}
