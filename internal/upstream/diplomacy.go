package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// DiplomacyClient queries a diplomatic-mission directory for missions a
// source country maintains in a destination country. The upstream matches
// names literally, so callers try several spellings.
type DiplomacyClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewDiplomacyClient constructs a DiplomacyClient for the given endpoint.
// apiKey may be empty.
func NewDiplomacyClient(baseURL, apiKey string) *DiplomacyClient {
	return &DiplomacyClient{baseURL: baseURL, apiKey: apiKey, client: newHTTPClient()}
}

type diplomacyResponse struct {
	Missions []Mission `json:"missions"`
}

// Fetch returns the missions of source in destination. An empty result is
// reported as ErrNoMatches so the caller can try the next spelling.
func (c *DiplomacyClient) Fetch(ctx context.Context, source, destination string) (*Presence, error) {
	q := url.Values{}
	q.Set("source", source)
	q.Set("destination", destination)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating diplomacy request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	var raw json.RawMessage
	if err := doRequest(c.client, "diplomacy", req, &raw); err != nil {
		return nil, fmt.Errorf("diplomacy fetch %s->%s: %w", source, destination, err)
	}

	var parsed diplomacyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("diplomacy fetch %s->%s: %w", source, destination,
			&Error{Upstream: "diplomacy", Err: fmt.Errorf("decoding missions: %w", err)})
	}

	if len(parsed.Missions) == 0 {
		return nil, fmt.Errorf("diplomacy fetch %s->%s: %w", source, destination, ErrNoMatches)
	}

	return &Presence{Count: len(parsed.Missions), Missions: parsed.Missions, Raw: raw}, nil
}
