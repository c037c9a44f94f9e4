package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/neexbeast/greenscore/internal/metrics"
)

const httpTimeout = 10 * time.Second

var (
	ErrEmptyQuery       = errors.New("empty country query")
	ErrCountryNotFound  = errors.New("country not found")
	ErrAmbiguousCountry = errors.New("country query is ambiguous")
	ErrNoMatches        = errors.New("no matching missions")
)

// Error is a failed upstream call: transport failure, timeout or non-2xx status.
type Error struct {
	Upstream   string
	StatusCode int // 0 when no response was received
	Timeout    bool
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: timed out: %v", e.Upstream, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: returned status %d", e.Upstream, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Upstream, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// newHTTPClient returns an http.Client with a 10-second timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// redact strips the query string so API keys never reach logs or errors.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}

// stripURL drops the full request URL that net/http attaches to transport
// errors; it carries the query string and with it any API key.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

// doGet performs a GET request and decodes the JSON response into dst.
// Every failure is returned as *Error tagged with the upstream name.
func doGet(ctx context.Context, client *http.Client, upstream, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &Error{Upstream: upstream, Err: fmt.Errorf("creating request for %s: %w", redact(rawURL), stripURL(err))}
	}
	return doRequest(client, upstream, req, dst)
}

// doRequest executes req, records call metrics and decodes a 2xx JSON body into dst.
func doRequest(client *http.Client, upstream string, req *http.Request, dst any) error {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.UpstreamCallsTotal.WithLabelValues(upstream, status).Inc()
		metrics.UpstreamLatency.WithLabelValues(upstream).Observe(time.Since(start).Seconds())
	}()

	target := redact(req.URL.String())
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		timeout := isTimeout(err)
		if timeout {
			status = "timeout"
		}
		return &Error{Upstream: upstream, Timeout: timeout, Err: fmt.Errorf("GET %s: %w", target, stripURL(err))}
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Upstream:   upstream,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("GET %s returned status %d", target, resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		status = "decode_error"
		return &Error{Upstream: upstream, Err: fmt.Errorf("decoding response from %s: %w", target, err)}
	}

	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StatusCode extracts the upstream HTTP status from err, or 0.
func StatusCode(err error) int {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}
