package terminology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fhirconv/fhirconv/pkg/fhirmodels"
)

// RemoteStatus classifies the outcome of a remote terminology lookup so
// callers can tell a timeout from a missing code without reading logs.
type RemoteStatus int

const (
	RemoteSkipped RemoteStatus = iota // no client configured, lookup not attempted
	RemoteMatched
	RemoteNotFound
	RemoteTimeout
	RemoteUnavailable
)

func (s RemoteStatus) String() string {
	switch s {
	case RemoteSkipped:
		return "skipped"
	case RemoteMatched:
		return "matched"
	case RemoteNotFound:
		return "not-found"
	case RemoteTimeout:
		return "timeout"
	case RemoteUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// RemoteResult is the outcome of a single $lookup call.
type RemoteResult struct {
	Status  RemoteStatus
	Code    string
	Display string
}

// Client performs CodeSystem/$lookup calls against a FHIR terminology
// server. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// DefaultLookupTimeout bounds the remote lookup so a slow terminology
// server cannot stall a conversion worker.
const DefaultLookupTimeout = 3 * time.Second

// NewClient creates a terminology client for the given server base URL,
// e.g. "https://tx.fhir.org/r4".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// LookupByDisplay searches the LOINC code system for a concept whose
// display matches the given test name. It never returns an error for
// server-side failures; the RemoteResult status carries the distinction.
func (c *Client) LookupByDisplay(ctx context.Context, display string) RemoteResult {
	lookupURL := fmt.Sprintf("%s/CodeSystem/$lookup?system=%s&display=%s",
		c.baseURL, url.QueryEscape(fhirmodels.SystemLOINC), url.QueryEscape(display))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return RemoteResult{Status: RemoteUnavailable}
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return RemoteResult{Status: RemoteTimeout}
		}
		return RemoteResult{Status: RemoteUnavailable}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return RemoteResult{Status: RemoteNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RemoteResult{Status: RemoteUnavailable}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return RemoteResult{Status: RemoteUnavailable}
	}

	code, disp, ok := parseLookupParameters(body)
	if !ok {
		return RemoteResult{Status: RemoteNotFound}
	}
	return RemoteResult{Status: RemoteMatched, Code: code, Display: disp}
}

// parseLookupParameters extracts the code and display values from a FHIR
// Parameters response body.
func parseLookupParameters(body []byte) (code, display string, ok bool) {
	var params struct {
		Parameter []struct {
			Name        string `json:"name"`
			ValueCode   string `json:"valueCode"`
			ValueString string `json:"valueString"`
		} `json:"parameter"`
	}
	if err := json.Unmarshal(body, &params); err != nil {
		return "", "", false
	}
	for _, p := range params.Parameter {
		switch p.Name {
		case "code":
			code = p.ValueCode
		case "display":
			display = p.ValueString
		}
	}
	return code, display, code != "" && display != ""
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
