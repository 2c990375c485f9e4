package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Verdict is the outcome of one hash lookup. Definitive verdicts (a
// detection ratio, or an explicit not-found) are safe to cache; a
// non-definitive verdict means the lookup failed transiently and must be
// retried on the hash's next occurrence.
type Verdict struct {
	Result     string
	Definitive bool
}

// NotFoundResult marks a hash the service has never seen.
const NotFoundResult = "0/0 (file not found)"

// Resolver is the consumed lookup interface; the pipeline takes this so
// tests can substitute a double.
type Resolver interface {
	Lookup(ctx context.Context, hash string) (Verdict, error)
}

// Client queries the VirusTotal v3 file-report endpoint.
type Client struct {
	apiKey string
	base   string
	client *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		base:   "https://www.virustotal.com",
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL points the client at a different API host. Used by tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.base = base
	return c
}

type fileReport struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Undetected int `json:"undetected"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// Lookup fetches the report for a content hash. A 200 yields a
// "malicious/total" ratio, a 404 the explicit not-found marker; anything
// else is a transient error and the returned verdict is not definitive.
func (c *Client) Lookup(ctx context.Context, hash string) (Verdict, error) {
	endpoint := fmt.Sprintf("%s/api/v3/files/%s", c.base, hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Verdict{}, err
	}
	req.Header.Set("x-apikey", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Verdict{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var report fileReport
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			return Verdict{}, fmt.Errorf("parse file report: %w", err)
		}
		stats := report.Data.Attributes.LastAnalysisStats
		return Verdict{
			Result:     fmt.Sprintf("%d/%d", stats.Malicious, stats.Malicious+stats.Undetected),
			Definitive: true,
		}, nil
	case http.StatusNotFound:
		return Verdict{Result: NotFoundResult, Definitive: true}, nil
	default:
		return Verdict{}, fmt.Errorf("file report returned status %d", resp.StatusCode)
	}
}
