// Package rugcheck fetches security risk scores for assets. Lookups degrade
// to a defined "unknown" result instead of failing; a scan must never block
// a flow.
package rugcheck

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"encoding/json"
)

// Scan is the security verdict for a mint.
type Scan struct {
	Score   int
	Risks   []string
	Passed  bool
	Unknown bool
}

// Client talks to the security-scan API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a security-scan client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 8 * time.Second},
	}
}

// unknownScan is the neutral sentinel used when the API is unreachable.
func unknownScan() Scan {
	return Scan{Score: 50, Risks: []string{"API unavailable"}, Passed: false, Unknown: true}
}

// ScanToken returns a risk summary. minScore is the account's pass
// threshold. Failures never return an error; they return the unknown
// sentinel.
func (c *Client) ScanToken(ctx context.Context, mint string, minScore int) Scan {
	u := fmt.Sprintf("%s/tokens/%s/report/summary", c.BaseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return unknownScan()
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return unknownScan()
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return unknownScan()
	}

	var parsed struct {
		Score int `json:"score"`
		Risks []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"risks"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return unknownScan()
	}

	risks := make([]string, 0, len(parsed.Risks))
	for _, r := range parsed.Risks {
		risks = append(risks, strings.TrimSpace(r.Name+": "+r.Description))
	}
	if len(risks) == 0 {
		risks = []string{"None detected"}
	}
	return Scan{
		Score:  parsed.Score,
		Risks:  risks,
		Passed: parsed.Score >= minScore,
	}
}

// Grade buckets a score for display.
func (s Scan) Grade() string {
	switch {
	case s.Unknown:
		return "UNKNOWN"
	case s.Score >= 80:
		return "SAFE"
	case s.Score >= 60:
		return "MODERATE"
	default:
		return "RISKY"
	}
}
