// Package jupiter wraps the swap aggregator's quote and build endpoints.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ErrNoRoute is returned when the aggregator cannot price the pair.
var ErrNoRoute = errors.New("jupiter: no route found")

// Client talks to the aggregator HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds an aggregator client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Quote is a priced conversion path, valid for a short window. Raw carries
// the untouched aggregator response for the follow-up build call.
type Quote struct {
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	Raw        json.RawMessage
}

// GetQuote requests a route for (inputMint → outputMint, amount base units).
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	u := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		c.BaseURL, inputMint, outputMint, amount, slippageBps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		// The aggregator reports unroutable pairs as a client error.
		if res.StatusCode >= 400 && res.StatusCode < 500 {
			return nil, ErrNoRoute
		}
		return nil, fmt.Errorf("jupiter quote status %d", res.StatusCode)
	}

	var parsed struct {
		InputMint  string `json:"inputMint"`
		OutputMint string `json:"outputMint"`
		InAmount   string `json:"inAmount"`
		OutAmount  string `json:"outAmount"`
		Error      string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if parsed.Error != "" || parsed.OutAmount == "" {
		return nil, ErrNoRoute
	}

	in, _ := strconv.ParseUint(parsed.InAmount, 10, 64)
	out, _ := strconv.ParseUint(parsed.OutAmount, 10, 64)
	return &Quote{
		InputMint:  parsed.InputMint,
		OutputMint: parsed.OutputMint,
		InAmount:   in,
		OutAmount:  out,
		Raw:        json.RawMessage(body),
	}, nil
}

// BuildSwap asks the aggregator for an unsigned transaction for a quote.
// The returned payload is base64; the caller signs it locally.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, userPublicKey string, priorityFeeLamports uint64) (string, error) {
	reqBody, err := json.Marshal(map[string]any{
		"quoteResponse":             quote.Raw,
		"userPublicKey":             userPublicKey,
		"wrapAndUnwrapSol":          true,
		"prioritizationFeeLamports": priorityFeeLamports,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/swap", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("jupiter swap status %d", res.StatusCode)
	}

	var parsed struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode swap: %w", err)
	}
	if parsed.SwapTransaction == "" {
		return "", errors.New("jupiter: empty swap transaction")
	}
	return parsed.SwapTransaction, nil
}
