// Package dexscreener fetches token metadata and prices from the market-data
// API.
package dexscreener

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"encoding/json"

	"github.com/dgraph-io/ristretto"
)

// ErrTokenNotFound means the market-data API knows no pair for the mint.
var ErrTokenNotFound = errors.New("dexscreener: token not found")

// TokenInfo is the flattened view of the best pair for a mint.
type TokenInfo struct {
	Name           string
	Symbol         string
	Mint           string
	PriceUSD       float64
	PriceNative    float64
	LiquidityUSD   float64
	Volume24h      float64
	PriceChange1h  float64
	PriceChange24h float64
	MarketCap      float64
	DexID          string
	PairAddress    string
}

// Client fetches token info with a short-TTL cache in front. The alert
// engine looks tokens up once per alert per tick; the cache keeps that cheap
// while staying far shorter than the tick period.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	cache      *ristretto.Cache
	cacheTTL   time.Duration
}

// NewClient builds a market-data client.
func NewClient(baseURL string) *Client {
	cache, _ := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 8 * time.Second},
		cache:      cache,
		cacheTTL:   15 * time.Second,
	}
}

// GetTokenInfo returns metadata and prices for a mint.
func (c *Client) GetTokenInfo(ctx context.Context, mint string) (*TokenInfo, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(mint); ok {
			info := v.(TokenInfo)
			return &info, nil
		}
	}

	u := fmt.Sprintf("%s/latest/dex/tokens/%s", c.BaseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener status %d", res.StatusCode)
	}

	var parsed struct {
		Pairs []struct {
			BaseToken struct {
				Address string `json:"address"`
				Name    string `json:"name"`
				Symbol  string `json:"symbol"`
			} `json:"baseToken"`
			PriceUSD    string `json:"priceUsd"`
			PriceNative string `json:"priceNative"`
			Liquidity   struct {
				USD float64 `json:"usd"`
			} `json:"liquidity"`
			Volume struct {
				H24 float64 `json:"h24"`
			} `json:"volume"`
			PriceChange struct {
				H1  float64 `json:"h1"`
				H24 float64 `json:"h24"`
			} `json:"priceChange"`
			MarketCap   float64 `json:"marketCap"`
			DexID       string  `json:"dexId"`
			PairAddress string  `json:"pairAddress"`
		} `json:"pairs"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode token info: %w", err)
	}
	if len(parsed.Pairs) == 0 {
		return nil, ErrTokenNotFound
	}

	p := parsed.Pairs[0]
	priceUSD, _ := strconv.ParseFloat(p.PriceUSD, 64)
	priceNative, _ := strconv.ParseFloat(p.PriceNative, 64)
	info := TokenInfo{
		Name:           orDefault(p.BaseToken.Name, "Unknown"),
		Symbol:         orDefault(p.BaseToken.Symbol, "???"),
		Mint:           orDefault(p.BaseToken.Address, mint),
		PriceUSD:       priceUSD,
		PriceNative:    priceNative,
		LiquidityUSD:   p.Liquidity.USD,
		Volume24h:      p.Volume.H24,
		PriceChange1h:  p.PriceChange.H1,
		PriceChange24h: p.PriceChange.H24,
		MarketCap:      p.MarketCap,
		DexID:          p.DexID,
		PairAddress:    p.PairAddress,
	}
	if c.cache != nil {
		c.cache.SetWithTTL(mint, info, 1, c.cacheTTL)
	}
	return &info, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
