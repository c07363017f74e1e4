package dexscreener

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const sampleBody = `{"pairs":[{
	"baseToken":{"address":"mintA","name":"Token A","symbol":"AAA"},
	"priceUsd":"0.0412","priceNative":"0.00021",
	"liquidity":{"usd":125000},
	"volume":{"h24":43000},
	"priceChange":{"h1":-2.5,"h24":11.8},
	"marketCap":900000,
	"dexId":"raydium","pairAddress":"pair111"
}]}`

func TestGetTokenInfoParsesFirstPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/dex/tokens/mintA" {
			t.Fatalf("path=%s, expected token endpoint", r.URL.Path)
		}
		_, _ = w.Write([]byte(sampleBody))
	}))
	defer srv.Close()

	info, err := NewClient(srv.URL).GetTokenInfo(context.Background(), "mintA")
	if err != nil {
		t.Fatalf("GetTokenInfo returned error: %v", err)
	}
	if info.Symbol != "AAA" || info.Name != "Token A" {
		t.Fatalf("token=%s/%s, expected AAA/Token A", info.Symbol, info.Name)
	}
	if info.PriceUSD != 0.0412 || info.PriceNative != 0.00021 {
		t.Fatalf("prices=%v/%v, expected parsed string prices", info.PriceUSD, info.PriceNative)
	}
	if info.LiquidityUSD != 125000 || info.Volume24h != 43000 {
		t.Fatalf("liquidity/volume=%v/%v, expected 125000/43000", info.LiquidityUSD, info.Volume24h)
	}
	if info.PriceChange1h != -2.5 || info.PriceChange24h != 11.8 {
		t.Fatalf("changes=%v/%v, expected -2.5/11.8", info.PriceChange1h, info.PriceChange24h)
	}
}

func TestGetTokenInfoNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetTokenInfo(context.Background(), "unknown")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("error=%v, expected ErrTokenNotFound", err)
	}
}

func TestGetTokenInfoMissingFieldsGetPlaceholders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs":[{"priceUsd":"1.0"}]}`))
	}))
	defer srv.Close()

	info, err := NewClient(srv.URL).GetTokenInfo(context.Background(), "mintX")
	if err != nil {
		t.Fatalf("GetTokenInfo returned error: %v", err)
	}
	if info.Name != "Unknown" || info.Symbol != "???" {
		t.Fatalf("placeholders=%s/%s, expected Unknown/???", info.Name, info.Symbol)
	}
	if info.Mint != "mintX" {
		t.Fatalf("mint=%s, expected requested mint as fallback", info.Mint)
	}
}

// Repeated lookups within the TTL should be served from the cache. The cache
// admits asynchronously, so give it a moment before the second call.
func TestGetTokenInfoCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(sampleBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.GetTokenInfo(context.Background(), "mintA"); err != nil {
		t.Fatalf("first lookup failed: %v", err)
	}

	admitted := false
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.cache.Get("mintA"); ok {
			admitted = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !admitted {
		t.Skip("cache admission did not settle in time")
	}

	if _, err := c.GetTokenInfo(context.Background(), "mintA"); err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("http hits=%d, expected the second lookup to be cached", got)
	}
}
