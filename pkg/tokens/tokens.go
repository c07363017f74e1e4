// Package tokens holds the catalog of well-known swap targets.
package tokens

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SOLMint is the native asset's wrapped mint address.
const SOLMint = "So11111111111111111111111111111111111111112"

// LamportsPerSOL converts native units to SOL.
const LamportsPerSOL = 1_000_000_000

// Token is one well-known swap target.
type Token struct {
	Key    string `yaml:"key"`
	Mint   string `yaml:"mint"`
	Symbol string `yaml:"symbol"`
	Label  string `yaml:"label"`
}

// Catalog resolves swap-target keys to mints.
type Catalog struct {
	list  []Token
	byKey map[string]Token
}

var defaults = []Token{
	{Key: "usdc", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Symbol: "USDC", Label: "USDC"},
	{Key: "usdt", Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Symbol: "USDT", Label: "USDT"},
	{Key: "sol", Mint: SOLMint, Symbol: "SOL", Label: "SOL"},
	{Key: "btc", Mint: "3NZ9JMVBmGAqocybic2c7LQCJScmgsAZ6vQqTDzcqmJh", Symbol: "BTC", Label: "BTC"},
	{Key: "eth", Mint: "7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs", Symbol: "ETH", Label: "ETH"},
}

// Load builds the catalog. An empty path yields the built-in defaults; a YAML
// file replaces them entirely.
func Load(path string) (*Catalog, error) {
	list := defaults
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read tokens file: %w", err)
		}
		var fileTokens struct {
			Tokens []Token `yaml:"tokens"`
		}
		if err := yaml.Unmarshal(raw, &fileTokens); err != nil {
			return nil, fmt.Errorf("parse tokens file: %w", err)
		}
		if len(fileTokens.Tokens) > 0 {
			list = fileTokens.Tokens
		}
	}

	byKey := make(map[string]Token, len(list))
	for _, t := range list {
		byKey[t.Key] = t
	}
	return &Catalog{list: list, byKey: byKey}, nil
}

// Get resolves a catalog key.
func (c *Catalog) Get(key string) (Token, bool) {
	t, ok := c.byKey[key]
	return t, ok
}

// All returns the catalog in declaration order.
func (c *Catalog) All() []Token {
	out := make([]Token, len(c.list))
	copy(out, c.list)
	return out
}
