package tokens

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(c.All()) == 0 {
		t.Fatal("default catalog is empty")
	}

	sol, ok := c.Get("sol")
	if !ok {
		t.Fatal("sol missing from defaults")
	}
	if sol.Mint != SOLMint {
		t.Fatalf("sol mint=%s, expected wrapped SOL", sol.Mint)
	}
	if _, ok := c.Get("usdc"); !ok {
		t.Fatal("usdc missing from defaults")
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	content := []byte(`tokens:
  - key: bonk
    mint: DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263
    symbol: BONK
    label: Bonk
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(c.All()) != 1 {
		t.Fatalf("catalog size=%d, expected the file to replace defaults", len(c.All()))
	}
	bonk, ok := c.Get("bonk")
	if !ok {
		t.Fatal("bonk missing after override")
	}
	if bonk.Symbol != "BONK" {
		t.Fatalf("symbol=%s, expected BONK", bonk.Symbol)
	}
	if _, ok := c.Get("usdc"); ok {
		t.Fatal("defaults leaked through a file override")
	}
}

func TestLoadBadFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("tokens: ["), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
