package market_test

import (
	"os"
	"path/filepath"
	"testing"

	market "eodprices/pkg/market"
	_ "eodprices/pkg/market/stooq"
)

// Ensures env placeholders are expanded and durations parsed.
func TestMarketConfig_EnvExpansionAndDurations(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STOOQ_BASE", "https://stooq.test")
	t.Setenv("STOOQ_TOUT", "9s")
	t.Setenv("STOOQ_GAP", "2s")

	yaml := []byte(`
default: stooq
providers:
  stooq:
    type: stooq
    base_url: ${STOOQ_BASE}
    timeout: ${STOOQ_TOUT}
    min_interval: ${STOOQ_GAP}
`)
	path := filepath.Join(dir, "market.yaml")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := market.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	p := cfg.Providers["stooq"]
	if p == nil {
		t.Fatalf("provider stooq missing")
	}
	if p.BaseURL != "https://stooq.test" {
		t.Fatalf("BaseURL not expanded, got %q", p.BaseURL)
	}
	if p.Timeout.String() != "9s" || p.MinInterval.String() != "2s" {
		t.Fatalf("durations not parsed, timeout=%s min_interval=%s", p.Timeout, p.MinInterval)
	}
}
