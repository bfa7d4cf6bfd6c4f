package infra

import (
	"os"
	"path/filepath"
	"testing"

	"marketfeed/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
exchange:
  symbols:
    - BTCUSDT
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Exchange.WSURL != MainnetWSURL {
		t.Errorf("expected mainnet URL default, got %s", cfg.Exchange.WSURL)
	}
	if cfg.Timeframe() != domain.Timeframe1h {
		t.Errorf("expected 1h default timeframe, got %s", cfg.Timeframe())
	}
	if cfg.MarketData.LookbackPeriods != 100 {
		t.Errorf("expected lookback default 100, got %d", cfg.MarketData.LookbackPeriods)
	}
	if cfg.MarketData.MinIndicatorCandles != 50 {
		t.Errorf("expected min candles default 50, got %d", cfg.MarketData.MinIndicatorCandles)
	}
	if cfg.Reconnect.BaseDelaySec != 1 || cfg.Reconnect.MaxDelaySec != 60 {
		t.Errorf("unexpected reconnect defaults: %+v", cfg.Reconnect)
	}
	if cfg.Reconnect.JitterRange != 0.1 {
		t.Errorf("expected jitter default 0.1, got %f", cfg.Reconnect.JitterRange)
	}
	if cfg.Indicators.RSIPeriod != 14 || cfg.Indicators.MACDSlow != 26 {
		t.Errorf("unexpected indicator defaults: %+v", cfg.Indicators)
	}
}

func TestLoadConfigTestnetURL(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
exchange:
  testnet: true
  symbols:
    - BTCUSDT
`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Exchange.WSURL != TestnetWSURL {
		t.Errorf("expected testnet URL, got %s", cfg.Exchange.WSURL)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no symbols", `
exchange:
  timeframe: 1h
`},
		{"bad url", `
exchange:
  ws_url: http://not-a-socket
  symbols: [BTCUSDT]
`},
		{"bad timeframe", `
exchange:
  symbols: [BTCUSDT]
  timeframe: 7m
`},
		{"macd fast above slow", `
exchange:
  symbols: [BTCUSDT]
indicators:
  macd_fast: 30
  macd_slow: 26
`},
		{"jitter out of range", `
exchange:
  symbols: [BTCUSDT]
reconnect:
  jitter_range: 1.5
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MARKETFEED_SYMBOLS", "SOLUSDT,XRPUSDT")
	t.Setenv("MARKETFEED_DB_PATH", "/tmp/override.db")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Exchange.Symbols) != 2 || cfg.Exchange.Symbols[0] != "SOLUSDT" {
		t.Errorf("env symbols override not applied: %v", cfg.Exchange.Symbols)
	}
	if cfg.Storage.Path != "/tmp/override.db" {
		t.Errorf("env db path override not applied: %s", cfg.Storage.Path)
	}
}
