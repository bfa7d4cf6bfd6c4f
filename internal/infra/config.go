package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"marketfeed/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Bybit v5 public stream endpoints.
const (
	MainnetWSURL = "wss://stream.bybit.com/v5/public/spot"
	TestnetWSURL = "wss://stream-testnet.bybit.com/v5/public/spot"
)

// Config holds every recognized application option. Loaded from YAML,
// then overridden from the environment.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Exchange struct {
		WSURL     string   `yaml:"ws_url"`
		Testnet   bool     `yaml:"testnet"`
		Symbols   []string `yaml:"symbols"`
		Timeframe string   `yaml:"timeframe"`
	} `yaml:"exchange"`

	MarketData struct {
		LookbackPeriods     int `yaml:"lookback_periods"`
		MinIndicatorCandles int `yaml:"min_indicator_candles"`
		RefreshIntervalSec  int `yaml:"refresh_interval_sec"`
		PersistIntervalSec  int `yaml:"persist_interval_sec"`
		StalenessMin        int `yaml:"staleness_min"`
	} `yaml:"market_data"`

	Reconnect struct {
		BaseDelaySec    int     `yaml:"base_delay_sec"`
		MaxDelaySec     int     `yaml:"max_delay_sec"`
		JitterRange     float64 `yaml:"jitter_range"`
		MaxAttempts     int     `yaml:"max_attempts"` // 0 = retry forever
		PingIntervalSec int     `yaml:"ping_interval_sec"`
	} `yaml:"reconnect"`

	Indicators struct {
		RSIPeriod       int             `yaml:"rsi_period"`
		RSIOverbought   decimal.Decimal `yaml:"rsi_overbought"`
		RSIOversold     decimal.Decimal `yaml:"rsi_oversold"`
		EMAFast         int             `yaml:"ema_fast"`
		EMASlow         int             `yaml:"ema_slow"`
		MACDFast        int             `yaml:"macd_fast"`
		MACDSlow        int             `yaml:"macd_slow"`
		MACDSignal      int             `yaml:"macd_signal"`
		BollingerPeriod int             `yaml:"bollinger_period"`
		BollingerStdDev decimal.Decimal `yaml:"bollinger_std_dev"`
	} `yaml:"indicators"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies defaults,
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "marketfeed"
	}
	if c.Exchange.WSURL == "" {
		if c.Exchange.Testnet {
			c.Exchange.WSURL = TestnetWSURL
		} else {
			c.Exchange.WSURL = MainnetWSURL
		}
	}
	if c.Exchange.Timeframe == "" {
		c.Exchange.Timeframe = string(domain.Timeframe1h)
	}
	if c.MarketData.LookbackPeriods <= 0 {
		c.MarketData.LookbackPeriods = 100
	}
	if c.MarketData.MinIndicatorCandles <= 0 {
		c.MarketData.MinIndicatorCandles = 50
	}
	if c.MarketData.RefreshIntervalSec <= 0 {
		c.MarketData.RefreshIntervalSec = 10
	}
	if c.MarketData.PersistIntervalSec <= 0 {
		c.MarketData.PersistIntervalSec = 60
	}
	if c.MarketData.StalenessMin <= 0 {
		c.MarketData.StalenessMin = 5
	}
	if c.Reconnect.BaseDelaySec <= 0 {
		c.Reconnect.BaseDelaySec = 1
	}
	if c.Reconnect.MaxDelaySec <= 0 {
		c.Reconnect.MaxDelaySec = 60
	}
	if c.Reconnect.JitterRange <= 0 {
		c.Reconnect.JitterRange = 0.1
	}
	if c.Reconnect.PingIntervalSec <= 0 {
		c.Reconnect.PingIntervalSec = 20
	}
	if c.Indicators.RSIPeriod <= 0 {
		c.Indicators.RSIPeriod = 14
	}
	if c.Indicators.RSIOverbought.IsZero() {
		c.Indicators.RSIOverbought = decimal.NewFromInt(70)
	}
	if c.Indicators.RSIOversold.IsZero() {
		c.Indicators.RSIOversold = decimal.NewFromInt(30)
	}
	if c.Indicators.EMAFast <= 0 {
		c.Indicators.EMAFast = 12
	}
	if c.Indicators.EMASlow <= 0 {
		c.Indicators.EMASlow = 26
	}
	if c.Indicators.MACDFast <= 0 {
		c.Indicators.MACDFast = 12
	}
	if c.Indicators.MACDSlow <= 0 {
		c.Indicators.MACDSlow = 26
	}
	if c.Indicators.MACDSignal <= 0 {
		c.Indicators.MACDSignal = 9
	}
	if c.Indicators.BollingerPeriod <= 0 {
		c.Indicators.BollingerPeriod = 20
	}
	if c.Indicators.BollingerStdDev.IsZero() {
		c.Indicators.BollingerStdDev = decimal.NewFromInt(2)
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/marketfeed.db"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Exchange.WSURL, "ws://") && !strings.HasPrefix(c.Exchange.WSURL, "wss://") {
		return fmt.Errorf("invalid websocket URL: %s", c.Exchange.WSURL)
	}
	if len(c.Exchange.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	switch domain.Timeframe(c.Exchange.Timeframe) {
	case domain.Timeframe1m, domain.Timeframe3m, domain.Timeframe5m, domain.Timeframe15m,
		domain.Timeframe30m, domain.Timeframe1h, domain.Timeframe4h, domain.Timeframe1d:
	default:
		return fmt.Errorf("unsupported timeframe: %s", c.Exchange.Timeframe)
	}
	if c.Reconnect.MaxDelaySec < c.Reconnect.BaseDelaySec {
		return fmt.Errorf("max delay %ds below base delay %ds", c.Reconnect.MaxDelaySec, c.Reconnect.BaseDelaySec)
	}
	if c.Reconnect.JitterRange < 0 || c.Reconnect.JitterRange >= 1 {
		return fmt.Errorf("jitter range must be in [0, 1): %f", c.Reconnect.JitterRange)
	}
	if c.Indicators.MACDFast >= c.Indicators.MACDSlow {
		return fmt.Errorf("macd fast period %d must be below slow period %d",
			c.Indicators.MACDFast, c.Indicators.MACDSlow)
	}
	return nil
}

// Timeframe returns the primary timeframe as a domain type.
func (c *Config) Timeframe() domain.Timeframe {
	return domain.Timeframe(c.Exchange.Timeframe)
}

// RefreshInterval returns the indicator refresh loop period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.MarketData.RefreshIntervalSec) * time.Second
}

// PersistInterval returns the persistence loop period.
func (c *Config) PersistInterval() time.Duration {
	return time.Duration(c.MarketData.PersistIntervalSec) * time.Second
}

// StalenessThreshold returns the snapshot staleness warning threshold.
func (c *Config) StalenessThreshold() time.Duration {
	return time.Duration(c.MarketData.StalenessMin) * time.Minute
}

// overrideWithEnv applies environment overrides when present.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("MARKETFEED_WS_URL"); url != "" {
		cfg.Exchange.WSURL = url
	}
	if symbols := os.Getenv("MARKETFEED_SYMBOLS"); symbols != "" {
		cfg.Exchange.Symbols = strings.Split(symbols, ",")
	}
	if testnet := os.Getenv("MARKETFEED_TESTNET"); testnet == "true" || testnet == "1" {
		cfg.Exchange.Testnet = true
		cfg.Exchange.WSURL = TestnetWSURL
	}
	if path := os.Getenv("MARKETFEED_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if level := os.Getenv("MARKETFEED_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
