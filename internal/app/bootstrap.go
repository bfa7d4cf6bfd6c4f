package app

import (
	"log/slog"
	"time"

	"marketfeed/internal/indicators"
	"marketfeed/internal/infra"
	"marketfeed/internal/infra/bybit"
	"marketfeed/internal/infra/storage"
	"marketfeed/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Metrics *infra.Metrics
	Client  *bybit.Client
	Service *service.Service
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config, sets up logging, opens storage, and wires the
// stream client and market data service together.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("database initialized", slog.String("path", cfg.Storage.Path))

	b.Metrics = infra.NewMetrics()

	b.Client = bybit.NewClient(bybit.ClientConfig{
		WSURL:        cfg.Exchange.WSURL,
		Symbols:      cfg.Exchange.Symbols,
		Timeframe:    cfg.Timeframe(),
		PingInterval: time.Duration(cfg.Reconnect.PingIntervalSec) * time.Second,
		Reconnect: infra.ReconnectConfig{
			BaseDelay:   time.Duration(cfg.Reconnect.BaseDelaySec) * time.Second,
			MaxDelay:    time.Duration(cfg.Reconnect.MaxDelaySec) * time.Second,
			JitterRange: cfg.Reconnect.JitterRange,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
	}, b.Metrics, logger)

	calc := indicators.NewCalculator(indicators.Config{
		RSIPeriod:       cfg.Indicators.RSIPeriod,
		RSIOverbought:   cfg.Indicators.RSIOverbought,
		RSIOversold:     cfg.Indicators.RSIOversold,
		EMAFast:         cfg.Indicators.EMAFast,
		EMASlow:         cfg.Indicators.EMASlow,
		MACDFast:        cfg.Indicators.MACDFast,
		MACDSlow:        cfg.Indicators.MACDSlow,
		MACDSignal:      cfg.Indicators.MACDSignal,
		BollingerPeriod: cfg.Indicators.BollingerPeriod,
		BollingerStdDev: cfg.Indicators.BollingerStdDev,
	})

	b.Service = service.NewService(service.Config{
		Symbols:             cfg.Exchange.Symbols,
		Timeframe:           cfg.Timeframe(),
		LookbackPeriods:     cfg.MarketData.LookbackPeriods,
		MinIndicatorCandles: cfg.MarketData.MinIndicatorCandles,
		RefreshInterval:     cfg.RefreshInterval(),
		PersistInterval:     cfg.PersistInterval(),
		StalenessThreshold:  cfg.StalenessThreshold(),
	}, b.Client, store, calc, b.Metrics, logger)

	return nil
}
