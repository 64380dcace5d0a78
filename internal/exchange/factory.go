// Package exchange provides venue implementations
package exchange

import (
	"fmt"
	"strings"
	"time"

	"auto_trader/internal/config"
	"auto_trader/internal/core"
	"auto_trader/internal/exchange/binance"
	"auto_trader/internal/mock"
	"auto_trader/pkg/concurrency"
)

// NewExchange creates a venue instance based on configuration
func NewExchange(cfg *config.Config, logger core.ILogger, pool *concurrency.WorkerPool) (core.IExchange, error) {
	timeout := time.Duration(cfg.Timing.RequestTimeoutSec) * time.Second

	switch strings.ToLower(cfg.App.Venue) {
	case "binance":
		return binance.NewBinanceExchange(&cfg.Exchange, cfg.App.Testnet, timeout, logger, pool), nil
	case "mock":
		return mock.NewMockExchange("mock"), nil
	default:
		return nil, fmt.Errorf("unsupported venue: %s", cfg.App.Venue)
	}
}
