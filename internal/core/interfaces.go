// Package core defines the domain types and interfaces for the trading controller
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// IExchange defines the venue operations the controller depends on.
// Implementations return exact decimals; no float64 crosses this boundary.
type IExchange interface {
	// Identity and connectivity
	GetName() string
	Ping(ctx context.Context) error
	CheckPositionMode(ctx context.Context) (dualSide bool, err error)

	// Instrument metadata
	ListSymbols(ctx context.Context, quoteAsset string) ([]string, error)
	GetSymbolFilter(ctx context.Context, symbol string) (SymbolFilter, error)

	// Market data
	GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	StartMarkPriceStream(ctx context.Context, symbols []string, callback func(symbol string, markPrice decimal.Decimal)) error
	StopMarkPriceStream() error

	// Account
	GetPositions(ctx context.Context) ([]Position, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// Orders
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (orderID int64, err error)
	SubmitTakeProfitOrder(ctx context.Context, req OrderRequest) (orderID int64, err error)
}

// IOrderExecutor opens and closes positions with sized, precision-normalized
// orders. Entry and closing quantities go through the same normalization.
type IOrderExecutor interface {
	PlaceEntryWithTakeProfit(ctx context.Context, req EntryRequest) EntryResult
	PlaceBatch(ctx context.Context, reqs []EntryRequest) []EntryResult
	PlaceClosingOrder(ctx context.Context, symbol string, side PositionSide, quantity decimal.Decimal) CloseOutcome
	SetLeverage(leverage int)
	Leverage() int
}

// IPnlAggregator produces complete snapshots of open positions and totals.
type IPnlAggregator interface {
	Snapshot(ctx context.Context) (PnlSnapshot, error)
}

// ICloseOrchestrator closes every open position with reduce-only orders.
type ICloseOrchestrator interface {
	CloseAll(ctx context.Context, triggeredByMonitor bool) CloseReport
}

// ITargetMonitor polls aggregate PNL and fires the mass close when the
// configured target is reached. At most one activation runs at a time.
type ITargetMonitor interface {
	Activate(ctx context.Context, target decimal.Decimal) error
	Deactivate()
	State() MonitorState
	Target() decimal.Decimal
}

// INotifier delivers operator-facing event notifications.
type INotifier interface {
	Notify(ctx context.Context, title, message string) error
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
