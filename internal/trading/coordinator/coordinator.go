// Package coordinator exposes the operator-facing trading session
package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"auto_trader/internal/core"
	apperrors "auto_trader/pkg/errors"
)

// Coordinator ties venue connectivity, entries, mass close, and the target
// monitor into one session. Trading commands are rejected while the monitor
// is active; leverage changes and deactivation stay available.
type Coordinator struct {
	exchange   core.IExchange
	executor   core.IOrderExecutor
	aggregator core.IPnlAggregator
	closer     core.ICloseOrchestrator
	monitor    core.ITargetMonitor
	logger     core.ILogger

	quoteAsset string

	connected atomic.Bool
	mu        sync.Mutex
}

// New creates a coordinator over the given components
func New(exchange core.IExchange, executor core.IOrderExecutor, aggregator core.IPnlAggregator, closer core.ICloseOrchestrator, monitor core.ITargetMonitor, quoteAsset string, logger core.ILogger) *Coordinator {
	return &Coordinator{
		exchange:   exchange,
		executor:   executor,
		aggregator: aggregator,
		closer:     closer,
		monitor:    monitor,
		quoteAsset: quoteAsset,
		logger:     logger.WithField("component", "coordinator"),
	}
}

// Connect verifies venue connectivity and the account position mode.
// One-way position mode gets a critical warning but does not block the
// session.
func (c *Coordinator) Connect(ctx context.Context) error {
	if err := c.exchange.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrNotConnected, err)
	}

	dualSide, err := c.exchange.CheckPositionMode(ctx)
	if err != nil {
		c.logger.Warn("could not verify position mode", "error", err)
	} else if !dualSide {
		c.logger.Error("account is in one-way position mode; hedge mode is required for positionSide orders")
	}

	c.connected.Store(true)
	c.logger.Info("connected", "venue", c.exchange.GetName())
	return nil
}

// Disconnect deactivates the monitor first, then drops the session
func (c *Coordinator) Disconnect() {
	if c.monitor.State() == core.MonitorActive {
		c.logger.Info("deactivating monitor before disconnect")
	}
	c.monitor.Deactivate()
	c.exchange.StopMarkPriceStream()
	c.connected.Store(false)
	c.logger.Info("disconnected")
}

// IsConnected reports session connectivity
func (c *Coordinator) IsConnected() bool {
	return c.connected.Load()
}

// SetLeverage validates and applies the session leverage. Allowed while the
// monitor is active; it only affects subsequent entries.
func (c *Coordinator) SetLeverage(leverage int) error {
	if leverage < 1 || leverage > 125 {
		return fmt.Errorf("%w: leverage %d out of range 1..125", apperrors.ErrInvalidInput, leverage)
	}
	c.executor.SetLeverage(leverage)
	c.logger.Info("session leverage updated", "leverage", leverage)
	return nil
}

// Leverage returns the current session leverage
func (c *Coordinator) Leverage() int {
	return c.executor.Leverage()
}

// guardTrading is called with c.mu held so the monitor cannot be activated
// between the check and the guarded operation.
func (c *Coordinator) guardTrading() error {
	if !c.connected.Load() {
		return apperrors.ErrNotConnected
	}
	if c.monitor.State() == core.MonitorActive {
		return apperrors.ErrMonitorActive
	}
	return nil
}

// Trade opens one position per selection. Selections without a notional get
// an even share of totalNotional.
func (c *Coordinator) Trade(ctx context.Context, selections []core.EntryRequest, totalNotional decimal.Decimal) ([]core.EntryResult, error) {
	if len(selections) == 0 {
		return nil, fmt.Errorf("%w: no symbols selected", apperrors.ErrInvalidInput)
	}

	reqs := make([]core.EntryRequest, len(selections))
	copy(reqs, selections)

	unsized := 0
	for _, req := range reqs {
		if req.Notional.IsZero() {
			unsized++
		} else if req.Notional.IsNegative() {
			return nil, fmt.Errorf("%w: notional for %s must be positive", apperrors.ErrInvalidInput, req.Symbol)
		}
	}
	if unsized > 0 {
		if !totalNotional.IsPositive() {
			return nil, fmt.Errorf("%w: total notional must be positive", apperrors.ErrInvalidInput)
		}
		share := totalNotional.Div(decimal.NewFromInt(int64(unsized)))
		for i := range reqs {
			if reqs[i].Notional.IsZero() {
				reqs[i].Notional = share
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardTrading(); err != nil {
		return nil, err
	}
	return c.executor.PlaceBatch(ctx, reqs), nil
}

// AddPosition opens a single position without touching existing ones
func (c *Coordinator) AddPosition(ctx context.Context, req core.EntryRequest) (core.EntryResult, error) {
	if !req.Notional.IsPositive() {
		return core.EntryResult{}, fmt.Errorf("%w: notional must be positive", apperrors.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardTrading(); err != nil {
		return core.EntryResult{}, err
	}
	return c.executor.PlaceEntryWithTakeProfit(ctx, req), nil
}

// CloseAll closes every open position on operator request
func (c *Coordinator) CloseAll(ctx context.Context) (core.CloseReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardTrading(); err != nil {
		return core.CloseReport{}, err
	}
	return c.closer.CloseAll(ctx, false), nil
}

// ActivateMonitor starts the target-profit monitor. It takes the same lock as
// the trading commands, so activation cannot slip between a guard check and a
// manual close; at most one party can be mass-closing at a time.
func (c *Coordinator) ActivateMonitor(ctx context.Context, target decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected.Load() {
		return apperrors.ErrNotConnected
	}
	return c.monitor.Activate(ctx, target)
}

// DeactivateMonitor stops the monitor; safe to call when inactive
func (c *Coordinator) DeactivateMonitor() {
	c.monitor.Deactivate()
}

// MonitorState returns the monitor lifecycle state
func (c *Coordinator) MonitorState() core.MonitorState {
	return c.monitor.State()
}

// Status returns a fresh PNL snapshot
func (c *Coordinator) Status(ctx context.Context) (core.PnlSnapshot, error) {
	if !c.connected.Load() {
		return core.PnlSnapshot{}, apperrors.ErrNotConnected
	}
	return c.aggregator.Snapshot(ctx)
}

// Symbols lists tradable perpetual symbols in the session quote asset
func (c *Coordinator) Symbols(ctx context.Context) ([]string, error) {
	if !c.connected.Load() {
		return nil, apperrors.ErrNotConnected
	}
	return c.exchange.ListSymbols(ctx, c.quoteAsset)
}

// RandomSymbols picks up to n distinct random symbols from the tradable set
func (c *Coordinator) RandomSymbols(ctx context.Context, n int) ([]string, error) {
	symbols, err := c.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive", apperrors.ErrInvalidInput)
	}
	if len(symbols) <= n {
		return symbols, nil
	}

	picked := append([]string(nil), symbols...)
	rand.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:n], nil
}
