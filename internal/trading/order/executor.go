// Package order provides position entry with sizing, precision handling, and rate limiting
package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"auto_trader/internal/core"
	"auto_trader/internal/trading/precision"
	apperrors "auto_trader/pkg/errors"
	"auto_trader/pkg/telemetry"
)

// Executor implements core.IOrderExecutor. It sizes entries from a notional
// budget, normalizes quantities and prices to venue constraints, and attaches
// optional take-profit orders.
type Executor struct {
	exchange core.IExchange
	logger   core.ILogger

	mu       sync.RWMutex
	leverage int
	pacing   time.Duration

	rateLimiter *rate.Limiter

	// OTel
	tracer       trace.Tracer
	orderCounter metric.Int64Counter
	failCounter  metric.Int64Counter
}

// NewExecutor creates an order executor with the session leverage applied to
// every symbol it touches
func NewExecutor(exchange core.IExchange, leverage int, pacing time.Duration, logger core.ILogger) *Executor {
	tracer := telemetry.GetTracer("order-executor")
	meter := telemetry.GetMeter("order-executor")

	orderCounter, _ := meter.Int64Counter("order_placements_total",
		metric.WithDescription("Total number of orders placed"))
	failCounter, _ := meter.Int64Counter("order_failures_total",
		metric.WithDescription("Total number of order placement failures"))

	return &Executor{
		exchange:     exchange,
		logger:       logger.WithField("component", "order_executor"),
		leverage:     leverage,
		pacing:       pacing,
		rateLimiter:  rate.NewLimiter(rate.Limit(10), 10),
		tracer:       tracer,
		orderCounter: orderCounter,
		failCounter:  failCounter,
	}
}

// PlaceEntryWithTakeProfit opens one leveraged position. The entry quantity is
// notional * leverage / markPrice truncated to the symbol's step. A non-zero
// TakeProfitPrice attaches a reduce-only TAKE_PROFIT_MARKET order at that
// trigger; its failure never rolls back the filled entry.
func (e *Executor) PlaceEntryWithTakeProfit(ctx context.Context, req core.EntryRequest) core.EntryResult {
	ctx, span := e.tracer.Start(ctx, "PlaceEntryWithTakeProfit",
		trace.WithAttributes(
			attribute.String("symbol", req.Symbol),
			attribute.String("side", string(req.PositionSide)),
		),
	)
	defer span.End()

	result := core.EntryResult{Symbol: req.Symbol}
	leverage := e.Leverage()

	if err := e.exchange.SetLeverage(ctx, req.Symbol, leverage); err != nil {
		e.logger.Error("failed to set leverage", "symbol", req.Symbol, "leverage", leverage, "error", err)
		result.Entry = core.OrderOutcome{Symbol: req.Symbol, Err: fmt.Errorf("set leverage: %w", err)}
		e.failCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", req.Symbol)))
		return result
	}

	norm := e.normalizerFor(ctx, req.Symbol)

	mark, err := e.exchange.GetMarkPrice(ctx, req.Symbol)
	if err != nil {
		result.Entry = core.OrderOutcome{Symbol: req.Symbol, Err: fmt.Errorf("get mark price: %w", err)}
		e.failCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", req.Symbol)))
		return result
	}
	if mark.IsZero() {
		result.Entry = core.OrderOutcome{Symbol: req.Symbol, Err: fmt.Errorf("%w: zero mark price for %s", apperrors.ErrInvalidInput, req.Symbol)}
		return result
	}

	quantity := norm.Quantity(req.Notional.Mul(decimal.NewFromInt(int64(leverage))).Div(mark))
	if !quantity.IsPositive() {
		result.Entry = core.OrderOutcome{Symbol: req.Symbol, Err: fmt.Errorf("%w: computed quantity %s too small for %s", apperrors.ErrInvalidInput, quantity, req.Symbol)}
		e.logger.Warn("entry skipped, quantity below step", "symbol", req.Symbol, "notional", req.Notional, "mark_price", mark)
		return result
	}

	if err := e.rateLimiter.Wait(ctx); err != nil {
		result.Entry = core.OrderOutcome{Symbol: req.Symbol, Err: err}
		return result
	}

	orderID, err := e.exchange.SubmitMarketOrder(ctx, core.OrderRequest{
		Symbol:        req.Symbol,
		Side:          req.PositionSide.EntrySide(),
		PositionSide:  req.PositionSide,
		Quantity:      quantity,
		ClientOrderID: "entry-" + uuid.NewString(),
	})
	if err != nil {
		e.logger.Error("entry order failed", "symbol", req.Symbol, "side", req.PositionSide, "quantity", quantity, "error", err)
		result.Entry = core.OrderOutcome{Symbol: req.Symbol, Err: err}
		e.failCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", req.Symbol)))
		return result
	}

	e.orderCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", req.Symbol)))
	e.logger.Info("position opened", "symbol", req.Symbol, "side", req.PositionSide, "quantity", quantity, "mark_price", mark, "order_id", orderID)
	result.Entry = core.OrderOutcome{Symbol: req.Symbol, OrderID: orderID}

	if req.TakeProfitPrice.IsPositive() {
		tp := e.placeTakeProfit(ctx, req.Symbol, req.PositionSide, quantity, mark, req.TakeProfitPrice, norm)
		result.TakeProfit = &tp
	}

	return result
}

// placeTakeProfit submits a reduce-only TAKE_PROFIT_MARKET on the opposite
// side at the operator-supplied trigger price. A trigger that is not strictly
// beyond the mark in the profit direction is warned about but still attempted;
// the venue is the final arbiter of trigger validity.
func (e *Executor) placeTakeProfit(ctx context.Context, symbol string, side core.PositionSide, quantity, mark, takeProfitPrice decimal.Decimal, norm *precision.Normalizer) core.OrderOutcome {
	stopPrice := norm.Price(takeProfitPrice)

	wrongDirection := (side == core.PositionSideLong && stopPrice.LessThanOrEqual(mark)) ||
		(side == core.PositionSideShort && stopPrice.GreaterThanOrEqual(mark))
	if wrongDirection {
		e.logger.Warn("take-profit trigger not beyond mark price, submitting anyway",
			"symbol", symbol, "side", side, "stop_price", stopPrice, "mark_price", mark)
	}

	if err := e.rateLimiter.Wait(ctx); err != nil {
		return core.OrderOutcome{Symbol: symbol, Err: err}
	}

	orderID, err := e.exchange.SubmitTakeProfitOrder(ctx, core.OrderRequest{
		Symbol:        symbol,
		Side:          side.CloseSide(),
		PositionSide:  side,
		Quantity:      quantity,
		StopPrice:     stopPrice,
		ReduceOnly:    true,
		ClientOrderID: "tp-" + uuid.NewString(),
	})
	if err != nil {
		e.logger.Warn("take-profit order failed, entry remains open", "symbol", symbol, "stop_price", stopPrice, "error", err)
		e.failCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
		return core.OrderOutcome{Symbol: symbol, Err: err}
	}

	e.orderCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
	e.logger.Info("take-profit attached", "symbol", symbol, "stop_price", stopPrice, "order_id", orderID)
	return core.OrderOutcome{Symbol: symbol, OrderID: orderID}
}

// PlaceClosingOrder submits one reduce-only market order on the side that
// flattens the given position. The quantity goes through the same step
// truncation as entries so the venue never sees an off-step close.
func (e *Executor) PlaceClosingOrder(ctx context.Context, symbol string, side core.PositionSide, quantity decimal.Decimal) core.CloseOutcome {
	ctx, span := e.tracer.Start(ctx, "PlaceClosingOrder",
		trace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("side", string(side)),
		),
	)
	defer span.End()

	norm := e.normalizerFor(ctx, symbol)

	qty := norm.Quantity(quantity.Abs())
	if !qty.IsPositive() {
		return core.CloseOutcome{Symbol: symbol, PositionSide: side,
			Err: fmt.Errorf("%w: close quantity %s below step for %s", apperrors.ErrInvalidInput, quantity, symbol)}
	}

	if err := e.rateLimiter.Wait(ctx); err != nil {
		return core.CloseOutcome{Symbol: symbol, PositionSide: side, Err: err}
	}

	orderID, err := e.exchange.SubmitMarketOrder(ctx, core.OrderRequest{
		Symbol:        symbol,
		Side:          side.CloseSide(),
		PositionSide:  side,
		Quantity:      qty,
		ReduceOnly:    true,
		ClientOrderID: "close-" + uuid.NewString(),
	})
	if err != nil {
		e.logger.Error("closing order failed", "symbol", symbol, "side", side, "quantity", qty, "error", err)
		e.failCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
		return core.CloseOutcome{Symbol: symbol, PositionSide: side, Err: err}
	}

	e.orderCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
	e.logger.Info("position closed", "symbol", symbol, "side", side, "quantity", qty, "order_id", orderID)
	return core.CloseOutcome{Symbol: symbol, PositionSide: side, OrderID: orderID}
}

// normalizerFor fetches the symbol filter, falling back to conservative
// precision when the venue cannot supply it.
func (e *Executor) normalizerFor(ctx context.Context, symbol string) *precision.Normalizer {
	filter, err := e.exchange.GetSymbolFilter(ctx, symbol)
	if err != nil {
		e.logger.Warn("symbol filter unavailable, using fallback precision", "symbol", symbol, "error", err)
		filter = core.SymbolFilter{Symbol: symbol, Known: false}
	}
	return precision.NewNormalizer(filter)
}

// SetLeverage updates the session leverage applied to subsequent entries
func (e *Executor) SetLeverage(leverage int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leverage = leverage
}

// Leverage returns the current session leverage
func (e *Executor) Leverage() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leverage
}

// PlaceBatch opens positions for each request in order. Failures are isolated
// per request and entries are paced to avoid burst rejections.
func (e *Executor) PlaceBatch(ctx context.Context, reqs []core.EntryRequest) []core.EntryResult {
	if len(reqs) == 0 {
		return nil
	}

	results := make([]core.EntryResult, 0, len(reqs))

	for i, req := range reqs {
		if i > 0 && e.pacing > 0 {
			select {
			case <-ctx.Done():
				results = append(results, core.EntryResult{
					Symbol: req.Symbol,
					Entry:  core.OrderOutcome{Symbol: req.Symbol, Err: ctx.Err()},
				})
				continue
			case <-time.After(e.pacing):
			}
		}
		results = append(results, e.PlaceEntryWithTakeProfit(ctx, req))
	}

	succeeded := 0
	for _, r := range results {
		if r.Entry.Ok() {
			succeeded++
		}
	}
	e.logger.Info("batch entry finished", "requested", len(reqs), "succeeded", succeeded)

	return results
}
