package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order side on the venue.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionSide identifies the hedge-mode direction of a position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// EntrySide returns the order side that opens a position on this side.
func (ps PositionSide) EntrySide() Side {
	if ps == PositionSideLong {
		return SideBuy
	}
	return SideSell
}

// CloseSide returns the order side that reduces a position on this side.
func (ps PositionSide) CloseSide() Side {
	if ps == PositionSideLong {
		return SideSell
	}
	return SideBuy
}

// SymbolFilter holds the venue precision constraints for one instrument.
// QuantityStep and PriceTick are decimal-place exponents derived from the
// LOT_SIZE stepSize and PRICE_FILTER tickSize. Known is false when the
// filter fetch failed and callers must fall back to conservative precision.
type SymbolFilter struct {
	Symbol       string
	QuantityStep int32
	PriceTick    int32
	Known        bool
}

// OrderRequest describes a single order to submit. Quantity and prices are
// exact decimals end to end; they cross the venue boundary as decimal text.
type OrderRequest struct {
	Symbol        string
	Side          Side
	PositionSide  PositionSide
	Quantity      decimal.Decimal
	StopPrice     decimal.Decimal // take-profit trigger, zero when unused
	ReduceOnly    bool
	ClientOrderID string
}

// EntryRequest describes one position to open: the instrument, direction,
// quote-asset notional to commit, and an optional absolute take-profit
// trigger price. A zero TakeProfitPrice attaches no take-profit order.
type EntryRequest struct {
	Symbol          string
	PositionSide    PositionSide
	Notional        decimal.Decimal
	TakeProfitPrice decimal.Decimal
}

// Position is a read-only snapshot of one open exposure, rebuilt on every
// poll and never mutated in place. Err is set for degraded entries whose
// per-symbol data could not be fetched; such entries carry no PNL.
type Position struct {
	Symbol        string
	PositionSide  PositionSide
	Amount        decimal.Decimal // signed
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	Leverage      decimal.Decimal
	UnrealizedPnl decimal.Decimal
	PnlPercent    decimal.Decimal
	Err           error
}

// Key returns the map key identifying this position (instrument + side).
func (p Position) Key() string {
	return fmt.Sprintf("%s_%s", p.Symbol, p.PositionSide)
}

// PnlSnapshot is a complete replacement view of all open positions.
// TotalPnl sums only positions without Err.
type PnlSnapshot struct {
	Summary   string
	Positions map[string]Position
	TotalPnl  decimal.Decimal
	Timestamp time.Time
}

// HasOpenPositions reports whether the snapshot contains any entry at all,
// degraded entries included.
func (s PnlSnapshot) HasOpenPositions() bool {
	return len(s.Positions) > 0
}

// OrderOutcome is the per-order result surfaced to the operator.
type OrderOutcome struct {
	Symbol  string
	OrderID int64
	Err     error
}

func (o OrderOutcome) Ok() bool { return o.Err == nil }

// EntryResult reports an entry order and its optional attached take-profit.
// The take-profit outcome is independent: a failed take-profit never
// invalidates an already filled entry.
type EntryResult struct {
	Symbol     string
	Entry      OrderOutcome
	TakeProfit *OrderOutcome
}

// CloseOutcome is one line of a mass-close report.
type CloseOutcome struct {
	Symbol       string
	PositionSide PositionSide
	OrderID      int64
	Err          error
}

// CloseReport is the complete per-position outcome of one mass-close
// invocation, successes and failures both, in submission order.
type CloseReport struct {
	Entries            []CloseOutcome
	TriggeredByMonitor bool
}

// Failed counts the entries that did not close.
func (r CloseReport) Failed() int {
	n := 0
	for _, e := range r.Entries {
		if e.Err != nil {
			n++
		}
	}
	return n
}

// MonitorState is the lifecycle state of the target-profit monitor.
type MonitorState int32

const (
	MonitorInactive MonitorState = iota
	MonitorActive
)

func (s MonitorState) String() string {
	if s == MonitorActive {
		return "ACTIVE"
	}
	return "INACTIVE"
}

// StopReason records why a monitor activation ended.
type StopReason string

const (
	StopReasonDeactivated   StopReason = "deactivated"
	StopReasonTargetReached StopReason = "target reached"
	StopReasonNoPositions   StopReason = "no positions"
	StopReasonDisconnected  StopReason = "disconnected"
	StopReasonErrors        StopReason = "repeated errors"
)
