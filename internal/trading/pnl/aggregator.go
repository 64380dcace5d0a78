// Package pnl aggregates unrealized profit and loss across open positions
package pnl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"auto_trader/internal/core"
	"auto_trader/pkg/telemetry"
)

var hundred = decimal.NewFromInt(100)

// Aggregator implements core.IPnlAggregator. Every snapshot is rebuilt from
// a fresh venue poll; nothing is carried over between polls.
type Aggregator struct {
	exchange core.IExchange
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder
}

// NewAggregator creates a PNL aggregator
func NewAggregator(exchange core.IExchange, logger core.ILogger) *Aggregator {
	return &Aggregator{
		exchange: exchange,
		logger:   logger.WithField("component", "pnl_aggregator"),
		metrics:  telemetry.GetGlobalMetrics(),
	}
}

// Snapshot polls open positions and returns a complete replacement view.
// The total sums only positions without errors.
func (a *Aggregator) Snapshot(ctx context.Context) (core.PnlSnapshot, error) {
	positions, err := a.exchange.GetPositions(ctx)
	if err != nil {
		return core.PnlSnapshot{}, fmt.Errorf("failed to poll positions: %w", err)
	}

	snapshot := core.PnlSnapshot{
		Positions: make(map[string]core.Position, len(positions)),
		TotalPnl:  decimal.Zero,
		Timestamp: time.Now(),
	}

	gauges := make(map[string]float64, len(positions))
	for _, p := range positions {
		p.PnlPercent = PnlPercent(p)
		snapshot.Positions[p.Key()] = p
		if p.Err == nil {
			snapshot.TotalPnl = snapshot.TotalPnl.Add(p.UnrealizedPnl)
			gauges[p.Key()], _ = p.UnrealizedPnl.Float64()
		}
	}

	snapshot.Summary = FormatSummary(snapshot)

	total, _ := snapshot.TotalPnl.Float64()
	a.metrics.SetPnlSnapshot(gauges, total)

	return snapshot, nil
}

// PnlPercent is pnl relative to the position's own margin:
// pnl / (|amount| * markPrice / leverage) * 100. Zero margin yields zero.
func PnlPercent(p core.Position) decimal.Decimal {
	if p.Err != nil || p.Leverage.IsZero() {
		return decimal.Zero
	}
	margin := p.Amount.Abs().Mul(p.MarkPrice).Div(p.Leverage)
	if margin.IsZero() {
		return decimal.Zero
	}
	return p.UnrealizedPnl.Div(margin).Mul(hundred)
}

// FormatSummary renders a snapshot as the operator-facing position table.
func FormatSummary(s core.PnlSnapshot) string {
	if len(s.Positions) == 0 {
		return "no open positions"
	}

	keys := make([]string, 0, len(s.Positions))
	for k := range s.Positions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		p := s.Positions[k]
		if p.Err != nil {
			fmt.Fprintf(&b, "%-14s %-5s  data unavailable: %v\n", p.Symbol, p.PositionSide, p.Err)
			continue
		}
		fmt.Fprintf(&b, "%-14s %-5s  amt=%s entry=%s mark=%s pnl=%s (%s%%)\n",
			p.Symbol, p.PositionSide,
			p.Amount.String(), p.EntryPrice.String(), p.MarkPrice.String(),
			p.UnrealizedPnl.StringFixed(4), p.PnlPercent.StringFixed(2))
	}
	fmt.Fprintf(&b, "total unrealized pnl: %s", s.TotalPnl.StringFixed(4))
	return b.String()
}
