// Package closer flattens every open position with reduce-only market orders
package closer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"auto_trader/internal/core"
	"auto_trader/pkg/telemetry"
)

// Orchestrator implements core.ICloseOrchestrator. A close pass enumerates
// positions once and submits one reduce-only close per position through the
// executor, so closing quantities get the same step normalization as entries;
// a rejected close never stops the pass.
type Orchestrator struct {
	exchange core.IExchange
	executor core.IOrderExecutor
	logger   core.ILogger
	notifier core.INotifier
	pacing   time.Duration

	closeCounter metric.Int64Counter
}

// NewOrchestrator creates a close orchestrator. The notifier may be nil.
func NewOrchestrator(exchange core.IExchange, executor core.IOrderExecutor, notifier core.INotifier, pacing time.Duration, logger core.ILogger) *Orchestrator {
	meter := telemetry.GetMeter("close-orchestrator")
	closeCounter, _ := meter.Int64Counter("close_orders_total",
		metric.WithDescription("Total number of reduce-only close orders submitted"))

	return &Orchestrator{
		exchange:     exchange,
		executor:     executor,
		logger:       logger.WithField("component", "closer"),
		notifier:     notifier,
		pacing:       pacing,
		closeCounter: closeCounter,
	}
}

// CloseAll closes every open position. The report lists one entry per
// position in submission order; an enumeration failure yields a single
// aggregate entry.
func (o *Orchestrator) CloseAll(ctx context.Context, triggeredByMonitor bool) core.CloseReport {
	report := core.CloseReport{TriggeredByMonitor: triggeredByMonitor}

	positions, err := o.exchange.GetPositions(ctx)
	if err != nil {
		o.logger.Error("close-all aborted, could not enumerate positions", "error", err)
		report.Entries = append(report.Entries, core.CloseOutcome{Err: err})
		return report
	}

	if len(positions) == 0 {
		o.logger.Info("close-all requested with no open positions")
		return report
	}

	for i, p := range positions {
		if i > 0 && o.pacing > 0 {
			select {
			case <-ctx.Done():
				report.Entries = append(report.Entries, core.CloseOutcome{
					Symbol:       p.Symbol,
					PositionSide: p.PositionSide,
					Err:          ctx.Err(),
				})
				continue
			case <-time.After(o.pacing):
			}
		}

		outcome := o.closeOne(ctx, p)
		report.Entries = append(report.Entries, outcome)
	}

	failed := report.Failed()
	o.logger.Info("close-all finished",
		"positions", len(report.Entries),
		"failed", failed,
		"triggered_by_monitor", triggeredByMonitor)

	if o.notifier != nil {
		o.notify(ctx, report)
	}

	return report
}

func (o *Orchestrator) closeOne(ctx context.Context, p core.Position) core.CloseOutcome {
	outcome := o.executor.PlaceClosingOrder(ctx, p.Symbol, p.PositionSide, p.Amount)
	if outcome.Err != nil {
		o.logger.Error("close order failed", "symbol", p.Symbol, "side", p.PositionSide, "error", outcome.Err)
		return outcome
	}

	o.closeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", p.Symbol)))
	return outcome
}

func (o *Orchestrator) notify(ctx context.Context, report core.CloseReport) {
	title := "Positions closed"
	if report.TriggeredByMonitor {
		title = "Target reached, positions closed"
	}
	msg := "all positions closed"
	if failed := report.Failed(); failed > 0 {
		msg = "some positions failed to close, manual intervention may be needed"
	}
	if err := o.notifier.Notify(ctx, title, msg); err != nil {
		o.logger.Warn("close notification failed", "error", err)
	}
}
