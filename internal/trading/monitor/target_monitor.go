// Package monitor polls aggregate PNL and triggers the mass close on target
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"auto_trader/internal/core"
	apperrors "auto_trader/pkg/errors"
	"auto_trader/pkg/telemetry"
)

// TargetMonitor implements core.ITargetMonitor. At most one polling loop
// runs at a time; the mass close fires synchronously inside that loop, so a
// target can trigger it at most once per activation.
type TargetMonitor struct {
	aggregator core.IPnlAggregator
	closer     core.ICloseOrchestrator
	notifier   core.INotifier
	logger     core.ILogger

	interval  time.Duration
	maxErrors int

	state  atomic.Int32
	mu     sync.Mutex // guards cancel/target/wg against concurrent Activate/Deactivate
	cancel context.CancelFunc
	target decimal.Decimal
	wg     sync.WaitGroup

	// OnStop is invoked with the reason each time an activation ends.
	OnStop func(reason core.StopReason)
}

// NewTargetMonitor creates an inactive target monitor. The notifier may be nil.
// maxErrors bounds consecutive failed polls before the monitor gives up.
func NewTargetMonitor(aggregator core.IPnlAggregator, closer core.ICloseOrchestrator, notifier core.INotifier, interval time.Duration, maxErrors int, logger core.ILogger) *TargetMonitor {
	if maxErrors < 1 {
		maxErrors = 5
	}
	return &TargetMonitor{
		aggregator: aggregator,
		closer:     closer,
		notifier:   notifier,
		logger:     logger.WithField("component", "target_monitor"),
		interval:   interval,
		maxErrors:  maxErrors,
	}
}

// Activate starts the polling loop. It fails when the target is not positive;
// activating an already active monitor is a logged no-op. Whether positions
// remain open is the first poll cycle's decision, not a precondition here.
func (m *TargetMonitor) Activate(ctx context.Context, target decimal.Decimal) error {
	if !target.IsPositive() {
		return apperrors.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.CompareAndSwap(int32(core.MonitorInactive), int32(core.MonitorActive)) {
		m.logger.Info("target monitor already active, ignoring activation", "target", m.target)
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.target = target
	telemetry.GetGlobalMetrics().SetMonitorActive(true)

	m.logger.Info("target monitor activated", "target", target, "interval", m.interval)

	m.wg.Add(1)
	go m.run(loopCtx, target)
	return nil
}

// Deactivate stops the polling loop and waits for it to exit. Idempotent.
func (m *TargetMonitor) Deactivate() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// State returns the current monitor state
func (m *TargetMonitor) State() core.MonitorState {
	return core.MonitorState(m.state.Load())
}

// Target returns the target of the current or last activation
func (m *TargetMonitor) Target() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

func (m *TargetMonitor) run(ctx context.Context, target decimal.Decimal) {
	defer m.wg.Done()

	reason := core.StopReasonDeactivated
	defer func() {
		m.state.Store(int32(core.MonitorInactive))
		telemetry.GetGlobalMetrics().SetMonitorActive(false)
		m.logger.Info("target monitor stopped", "reason", reason)
		if m.OnStop != nil {
			m.OnStop(reason)
		}
	}()

	consecutiveErrors := 0
	for {
		snap, err := m.aggregator.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			m.logger.Warn("pnl poll failed", "consecutive_errors", consecutiveErrors, "error", err)
			if apperrors.IsConnection(err) {
				reason = core.StopReasonDisconnected
				return
			}
			if consecutiveErrors >= m.maxErrors {
				reason = core.StopReasonErrors
				m.logger.Error("too many consecutive poll failures, giving up", "consecutive_errors", consecutiveErrors)
				return
			}
			// Doubled sleep after a failed poll
			if !m.sleep(ctx, 2*m.interval) {
				return
			}
			continue
		}
		consecutiveErrors = 0

		if !snap.HasOpenPositions() {
			reason = core.StopReasonNoPositions
			return
		}

		m.logger.Debug("pnl polled", "total_pnl", snap.TotalPnl, "target", target, "positions", len(snap.Positions))

		if snap.TotalPnl.GreaterThanOrEqual(target) {
			reason = core.StopReasonTargetReached
			m.logger.Info("target reached", "total_pnl", snap.TotalPnl, "target", target)
			m.notifyTarget(ctx, snap.TotalPnl, target)

			// Close synchronously inside the loop so the trigger fires once
			report := m.closer.CloseAll(ctx, true)
			if failed := report.Failed(); failed > 0 {
				m.logger.Error("mass close left positions open", "failed", failed)
			}
			return
		}

		if !m.sleep(ctx, m.interval) {
			return
		}
	}
}

func (m *TargetMonitor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (m *TargetMonitor) notifyTarget(ctx context.Context, total, target decimal.Decimal) {
	if m.notifier == nil {
		return
	}
	msg := "aggregate pnl " + total.StringFixed(4) + " reached target " + target.StringFixed(4)
	if err := m.notifier.Notify(ctx, "Profit target reached", msg); err != nil {
		m.logger.Warn("target notification failed", "error", err)
	}
}
