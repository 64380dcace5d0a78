package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricPnlUnrealized       = "auto_trader_pnl_unrealized"
	MetricPnlUnrealizedTotal  = "auto_trader_pnl_unrealized_total"
	MetricPositionsOpen       = "auto_trader_positions_open"
	MetricOrdersPlacedTotal   = "auto_trader_orders_placed_total"
	MetricOrdersFailedTotal   = "auto_trader_orders_failed_total"
	MetricClosesTotal         = "auto_trader_closes_total"
	MetricMonitorActive       = "auto_trader_monitor_active"
	MetricMonitorTriggerTotal = "auto_trader_monitor_triggers_total"
	MetricLatencyExchange     = "auto_trader_latency_exchange_ms"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	OrdersPlacedTotal   metric.Int64Counter
	OrdersFailedTotal   metric.Int64Counter
	ClosesTotal         metric.Int64Counter
	MonitorTriggerTotal metric.Int64Counter
	LatencyExchange     metric.Float64Histogram
	PnlUnrealized       metric.Float64ObservableGauge
	PnlUnrealizedTotal  metric.Float64ObservableGauge
	PositionsOpen       metric.Int64ObservableGauge
	MonitorActive       metric.Int64ObservableGauge

	// State for observable gauges
	mu               sync.RWMutex
	unrealizedPnlMap map[string]float64
	totalUnrealized  float64
	openPositions    int64
	monitorActive    int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			unrealizedPnlMap: make(map[string]float64),
		}
		// Instruments are created in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders submitted to the venue"))
	if err != nil {
		return err
	}

	m.OrdersFailedTotal, err = meter.Int64Counter(MetricOrdersFailedTotal, metric.WithDescription("Total order submissions rejected or errored"))
	if err != nil {
		return err
	}

	m.ClosesTotal, err = meter.Int64Counter(MetricClosesTotal, metric.WithDescription("Total mass-close invocations"))
	if err != nil {
		return err
	}

	m.MonitorTriggerTotal, err = meter.Int64Counter(MetricMonitorTriggerTotal, metric.WithDescription("Total target-profit monitor triggers"))
	if err != nil {
		return err
	}

	m.LatencyExchange, err = meter.Float64Histogram(MetricLatencyExchange, metric.WithDescription("Latency of venue API calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.PnlUnrealized, err = meter.Float64ObservableGauge(MetricPnlUnrealized, metric.WithDescription("Unrealized PNL per position"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for key, val := range m.unrealizedPnlMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("position", key)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PnlUnrealizedTotal, err = meter.Float64ObservableGauge(MetricPnlUnrealizedTotal, metric.WithDescription("Aggregate unrealized PNL across open positions"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.totalUnrealized)
			return nil
		}))
	if err != nil {
		return err
	}

	m.PositionsOpen, err = meter.Int64ObservableGauge(MetricPositionsOpen, metric.WithDescription("Number of currently open positions"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.openPositions)
			return nil
		}))
	if err != nil {
		return err
	}

	m.MonitorActive, err = meter.Int64ObservableGauge(MetricMonitorActive, metric.WithDescription("Target-profit monitor state (1=active, 0=inactive)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.monitorActive)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

// SetPnlSnapshot replaces the per-position and aggregate PNL gauge state.
func (m *MetricsHolder) SetPnlSnapshot(perPosition map[string]float64, total float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrealizedPnlMap = perPosition
	m.totalUnrealized = total
	m.openPositions = int64(len(perPosition))
}

func (m *MetricsHolder) SetMonitorActive(active bool) {
	val := int64(0)
	if active {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitorActive = val
}

func (m *MetricsHolder) GetUnrealizedPnl() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64, len(m.unrealizedPnlMap))
	for k, v := range m.unrealizedPnlMap {
		res[k] = v
	}
	return res
}
