// Package alert delivers operator notifications over pluggable channels
package alert

import (
	"context"
	"sync"
	"time"

	"auto_trader/internal/core"
	"auto_trader/pkg/concurrency"
)

type AlertLevel string

const (
	Info     AlertLevel = "INFO"
	Warning  AlertLevel = "WARNING"
	Error    AlertLevel = "ERROR"
	Critical AlertLevel = "CRITICAL"
)

type AlertPayload struct {
	Level     AlertLevel
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// AlertChannel is a single delivery target (telegram, slack, console)
type AlertChannel interface {
	Send(ctx context.Context, alert AlertPayload) error
	Name() string
}

// Manager fans alerts out to every registered channel. Delivery is
// asynchronous so the trading path never blocks on a slow channel.
// Manager implements core.INotifier.
type Manager struct {
	channels []AlertChannel
	pool     *concurrency.WorkerPool
	logger   core.ILogger
	mu       sync.RWMutex
}

func NewManager(pool *concurrency.WorkerPool, logger core.ILogger) *Manager {
	return &Manager{
		channels: make([]AlertChannel, 0),
		pool:     pool,
		logger:   logger.WithField("component", "alert_manager"),
	}
}

func (m *Manager) AddChannel(ch AlertChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("Added alert channel", "name", ch.Name())
}

// Notify sends an informational alert. It satisfies core.INotifier and
// never propagates channel failures to the caller.
func (m *Manager) Notify(ctx context.Context, title, message string) error {
	m.Alert(ctx, title, message, Info, nil)
	return nil
}

func (m *Manager) Alert(ctx context.Context, title, message string, level AlertLevel, fields map[string]string) {
	payload := AlertPayload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	m.logger.Info("Triggering alert", "title", title, "level", level)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.channels {
		c := ch
		err := m.pool.Submit(func() {
			// Alerts are advisory; bound each channel independently
			timeoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()

			if err := c.Send(timeoutCtx, payload); err != nil {
				m.logger.Error("Failed to send alert", "channel", c.Name(), "error", err)
			}
		})
		if err != nil {
			m.logger.Error("Alert dispatch rejected", "channel", c.Name(), "error", err)
		}
	}
}
