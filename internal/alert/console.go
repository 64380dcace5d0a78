package alert

import (
	"context"

	"auto_trader/internal/core"
)

// ConsoleChannel writes alerts to the structured log. It is always
// registered so operators see events even with no external channel
// configured.
type ConsoleChannel struct {
	logger core.ILogger
}

func NewConsoleChannel(logger core.ILogger) *ConsoleChannel {
	return &ConsoleChannel{logger: logger.WithField("component", "alert_console")}
}

func (c *ConsoleChannel) Name() string {
	return "console"
}

func (c *ConsoleChannel) Send(ctx context.Context, alert AlertPayload) error {
	fields := []interface{}{"title", alert.Title, "level", alert.Level}
	for k, v := range alert.Fields {
		fields = append(fields, k, v)
	}

	switch alert.Level {
	case Warning:
		c.logger.Warn(alert.Message, fields...)
	case Error, Critical:
		c.logger.Error(alert.Message, fields...)
	default:
		c.logger.Info(alert.Message, fields...)
	}
	return nil
}
