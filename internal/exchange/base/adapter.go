// Package base provides common functionality for exchange adapters
package base

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"auto_trader/internal/config"
	"auto_trader/internal/core"
	pkghttp "auto_trader/pkg/http"
	"auto_trader/pkg/websocket"

	"github.com/shopspring/decimal"
)

// SignRequestFunc is a function type for venue-specific request signing
type SignRequestFunc func(req *http.Request) error

// ParseErrorFunc is a function type for venue-specific error parsing
type ParseErrorFunc func(statusCode int, body []byte) error

// Adapter provides common functionality for exchange adapters. REST calls
// go through the resilient HTTP client, so transient venue failures are
// retried before they surface to the trading path.
type Adapter struct {
	Name   string
	Config *config.ExchangeConfig
	Logger core.ILogger
	HTTP   *pkghttp.Client

	// Venue-specific hooks set by concrete implementations
	SignRequestFunc SignRequestFunc
	ParseError      ParseErrorFunc
}

// NewAdapter creates a new base adapter with common configuration
func NewAdapter(name string, cfg *config.ExchangeConfig, timeout time.Duration, logger core.ILogger) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b := &Adapter{
		Name:   name,
		Config: cfg,
		Logger: logger.WithField("exchange", name),
	}
	b.HTTP = pkghttp.NewClient("", timeout, adapterSigner{b})
	return b
}

// adapterSigner defers signing to the hook so concrete adapters can install
// it after construction
type adapterSigner struct {
	b *Adapter
}

func (s adapterSigner) SignRequest(req *http.Request) error {
	if s.b.SignRequestFunc == nil {
		return nil
	}
	return s.b.SignRequestFunc(req)
}

// GetName returns the exchange name
func (b *Adapter) GetName() string {
	return b.Name
}

// SetSignRequest sets the venue-specific request signing function
func (b *Adapter) SetSignRequest(fn SignRequestFunc) {
	b.SignRequestFunc = fn
}

// SetParseError sets the venue-specific error parsing function
func (b *Adapter) SetParseError(fn ParseErrorFunc) {
	b.ParseError = fn
}

// ExecuteRequest executes an HTTP request with signing, resilience, and
// venue error mapping
func (b *Adapter) ExecuteRequest(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	respBody, err := b.HTTP.ExecuteURL(ctx, method, url, body)
	if err == nil {
		return respBody, nil
	}

	var apiErr *pkghttp.APIError
	if errors.As(err, &apiErr) {
		if b.ParseError != nil {
			if parseErr := b.ParseError(apiErr.StatusCode, apiErr.Body); parseErr != nil {
				return nil, parseErr
			}
		}
		return nil, fmt.Errorf("HTTP %d: %s", apiErr.StatusCode, string(apiErr.Body))
	}
	return nil, err
}

// StartWebSocketStream starts a WebSocket stream with common lifecycle management
func (b *Adapter) StartWebSocketStream(
	ctx context.Context,
	wsURL string,
	onMessage func([]byte),
	onConnected func(),
	streamName string,
) *websocket.Client {
	client := websocket.NewClient(wsURL, onMessage, b.Logger)

	if onConnected != nil {
		client.SetOnConnected(onConnected)
	}

	client.Start()

	go func() {
		<-ctx.Done()
		b.Logger.Info(streamName + " WebSocket stopping")
		client.Stop()
	}()

	b.Logger.Info(streamName + " WebSocket started")
	return client
}

// ParseDecimal safely parses a string to decimal
func (b *Adapter) ParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		b.Logger.Warn("failed to parse decimal", "value", s, "error", err)
		return decimal.Zero
	}
	return d
}

// ParseTimestamp safely parses a timestamp in milliseconds
func (b *Adapter) ParseTimestamp(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
