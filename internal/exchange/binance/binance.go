// Package binance provides Binance USD(S)-margined futures connectivity
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"auto_trader/internal/config"
	"auto_trader/internal/core"
	"auto_trader/internal/exchange/base"
	"auto_trader/pkg/concurrency"
	apperrors "auto_trader/pkg/errors"
	pkgws "auto_trader/pkg/websocket"

	"github.com/shopspring/decimal"
)

const (
	defaultFuturesURL = "https://fapi.binance.com"
	testnetFuturesURL = "https://testnet.binancefuture.com"
	defaultFuturesWS  = "wss://fstream.binance.com/ws"
	testnetFuturesWS  = "wss://stream.binancefuture.com/ws"
)

// BinanceExchange implements core.IExchange for Binance USD(S)-M futures
type BinanceExchange struct {
	*base.Adapter

	mu      sync.RWMutex
	filters map[string]core.SymbolFilter

	pool         *concurrency.WorkerPool
	streamMu     sync.Mutex
	streamClient *pkgws.Client
	streamCancel context.CancelFunc

	testnet bool
}

// NewBinanceExchange creates a new Binance futures adapter
func NewBinanceExchange(cfg *config.ExchangeConfig, testnet bool, timeout time.Duration, logger core.ILogger, pool *concurrency.WorkerPool) *BinanceExchange {
	b := base.NewAdapter("binance", cfg, timeout, logger)
	e := &BinanceExchange{
		Adapter: b,
		filters: make(map[string]core.SymbolFilter),
		pool:    pool,
		testnet: testnet,
	}

	b.SetSignRequest(e.signRequest)
	b.SetParseError(e.parseError)

	return e
}

func (e *BinanceExchange) baseURL() string {
	if e.Config.BaseURL != "" {
		return e.Config.BaseURL
	}
	if e.testnet {
		return testnetFuturesURL
	}
	return defaultFuturesURL
}

func (e *BinanceExchange) wsURL() string {
	if e.Config.WSBaseURL != "" {
		return e.Config.WSBaseURL
	}
	if e.testnet {
		return testnetFuturesWS
	}
	return defaultFuturesWS
}

// signRequest adds the API key header, timestamp, and HMAC-SHA256 signature
func (e *BinanceExchange) signRequest(req *http.Request) error {
	req.Header.Set("X-MBX-APIKEY", string(e.Config.APIKey))

	q := req.URL.Query()
	if q.Get("timestamp") == "" {
		q.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	}

	queryString := q.Encode()
	mac := hmac.New(sha256.New, []byte(string(e.Config.SecretKey)))
	mac.Write([]byte(queryString))
	signature := hex.EncodeToString(mac.Sum(nil))

	req.URL.RawQuery = queryString + "&signature=" + signature

	return nil
}

func (e *BinanceExchange) parseError(statusCode int, body []byte) error {
	var errResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("binance error (unmarshal failed, HTTP %d): %s", statusCode, string(body))
	}

	// Map Binance error codes to standard errors
	switch errResp.Code {
	case -2015:
		return apperrors.ErrAuthenticationFailed
	case -2010:
		return fmt.Errorf("%w: %s", apperrors.ErrInsufficientFunds, errResp.Msg)
	case -1003:
		return apperrors.ErrRateLimitExceeded
	case -1021:
		return apperrors.ErrTimestampOutOfBounds
	case -1121:
		return apperrors.ErrInvalidSymbol
	case -2012:
		return apperrors.ErrDuplicateOrder
	case -2022:
		return apperrors.ErrReduceOnlyRejected
	}

	return fmt.Errorf("binance error %d: %s", errResp.Code, errResp.Msg)
}

// buildQuery encodes params without the signature; signing happens in the
// adapter hook at request time.
func buildQuery(params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return q.Encode()
}

// Ping verifies REST connectivity
func (e *BinanceExchange) Ping(ctx context.Context) error {
	_, err := e.ExecuteRequest(ctx, http.MethodGet, e.baseURL()+"/fapi/v1/ping", nil)
	return err
}

// CheckPositionMode reports whether the account is in hedge (dual-side) mode
func (e *BinanceExchange) CheckPositionMode(ctx context.Context) (bool, error) {
	url := e.baseURL() + "/fapi/v1/positionSide/dual?" + buildQuery(nil)
	body, err := e.ExecuteRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	var res struct {
		DualSidePosition bool `json:"dualSidePosition"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return false, fmt.Errorf("failed to parse position mode: %w", err)
	}
	return res.DualSidePosition, nil
}

type exchangeInfoSymbol struct {
	Symbol       string `json:"symbol"`
	QuoteAsset   string `json:"quoteAsset"`
	ContractType string `json:"contractType"`
	Status       string `json:"status"`
	Filters      []struct {
		FilterType string `json:"filterType"`
		TickSize   string `json:"tickSize"`
		StepSize   string `json:"stepSize"`
	} `json:"filters"`
}

func (e *BinanceExchange) fetchExchangeInfo(ctx context.Context, symbol string) ([]exchangeInfoSymbol, error) {
	url := e.baseURL() + "/fapi/v1/exchangeInfo"
	if symbol != "" {
		url += "?symbol=" + symbol
	}
	body, err := e.ExecuteRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var res struct {
		Symbols []exchangeInfoSymbol `json:"symbols"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse exchange info: %w", err)
	}
	return res.Symbols, nil
}

// stepPrecision derives the decimal-place count of a step or tick size string.
// Trailing zeros in the venue format do not count ("0.00100000" is 3 places).
func stepPrecision(s string) (int32, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsZero() {
		return 0, false
	}
	trimmed := strings.TrimRight(s, "0")
	if idx := strings.Index(trimmed, "."); idx >= 0 {
		return int32(len(trimmed) - idx - 1), true
	}
	return 0, true
}

func (e *BinanceExchange) cacheFilter(s exchangeInfoSymbol) core.SymbolFilter {
	filter := core.SymbolFilter{Symbol: s.Symbol}
	var haveStep, haveTick bool
	for _, f := range s.Filters {
		if f.FilterType == "LOT_SIZE" {
			filter.QuantityStep, haveStep = stepPrecision(f.StepSize)
		}
		if f.FilterType == "PRICE_FILTER" {
			filter.PriceTick, haveTick = stepPrecision(f.TickSize)
		}
	}
	filter.Known = haveStep && haveTick

	e.mu.Lock()
	e.filters[s.Symbol] = filter
	e.mu.Unlock()
	return filter
}

// ListSymbols returns tradable perpetual symbols quoted in the given asset,
// sorted alphabetically
func (e *BinanceExchange) ListSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	symbols, err := e.fetchExchangeInfo(ctx, "")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, s := range symbols {
		if s.QuoteAsset != quoteAsset || s.ContractType != "PERPETUAL" || s.Status != "TRADING" {
			continue
		}
		e.cacheFilter(s)
		out = append(out, s.Symbol)
	}
	sort.Strings(out)
	return out, nil
}

// GetSymbolFilter returns cached precision constraints, fetching on miss
func (e *BinanceExchange) GetSymbolFilter(ctx context.Context, symbol string) (core.SymbolFilter, error) {
	e.mu.RLock()
	filter, ok := e.filters[symbol]
	e.mu.RUnlock()
	if ok {
		return filter, nil
	}

	symbols, err := e.fetchExchangeInfo(ctx, symbol)
	if err != nil {
		return core.SymbolFilter{Symbol: symbol}, err
	}
	for _, s := range symbols {
		if s.Symbol == symbol {
			return e.cacheFilter(s), nil
		}
	}
	return core.SymbolFilter{Symbol: symbol}, apperrors.ErrInvalidSymbol
}

// GetMarkPrice returns the current mark price for a symbol
func (e *BinanceExchange) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", e.baseURL(), symbol)
	body, err := e.ExecuteRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var res struct {
		MarkPrice string `json:"markPrice"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse mark price: %w", err)
	}
	return decimal.NewFromString(res.MarkPrice)
}

// GetPositions returns all open positions (non-zero position amount)
func (e *BinanceExchange) GetPositions(ctx context.Context) ([]core.Position, error) {
	url := e.baseURL() + "/fapi/v2/positionRisk"
	body, err := e.ExecuteRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		UnRealizedProfit string `json:"unRealizedProfit"`
		Leverage         string `json:"leverage"`
		PositionSide     string `json:"positionSide"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse positions: %w", err)
	}

	var positions []core.Position
	for _, p := range raw {
		amt := e.ParseDecimal(p.PositionAmt)
		if amt.IsZero() {
			continue
		}

		side := core.PositionSideLong
		if p.PositionSide == "SHORT" || (p.PositionSide == "BOTH" && amt.IsNegative()) {
			side = core.PositionSideShort
		}

		positions = append(positions, core.Position{
			Symbol:        p.Symbol,
			PositionSide:  side,
			Amount:        amt,
			EntryPrice:    e.ParseDecimal(p.EntryPrice),
			MarkPrice:     e.ParseDecimal(p.MarkPrice),
			UnrealizedPnl: e.ParseDecimal(p.UnRealizedProfit),
			Leverage:      e.ParseDecimal(p.Leverage),
		})
	}
	return positions, nil
}

// SetLeverage applies leverage for a symbol. An unchanged leverage is not an
// error.
func (e *BinanceExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	query := buildQuery(map[string]string{
		"symbol":   symbol,
		"leverage": strconv.Itoa(leverage),
	})
	url := e.baseURL() + "/fapi/v1/leverage?" + query
	_, err := e.ExecuteRequest(ctx, http.MethodPost, url, nil)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "no need to change") {
		return nil
	}
	return err
}

type orderResponse struct {
	OrderID int64 `json:"orderId"`
}

func (e *BinanceExchange) submitOrder(ctx context.Context, params map[string]string) (int64, error) {
	url := e.baseURL() + "/fapi/v1/order?" + buildQuery(params)
	body, err := e.ExecuteRequest(ctx, http.MethodPost, url, nil)
	if err != nil {
		return 0, err
	}

	var res orderResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("failed to parse order response: %w", err)
	}
	return res.OrderID, nil
}

// SubmitMarketOrder submits a MARKET order
func (e *BinanceExchange) SubmitMarketOrder(ctx context.Context, req core.OrderRequest) (int64, error) {
	params := map[string]string{
		"symbol":       req.Symbol,
		"side":         string(req.Side),
		"positionSide": string(req.PositionSide),
		"type":         "MARKET",
		"quantity":     req.Quantity.String(),
	}
	if req.ReduceOnly {
		params["reduceOnly"] = "true"
	}
	if req.ClientOrderID != "" {
		params["newClientOrderId"] = req.ClientOrderID
	}
	return e.submitOrder(ctx, params)
}

// SubmitTakeProfitOrder submits a TAKE_PROFIT_MARKET order that reduces the
// position when the stop price is touched
func (e *BinanceExchange) SubmitTakeProfitOrder(ctx context.Context, req core.OrderRequest) (int64, error) {
	params := map[string]string{
		"symbol":       req.Symbol,
		"side":         string(req.Side),
		"positionSide": string(req.PositionSide),
		"type":         "TAKE_PROFIT_MARKET",
		"quantity":     req.Quantity.String(),
		"stopPrice":    req.StopPrice.String(),
		"timeInForce":  "GTC",
	}
	if req.ReduceOnly {
		params["reduceOnly"] = "true"
	}
	if req.ClientOrderID != "" {
		params["newClientOrderId"] = req.ClientOrderID
	}
	return e.submitOrder(ctx, params)
}

// StartMarkPriceStream subscribes to mark price updates. A single symbol uses
// its own stream; multiple symbols share the all-market stream filtered
// client side.
func (e *BinanceExchange) StartMarkPriceStream(ctx context.Context, symbols []string, callback func(symbol string, markPrice decimal.Decimal)) error {
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols to stream")
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	streamURL := e.wsURL() + "/!markPrice@arr@1s"
	if len(symbols) == 1 {
		streamURL = fmt.Sprintf("%s/%s@markPrice@1s", e.wsURL(), strings.ToLower(symbols[0]))
	}

	handle := func(symbol, price string) {
		if !wanted[symbol] {
			return
		}
		mark, err := decimal.NewFromString(price)
		if err != nil {
			e.Logger.Error("failed to parse streamed mark price", "symbol", symbol, "value", price, "error", err)
			return
		}
		if e.pool != nil {
			_ = e.pool.Submit(func() { callback(symbol, mark) })
		} else {
			callback(symbol, mark)
		}
	}

	onMessage := func(message []byte) {
		// The all-market stream delivers an array, single-symbol a bare event
		if len(message) > 0 && message[0] == '[' {
			var events []struct {
				Symbol    string `json:"s"`
				MarkPrice string `json:"p"`
			}
			if err := json.Unmarshal(message, &events); err != nil {
				e.Logger.Error("failed to unmarshal mark price batch", "error", err)
				return
			}
			for _, ev := range events {
				handle(ev.Symbol, ev.MarkPrice)
			}
			return
		}

		var event struct {
			Symbol    string `json:"s"`
			MarkPrice string `json:"p"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			e.Logger.Error("failed to unmarshal mark price update", "error", err)
			return
		}
		handle(event.Symbol, event.MarkPrice)
	}

	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	if e.streamClient != nil {
		return fmt.Errorf("mark price stream already running")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	e.streamCancel = cancel
	e.streamClient = e.StartWebSocketStream(streamCtx, streamURL, onMessage, nil, "MarkPrice")
	return nil
}

// StopMarkPriceStream stops the mark price subscription if running
func (e *BinanceExchange) StopMarkPriceStream() error {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	if e.streamClient == nil {
		return nil
	}
	e.streamCancel()
	e.streamClient = nil
	e.streamCancel = nil
	return nil
}
