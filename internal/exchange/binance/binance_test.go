package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auto_trader/internal/config"
	"auto_trader/internal/core"
	apperrors "auto_trader/pkg/errors"
	"auto_trader/pkg/logging"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExchange(t *testing.T, serverURL string) *BinanceExchange {
	t.Helper()
	cfg := &config.ExchangeConfig{
		APIKey:    "test-key",
		SecretKey: "test-secret",
		BaseURL:   serverURL,
	}
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return NewBinanceExchange(cfg, false, 5*time.Second, logger, nil)
}

func TestStepPrecision(t *testing.T) {
	tests := []struct {
		in     string
		want   int32
		wantOk bool
	}{
		{"0.001", 3, true},
		{"0.00100000", 3, true},
		{"1", 0, true},
		{"1.00000000", 0, true},
		{"0.1", 1, true},
		{"0", 0, false},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		got, ok := stepPrecision(tt.in)
		assert.Equal(t, tt.wantOk, ok, "stepPrecision(%q) ok", tt.in)
		assert.Equal(t, tt.want, got, "stepPrecision(%q)", tt.in)
	}
}

func TestGetPositions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v2/positionRisk", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		assert.NotEmpty(t, r.URL.Query().Get("timestamp"))

		resp := `[
			{"symbol":"BTCUSDC","positionAmt":"0.100","entryPrice":"50000","markPrice":"50100","unRealizedProfit":"10.0","leverage":"20","positionSide":"LONG"},
			{"symbol":"ETHUSDC","positionAmt":"0","entryPrice":"0","markPrice":"3000","unRealizedProfit":"0","leverage":"20","positionSide":"LONG"},
			{"symbol":"SOLUSDC","positionAmt":"-5","entryPrice":"150","markPrice":"149","unRealizedProfit":"5.0","leverage":"10","positionSide":"SHORT"}
		]`
		w.Write([]byte(resp))
	}))
	defer server.Close()

	e := newTestExchange(t, server.URL)
	positions, err := e.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2, "flat positions must be filtered out")

	assert.Equal(t, "BTCUSDC", positions[0].Symbol)
	assert.Equal(t, core.PositionSideLong, positions[0].PositionSide)
	assert.True(t, positions[0].UnrealizedPnl.Equal(decimal.NewFromInt(10)))
	assert.True(t, positions[0].Leverage.Equal(decimal.NewFromInt(20)))

	assert.Equal(t, "SOLUSDC", positions[1].Symbol)
	assert.Equal(t, core.PositionSideShort, positions[1].PositionSide)
	assert.True(t, positions[1].Amount.Equal(decimal.NewFromInt(-5)))
}

func TestListSymbols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/exchangeInfo", r.URL.Path)
		resp := `{"symbols":[
			{"symbol":"ZENUSDC","quoteAsset":"USDC","contractType":"PERPETUAL","status":"TRADING","filters":[{"filterType":"LOT_SIZE","stepSize":"0.1"},{"filterType":"PRICE_FILTER","tickSize":"0.001"}]},
			{"symbol":"BTCUSDC","quoteAsset":"USDC","contractType":"PERPETUAL","status":"TRADING","filters":[{"filterType":"LOT_SIZE","stepSize":"0.001"},{"filterType":"PRICE_FILTER","tickSize":"0.1"}]},
			{"symbol":"BTCUSDT","quoteAsset":"USDT","contractType":"PERPETUAL","status":"TRADING","filters":[]},
			{"symbol":"OLDUSDC","quoteAsset":"USDC","contractType":"PERPETUAL","status":"SETTLING","filters":[]},
			{"symbol":"BTCUSDC_240927","quoteAsset":"USDC","contractType":"CURRENT_QUARTER","status":"TRADING","filters":[]}
		]}`
		w.Write([]byte(resp))
	}))
	defer server.Close()

	e := newTestExchange(t, server.URL)
	symbols, err := e.ListSymbols(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDC", "ZENUSDC"}, symbols, "only trading perpetuals in the quote asset, sorted")

	// Filters are cached during listing, no second request needed
	filter, err := e.GetSymbolFilter(context.Background(), "BTCUSDC")
	require.NoError(t, err)
	assert.True(t, filter.Known)
	assert.Equal(t, int32(3), filter.QuantityStep)
	assert.Equal(t, int32(1), filter.PriceTick)
}

func TestGetSymbolFilter_UnknownSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[]}`))
	}))
	defer server.Close()

	e := newTestExchange(t, server.URL)
	_, err := e.GetSymbolFilter(context.Background(), "NOPEUSDC")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSymbol)
}

func TestSubmitMarketOrder(t *testing.T) {
	var gotParams map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/order", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		gotParams = map[string]string{}
		for k, v := range r.URL.Query() {
			gotParams[k] = v[0]
		}
		w.Write([]byte(`{"orderId":12345}`))
	}))
	defer server.Close()

	e := newTestExchange(t, server.URL)
	orderID, err := e.SubmitMarketOrder(context.Background(), core.OrderRequest{
		Symbol:        "BTCUSDC",
		Side:          core.SideBuy,
		PositionSide:  core.PositionSideLong,
		Quantity:      decimal.RequireFromString("0.016"),
		ClientOrderID: "entry-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12345), orderID)

	assert.Equal(t, "MARKET", gotParams["type"])
	assert.Equal(t, "BUY", gotParams["side"])
	assert.Equal(t, "LONG", gotParams["positionSide"])
	assert.Equal(t, "0.016", gotParams["quantity"])
	assert.Equal(t, "entry-1", gotParams["newClientOrderId"])
	assert.Empty(t, gotParams["reduceOnly"])
}

func TestSubmitTakeProfitOrder(t *testing.T) {
	var gotParams map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotParams = map[string]string{}
		for k, v := range r.URL.Query() {
			gotParams[k] = v[0]
		}
		w.Write([]byte(`{"orderId":777}`))
	}))
	defer server.Close()

	e := newTestExchange(t, server.URL)
	orderID, err := e.SubmitTakeProfitOrder(context.Background(), core.OrderRequest{
		Symbol:       "BTCUSDC",
		Side:         core.SideSell,
		PositionSide: core.PositionSideLong,
		Quantity:     decimal.RequireFromString("0.016"),
		StopPrice:    decimal.RequireFromString("51000.5"),
		ReduceOnly:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(777), orderID)

	assert.Equal(t, "TAKE_PROFIT_MARKET", gotParams["type"])
	assert.Equal(t, "SELL", gotParams["side"])
	assert.Equal(t, "51000.5", gotParams["stopPrice"])
	assert.Equal(t, "true", gotParams["reduceOnly"])
	assert.Equal(t, "GTC", gotParams["timeInForce"])
}

func TestSetLeverage_NotModifiedTolerated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-4046,"msg":"No need to change margin type."}`))
	}))
	defer server.Close()

	e := newTestExchange(t, server.URL)
	err := e.SetLeverage(context.Background(), "BTCUSDC", 20)
	assert.NoError(t, err)
}

func TestParseError_CodeMapping(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{-2015, apperrors.ErrAuthenticationFailed},
		{-2010, apperrors.ErrInsufficientFunds},
		{-1003, apperrors.ErrRateLimitExceeded},
		{-1021, apperrors.ErrTimestampOutOfBounds},
		{-1121, apperrors.ErrInvalidSymbol},
		{-2012, apperrors.ErrDuplicateOrder},
		{-2022, apperrors.ErrReduceOnlyRejected},
	}
	e := newTestExchange(t, "http://unused")
	for _, tt := range tests {
		body, _ := json.Marshal(map[string]interface{}{"code": tt.code, "msg": "boom"})
		err := e.parseError(http.StatusBadRequest, body)
		assert.True(t, errors.Is(err, tt.want), "code %d should map to %v, got %v", tt.code, tt.want, err)
	}
}

func TestCheckPositionMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/positionSide/dual", r.URL.Path)
		w.Write([]byte(`{"dualSidePosition":true}`))
	}))
	defer server.Close()

	e := newTestExchange(t, server.URL)
	dual, err := e.CheckPositionMode(context.Background())
	require.NoError(t, err)
	assert.True(t, dual)
}

func TestStartMarkPriceStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		msg := `{"e":"markPriceUpdate","s":"BTCUSDC","p":"50123.45"}`
		_ = c.WriteMessage(websocket.TextMessage, []byte(msg))

		time.Sleep(1 * time.Second)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	cfg := &config.ExchangeConfig{
		APIKey:    "test",
		SecretKey: "test",
		WSBaseURL: wsURL,
	}
	logger, _ := logging.NewZapLogger("ERROR")
	e := NewBinanceExchange(cfg, false, 5*time.Second, logger, nil)

	priceChan := make(chan decimal.Decimal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := e.StartMarkPriceStream(ctx, []string{"BTCUSDC"}, func(symbol string, mark decimal.Decimal) {
		if symbol == "BTCUSDC" {
			priceChan <- mark
		}
	})
	require.NoError(t, err)
	defer e.StopMarkPriceStream()

	select {
	case mark := <-priceChan:
		assert.True(t, mark.Equal(decimal.RequireFromString("50123.45")))
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for mark price update")
	}
}
