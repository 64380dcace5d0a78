// Package mock provides an in-memory venue for tests and dry runs
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"auto_trader/internal/core"
	apperrors "auto_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

// MockExchange implements core.IExchange for testing
type MockExchange struct {
	name string

	mu             sync.RWMutex
	positions      map[string]core.Position
	markPrices     map[string]decimal.Decimal
	filters        map[string]core.SymbolFilter
	leverage       map[string]int
	symbols        []string
	dualSide       bool
	orderIDCounter int64

	// Submitted orders in submission order, for assertions
	Orders []core.OrderRequest

	// Failure injection
	pingErr        error
	positionsErr   error
	orderErr       map[string]error
	takeProfitErr  map[string]error
	leverageErr    map[string]error
	filterErr      map[string]error
	markPriceErr   map[string]error
	streamRunning  bool
	streamCallback func(symbol string, markPrice decimal.Decimal)
}

// NewMockExchange creates a mock venue in hedge mode with no open positions
func NewMockExchange(name string) *MockExchange {
	return &MockExchange{
		name:           name,
		positions:      make(map[string]core.Position),
		markPrices:     make(map[string]decimal.Decimal),
		filters:        make(map[string]core.SymbolFilter),
		leverage:       make(map[string]int),
		dualSide:       true,
		orderIDCounter: 1000,
		orderErr:       make(map[string]error),
		takeProfitErr:  make(map[string]error),
		leverageErr:    make(map[string]error),
		filterErr:      make(map[string]error),
		markPriceErr:   make(map[string]error),
	}
}

// Test setup helpers

func (m *MockExchange) SetPosition(p core.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Key()] = p
}

func (m *MockExchange) RemovePosition(symbol string, side core.PositionSide) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, fmt.Sprintf("%s_%s", symbol, side))
}

func (m *MockExchange) ClearPositions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = make(map[string]core.Position)
}

func (m *MockExchange) SetMarkPrice(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markPrices[symbol] = price
}

func (m *MockExchange) SetFilter(f core.SymbolFilter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters[f.Symbol] = f
}

func (m *MockExchange) SetSymbols(symbols []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols = append([]string(nil), symbols...)
}

func (m *MockExchange) SetDualSide(dual bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dualSide = dual
}

func (m *MockExchange) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

func (m *MockExchange) SetPositionsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionsErr = err
}

func (m *MockExchange) SetOrderError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderErr[symbol] = err
}

func (m *MockExchange) SetTakeProfitError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.takeProfitErr[symbol] = err
}

func (m *MockExchange) SetLeverageError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leverageErr[symbol] = err
}

func (m *MockExchange) SetFilterError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filterErr[symbol] = err
}

func (m *MockExchange) SetMarkPriceError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markPriceErr[symbol] = err
}

// SubmittedOrders returns a copy of all submitted order requests
func (m *MockExchange) SubmittedOrders() []core.OrderRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.OrderRequest(nil), m.Orders...)
}

// LeverageFor returns the last leverage applied to a symbol
func (m *MockExchange) LeverageFor(symbol string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.leverage[symbol]
}

// core.IExchange implementation

func (m *MockExchange) GetName() string {
	return m.name
}

func (m *MockExchange) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingErr
}

func (m *MockExchange) CheckPositionMode(ctx context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dualSide, nil
}

func (m *MockExchange) ListSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]string(nil), m.symbols...)
	sort.Strings(out)
	return out, nil
}

func (m *MockExchange) GetSymbolFilter(ctx context.Context, symbol string) (core.SymbolFilter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.filterErr[symbol]; err != nil {
		return core.SymbolFilter{Symbol: symbol}, err
	}
	if f, ok := m.filters[symbol]; ok {
		return f, nil
	}
	return core.SymbolFilter{Symbol: symbol}, apperrors.ErrInvalidSymbol
}

func (m *MockExchange) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.markPriceErr[symbol]; err != nil {
		return decimal.Zero, err
	}
	if p, ok := m.markPrices[symbol]; ok {
		return p, nil
	}
	return decimal.Zero, apperrors.ErrInvalidSymbol
}

func (m *MockExchange) GetPositions(ctx context.Context) ([]core.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.positionsErr != nil {
		return nil, m.positionsErr
	}

	keys := make([]string, 0, len(m.positions))
	for k := range m.positions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]core.Position, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.positions[k])
	}
	return out, nil
}

func (m *MockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.leverageErr[symbol]; err != nil {
		return err
	}
	m.leverage[symbol] = leverage
	return nil
}

func (m *MockExchange) SubmitMarketOrder(ctx context.Context, req core.OrderRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.orderErr[req.Symbol]; err != nil {
		return 0, err
	}
	m.Orders = append(m.Orders, req)
	m.orderIDCounter++

	// A reduce-only market order flattens the tracked position
	if req.ReduceOnly {
		delete(m.positions, fmt.Sprintf("%s_%s", req.Symbol, req.PositionSide))
	}
	return m.orderIDCounter, nil
}

func (m *MockExchange) SubmitTakeProfitOrder(ctx context.Context, req core.OrderRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeProfitErr[req.Symbol]; err != nil {
		return 0, err
	}
	m.Orders = append(m.Orders, req)
	m.orderIDCounter++
	return m.orderIDCounter, nil
}

func (m *MockExchange) StartMarkPriceStream(ctx context.Context, symbols []string, callback func(symbol string, markPrice decimal.Decimal)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streamRunning {
		return fmt.Errorf("stream already running")
	}
	m.streamRunning = true
	m.streamCallback = callback
	return nil
}

func (m *MockExchange) StopMarkPriceStream() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamRunning = false
	m.streamCallback = nil
	return nil
}

// PushMarkPrice delivers a streamed mark price update to the subscriber
func (m *MockExchange) PushMarkPrice(symbol string, price decimal.Decimal) {
	m.mu.RLock()
	cb := m.streamCallback
	m.mu.RUnlock()
	if cb != nil {
		cb(symbol, price)
	}
}
