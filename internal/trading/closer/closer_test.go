package closer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_trader/internal/core"
	"auto_trader/internal/mock"
	"auto_trader/internal/trading/order"
	apperrors "auto_trader/pkg/errors"
)

type mockLogger struct{}

func (l *mockLogger) Debug(msg string, fields ...interface{})               {}
func (l *mockLogger) Info(msg string, fields ...interface{})                {}
func (l *mockLogger) Warn(msg string, fields ...interface{})                {}
func (l *mockLogger) Error(msg string, fields ...interface{})               {}
func (l *mockLogger) Fatal(msg string, fields ...interface{})               {}
func (l *mockLogger) WithField(key string, value interface{}) core.ILogger  { return l }
func (l *mockLogger) WithFields(fields map[string]interface{}) core.ILogger { return l }

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, title+": "+message)
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newCloser(ex *mock.MockExchange, notifier core.INotifier) *Orchestrator {
	exec := order.NewExecutor(ex, 10, 0, &mockLogger{})
	return NewOrchestrator(ex, exec, notifier, 0, &mockLogger{})
}

func setPositions(ex *mock.MockExchange) {
	ex.SetPosition(core.Position{
		Symbol: "AUSDC", PositionSide: core.PositionSideLong,
		Amount: dec("10"), MarkPrice: dec("1"), Leverage: dec("10"),
	})
	ex.SetPosition(core.Position{
		Symbol: "BUSDC", PositionSide: core.PositionSideShort,
		Amount: dec("-3"), MarkPrice: dec("2"), Leverage: dec("10"),
	})
	ex.SetPosition(core.Position{
		Symbol: "CUSDC", PositionSide: core.PositionSideLong,
		Amount: dec("5"), MarkPrice: dec("4"), Leverage: dec("10"),
	})
}

func TestCloseAll_ClosesEveryPosition(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	setPositions(ex)

	o := newCloser(ex, nil)
	report := o.CloseAll(context.Background(), false)

	require.Len(t, report.Entries, 3)
	assert.Equal(t, 0, report.Failed())
	assert.False(t, report.TriggeredByMonitor)

	orders := ex.SubmittedOrders()
	require.Len(t, orders, 3)
	for _, ord := range orders {
		assert.True(t, ord.ReduceOnly, "close orders must be reduce-only")
		assert.True(t, ord.Quantity.IsPositive())
	}

	// Long closes sell, short closes buy
	assert.Equal(t, core.SideSell, orders[0].Side)
	assert.Equal(t, core.SideBuy, orders[1].Side)
	assert.True(t, orders[1].Quantity.Equal(dec("3")), "quantity is the absolute amount")

	remaining, err := ex.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestCloseAll_RejectedCloseDoesNotStopPass(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	setPositions(ex)
	ex.SetOrderError("BUSDC", apperrors.ErrOrderRejected)

	o := newCloser(ex, nil)
	report := o.CloseAll(context.Background(), true)

	require.Len(t, report.Entries, 3, "every position gets a report entry")
	assert.Equal(t, 1, report.Failed())
	assert.ErrorIs(t, report.Entries[1].Err, apperrors.ErrOrderRejected)
	assert.NoError(t, report.Entries[0].Err)
	assert.NoError(t, report.Entries[2].Err)
	assert.True(t, report.TriggeredByMonitor)
}

func TestCloseAll_EnumerationFailure(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	ex.SetPositionsError(errors.New("network down"))

	o := newCloser(ex, nil)
	report := o.CloseAll(context.Background(), false)

	require.Len(t, report.Entries, 1)
	assert.Error(t, report.Entries[0].Err)
	assert.Equal(t, 1, report.Failed())
}

func TestCloseAll_NoPositions(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	o := newCloser(ex, nil)
	report := o.CloseAll(context.Background(), false)
	assert.Empty(t, report.Entries)
	assert.Empty(t, ex.SubmittedOrders())
}

func TestCloseAll_Notifies(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	setPositions(ex)
	notifier := &recordingNotifier{}

	o := newCloser(ex, notifier)
	o.CloseAll(context.Background(), true)

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "Target reached")
}

func TestCloseAll_QuantitySnappedToStep(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	ex.SetFilter(core.SymbolFilter{Symbol: "ETHUSDC", QuantityStep: 2, PriceTick: 2, Known: true})
	ex.SetPosition(core.Position{
		Symbol: "ETHUSDC", PositionSide: core.PositionSideLong,
		Amount: dec("1.23999"), MarkPrice: dec("3000"), Leverage: dec("10"),
	})

	o := newCloser(ex, nil)
	report := o.CloseAll(context.Background(), false)

	require.Len(t, report.Entries, 1)
	assert.Equal(t, 0, report.Failed())

	orders := ex.SubmittedOrders()
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Quantity.Equal(dec("1.23")), "raw amount %s must be truncated to step, got %s", "1.23999", orders[0].Quantity)
	assert.True(t, orders[0].ReduceOnly)
}
