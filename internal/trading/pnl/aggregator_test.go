package pnl

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_trader/internal/core"
	"auto_trader/internal/mock"
)

type mockLogger struct{}

func (l *mockLogger) Debug(msg string, fields ...interface{})               {}
func (l *mockLogger) Info(msg string, fields ...interface{})                {}
func (l *mockLogger) Warn(msg string, fields ...interface{})                {}
func (l *mockLogger) Error(msg string, fields ...interface{})               {}
func (l *mockLogger) Fatal(msg string, fields ...interface{})               {}
func (l *mockLogger) WithField(key string, value interface{}) core.ILogger  { return l }
func (l *mockLogger) WithFields(fields map[string]interface{}) core.ILogger { return l }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSnapshot_TotalsAndPercent(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	ex.SetPosition(core.Position{
		Symbol:       "BTCUSDC",
		PositionSide: core.PositionSideLong,
		Amount:       dec("0.1"),
		EntryPrice:   dec("50000"),
		MarkPrice:    dec("50000"),
		Leverage:     dec("20"),
		// margin = 0.1 * 50000 / 20 = 250
		UnrealizedPnl: dec("25"),
	})
	ex.SetPosition(core.Position{
		Symbol:        "ETHUSDC",
		PositionSide:  core.PositionSideShort,
		Amount:        dec("-1"),
		EntryPrice:    dec("3000"),
		MarkPrice:     dec("3000"),
		Leverage:      dec("10"),
		UnrealizedPnl: dec("-10.5"),
	})

	agg := NewAggregator(ex, &mockLogger{})
	snap, err := agg.Snapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Positions, 2)
	assert.True(t, snap.TotalPnl.Equal(dec("14.5")), "got %s", snap.TotalPnl)

	btc := snap.Positions["BTCUSDC_LONG"]
	assert.True(t, btc.PnlPercent.Equal(dec("10")), "25 on 250 margin is 10%%, got %s", btc.PnlPercent)

	assert.Contains(t, snap.Summary, "BTCUSDC")
	assert.Contains(t, snap.Summary, "ETHUSDC")
	assert.Contains(t, snap.Summary, "total unrealized pnl: 14.5000")
	assert.True(t, snap.HasOpenPositions())
}

func TestSnapshot_ZeroGuards(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	ex.SetPosition(core.Position{
		Symbol:        "XUSDC",
		PositionSide:  core.PositionSideLong,
		Amount:        dec("1"),
		MarkPrice:     decimal.Zero,
		Leverage:      decimal.Zero,
		UnrealizedPnl: dec("1"),
	})

	agg := NewAggregator(ex, &mockLogger{})
	snap, err := agg.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Positions["XUSDC_LONG"].PnlPercent.IsZero())
}

func TestSnapshot_ErroredEntriesExcludedFromTotal(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	ex.SetPosition(core.Position{
		Symbol:        "AUSDC",
		PositionSide:  core.PositionSideLong,
		Amount:        dec("1"),
		MarkPrice:     dec("10"),
		Leverage:      dec("10"),
		UnrealizedPnl: dec("5"),
	})
	ex.SetPosition(core.Position{
		Symbol:        "BUSDC",
		PositionSide:  core.PositionSideLong,
		Amount:        dec("1"),
		UnrealizedPnl: dec("1000"),
		Err:           errors.New("mark price unavailable"),
	})

	agg := NewAggregator(ex, &mockLogger{})
	snap, err := agg.Snapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Positions, 2, "degraded entries stay visible")
	assert.True(t, snap.TotalPnl.Equal(dec("5")), "degraded entries carry no pnl, got %s", snap.TotalPnl)
	assert.Contains(t, snap.Summary, "data unavailable")
}

func TestSnapshot_PollFailure(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	ex.SetPositionsError(errors.New("network down"))

	agg := NewAggregator(ex, &mockLogger{})
	_, err := agg.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestSnapshot_Empty(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	agg := NewAggregator(ex, &mockLogger{})
	snap, err := agg.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.HasOpenPositions())
	assert.True(t, snap.TotalPnl.IsZero())
	assert.Equal(t, "no open positions", snap.Summary)
}
