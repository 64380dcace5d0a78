package precision

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"auto_trader/internal/core"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestQuantityTruncatesTowardZero(t *testing.T) {
	n := NewNormalizer(core.SymbolFilter{Symbol: "BTCUSDC", QuantityStep: 3, PriceTick: 1, Known: true})

	tests := []struct {
		in   string
		want string
	}{
		{"0.0169999", "0.016"},
		{"0.016", "0.016"},
		{"39.9012345", "39.901"},
		{"5", "5"},
	}
	for _, tt := range tests {
		got := n.Quantity(dec(tt.in))
		assert.True(t, got.Equal(dec(tt.want)), "Quantity(%s) = %s, want %s", tt.in, got, tt.want)
		assert.True(t, got.Abs().LessThanOrEqual(dec(tt.in).Abs()), "normalized quantity must not exceed the input")
	}
}

func TestQuantityIdempotent(t *testing.T) {
	n := NewNormalizer(core.SymbolFilter{Symbol: "BTCUSDC", QuantityStep: 3, Known: true})
	once := n.Quantity(dec("0.0169999"))
	twice := n.Quantity(once)
	assert.True(t, once.Equal(twice))
}

func TestPriceRoundsHalfUp(t *testing.T) {
	n := NewNormalizer(core.SymbolFilter{Symbol: "BTCUSDC", QuantityStep: 3, PriceTick: 1, Known: true})

	tests := []struct {
		in   string
		want string
	}{
		{"50000.05", "50000.1"}, // exact half tick rounds up
		{"50000.04", "50000"},
		{"50000.06", "50000.1"},
		{"50000.1", "50000.1"},
	}
	for _, tt := range tests {
		got := n.Price(dec(tt.in))
		assert.True(t, got.Equal(dec(tt.want)), "Price(%s) = %s, want %s", tt.in, got, tt.want)
	}
}

func TestSizingExample(t *testing.T) {
	// notional 100, leverage 20, mark 50.1234 -> raw 39.9015...,
	// step 0.001 keeps three places
	n := NewNormalizer(core.SymbolFilter{Symbol: "XYZUSDC", QuantityStep: 3, PriceTick: 4, Known: true})

	raw := dec("100").Mul(dec("20")).Div(dec("50.1234"))
	got := n.Quantity(raw)
	assert.Equal(t, "39.901", got.String())
}

func TestUnknownFilterFallback(t *testing.T) {
	n := NewNormalizer(core.SymbolFilter{Symbol: "XYZUSDC", Known: false})
	assert.True(t, n.Degraded())

	q := n.Quantity(dec("1.23456789"))
	assert.Equal(t, "1.234567", q.String())

	p := n.Price(dec("1.23456789"))
	assert.Equal(t, "1.2346", p.String())
}
