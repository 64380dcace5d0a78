// Package precision normalizes quantities and prices to venue constraints
package precision

import (
	"github.com/shopspring/decimal"

	"auto_trader/internal/core"
)

// Fallback decimal places used when a symbol's filters are unknown.
const (
	FallbackQuantityPlaces int32 = 6
	FallbackPricePlaces    int32 = 4
)

// Normalizer rounds order values to a symbol's step and tick constraints.
// The zero value uses fallback precision for every symbol.
type Normalizer struct {
	filter core.SymbolFilter
}

// NewNormalizer creates a normalizer for one symbol's filter
func NewNormalizer(filter core.SymbolFilter) *Normalizer {
	return &Normalizer{filter: filter}
}

// Quantity truncates a quantity toward zero to the symbol's step precision.
// Rounding down keeps the sized order within the budgeted notional.
func (n *Normalizer) Quantity(q decimal.Decimal) decimal.Decimal {
	places := FallbackQuantityPlaces
	if n.filter.Known {
		places = n.filter.QuantityStep
	}
	return q.RoundDown(places)
}

// Price rounds a price half away from zero to the symbol's tick precision
func (n *Normalizer) Price(p decimal.Decimal) decimal.Decimal {
	places := FallbackPricePlaces
	if n.filter.Known {
		places = n.filter.PriceTick
	}
	return p.Round(places)
}

// Degraded reports whether fallback precision is in effect
func (n *Normalizer) Degraded() bool {
	return !n.filter.Known
}
