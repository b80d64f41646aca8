// Package precision converts between human decimal quantities and the
// exchange's fixed-point integer units.
package precision

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/curvelab/monbot/internal/domain"
)

// Normalizer converts decimal strings to integer units for one market
// and back. Conversions truncate toward zero and never round up, so a
// normalized order can only be equal to or smaller than what the caller
// asked for.
type Normalizer struct {
	params    domain.MarketParams
	priceUnit decimal.Decimal
	sizeUnit  decimal.Decimal
}

// New builds a Normalizer from a market's precision constants.
func New(params domain.MarketParams) (*Normalizer, error) {
	if params.PricePrecision == 0 || params.SizePrecision == 0 {
		return nil, fmt.Errorf("precision: zero precision in market params")
	}
	if params.TickSize == 0 {
		return nil, fmt.Errorf("precision: zero tick size in market params")
	}
	return &Normalizer{
		params:    params,
		priceUnit: decimal.NewFromUint64(params.PricePrecision),
		sizeUnit:  decimal.NewFromUint64(params.SizePrecision),
	}, nil
}

// Params returns the market constants the normalizer was built from.
func (n *Normalizer) Params() domain.MarketParams { return n.params }

// NormalizePrice converts a decimal price string to integer price units.
// The result must be a positive, exact multiple of the market's tick
// size; anything else is ErrInvalidMagnitude.
func (n *Normalizer) NormalizePrice(price string) (int64, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return 0, fmt.Errorf("precision: parse price %q: %w", price, err)
	}
	units := d.Mul(n.priceUnit).Truncate(0)
	if !units.IsPositive() {
		return 0, fmt.Errorf("precision: price %s: %w", price, domain.ErrInvalidMagnitude)
	}
	p := units.IntPart()
	if p%int64(n.params.TickSize) != 0 {
		return 0, fmt.Errorf("precision: price %s not tick aligned: %w", price, domain.ErrInvalidMagnitude)
	}
	return p, nil
}

// NormalizeSize converts a decimal size string to integer size units.
// Sizes outside the market's [min_size, max_size] window are rejected
// with ErrInvalidMagnitude.
func (n *Normalizer) NormalizeSize(size string) (int64, error) {
	d, err := decimal.NewFromString(size)
	if err != nil {
		return 0, fmt.Errorf("precision: parse size %q: %w", size, err)
	}
	units := d.Mul(n.sizeUnit).Truncate(0).IntPart()
	if units < int64(n.params.MinSize) || units > int64(n.params.MaxSize) {
		return 0, fmt.Errorf("precision: size %s outside [%d, %d] units: %w",
			size, n.params.MinSize, n.params.MaxSize, domain.ErrInvalidMagnitude)
	}
	return units, nil
}

// NormalizeIntent validates and converts a limit or market intent. The
// first failing field aborts the whole intent; nothing partial comes
// back.
func (n *Normalizer) NormalizeIntent(intent domain.OrderIntent) (domain.NormalizedOrder, error) {
	out := domain.NormalizedOrder{Intent: intent}

	switch intent.Kind {
	case domain.KindLimit:
		price, err := n.NormalizePrice(intent.Price)
		if err != nil {
			return domain.NormalizedOrder{}, err
		}
		size, err := n.NormalizeSize(intent.Size)
		if err != nil {
			return domain.NormalizedOrder{}, err
		}
		out.Price = price
		out.Size = size
	case domain.KindMarket:
		size, err := n.NormalizeSize(intent.Size)
		if err != nil {
			return domain.NormalizedOrder{}, err
		}
		out.Size = size
		if intent.MinOut != "" {
			minOut, err := n.denormTarget(intent)
			if err != nil {
				return domain.NormalizedOrder{}, err
			}
			out.MinOut = minOut
		}
	default:
		return domain.NormalizedOrder{}, fmt.Errorf("precision: kind %q: %w", intent.Kind, domain.ErrInvalidOrder)
	}
	return out, nil
}

// denormTarget converts a market order's min-out amount. A buy receives
// base asset (size units); a sell receives quote (price units).
func (n *Normalizer) denormTarget(intent domain.OrderIntent) (int64, error) {
	d, err := decimal.NewFromString(intent.MinOut)
	if err != nil {
		return 0, fmt.Errorf("precision: parse min out %q: %w", intent.MinOut, err)
	}
	unit := n.sizeUnit
	if intent.Side == domain.SideSell {
		unit = n.priceUnit
	}
	return d.Mul(unit).Truncate(0).IntPart(), nil
}

// DenormalizePrice converts integer price units back to a decimal
// string. Round-trips exactly for precision-aligned inputs.
func (n *Normalizer) DenormalizePrice(units int64) string {
	return decimal.NewFromInt(units).Div(n.priceUnit).String()
}

// DenormalizeSize converts integer size units back to a decimal string.
func (n *Normalizer) DenormalizeSize(units int64) string {
	return decimal.NewFromInt(units).Div(n.sizeUnit).String()
}
