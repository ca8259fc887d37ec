package quote

import "github.com/shopspring/decimal"

// ContractSpec holds the exchange-imposed precision and minimum constraints
// for one futures contract.
type ContractSpec struct {
	Instrument  string
	TickSize    decimal.Decimal
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// PriceFloor rounds price down to the tick grid (bids).
func (c ContractSpec) PriceFloor(price decimal.Decimal) decimal.Decimal {
	if c.TickSize.Sign() <= 0 {
		return price
	}
	return price.Div(c.TickSize).Floor().Mul(c.TickSize)
}

// PriceCeil rounds price up to the tick grid (asks).
func (c ContractSpec) PriceCeil(price decimal.Decimal) decimal.Decimal {
	if c.TickSize.Sign() <= 0 {
		return price
	}
	return price.Div(c.TickSize).Ceil().Mul(c.TickSize)
}

// QtyFloor rounds a quantity down to the step grid.
func (c ContractSpec) QtyFloor(qty decimal.Decimal) decimal.Decimal {
	if c.StepSize.Sign() <= 0 {
		return qty
	}
	return qty.Div(c.StepSize).Floor().Mul(c.StepSize)
}

// Quotable reports whether a price/qty pair clears the contract minimums.
func (c ContractSpec) Quotable(price, qty decimal.Decimal) bool {
	if qty.Sign() <= 0 || price.Sign() <= 0 {
		return false
	}
	if c.MinQty.Sign() > 0 && qty.LessThan(c.MinQty) {
		return false
	}
	if c.MinNotional.Sign() > 0 && price.Mul(qty).LessThan(c.MinNotional) {
		return false
	}
	return true
}
