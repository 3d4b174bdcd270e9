package portfolio

// PriceFunc returns the live price for symbol.
type PriceFunc func(symbol string) (float64, bool)

// Position is one holding marked to market.
type Position struct {
	Holding
	Price     float64
	Value     float64
	PL        float64
	PLPercent float64
}

// Valuation is the whole portfolio marked to market at one set of prices.
type Valuation struct {
	Wallet      float64
	Invested    float64
	Positions   []Position
	Cost        float64
	MarketValue float64
	PL          float64
}

// Value marks every holding to the prices returned by price. Callers
// should pass prices from a single market snapshot so the report is
// consistent. Holdings without a price are valued at cost.
func (p *Portfolio) Value(price PriceFunc) Valuation {
	v := Valuation{
		Wallet:    p.wallet,
		Invested:  p.invested,
		Positions: make([]Position, 0, len(p.holdings)),
	}

	for _, h := range p.holdings {
		cur, ok := price(h.Symbol)
		if !ok {
			cur = h.AvgBuyPrice
		}

		pos := Position{
			Holding: h,
			Price:   cur,
			Value:   float64(h.Quantity) * cur,
		}
		pos.PL = pos.Value - h.CostBasis()
		if h.AvgBuyPrice != 0 {
			pos.PLPercent = (cur - h.AvgBuyPrice) / h.AvgBuyPrice * 100
		}

		v.Positions = append(v.Positions, pos)
		v.Cost += h.CostBasis()
		v.MarketValue += pos.Value
	}
	v.PL = v.MarketValue - v.Cost
	return v
}
