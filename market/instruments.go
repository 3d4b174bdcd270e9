// market/instruments.go
package market

// Instrument is a tradable symbol and its live price.
type Instrument struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	BasePrice     float64 `json:"base_price"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int     `json:"volume"`
}

// DefaultVolume is the static volume every simulated instrument carries.
const DefaultVolume = 1_000_000

// NewInstrument returns an instrument priced at its base with no change.
func NewInstrument(symbol string, price float64) Instrument {
	return Instrument{
		Symbol:    symbol,
		Price:     price,
		BasePrice: price,
		Volume:    DefaultVolume,
	}
}

// ChangeFromBase returns (price-base)/base as a percentage.
func ChangeFromBase(price, base float64) float64 {
	if base == 0 {
		return 0
	}
	return (price - base) / base * 100
}

// DefaultInstruments is the simulated listing the exchange opens with.
func DefaultInstruments() []Instrument {
	return []Instrument{
		NewInstrument("AAPL", 150.00),
		NewInstrument("GOOGL", 2800.00),
		NewInstrument("MSFT", 300.00),
		NewInstrument("TSLA", 250.00),
		NewInstrument("AMZN", 3300.00),
		NewInstrument("NFLX", 450.00),
		NewInstrument("META", 320.00),
		NewInstrument("NVDA", 500.00),
		NewInstrument("AMD", 120.00),
		NewInstrument("INTC", 45.00),
	}
}
