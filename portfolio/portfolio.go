// Package portfolio tracks one session's cash and share positions.
//
// A Portfolio is owned by exactly one session loop and is never shared, so
// it carries no lock. Prices are always passed in by the caller, who reads
// them from the market store under the store's lock.
//
// # Cost basis
//
// Every BUY folds its cost into the holding's average buy price as a
// weighted average. A partial SELL leaves the average unchanged and removes
// avg*qty from the invested total. TotalInvested is maintained
// incrementally and equals the sum of Quantity*AvgBuyPrice over open
// holdings.
package portfolio

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNotHeld            = errors.New("symbol not held")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// FundsError reports a BUY whose cost exceeds the wallet.
type FundsError struct {
	Need float64
	Have float64
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %.2f, have %.2f", e.Need, e.Have)
}

func (e *FundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// SharesError reports a SELL for more shares than are held.
type SharesError struct {
	Symbol string
	Have   int
}

func (e *SharesError) Error() string {
	return fmt.Sprintf("insufficient shares: only %d of %s held", e.Have, e.Symbol)
}

func (e *SharesError) Is(target error) bool { return target == ErrInsufficientShares }

// ─── holdings ────────────────────────────────────────────────────────────────

// Holding is an open position in one instrument. Quantity is always > 0.
type Holding struct {
	Symbol      string
	Quantity    int
	AvgBuyPrice float64
}

// CostBasis is Quantity × AvgBuyPrice.
func (h Holding) CostBasis() float64 { return float64(h.Quantity) * h.AvgBuyPrice }

// Side is the direction of a fill.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Fill describes an executed trade and the wallet after it.
type Fill struct {
	Side     Side
	Symbol   string
	Quantity int
	Price    float64
	// Amount is the cost of a BUY or the proceeds of a SELL.
	Amount float64
	// CostBasis is the basis removed by a SELL; zero for a BUY.
	CostBasis  float64
	RealizedPL float64
	Wallet     float64
}

// PLPercent is RealizedPL relative to the basis sold.
func (f Fill) PLPercent() float64 {
	if f.CostBasis == 0 {
		return 0
	}
	return f.RealizedPL / f.CostBasis * 100
}

// ─── Portfolio ───────────────────────────────────────────────────────────────

type Portfolio struct {
	wallet   float64
	invested float64
	holdings []Holding
}

// New returns an empty portfolio funded with balance.
func New(balance float64) *Portfolio {
	return &Portfolio{wallet: balance}
}

func (p *Portfolio) Wallet() float64        { return p.wallet }
func (p *Portfolio) TotalInvested() float64 { return p.invested }

// Holdings returns a copy of the open holdings in the order they were opened.
func (p *Portfolio) Holdings() []Holding {
	out := make([]Holding, len(p.holdings))
	copy(out, p.holdings)
	return out
}

// Holding returns the open position in symbol, matched case-insensitively.
func (p *Portfolio) Holding(symbol string) (Holding, bool) {
	i := p.find(symbol)
	if i < 0 {
		return Holding{}, false
	}
	return p.holdings[i], true
}

func (p *Portfolio) find(symbol string) int {
	for i := range p.holdings {
		if strings.EqualFold(p.holdings[i].Symbol, symbol) {
			return i
		}
	}
	return -1
}

// Buy debits price×qty from the wallet and adds qty shares of symbol.
// Nothing changes if the order is rejected.
func (p *Portfolio) Buy(symbol string, price float64, qty int) (Fill, error) {
	if qty <= 0 {
		return Fill{}, ErrInvalidQuantity
	}

	cost := price * float64(qty)
	if cost > p.wallet {
		return Fill{}, &FundsError{Need: cost, Have: p.wallet}
	}

	p.wallet -= cost
	p.invested += cost

	if i := p.find(symbol); i >= 0 {
		h := &p.holdings[i]
		total := h.CostBasis() + cost
		h.Quantity += qty
		h.AvgBuyPrice = total / float64(h.Quantity)
	} else {
		p.holdings = append(p.holdings, Holding{
			Symbol:      symbol,
			Quantity:    qty,
			AvgBuyPrice: price,
		})
	}

	return Fill{
		Side:     Buy,
		Symbol:   symbol,
		Quantity: qty,
		Price:    price,
		Amount:   cost,
		Wallet:   p.wallet,
	}, nil
}

// Sell credits price×qty to the wallet and removes qty shares of symbol.
// A sale that empties the position deletes the holding.
func (p *Portfolio) Sell(symbol string, price float64, qty int) (Fill, error) {
	if qty <= 0 {
		return Fill{}, ErrInvalidQuantity
	}

	i := p.find(symbol)
	if i < 0 {
		return Fill{}, fmt.Errorf("%w: %s", ErrNotHeld, symbol)
	}
	h := &p.holdings[i]
	if qty > h.Quantity {
		return Fill{}, &SharesError{Symbol: h.Symbol, Have: h.Quantity}
	}

	proceeds := price * float64(qty)
	basis := h.AvgBuyPrice * float64(qty)
	held := h.Symbol

	p.wallet += proceeds
	p.invested -= basis
	h.Quantity -= qty

	if h.Quantity == 0 {
		p.holdings = append(p.holdings[:i], p.holdings[i+1:]...)
	}
	if len(p.holdings) == 0 {
		p.invested = 0
	}

	return Fill{
		Side:       Sell,
		Symbol:     held,
		Quantity:   qty,
		Price:      price,
		Amount:     proceeds,
		CostBasis:  basis,
		RealizedPL: proceeds - basis,
		Wallet:     p.wallet,
	}, nil
}
