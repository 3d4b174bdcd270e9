package alert

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/exchange/market"
)

// DefaultThreshold is the percent move that triggers an alert when a
// subscription does not name one.
const DefaultThreshold = 5.0

// Signal is the outcome of evaluating a subscription.
type Signal int

const (
	None Signal = iota
	BuySignal
	SellSignal
)

func (s Signal) String() string {
	switch s {
	case BuySignal:
		return "BUY"
	case SellSignal:
		return "SELL"
	default:
		return "NONE"
	}
}

// Subscription watches one instrument's change from base against ±Threshold.
//
// It holds two latches. BuySent is set when change <= -Threshold fires a
// buy alert, and SellSent when change >= +Threshold fires a sell alert.
// Firing one side clears the other. Inside the band nothing changes, so an
// instrument that swings between the two bands alerts on every crossing
// and never twice in a row on the same side.
type Subscription struct {
	Active    bool
	Threshold float64
	BuySent   bool
	SellSent  bool
}

// Activate (re)arms the subscription with a new threshold.
func (s *Subscription) Activate(threshold float64) {
	s.Active = true
	s.Threshold = threshold
	s.BuySent = false
	s.SellSent = false
}

// Evaluate applies one observed change percent and reports the alert to emit.
func (s *Subscription) Evaluate(changePct float64) Signal {
	if !s.Active {
		return None
	}

	switch {
	case changePct <= -s.Threshold && !s.BuySent:
		s.BuySent = true
		s.SellSent = false
		return BuySignal
	case changePct >= s.Threshold && !s.SellSent:
		s.SellSent = true
		s.BuySent = false
		return SellSignal
	}
	return None
}

// Alert is one fired subscription.
type Alert struct {
	Signal        Signal
	Symbol        string
	Price         float64
	ChangePercent float64
}

func (a Alert) String() string {
	switch a.Signal {
	case BuySignal:
		return fmt.Sprintf("🔔 BUY ALERT: %s at $%.2f (%.2f%% drop)", a.Symbol, a.Price, a.ChangePercent)
	case SellSignal:
		return fmt.Sprintf("🔔 SELL ALERT: %s at $%.2f (%.2f%% rise)", a.Symbol, a.Price, a.ChangePercent)
	}
	return ""
}

// Book holds one session's subscriptions, one slot per listed instrument
// in listing order. A Book belongs to a single session and is not locked.
type Book struct {
	symbols []string
	subs    []Subscription
}

// NewBook returns a book with every subscription inactive.
func NewBook(symbols []string) *Book {
	b := &Book{
		symbols: make([]string, len(symbols)),
		subs:    make([]Subscription, len(symbols)),
	}
	copy(b.symbols, symbols)
	for i := range b.subs {
		b.subs[i].Threshold = DefaultThreshold
	}
	return b
}

// Subscribe activates the subscription for symbol and resets its latches.
func (b *Book) Subscribe(symbol string, threshold float64) error {
	i := b.index(symbol)
	if i < 0 {
		return fmt.Errorf("%w: %s", market.ErrUnknownSymbol, symbol)
	}
	b.subs[i].Activate(threshold)
	return nil
}

// Get returns the subscription for symbol.
func (b *Book) Get(symbol string) (Subscription, bool) {
	i := b.index(symbol)
	if i < 0 {
		return Subscription{}, false
	}
	return b.subs[i], true
}

// Active counts active subscriptions.
func (b *Book) Active() int {
	n := 0
	for _, s := range b.subs {
		if s.Active {
			n++
		}
	}
	return n
}

// Evaluate runs every active subscription against one market snapshot and
// returns the alerts that fired, in listing order.
func (b *Book) Evaluate(snap market.Snapshot) []Alert {
	var out []Alert
	for i := range b.subs {
		sub := &b.subs[i]
		if !sub.Active {
			continue
		}
		in, ok := snap.Find(b.symbols[i])
		if !ok {
			continue
		}
		if sig := sub.Evaluate(in.ChangePercent); sig != None {
			out = append(out, Alert{
				Signal:        sig,
				Symbol:        in.Symbol,
				Price:         in.Price,
				ChangePercent: in.ChangePercent,
			})
		}
	}
	return out
}

func (b *Book) index(symbol string) int {
	for i, s := range b.symbols {
		if strings.EqualFold(s, symbol) {
			return i
		}
	}
	return -1
}
