package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrClosed        = errors.New("market closed")
)

// Bounds keeps simulated prices inside a sane band around their base price.
//
// A price that falls below Floor is reset to base*FloorReset. A price that
// rises above base*Ceiling is reset to base*CeilingReset.
type Bounds struct {
	Floor        float64
	FloorReset   float64
	Ceiling      float64
	CeilingReset float64
}

// DefaultBounds matches the exchange's historical clamp rules.
func DefaultBounds() Bounds {
	return Bounds{
		Floor:        0.01,
		FloorReset:   0.9,
		Ceiling:      5,
		CeilingReset: 2,
	}
}

func (b Bounds) clamp(price, base float64) float64 {
	if price < b.Floor {
		price = base * b.FloorReset
	}
	if b.Ceiling > 0 && price > base*b.Ceiling {
		price = base * b.CeilingReset
	}
	return price
}

// Snapshot is a consistent copy of every instrument at one generation.
type Snapshot struct {
	Generation  uint64       `json:"generation"`
	Instruments []Instrument `json:"instruments"`
}

// Find returns the instrument for symbol, matched case-insensitively.
func (s Snapshot) Find(symbol string) (Instrument, bool) {
	for _, in := range s.Instruments {
		if strings.EqualFold(in.Symbol, symbol) {
			return in, true
		}
	}
	return Instrument{}, false
}

// Store is the single source of truth for instrument prices.
//
// Every read and write goes through mu. The generation counter increases
// once per committed batch of price changes; waiters compare the live
// counter against the last value they observed, so an observer that was
// busy while several batches landed still sees all of them at once.
//
// Change notification is broadcast-by-close: changed is closed on every
// advance and replaced with a fresh channel.
type Store struct {
	mu          sync.RWMutex
	instruments []Instrument
	index       map[string]int
	bounds      Bounds
	generation  uint64
	changed     chan struct{}
	closed      bool
}

// NewStore builds a store over the given instruments. Symbols must be
// unique (case-insensitively) and prices positive.
func NewStore(instruments []Instrument, bounds Bounds) (*Store, error) {
	if len(instruments) == 0 {
		return nil, fmt.Errorf("new store: no instruments")
	}

	s := &Store{
		instruments: make([]Instrument, 0, len(instruments)),
		index:       make(map[string]int, len(instruments)),
		bounds:      bounds,
		changed:     make(chan struct{}),
	}
	for _, in := range instruments {
		key := strings.ToUpper(in.Symbol)
		if key == "" {
			return nil, fmt.Errorf("new store: empty symbol")
		}
		if _, dup := s.index[key]; dup {
			return nil, fmt.Errorf("new store: duplicate symbol %q", in.Symbol)
		}
		if in.Price <= 0 {
			return nil, fmt.Errorf("new store: %s price must be positive", in.Symbol)
		}
		in.Symbol = key
		if in.BasePrice <= 0 {
			in.BasePrice = in.Price
		}
		in.ChangePercent = ChangeFromBase(in.Price, in.BasePrice)
		s.index[key] = len(s.instruments)
		s.instruments = append(s.instruments, in)
	}
	return s, nil
}

// Len is the number of listed instruments. The listing never changes.
func (s *Store) Len() int { return len(s.instruments) }

// Symbols returns the listed symbols in listing order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.instruments))
	for i, in := range s.instruments {
		out[i] = in.Symbol
	}
	return out
}

// Index returns the listing position of symbol.
func (s *Store) Index(symbol string) (int, bool) {
	i, ok := s.index[strings.ToUpper(symbol)]
	return i, ok
}

// Lookup returns a copy of one instrument.
func (s *Store) Lookup(symbol string) (Instrument, error) {
	i, ok := s.Index(symbol)
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instruments[i], nil
}

// Snapshot copies every instrument under the lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Instrument, len(s.instruments))
	copy(out, s.instruments)
	return Snapshot{Generation: s.generation, Instruments: out}
}

// Generation returns the live generation counter.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Watch returns the current generation and a channel that is closed the
// next time the generation advances or the store closes.
func (s *Store) Watch() (uint64, <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation, s.changed
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Wait blocks until the generation exceeds seen and returns the new value.
// It returns ErrClosed once the store is closed and no newer generation is
// left to observe, or the context error if ctx ends first.
func (s *Store) Wait(ctx context.Context, seen uint64) (uint64, error) {
	for {
		s.mu.RLock()
		gen, ch, closed := s.generation, s.changed, s.closed
		s.mu.RUnlock()

		if gen > seen {
			return gen, nil
		}
		if closed {
			return gen, ErrClosed
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return gen, ctx.Err()
		}
	}
}

// ApplyDelta moves one instrument's price by pct percent, clamps it, and
// recomputes its change percent. It does not advance the generation.
func (s *Store) ApplyDelta(symbol string, pct float64) (Instrument, error) {
	i, ok := s.Index(symbol)
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyDeltaLocked(i, pct), nil
}

// AdvanceGeneration increments the generation and wakes every waiter.
func (s *Store) AdvanceGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked()
}

// Close wakes every waiter one final time. Later waits return ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.changed)
}

// Batch runs fn with the store locked. If fn moved at least one price the
// generation advances exactly once when fn returns, and the instruments
// that changed are returned in the order they were touched.
func (s *Store) Batch(fn func(b *Batch)) (uint64, []Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := &Batch{s: s}
	fn(b)
	if len(b.touched) == 0 {
		return s.generation, nil
	}
	return s.advanceLocked(), b.touched
}

func (s *Store) applyDeltaLocked(i int, pct float64) Instrument {
	in := &s.instruments[i]
	price := in.Price * (1 + pct/100)
	in.Price = s.bounds.clamp(price, in.BasePrice)
	in.ChangePercent = ChangeFromBase(in.Price, in.BasePrice)
	return *in
}

func (s *Store) advanceLocked() uint64 {
	s.generation++
	if !s.closed {
		close(s.changed)
		s.changed = make(chan struct{})
	}
	return s.generation
}

// Batch is a locked view of the store handed to Store.Batch callbacks.
// It must not escape the callback.
type Batch struct {
	s       *Store
	touched []Instrument
}

// Len is the number of listed instruments.
func (b *Batch) Len() int { return len(b.s.instruments) }

// At returns the instrument at listing position i.
func (b *Batch) At(i int) Instrument { return b.s.instruments[i] }

// ApplyDelta moves the instrument at listing position i by pct percent.
func (b *Batch) ApplyDelta(i int, pct float64) Instrument {
	in := b.s.applyDeltaLocked(i, pct)
	b.touched = append(b.touched, in)
	return in
}
