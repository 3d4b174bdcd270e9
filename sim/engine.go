package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rustyeddy/exchange/market"
	"go.uber.org/zap"
)

// Rand is the randomness the simulator draws from.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// TickListener is notified after every committed tick, outside the market lock.
type TickListener interface {
	OnTick(ctx context.Context, generation uint64, changed []market.Instrument)
}

// Options tune the random walk.
type Options struct {
	Interval          time.Duration
	MaxMovePercent    float64
	MaxChangesPerTick int
}

// DefaultOptions moves one or two instruments by up to 3% every 3 seconds.
func DefaultOptions() Options {
	return Options{
		Interval:          3 * time.Second,
		MaxMovePercent:    3,
		MaxChangesPerTick: 2,
	}
}

// Engine is the single producer of market price changes.
type Engine struct {
	store  *market.Store
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	rand      Rand
	listeners []TickListener
}

func NewEngine(store *market.Store, opts Options, rnd Rand, logger *zap.Logger) *Engine {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.MaxChangesPerTick < 1 {
		opts.MaxChangesPerTick = 1
	}
	return &Engine{
		store:  store,
		opts:   opts,
		rand:   rnd,
		logger: logger,
	}
}

// AddListener registers l for every later tick.
func (e *Engine) AddListener(l TickListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Run ticks on the configured interval until ctx ends. On exit it closes
// the market store so no waiter stays blocked past shutdown.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("producer started (simulating market)", zap.Duration("interval", e.opts.Interval))

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()
	defer e.store.Close()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("producer exiting")
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick moves between one and MaxChangesPerTick random instruments by a
// bounded random percentage and advances the generation once.
func (e *Engine) Tick(ctx context.Context) (uint64, []market.Instrument) {
	e.mu.Lock()
	gen, changed := e.store.Batch(func(b *market.Batch) {
		n := e.rand.Intn(e.opts.MaxChangesPerTick) + 1
		for i := 0; i < n; i++ {
			idx := e.rand.Intn(b.Len())
			pct := (e.rand.Float64()*2 - 1) * e.opts.MaxMovePercent
			b.ApplyDelta(idx, pct)
		}
	})
	listeners := e.listeners
	e.mu.Unlock()

	for _, in := range changed {
		e.logger.Info("price update",
			zap.String("symbol", in.Symbol),
			zap.Float64("price", in.Price),
			zap.Float64("change_pct", in.ChangePercent),
			zap.Uint64("generation", gen),
		)
	}

	for _, l := range listeners {
		l.OnTick(ctx, gen, changed)
	}
	return gen, changed
}
