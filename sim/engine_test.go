package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/exchange/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedRand replays fixed draws.
type scriptedRand struct {
	mu     sync.Mutex
	ints   []int
	floats []float64
}

func (r *scriptedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

func (r *scriptedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.floats) == 0 {
		return 0.5
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

type recordingListener struct {
	mu    sync.Mutex
	gens  []uint64
	ticks [][]market.Instrument
}

func (l *recordingListener) OnTick(ctx context.Context, gen uint64, changed []market.Instrument) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gens = append(l.gens, gen)
	l.ticks = append(l.ticks, changed)
}

func newTestEngine(t *testing.T, rnd Rand, opts Options) (*Engine, *market.Store) {
	t.Helper()
	store, err := market.NewStore(market.DefaultInstruments(), market.DefaultBounds())
	require.NoError(t, err)
	return NewEngine(store, opts, rnd, zap.NewNop()), store
}

func TestTickMovesTwoInstrumentsAndAdvancesOnce(t *testing.T) {
	t.Parallel()

	// Intn: count-1 = 1 (two changes), then AAPL, then MSFT.
	// Float64: 1.0 -> +3%, 0.0 -> -3%.
	rnd := &scriptedRand{ints: []int{1, 0, 2}, floats: []float64{1.0, 0.0}}
	e, store := newTestEngine(t, rnd, DefaultOptions())

	l := &recordingListener{}
	e.AddListener(l)

	gen, changed := e.Tick(context.Background())
	assert.Equal(t, uint64(1), gen)
	require.Len(t, changed, 2)

	aapl, err := store.Lookup("AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 154.5, aapl.Price, 1e-9)
	assert.InDelta(t, 3.0, aapl.ChangePercent, 1e-9)

	msft, err := store.Lookup("MSFT")
	require.NoError(t, err)
	assert.InDelta(t, 291.0, msft.Price, 1e-9)
	assert.InDelta(t, -3.0, msft.ChangePercent, 1e-9)

	require.Len(t, l.gens, 1)
	assert.Equal(t, uint64(1), l.gens[0])
	assert.Len(t, l.ticks[0], 2)
}

func TestTickMoveIsBounded(t *testing.T) {
	t.Parallel()

	e, store := newTestEngine(t, nil, DefaultOptions())
	for i := 0; i < 200; i++ {
		before := store.Snapshot()
		gen, changed := e.Tick(context.Background())
		assert.Equal(t, before.Generation+1, gen)
		assert.NotEmpty(t, changed)
		assert.LessOrEqual(t, len(changed), 2)

		for _, in := range changed {
			assert.GreaterOrEqual(t, in.Price, 0.01)
			assert.LessOrEqual(t, in.Price, in.BasePrice*5)
		}
	}
}

func TestRunClosesStoreOnShutdown(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Interval = 5 * time.Millisecond
	e, store := newTestEngine(t, nil, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	gen, err := store.Wait(context.Background(), 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, gen, uint64(1))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("simulator did not stop")
	}

	assert.True(t, store.Closed())
	_, err = store.Wait(context.Background(), store.Generation())
	assert.True(t, errors.Is(err, market.ErrClosed))
}
