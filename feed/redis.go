// Package feed fans market updates out to systems outside the trading
// protocol: a Redis mirror of the latest prices and a read-only
// WebSocket ticker.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rustyeddy/exchange/market"
	"go.uber.org/zap"
)

// Quote is the JSON form of one instrument at one generation.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	BasePrice     float64   `json:"base_price"`
	ChangePercent float64   `json:"change_percent"`
	Generation    uint64    `json:"generation"`
	Time          time.Time `json:"time"`
}

func NewQuote(in market.Instrument, gen uint64, at time.Time) Quote {
	return Quote{
		Symbol:        in.Symbol,
		Price:         in.Price,
		BasePrice:     in.BasePrice,
		ChangePercent: in.ChangePercent,
		Generation:    gen,
		Time:          at.UTC(),
	}
}

// QuoteKey is the Redis key holding the latest quote for symbol.
func QuoteKey(symbol string) string { return "market:" + symbol }

// QuoteChannel is the Redis channel quotes for symbol are published on.
func QuoteChannel(symbol string) string { return "prices." + symbol }

// DefaultRedisTimeout bounds one pipeline write when none is configured.
const DefaultRedisTimeout = time.Second

// RedisMirror writes every changed instrument to Redis after each tick.
// Every write is bounded by timeout, so a slow or unreachable Redis costs
// the simulator at most that long per tick.
type RedisMirror struct {
	rdb     redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewRedisMirror(rdb redis.UniversalClient, ttl, timeout time.Duration, logger *zap.Logger) *RedisMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultRedisTimeout
	}
	return &RedisMirror{rdb: rdb, ttl: ttl, timeout: timeout, logger: logger, now: time.Now}
}

// Seed writes the whole snapshot so readers see every instrument before
// the first tick.
func (m *RedisMirror) Seed(ctx context.Context, snap market.Snapshot) error {
	return m.write(ctx, snap.Generation, snap.Instruments)
}

// OnTick implements sim.TickListener. Failures are logged and never
// reach the simulator.
func (m *RedisMirror) OnTick(ctx context.Context, gen uint64, changed []market.Instrument) {
	if err := m.write(ctx, gen, changed); err != nil {
		m.logger.Error("redis mirror", zap.Uint64("generation", gen), zap.Error(err))
	}
}

func (m *RedisMirror) write(ctx context.Context, gen uint64, ins []market.Instrument) error {
	if len(ins) == 0 {
		return nil
	}
	at := m.now()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	// SET and PUBLISH travel in one pipeline per tick.
	pipe := m.rdb.Pipeline()
	for _, in := range ins {
		payload, err := json.Marshal(NewQuote(in, gen, at))
		if err != nil {
			return fmt.Errorf("marshal %s: %w", in.Symbol, err)
		}
		pipe.Set(ctx, QuoteKey(in.Symbol), payload, m.ttl)
		pipe.Publish(ctx, QuoteChannel(in.Symbol), payload)
	}

	_, err := pipe.Exec(ctx)
	return err
}
