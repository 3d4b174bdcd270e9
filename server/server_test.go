package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/exchange/command"
	"github.com/rustyeddy/exchange/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	srv    *Server
	store  *market.Store
	addr   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func testOptions() Options {
	return Options{
		MaxSessions:      4,
		AcceptPoll:       20 * time.Millisecond,
		WriteTimeout:     time.Second,
		InitialBalance:   100000,
		DefaultThreshold: 5,
	}
}

func startServer(t *testing.T, opts Options) *harness {
	t.Helper()

	store, err := market.NewStore(market.DefaultInstruments(), market.DefaultBounds())
	require.NoError(t, err)

	engine := command.NewEngine(store, nil, zap.NewNop())
	srv := New(opts, store, engine, zap.NewNop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		srv:    srv,
		store:  store,
		addr:   ln.Addr().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		h.err = srv.Serve(ctx, ln)
		close(h.done)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return h
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// until reads until the received text ends with suffix.
func (c *testClient) until(suffix string) string {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var b strings.Builder
	for !strings.HasSuffix(b.String(), suffix) {
		r, _, err := c.r.ReadRune()
		require.NoError(c.t, err, "read so far: %q", b.String())
		b.WriteRune(r)
	}
	return b.String()
}

// rest reads until the server closes the connection.
func (c *testClient) rest() string {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	data, err := io.ReadAll(c.r)
	require.NoError(c.t, err)
	return string(data)
}

func (c *testClient) send(line string) {
	c.t.Helper()

	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

func TestWelcomeAndTrading(t *testing.T) {
	h := startServer(t, testOptions())
	c := dial(t, h.addr)

	welcome := c.until(command.Prompt)
	assert.Contains(t, welcome, "STOCK TRADING SYSTEM v3.0")
	assert.Contains(t, welcome, "$100,000.00")

	c.send("BUY AAPL 100")
	out := c.until(command.Prompt)
	assert.Equal(t, "\n✓ BOUGHT 100 shares of AAPL at $150.00\n"+
		"Total cost: $15000.00\n"+
		"Remaining balance: $85000.00\n\n> ", out)

	c.send("SELL AAPL 50")
	out = c.until(command.Prompt)
	assert.Contains(t, out, "New balance: $92500.00\n\n> ")

	c.send("PORTFOLIO")
	out = c.until(command.Prompt)
	assert.Contains(t, out, "PORTFOLIO - User1")
	assert.Contains(t, out, "AAPL   |  50 | $150.00 | $150.00 | $7500.00 | +0.00%\n")
}

func TestEmptyLineReprompts(t *testing.T) {
	h := startServer(t, testOptions())
	c := dial(t, h.addr)
	c.until(command.Prompt)

	c.send("")
	assert.Equal(t, command.Prompt, c.until(command.Prompt))

	c.send("BOGUS")
	assert.Equal(t, "ERROR: Invalid command or arguments. Type HELP.\n> ", c.until(command.Prompt))
}

func TestAlertDelivery(t *testing.T) {
	h := startServer(t, testOptions())
	c := dial(t, h.addr)
	c.until(command.Prompt)

	c.send("SUBSCRIBE AAPL 5")
	assert.Equal(t, "✓ Subscribed to AAPL for price changes of 5.0% or more.\n> ", c.until(command.Prompt))

	_, err := h.store.ApplyDelta("AAPL", -6)
	require.NoError(t, err)
	h.store.AdvanceGeneration()

	assert.Equal(t, "\n🔔 BUY ALERT: AAPL at $141.00 (-6.00% drop)\n> ", c.until(command.Prompt))

	// Still below the threshold: the latch holds, the next reply is the
	// command's and nothing else.
	h.store.AdvanceGeneration()
	c.send("HELP")
	help := c.until("(e.g. 1.5)\n> ")
	assert.NotContains(t, help, "ALERT")
	assert.Contains(t, help, "TRADING COMMANDS")
}

func TestAlertsCoalescePerGeneration(t *testing.T) {
	h := startServer(t, testOptions())
	c := dial(t, h.addr)
	c.until(command.Prompt)

	c.send("SUBSCRIBE MSFT 1")
	c.until(command.Prompt)
	c.send("SUBSCRIBE NVDA 1")
	c.until(command.Prompt)

	h.store.Batch(func(b *market.Batch) {
		i, _ := h.store.Index("MSFT")
		b.ApplyDelta(i, 2)
		j, _ := h.store.Index("NVDA")
		b.ApplyDelta(j, -2)
	})

	out := c.until(command.Prompt)
	assert.Equal(t, "\n🔔 SELL ALERT: MSFT at $306.00 (2.00% rise)\n"+
		"\n🔔 BUY ALERT: NVDA at $490.00 (-2.00% drop)\n> ", out)
}

func TestCapacityRejection(t *testing.T) {
	opts := testOptions()
	opts.MaxSessions = 1
	h := startServer(t, opts)

	first := dial(t, h.addr)
	first.until(command.Prompt)

	second := dial(t, h.addr)
	assert.Equal(t, command.Full, second.rest())
	assert.Equal(t, 1, h.srv.Registry().Len())

	// The admitted session is unaffected.
	first.send("AVAILABLE")
	assert.Contains(t, first.until(command.Prompt), "AVAILABLE STOCKS")
}

func TestQuitReleasesSlot(t *testing.T) {
	opts := testOptions()
	opts.MaxSessions = 1
	h := startServer(t, opts)

	first := dial(t, h.addr)
	first.until(command.Prompt)
	first.send("quit")
	assert.Equal(t, command.Closing, first.rest())

	require.Eventually(t, func() bool { return h.srv.Registry().Len() == 0 }, 3*time.Second, 10*time.Millisecond)

	second := dial(t, h.addr)
	second.until(command.Prompt)
	second.send("PORTFOLIO")
	assert.Contains(t, second.until(command.Prompt), "PORTFOLIO - User2")
}

func TestPeerCloseReleasesSlot(t *testing.T) {
	h := startServer(t, testOptions())

	c := dial(t, h.addr)
	c.until(command.Prompt)
	require.Equal(t, 1, h.srv.Registry().Len())

	require.NoError(t, c.conn.Close())
	require.Eventually(t, func() bool { return h.srv.Registry().Len() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesSessions(t *testing.T) {
	h := startServer(t, testOptions())

	a := dial(t, h.addr)
	a.until(command.Prompt)
	b := dial(t, h.addr)
	b.until(command.Prompt)

	h.cancel()

	assert.Equal(t, command.Closing, a.rest())
	assert.Equal(t, command.Closing, b.rest())

	select {
	case <-h.done:
		assert.NoError(t, h.err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, h.srv.Registry().Len())
}

func TestStoreCloseClosesSessions(t *testing.T) {
	h := startServer(t, testOptions())

	c := dial(t, h.addr)
	c.until(command.Prompt)

	h.store.Close()
	assert.Equal(t, command.Closing, c.rest())
}

func TestIdleTimeout(t *testing.T) {
	opts := testOptions()
	opts.IdleTimeout = 100 * time.Millisecond
	h := startServer(t, opts)

	c := dial(t, h.addr)
	c.until(command.Prompt)
	assert.Equal(t, command.Closing, c.rest())
}
