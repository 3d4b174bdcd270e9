package command

import (
	"errors"
	"strings"
	"testing"

	"github.com/rustyeddy/exchange/journal"
	"github.com/rustyeddy/exchange/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memJournal struct {
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
	err    error
}

func (m *memJournal) RecordTrade(t journal.TradeRecord) error {
	if m.err != nil {
		return m.err
	}
	m.trades = append(m.trades, t)
	return nil
}

func (m *memJournal) RecordEquity(e journal.EquitySnapshot) error {
	if m.err != nil {
		return m.err
	}
	m.equity = append(m.equity, e)
	return nil
}

func (m *memJournal) Close() error { return nil }

func newTestEngine(t *testing.T) (*Engine, *Session, *market.Store, *memJournal) {
	t.Helper()

	store, err := market.NewStore(market.DefaultInstruments(), market.DefaultBounds())
	require.NoError(t, err)

	j := &memJournal{}
	e := NewEngine(store, j, zap.NewNop())
	return e, NewSession(1, store, 100000, 5), store, j
}

func TestNewSession(t *testing.T) {
	t.Parallel()

	_, s, _, _ := newTestEngine(t)
	assert.Equal(t, "User1", s.Username)
	assert.Equal(t, 100000.0, s.Portfolio.Wallet())
	assert.Equal(t, 0, s.Alerts.Active())
}

func TestBuySellScenario(t *testing.T) {
	t.Parallel()

	e, s, _, j := newTestEngine(t)

	r := e.Execute(s, "BUY AAPL 100")
	assert.Equal(t, "\n✓ BOUGHT 100 shares of AAPL at $150.00\n"+
		"Total cost: $15000.00\n"+
		"Remaining balance: $85000.00\n\n", r.Text)
	assert.False(t, r.Quit)

	r = e.Execute(s, "sell aapl 50")
	assert.Equal(t, "\n✓ SOLD 50 shares of AAPL at $150.00\n"+
		"Proceeds: $7500.00\n"+
		"Profit/Loss: +$0.00 (0.00%)\n"+
		"New balance: $92500.00\n\n", r.Text)

	h, ok := s.Portfolio.Holding("AAPL")
	require.True(t, ok)
	assert.Equal(t, 50, h.Quantity)
	assert.InDelta(t, 150.0, h.AvgBuyPrice, 1e-9)
	assert.InDelta(t, 92500.0, s.Portfolio.Wallet(), 1e-9)

	require.Len(t, j.trades, 2)
	assert.Equal(t, "BUY", j.trades[0].Side)
	assert.Equal(t, "SELL", j.trades[1].Side)
	assert.Equal(t, "User1", j.trades[1].Username)
	assert.NotEmpty(t, j.trades[0].TradeID)
	assert.NotEqual(t, j.trades[0].TradeID, j.trades[1].TradeID)
	require.Len(t, j.equity, 2)
	assert.InDelta(t, 7500.0, j.equity[1].Invested, 1e-9)
}

func TestSellAtLossUsesLivePrice(t *testing.T) {
	t.Parallel()

	e, s, store, _ := newTestEngine(t)
	e.Execute(s, "BUY INTC 10")

	_, err := store.ApplyDelta("INTC", -10)
	require.NoError(t, err)

	r := e.Execute(s, "SELL INTC 10")
	assert.Contains(t, r.Text, "✓ SOLD 10 shares of INTC at $40.50\n")
	assert.Contains(t, r.Text, "Profit/Loss: $-45.00 (-10.00%)\n")
	_, ok := s.Portfolio.Holding("INTC")
	assert.False(t, ok)
}

func TestTradeRejections(t *testing.T) {
	t.Parallel()

	e, s, _, j := newTestEngine(t)

	tests := []struct {
		line string
		want string
	}{
		{"BUY AAPL 0", "ERROR: Invalid quantity\n"},
		{"BUY AAPL -5", "ERROR: Invalid quantity\n"},
		{"BUY NOPE 1", "ERROR: Stock NOPE not found\n"},
		{"BUY AMZN 100", "ERROR: Insufficient funds. Need $330000.00, have $100000.00\n"},
		{"SELL TSLA 1", "ERROR: You don't own TSLA\n"},
		{"SELL TSLA 0", "ERROR: Invalid quantity\n"},
		{"BUY AAPL ten", "ERROR: Invalid command or arguments. Type HELP.\n"},
		{"FLY", "ERROR: Invalid command or arguments. Type HELP.\n"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Execute(s, tt.line).Text, tt.line)
	}

	assert.Equal(t, 100000.0, s.Portfolio.Wallet())
	assert.Empty(t, s.Portfolio.Holdings())
	assert.Empty(t, j.trades)

	e.Execute(s, "BUY TSLA 4")
	assert.Equal(t, "ERROR: You only have 4 shares of TSLA\n", e.Execute(s, "SELL tsla 5").Text)
}

func TestJournalFailureDoesNotUndoTrade(t *testing.T) {
	t.Parallel()

	e, s, _, j := newTestEngine(t)
	j.err = errors.New("disk full")

	r := e.Execute(s, "BUY AAPL 1")
	assert.Contains(t, r.Text, "✓ BOUGHT 1 shares of AAPL")
	assert.InDelta(t, 99850.0, s.Portfolio.Wallet(), 1e-9)
}

func TestPortfolioReport(t *testing.T) {
	t.Parallel()

	e, s, store, _ := newTestEngine(t)

	empty := e.Execute(s, "PORTFOLIO").Text
	assert.Contains(t, empty, "║           PORTFOLIO - User1"+strings.Repeat(" ", 24)+"║\n")
	assert.Contains(t, empty, "💰 Wallet: $100000.00\n")
	assert.Contains(t, empty, "📊 Invested: $0.00\n\n")
	assert.Contains(t, empty, "No holdings. Use BUY command to purchase stocks.\n")

	e.Execute(s, "BUY AAPL 10")
	_, err := store.ApplyDelta("AAPL", 10)
	require.NoError(t, err)

	full := e.Execute(s, "portfolio").Text
	assert.Contains(t, full, "Holdings:\n")
	assert.Contains(t, full, "AAPL   |  10 | $150.00 | $165.00 | $1650.00 | +10.00%\n")
	assert.Contains(t, full, "📊 Total Invested Cost: $1500.00\n")
	assert.Contains(t, full, "Portfolio Market Value: $1650.00\n")
	assert.Contains(t, full, "Total P/L: +$150.00\n")
}

func TestAvailable(t *testing.T) {
	t.Parallel()

	e, s, store, _ := newTestEngine(t)
	_, err := store.ApplyDelta("MSFT", -2)
	require.NoError(t, err)

	out := e.Execute(s, "AVAILABLE").Text
	assert.True(t, strings.HasPrefix(out, "\n═══════ AVAILABLE STOCKS (Simulated) ═══════\n"))
	assert.Contains(t, out, "Symbol | Price    | Change\n")
	assert.Contains(t, out, "AAPL   | $  150.00 | +0.00%\n")
	assert.Contains(t, out, "MSFT   | $  294.00 | -2.00%\n")
	assert.Contains(t, out, "GOOGL  | $ 2800.00 | +0.00%\n")
	assert.Equal(t, 10, strings.Count(out, "%\n"))
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	e, s, _, _ := newTestEngine(t)

	assert.Equal(t, "✓ Subscribed to AAPL for price changes of 5.0% or more.\n", e.Execute(s, "SUBSCRIBE aapl").Text)
	assert.Equal(t, "✓ Subscribed to MSFT for price changes of 1.5% or more.\n", e.Execute(s, "SUBSCRIBE MSFT 1.5").Text)
	assert.Equal(t, "ERROR: Threshold must be positive.\n", e.Execute(s, "SUBSCRIBE MSFT 0").Text)
	assert.Equal(t, "ERROR: Stock NOPE not found\n", e.Execute(s, "SUBSCRIBE NOPE 2").Text)
	assert.Equal(t, 2, s.Alerts.Active())

	sub, ok := s.Alerts.Get("MSFT")
	require.True(t, ok)
	assert.Equal(t, 1.5, sub.Threshold)
}

func TestHelpQuitAndEmpty(t *testing.T) {
	t.Parallel()

	e, s, _, _ := newTestEngine(t)

	help := e.Execute(s, "help").Text
	assert.Contains(t, help, "TRADING COMMANDS")
	assert.Contains(t, help, "Note: [t] is optional alert threshold (e.g. 1.5)\n")

	assert.Equal(t, Result{}, e.Execute(s, "   "))

	r := e.Execute(s, "quit")
	assert.True(t, r.Quit)
	assert.Equal(t, Closing, r.Text)
}
