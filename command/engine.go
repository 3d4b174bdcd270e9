// Package command turns one line of client input into a reply.
//
// An Engine is shared by every session. Each Session is owned by one
// connection loop and passed in on every call, so the engine holds no
// per-session state and needs no lock of its own. Prices are read from
// the market store under its lock and the lock is released before the
// session's portfolio is touched.
package command

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/exchange/alert"
	"github.com/rustyeddy/exchange/internal/id"
	"github.com/rustyeddy/exchange/journal"
	"github.com/rustyeddy/exchange/market"
	"github.com/rustyeddy/exchange/portfolio"
	"go.uber.org/zap"
)

// Session is one connected client's trading state.
type Session struct {
	ID        int
	Username  string
	Portfolio *portfolio.Portfolio
	Alerts    *alert.Book
	// DefaultThreshold applies to SUBSCRIBE without a threshold.
	DefaultThreshold float64
}

// NewSession returns a funded session named User<id> with every
// subscription inactive.
func NewSession(sessionID int, store *market.Store, balance, threshold float64) *Session {
	return &Session{
		ID:               sessionID,
		Username:         fmt.Sprintf("User%d", sessionID),
		Portfolio:        portfolio.New(balance),
		Alerts:           alert.NewBook(store.Symbols()),
		DefaultThreshold: threshold,
	}
}

// Result is the reply to one line. Text never includes the prompt.
type Result struct {
	Text string
	// Quit is set once QUIT is processed; Text is then the closing sentinel.
	Quit bool
}

type Engine struct {
	store   *market.Store
	journal journal.Journal
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine returns an engine trading against store. A nil journal
// records nothing.
func NewEngine(store *market.Store, j journal.Journal, logger *zap.Logger) *Engine {
	if j == nil {
		j = journal.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		journal: j,
		logger:  logger,
		now:     time.Now,
	}
}

// Execute parses and runs one line for s. Errors become ERROR replies;
// nothing is returned to the caller's loop.
func (e *Engine) Execute(s *Session, line string) Result {
	cmd, ok, err := Parse(line)
	if !ok {
		return Result{}
	}
	if err != nil {
		return Result{Text: Invalid}
	}

	switch cmd.Verb {
	case Buy:
		return Result{Text: e.buy(s, cmd.Symbol, cmd.Quantity)}
	case Sell:
		return Result{Text: e.sell(s, cmd.Symbol, cmd.Quantity)}
	case Portfolio:
		return Result{Text: e.portfolio(s)}
	case Available:
		return Result{Text: e.available()}
	case Subscribe:
		threshold := s.DefaultThreshold
		if cmd.HasThreshold {
			threshold = cmd.Threshold
		}
		return Result{Text: e.subscribe(s, cmd.Symbol, threshold)}
	case Help:
		return Result{Text: helpText}
	case Quit:
		return Result{Text: Closing, Quit: true}
	}
	return Result{Text: Invalid}
}

func (e *Engine) buy(s *Session, symbol string, qty int) string {
	if qty <= 0 {
		return errorf("Invalid quantity")
	}

	in, err := e.store.Lookup(symbol)
	if err != nil {
		return errorf("Stock %s not found", symbol)
	}

	fill, err := s.Portfolio.Buy(in.Symbol, in.Price, qty)
	if err != nil {
		var fe *portfolio.FundsError
		if errors.As(err, &fe) {
			return errorf("Insufficient funds. Need $%.2f, have $%.2f", fe.Need, fe.Have)
		}
		return errorf("%v", err)
	}

	e.logger.Info("trade",
		zap.String("user", s.Username),
		zap.String("side", string(fill.Side)),
		zap.Int("qty", fill.Quantity),
		zap.String("symbol", fill.Symbol),
		zap.Float64("price", fill.Price),
	)
	e.record(s, fill)

	return fmt.Sprintf("\n✓ BOUGHT %d shares of %s at $%.2f\n"+
		"Total cost: $%.2f\n"+
		"Remaining balance: $%.2f\n\n",
		fill.Quantity, fill.Symbol, fill.Price, fill.Amount, fill.Wallet)
}

func (e *Engine) sell(s *Session, symbol string, qty int) string {
	if qty <= 0 {
		return errorf("Invalid quantity")
	}

	h, ok := s.Portfolio.Holding(symbol)
	if !ok {
		return errorf("You don't own %s", symbol)
	}
	if qty > h.Quantity {
		return errorf("You only have %d shares of %s", h.Quantity, h.Symbol)
	}

	in, err := e.store.Lookup(h.Symbol)
	if err != nil {
		return errorf("Stock %s not found", h.Symbol)
	}

	fill, err := s.Portfolio.Sell(h.Symbol, in.Price, qty)
	if err != nil {
		return errorf("%v", err)
	}

	e.logger.Info("trade",
		zap.String("user", s.Username),
		zap.String("side", string(fill.Side)),
		zap.Int("qty", fill.Quantity),
		zap.String("symbol", fill.Symbol),
		zap.Float64("price", fill.Price),
		zap.Float64("pl", fill.RealizedPL),
	)
	e.record(s, fill)

	return fmt.Sprintf("\n✓ SOLD %d shares of %s at $%.2f\n"+
		"Proceeds: $%.2f\n"+
		"Profit/Loss: %s$%.2f (%.2f%%)\n"+
		"New balance: $%.2f\n\n",
		fill.Quantity, fill.Symbol, fill.Price,
		fill.Amount,
		plus(fill.RealizedPL), fill.RealizedPL, fill.PLPercent(),
		fill.Wallet)
}

// record journals the fill and the equity after it. Journal failures
// are logged and never undo the trade.
func (e *Engine) record(s *Session, fill portfolio.Fill) {
	at := e.now().UTC()

	err := e.journal.RecordTrade(journal.TradeRecord{
		TradeID:    id.At(at),
		SessionID:  s.ID,
		Username:   s.Username,
		Symbol:     fill.Symbol,
		Side:       string(fill.Side),
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Amount:     fill.Amount,
		RealizedPL: fill.RealizedPL,
		Time:       at,
	})
	if err != nil {
		e.logger.Warn("journal trade", zap.String("user", s.Username), zap.Error(err))
	}

	err = e.journal.RecordEquity(journal.EquitySnapshot{
		Time:      at,
		SessionID: s.ID,
		Username:  s.Username,
		Wallet:    s.Portfolio.Wallet(),
		Invested:  s.Portfolio.TotalInvested(),
		Holdings:  len(s.Portfolio.Holdings()),
	})
	if err != nil {
		e.logger.Warn("journal equity", zap.String("user", s.Username), zap.Error(err))
	}
}

func (e *Engine) portfolio(s *Session) string {
	var b strings.Builder
	b.WriteString("\n╔══════════════════════════════════════════════════╗\n")
	fmt.Fprintf(&b, "║           PORTFOLIO - %s%-24s║\n", s.Username, "")
	b.WriteString("╚══════════════════════════════════════════════════╝\n")
	fmt.Fprintf(&b, "💰 Wallet: $%.2f\n", s.Portfolio.Wallet())

	if len(s.Portfolio.Holdings()) == 0 {
		fmt.Fprintf(&b, "📊 Invested: $%.2f\n\n", 0.0)
		b.WriteString("No holdings. Use BUY command to purchase stocks.\n")
		b.WriteString("\n")
		return b.String()
	}

	// One snapshot prices every holding.
	snap := e.store.Snapshot()
	v := s.Portfolio.Value(func(symbol string) (float64, bool) {
		in, ok := snap.Find(symbol)
		return in.Price, ok
	})

	b.WriteString("Holdings:\n")
	fmt.Fprintf(&b, "%-6s | Qty | Avg Buy | Current | Value    | P/L\n", "Stock")
	b.WriteString("--------------------------------------------------------\n")
	for _, p := range v.Positions {
		fmt.Fprintf(&b, "%-6s | %3d | $%6.2f | $%6.2f | $%7.2f | %s%.2f%%\n",
			p.Symbol, p.Quantity, p.AvgBuyPrice, p.Price, p.Value, plus(p.PL), p.PLPercent)
	}
	b.WriteString("--------------------------------------------------------\n")
	fmt.Fprintf(&b, "📊 Total Invested Cost: $%.2f\n", v.Cost)
	fmt.Fprintf(&b, "Portfolio Market Value: $%.2f\n", v.MarketValue)
	fmt.Fprintf(&b, "Total P/L: %s$%.2f\n", plus(v.PL), v.PL)
	b.WriteString("\n")
	return b.String()
}

func (e *Engine) available() string {
	snap := e.store.Snapshot()

	var b strings.Builder
	b.WriteString("\n═══════ AVAILABLE STOCKS (Simulated) ═══════\n")
	fmt.Fprintf(&b, "%-6s | %-8s | %-6s\n", "Symbol", "Price", "Change")
	b.WriteString("----------------------------------------\n")
	for _, in := range snap.Instruments {
		fmt.Fprintf(&b, "%-6s | $%8.2f | %+.2f%%\n", in.Symbol, in.Price, in.ChangePercent)
	}
	b.WriteString("════════════════════════════════════════\n")
	return b.String()
}

func (e *Engine) subscribe(s *Session, symbol string, threshold float64) string {
	if _, err := e.store.Lookup(symbol); err != nil {
		return errorf("Stock %s not found", symbol)
	}
	if threshold <= 0 {
		return errorf("Threshold must be positive.")
	}
	if err := s.Alerts.Subscribe(symbol, threshold); err != nil {
		return errorf("Stock %s not found", symbol)
	}
	return fmt.Sprintf("✓ Subscribed to %s for price changes of %.1f%% or more.\n", symbol, threshold)
}
