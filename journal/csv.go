package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// CSV appends trades and equity snapshots to two files. Every session
// records through the same CSV, so writes are serialized.
type CSV struct {
	mu     sync.Mutex
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

var (
	tradeHeader  = []string{"trade_id", "session_id", "username", "symbol", "side", "quantity", "price", "amount", "realized_pl", "time"}
	equityHeader = []string{"time", "session_id", "username", "wallet", "invested", "holdings"}
)

func NewCSV(tradesPath, equityPath string) (*CSV, error) {
	if tradesPath == "" || equityPath == "" {
		return nil, fmt.Errorf("open csv journal: trades and equity paths are required")
	}

	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	j := &CSV{
		trades: csv.NewWriter(tf),
		equity: csv.NewWriter(ef),
		tf:     tf,
		ef:     ef,
	}
	if err := writeRow(j.trades, tradeHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if err := writeRow(j.equity, equityHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	return j, nil
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return writeRow(j.trades, []string{
		t.TradeID,
		strconv.Itoa(t.SessionID),
		t.Username,
		t.Symbol,
		t.Side,
		strconv.Itoa(t.Quantity),
		f(t.Price),
		f(t.Amount),
		f(t.RealizedPL),
		t.Time.UTC().Format(time.RFC3339Nano),
	})
}

func (j *CSV) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return writeRow(j.equity, []string{
		e.Time.UTC().Format(time.RFC3339Nano),
		strconv.Itoa(e.SessionID),
		e.Username,
		f(e.Wallet),
		f(e.Invested),
		strconv.Itoa(e.Holdings),
	})
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}
	return j.closeFiles()
}

func (j *CSV) closeFiles() error {
	err := j.tf.Close()
	if e := j.ef.Close(); err == nil {
		err = e
	}
	return err
}

func writeRow(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
