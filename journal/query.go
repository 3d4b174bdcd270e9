package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tradeColumns = `trade_id, session_id, username, symbol, side, quantity, price, amount, realized_pl, time`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.TradeID,
		&rec.SessionID,
		&rec.Username,
		&rec.Symbol,
		&rec.Side,
		&rec.Quantity,
		&rec.Price,
		&rec.Amount,
		&rec.RealizedPL,
		&rec.Time,
	)
	return rec, err
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesBetween returns trades filled within [start, end), oldest first.
func (j *SQLite) ListTradesBetween(start, end time.Time) ([]TradeRecord, error) {
	return j.listTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, trade_id ASC`, start.UTC(), end.UTC())
}

// ListTradesByUser returns every trade made by username, oldest first.
func (j *SQLite) ListTradesByUser(username string) ([]TradeRecord, error) {
	return j.listTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE username = ?
		ORDER BY time ASC, trade_id ASC`, username)
}

func (j *SQLite) listTrades(query string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityByUser returns every equity snapshot recorded for username.
func (j *SQLite) ListEquityByUser(username string) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, session_id, username, wallet, invested, holdings
		FROM equity
		WHERE username = ?
		ORDER BY time ASC`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Time, &e.SessionID, &e.Username, &e.Wallet, &e.Invested, &e.Holdings); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary totals realized P/L over a set of trades.
type Summary struct {
	Trades      int
	GrossProfit float64
	GrossLoss   float64
	NetPL       float64
}

func Summarize(trades []TradeRecord) Summary {
	var s Summary
	for _, t := range trades {
		s.Trades++
		switch {
		case t.RealizedPL > 0:
			s.GrossProfit += t.RealizedPL
		case t.RealizedPL < 0:
			s.GrossLoss += -t.RealizedPL
		}
	}
	s.NetPL = s.GrossProfit - s.GrossLoss
	return s
}
