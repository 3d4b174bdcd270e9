package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("open sqlite journal: empty path")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, session_id, username, symbol, side, quantity, price, amount, realized_pl, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.SessionID, t.Username, t.Symbol, t.Side,
		t.Quantity, t.Price, t.Amount, t.RealizedPL, t.Time.UTC(),
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, session_id, username, wallet, invested, holdings)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.SessionID, e.Username, e.Wallet, e.Invested, e.Holdings,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
