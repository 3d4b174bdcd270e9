// journal/journal.go
package journal

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TradeRecord is one executed BUY or SELL.
type TradeRecord struct {
	TradeID   string  `json:"trade_id"`
	SessionID int     `json:"session_id"`
	Username  string  `json:"username"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	// Amount is the cost of a BUY or the proceeds of a SELL.
	Amount     float64   `json:"amount"`
	RealizedPL float64   `json:"realized_pl"`
	Time       time.Time `json:"time"`
}

// EquitySnapshot is a session's wallet and invested total after a trade.
type EquitySnapshot struct {
	Time      time.Time `json:"time"`
	SessionID int       `json:"session_id"`
	Username  string    `json:"username"`
	Wallet    float64   `json:"wallet"`
	Invested  float64   `json:"invested"`
	Holdings  int       `json:"holdings"`
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards every record.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }

// Config selects and configures a journal sink.
type Config struct {
	Type         string   `json:"type" yaml:"type" mapstructure:"type"` // "none", "csv", "sqlite" or "kafka"
	DBPath       string   `json:"db_path,omitempty" yaml:"db_path,omitempty" mapstructure:"db_path"`
	TradesFile   string   `json:"trades_file,omitempty" yaml:"trades_file,omitempty" mapstructure:"trades_file"`
	EquityFile   string   `json:"equity_file,omitempty" yaml:"equity_file,omitempty" mapstructure:"equity_file"`
	KafkaBrokers []string `json:"kafka_brokers,omitempty" yaml:"kafka_brokers,omitempty" mapstructure:"kafka_brokers"`
	KafkaTopic   string   `json:"kafka_topic,omitempty" yaml:"kafka_topic,omitempty" mapstructure:"kafka_topic"`
}

// Open builds the journal named by cfg.Type. logger receives failures
// reported in the background by the kafka sink.
func Open(cfg Config, logger *zap.Logger) (Journal, error) {
	switch cfg.Type {
	case "", "none":
		return Nop{}, nil
	case "sqlite":
		return NewSQLite(cfg.DBPath)
	case "csv":
		return NewCSV(cfg.TradesFile, cfg.EquityFile)
	case "kafka":
		return NewKafka(NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)), nil
	default:
		return nil, fmt.Errorf("open journal: unknown type %q", cfg.Type)
	}
}
