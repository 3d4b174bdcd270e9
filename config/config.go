package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/exchange/journal"
	"github.com/rustyeddy/exchange/market"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. EXCHANGE_SERVER_ADDR.
const EnvPrefix = "EXCHANGE"

// Config represents the complete server configuration
type Config struct {
	Server  ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
	Market  MarketConfig   `json:"market" yaml:"market" mapstructure:"market"`
	Account AccountConfig  `json:"account" yaml:"account" mapstructure:"account"`
	Log     LogConfig      `json:"log" yaml:"log" mapstructure:"log"`
	Journal journal.Config `json:"journal" yaml:"journal" mapstructure:"journal"`
	Feed    FeedConfig     `json:"feed" yaml:"feed" mapstructure:"feed"`
}

// ServerConfig contains listener and session parameters
type ServerConfig struct {
	Addr         string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	MaxSessions  int           `json:"max_sessions" yaml:"max_sessions" mapstructure:"max_sessions"`
	AcceptPoll   time.Duration `json:"accept_poll" yaml:"accept_poll" mapstructure:"accept_poll"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	// IdleTimeout closes a session that sends nothing for this long. Zero disables it.
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// MarketConfig contains the instrument listing and simulator parameters
type MarketConfig struct {
	TickInterval       time.Duration      `json:"tick_interval" yaml:"tick_interval" mapstructure:"tick_interval"`
	MaxMovePercent     float64            `json:"max_move_pct" yaml:"max_move_pct" mapstructure:"max_move_pct"`
	MaxChangesPerTick  int                `json:"max_changes_per_tick" yaml:"max_changes_per_tick" mapstructure:"max_changes_per_tick"`
	PriceFloor         float64            `json:"price_floor" yaml:"price_floor" mapstructure:"price_floor"`
	FloorResetMultiple float64            `json:"floor_reset_multiple" yaml:"floor_reset_multiple" mapstructure:"floor_reset_multiple"`
	CeilingMultiple    float64            `json:"ceiling_multiple" yaml:"ceiling_multiple" mapstructure:"ceiling_multiple"`
	ResetMultiple      float64            `json:"reset_multiple" yaml:"reset_multiple" mapstructure:"reset_multiple"`
	Instruments        []InstrumentConfig `json:"instruments" yaml:"instruments" mapstructure:"instruments"`
}

// InstrumentConfig lists one tradable symbol at its base price
type InstrumentConfig struct {
	Symbol string  `json:"symbol" yaml:"symbol" mapstructure:"symbol"`
	Price  float64 `json:"price" yaml:"price" mapstructure:"price"`
}

// AccountConfig contains per-session account parameters
type AccountConfig struct {
	InitialBalance   float64 `json:"initial_balance" yaml:"initial_balance" mapstructure:"initial_balance"`
	DefaultThreshold float64 `json:"default_threshold" yaml:"default_threshold" mapstructure:"default_threshold"`
}

// LogConfig contains log sink parameters
type LogConfig struct {
	File  string `json:"file" yaml:"file" mapstructure:"file"` // empty logs to the console only
	Level string `json:"level" yaml:"level" mapstructure:"level"`
}

// FeedConfig enables the optional market fan-out. Empty addresses disable it.
type FeedConfig struct {
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	WSAddr    string `json:"ws_addr,omitempty" yaml:"ws_addr,omitempty" mapstructure:"ws_addr"`
	// RedisTimeout bounds each tick's write to Redis.
	RedisTimeout time.Duration `json:"redis_timeout" yaml:"redis_timeout" mapstructure:"redis_timeout"`
}

// Default returns the stock exchange configuration
func Default() *Config {
	bounds := market.DefaultBounds()

	cfg := &Config{
		Server: ServerConfig{
			Addr:         ":8888",
			MaxSessions:  10,
			AcceptPoll:   time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Market: MarketConfig{
			TickInterval:       3 * time.Second,
			MaxMovePercent:     3.0,
			MaxChangesPerTick:  2,
			PriceFloor:         bounds.Floor,
			FloorResetMultiple: bounds.FloorReset,
			CeilingMultiple:    bounds.Ceiling,
			ResetMultiple:      bounds.CeilingReset,
		},
		Account: AccountConfig{
			InitialBalance:   100000,
			DefaultThreshold: 5.0,
		},
		Log: LogConfig{
			File:  "server.log",
			Level: "info",
		},
		Journal: journal.Config{Type: "none"},
		Feed:    FeedConfig{RedisTimeout: time.Second},
	}

	for _, in := range market.DefaultInstruments() {
		cfg.Market.Instruments = append(cfg.Market.Instruments, InstrumentConfig{
			Symbol: in.Symbol,
			Price:  in.Price,
		})
	}
	return cfg
}

// Listing converts the configured instruments into the market's form.
func (m MarketConfig) Listing() []market.Instrument {
	out := make([]market.Instrument, 0, len(m.Instruments))
	for _, ic := range m.Instruments {
		out = append(out, market.NewInstrument(ic.Symbol, ic.Price))
	}
	return out
}

// Bounds returns the clamp rules applied after every price move.
func (m MarketConfig) Bounds() market.Bounds {
	return market.Bounds{
		Floor:        m.PriceFloor,
		FloorReset:   m.FloorResetMultiple,
		Ceiling:      m.CeilingMultiple,
		CeilingReset: m.ResetMultiple,
	}
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// parse decodes data over the defaults so a partial file only overrides
// what it names.
func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", jerr)
		}
	}
	return cfg, nil
}

// Load builds the effective configuration: an optional .env file, then
// the config file at path (defaults when path is empty), then EXCHANGE_*
// environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if cfg, err = parse(data); err != nil {
			return nil, err
		}
	}

	if err := overlayEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func overlayEnv(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Optional keys left out by omitempty still accept overrides.
	for _, key := range []string{
		"journal.db_path", "journal.trades_file", "journal.equity_file",
		"journal.kafka_brokers", "journal.kafka_topic",
		"feed.redis_addr", "feed.ws_addr",
	} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("apply environment: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxSessions < 1 {
		return fmt.Errorf("server.max_sessions must be at least 1")
	}
	if c.Server.AcceptPoll <= 0 {
		return fmt.Errorf("server.accept_poll must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}
	if c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server.idle_timeout must not be negative")
	}
	if c.Feed.RedisAddr != "" && c.Feed.RedisTimeout <= 0 {
		return fmt.Errorf("feed.redis_timeout must be positive when feed.redis_addr is set")
	}

	m := c.Market
	if m.TickInterval <= 0 {
		return fmt.Errorf("market.tick_interval must be positive")
	}
	if m.MaxMovePercent <= 0 {
		return fmt.Errorf("market.max_move_pct must be positive")
	}
	if m.MaxChangesPerTick < 1 {
		return fmt.Errorf("market.max_changes_per_tick must be at least 1")
	}
	if m.PriceFloor <= 0 || m.FloorResetMultiple <= 0 || m.CeilingMultiple <= 0 || m.ResetMultiple <= 0 {
		return fmt.Errorf("market price bounds must be positive")
	}
	if len(m.Instruments) == 0 {
		return fmt.Errorf("market.instruments must list at least one instrument")
	}
	seen := map[string]bool{}
	for _, in := range m.Instruments {
		sym := strings.ToUpper(strings.TrimSpace(in.Symbol))
		if sym == "" {
			return fmt.Errorf("market.instruments: empty symbol")
		}
		if seen[sym] {
			return fmt.Errorf("market.instruments: duplicate symbol %s", sym)
		}
		seen[sym] = true
		if in.Price < m.PriceFloor {
			return fmt.Errorf("market.instruments: %s price %.2f below price_floor", sym, in.Price)
		}
	}

	if c.Account.InitialBalance <= 0 {
		return fmt.Errorf("account.initial_balance must be positive")
	}
	if c.Account.DefaultThreshold <= 0 {
		return fmt.Errorf("account.default_threshold must be positive")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}

	j := c.Journal
	switch j.Type {
	case "", "none":
	case "sqlite":
		if j.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite type")
		}
	case "csv":
		if j.TradesFile == "" || j.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "kafka":
		if len(j.KafkaBrokers) == 0 || j.KafkaTopic == "" {
			return fmt.Errorf("journal kafka_brokers and kafka_topic required for kafka type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv', 'sqlite' or 'kafka'")
	}

	return nil
}
