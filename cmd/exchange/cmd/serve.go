package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rustyeddy/exchange/command"
	"github.com/rustyeddy/exchange/config"
	"github.com/rustyeddy/exchange/feed"
	"github.com/rustyeddy/exchange/journal"
	"github.com/rustyeddy/exchange/logging"
	"github.com/rustyeddy/exchange/market"
	"github.com/rustyeddy/exchange/server"
	"github.com/rustyeddy/exchange/sim"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the exchange server",
	Long: `Run the trading server until interrupted.

Settings come from the config file when given, then EXCHANGE_* environment
variables (a .env file in the working directory is loaded first).

Example:
  exchange serve -f exchange.yaml
  EXCHANGE_SERVER_ADDR=:9000 exchange serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveConfigPath string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logger.Sync()

	logger.Info("===== SERVER STARTING =====")
	defer logger.Info("===== SERVER STOPPED =====")

	store, err := market.NewStore(cfg.Market.Listing(), cfg.Market.Bounds())
	if err != nil {
		return fmt.Errorf("market: %w", err)
	}
	logger.Info("market initialized", zap.Int("instruments", store.Len()))

	j, err := journal.Open(cfg.Journal, logger)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simulator := sim.NewEngine(store, sim.Options{
		Interval:          cfg.Market.TickInterval,
		MaxMovePercent:    cfg.Market.MaxMovePercent,
		MaxChangesPerTick: cfg.Market.MaxChangesPerTick,
	}, nil, logger)

	srv := server.New(server.OptionsFrom(cfg), store, command.NewEngine(store, j, logger), logger)
	srv.AddService(simulator)

	if cfg.Feed.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Feed.RedisAddr})
		defer rdb.Close()

		mirror := feed.NewRedisMirror(rdb, time.Hour, cfg.Feed.RedisTimeout, logger)
		if err := mirror.Seed(ctx, store.Snapshot()); err != nil {
			logger.Warn("redis mirror seed", zap.Error(err))
		}
		simulator.AddListener(mirror)
		logger.Info("redis mirror enabled", zap.String("addr", cfg.Feed.RedisAddr))
	}

	if cfg.Feed.WSAddr != "" {
		srv.AddService(feed.NewWSServer(cfg.Feed.WSAddr, store, logger))
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server failed", zap.Error(err))
		return err
	}
	logger.Info("shutdown signal received")
	return nil
}
