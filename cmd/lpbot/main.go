package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/dappvibe/defi-lp-manager/internal/chain"
	"github.com/dappvibe/defi-lp-manager/internal/config"
	"github.com/dappvibe/defi-lp-manager/internal/dex"
	"github.com/dappvibe/defi-lp-manager/internal/monitor"
	"github.com/dappvibe/defi-lp-manager/internal/pool"
	"github.com/dappvibe/defi-lp-manager/internal/storage"
	"github.com/dappvibe/defi-lp-manager/internal/storage/postgres"
	"github.com/dappvibe/defi-lp-manager/internal/telegram"
)

// PancakeSwap V3 on BSC.
const (
	defaultPositionManager = "0x46A15B0b27311cedF172AB29E4f4766fbE7F4364"
	defaultFactory         = "0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865"
	defaultStaking         = "0x556B9306565093C855AEA9AE92A594704c2Cd59e"
	defaultExplorer        = "https://bscscan.com"
)

func main() {
	root := &cobra.Command{
		Use:          "lpbot",
		Short:        "Telegram bot for V3 liquidity monitoring",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot",
		RunE:  runBot,
	}

	runCmd.Flags().String("rpc", "", "EVM RPC URL (websocket required for live events)")
	runCmd.Flags().String("telegram-token", "", "Telegram bot token")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN, empty keeps state in memory")
	runCmd.Flags().String("position-manager", defaultPositionManager, "NonfungiblePositionManager address")
	runCmd.Flags().String("factory", defaultFactory, "V3 factory address")
	runCmd.Flags().String("staking", defaultStaking, "MasterChef V3 address, empty disables staking lookups")
	runCmd.Flags().String("explorer-url", defaultExplorer, "block explorer base URL for message links")
	runCmd.Flags().StringSlice("pool", nil, "pool addresses to track at startup (comma-separated)")
	runCmd.Flags().StringSlice("wallet", nil, "wallet addresses to watch at startup (comma-separated)")
	runCmd.Flags().Int64("chat-id", 0, "chat for startup pools and wallets")
	runCmd.Flags().Int("rate-limit", 30, "max outgoing messages per second")
	runCmd.Flags().Duration("min-edit-interval", 3*time.Second, "minimum gap between edits of one message")
	runCmd.Flags().Duration("pool-state-ttl", 5*time.Second, "pool state cache lifetime")
	runCmd.Flags().Duration("wallet-poll", time.Minute, "wallet rescan interval")
	runCmd.Flags().Float64("dust-threshold", 0.1, "minimum position value in quote token units")
	runCmd.Flags().Int("max-retries", 5, "subscription retry attempts before giving up")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial subscription retry backoff")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	manager, err := parseAddress(cfg.PositionManager, "position-manager")
	if err != nil {
		return err
	}
	factory, err := parseAddress(cfg.Factory, "factory")
	if err != nil {
		return err
	}
	var staking common.Address
	if cfg.Staking != "" {
		if staking, err = parseAddress(cfg.Staking, "staking"); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}

	var store storage.Store
	if cfg.PostgresDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
	} else {
		logger.Warn("no pg-dsn configured, tracked state will not survive restarts")
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	bot, err := telegram.NewBot(cfg.TelegramToken, logger)
	if err != nil {
		return fmt.Errorf("connect telegram: %w", err)
	}

	throttled := telegram.NewThrottled(bot, cfg.RateLimit, cfg.MinEditInterval)
	engine := monitor.NewEngine(throttled, store, logger)
	accessor := pool.NewAccessor(chainClient, chainID.Uint64(), cfg.PoolStateTTL, logger)
	fetcher := dex.NewPositionFetcher(chainClient, manager, factory, staking, logger)

	service, err := monitor.NewService(monitor.Config{
		ExplorerURL:  cfg.ExplorerURL,
		Dust:         decimal.NewFromFloat(cfg.DustThreshold),
		WalletPoll:   cfg.WalletPoll,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, store, accessor, fetcher, chainClient, engine, throttled, logger)
	if err != nil {
		return err
	}

	logger.Info("bot start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("chain_id", chainID.Uint64()),
		zap.Bool("persistent", cfg.PostgresDSN != ""),
		zap.Int("rate_limit", cfg.RateLimit),
		zap.Duration("wallet_poll", cfg.WalletPoll),
	)

	if err := service.Start(ctx); err != nil {
		return err
	}
	defer service.Stop()

	if err := seed(ctx, cmd, cfg, service, logger); err != nil {
		return err
	}

	router := telegram.NewRouter(bot, throttled, service, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return router.Run(groupCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("bot stopped")
	return nil
}

// seed registers pools and wallets listed in the configuration. They
// need a chat to report into, so without chat-id they are skipped.
func seed(ctx context.Context, cmd *cobra.Command, cfg config.Config, service *monitor.Service, logger *zap.Logger) error {
	if len(cfg.Pools) == 0 && len(cfg.Wallets) == 0 {
		return nil
	}

	chatID, _ := cmd.Flags().GetInt64("chat-id")
	if chatID == 0 {
		logger.Warn("pool/wallet config present but no chat-id set, skipping startup tracking")
		return nil
	}

	for _, raw := range cfg.Pools {
		addr, err := parseAddress(raw, "pool")
		if err != nil {
			return err
		}
		if err := service.TrackPool(ctx, chatID, addr); err != nil {
			return fmt.Errorf("track pool %s: %w", raw, err)
		}
	}
	for _, raw := range cfg.Wallets {
		addr, err := parseAddress(raw, "wallet")
		if err != nil {
			return err
		}
		if err := service.WatchWallet(ctx, chatID, addr); err != nil {
			return fmt.Errorf("watch wallet %s: %w", raw, err)
		}
	}
	return nil
}

func parseAddress(raw, name string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
