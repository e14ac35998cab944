package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dragonbet/casino/internal/config"
	"github.com/dragonbet/casino/internal/crash"
	"github.com/dragonbet/casino/internal/fair"
	"github.com/dragonbet/casino/internal/games"
	"github.com/dragonbet/casino/internal/kvstore"
	"github.com/dragonbet/casino/internal/server"
	"github.com/dragonbet/casino/internal/wallet"
)

// ServerCmd runs the casino: round manager, ledger, seed store, and the
// websocket/HTTP front.
type ServerCmd struct {
	Config string `kong:"default='casino.hcl',help='Path to HCL configuration file'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if c.Debug {
		level = "debug"
	}
	logger := setupLogger(level)

	store, err := kvstore.Open(cfg.Wallet.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ledger, err := wallet.NewLedger(cfg.WalletConfig(), wallet.NewKVJournal(store), logger)
	if err != nil {
		return err
	}
	seeds := fair.NewStore(fair.NewKVArchive(store), logger)
	instant := games.NewService(cfg.GamesConfig(), ledger, seeds, logger)

	if cfg.Server.JWTSecret == "" {
		logger.Warn("No jwt_secret configured, sessions use an ephemeral secret")
		cfg.Server.JWTSecret = fair.NewSecret()
	}
	if cfg.Server.IntegrationKey == "" {
		logger.Warn("No integration_key configured, integration surface is disabled")
	}

	srv := server.NewServer(cfg.ServerAddress(), cfg.Server.JWTSecret, cfg.Server.IntegrationKey, server.Deps{
		Ledger: ledger,
		Seeds:  seeds,
		Games:  instant,
	}, logger)

	manager := crash.NewManager(cfg.CrashConfig(), ledger, nil, server.NewBridge(srv, logger), logger)
	srv.SetManager(manager)

	logger.Info("Starting casino",
		"addr", cfg.ServerAddress(),
		"tracks", cfg.Crash.Tracks,
		"house_hash", manager.HouseCommitment(),
		"data_dir", cfg.Wallet.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(ctx)
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down casino")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
