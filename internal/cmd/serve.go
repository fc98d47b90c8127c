package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"keyshop-bot/internal/bot"
	"keyshop-bot/internal/config"
	"keyshop-bot/internal/handler"
	"keyshop-bot/internal/metrics"
	"keyshop-bot/internal/middleware"
	"keyshop-bot/internal/pkg/logging"
	"keyshop-bot/internal/router"
	"keyshop-bot/internal/service"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot and the payment webhook server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.App.Name, cfg.App.Environment, cfg.App.Debug || cfg.App.IsDevelopment())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	logger.Info("starting", zap.String("version", version), zap.String("app_version", cfg.App.Version), zap.String("env", cfg.App.Environment))

	repo, err := openRepository(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	defer func() { _ = repo.Close() }()
	logger.Info("store_initialized", zap.String("type", cfg.Store.Type))

	locker := openLocker(cfg.Lock, logger)
	defer func() { _ = locker.Close() }()

	m := metrics.New(prometheus.DefaultRegisterer)
	shop := service.NewShop(repo, locker, m)
	if stock, err := shop.Stock(context.Background()); err == nil {
		m.ObserveStock(stock)
	}

	// Discord
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	b := bot.New(session, shop, bot.Config{
		AppID:       cfg.Discord.ClientID,
		GuildID:     cfg.Discord.GuildID,
		AdminRoleID: cfg.Discord.AdminRoleID,
	}, logger)
	b.Attach(session)
	shop.SetNotifier(b)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to connect to discord: %w", err)
	}
	defer func() { _ = session.Close() }()

	sweeper := service.NewSweeper(shop, service.SweeperConfig{
		Interval:    cfg.Sweep.Interval,
		ExpireAfter: cfg.Sweep.ExpireAfter,
	}, logger)
	sweeper.Start()
	defer sweeper.Stop()

	// HTTP
	r := router.New(router.Config{
		Handler:        handler.New(cfg.App.Name, cfg.App.Version, repo),
		WebhookHandler: handler.NewWebhookHandler(shop, m),
		SecretMiddleware: middleware.NewSecretMiddleware(middleware.SecretConfig{
			Secret:   cfg.Payment.WebhookSecret,
			OnReject: func() { m.Webhook("forbidden") },
		}),
		Metrics: promhttp.Handler(),
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening", zap.String("addr", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting_down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server_error", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server_shutdown_failed", zap.Error(err))
	}

	logger.Info("stopped")
	return nil
}
