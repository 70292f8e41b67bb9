package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"igrelay/internal/bot"
	"igrelay/internal/web"
	"igrelay/pkg/accounts"
	"igrelay/pkg/auth"
	"igrelay/pkg/config"
	"igrelay/pkg/instagram"
	"igrelay/pkg/logger"
	"igrelay/pkg/ratelimit"
	"igrelay/pkg/relay"
	"igrelay/pkg/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot and the keep-alive web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to set up credential storage: %w", err)
	}

	pool, err := accounts.NewManager(&cfg.Accounts, creds, log)
	if err != nil {
		return fmt.Errorf("failed to load rotation pool: %w", err)
	}

	igSessions := instagram.NewSessionStore(cfg.Instagram.SessionDir, log)

	staging, err := storage.NewManager(&cfg.Download, cfg.Telegram.MaxFileSize, log)
	if err != nil {
		return fmt.Errorf("failed to set up media staging: %w", err)
	}
	if err := staging.Sweep(); err != nil {
		log.WithError(err).Warn("failed to sweep stale staging directories")
	}

	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	rel := relay.New(cfg, pool, igSessions, staging, limiter, log)

	tgBot, err := bot.New(cfg, rel, pool, igSessions, log)
	if err != nil {
		return err
	}

	webErr := make(chan error, 1)
	if cfg.Web.Enabled {
		server := web.New(&cfg.Web, log)
		server.SetBotName(tgBot.Username())
		go func() {
			webErr <- server.Run(ctx)
		}()
	}

	log.InfoWithFields("starting bot", map[string]interface{}{
		"version": version,
	})

	runErr := tgBot.Run(ctx)
	stop()

	if cfg.Web.Enabled {
		if err := <-webErr; err != nil && ctx.Err() == nil {
			return err
		}
	}

	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	log.Info("shutdown complete")
	return nil
}
