package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zulandar/coursereel/internal/authoring"
	"github.com/zulandar/coursereel/internal/config"
	"github.com/zulandar/coursereel/internal/db"
	"github.com/zulandar/coursereel/internal/events"
	"github.com/zulandar/coursereel/internal/logging"
	"github.com/zulandar/coursereel/internal/metrics"
	"github.com/zulandar/coursereel/internal/notify"
	"github.com/zulandar/coursereel/internal/notify/discord"
	"github.com/zulandar/coursereel/internal/notify/slack"
	"github.com/zulandar/coursereel/internal/pipeline"
	"github.com/zulandar/coursereel/internal/review"
	"github.com/zulandar/coursereel/internal/server"
	"github.com/zulandar/coursereel/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authoring API server",
		Long: `Starts the HTTP API, the generation executor, and the review synchronizer.

Items whose generation job was interrupted by the previous shutdown are
marked failed on startup and can be retried.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides config)")
	return cmd
}

func runServe(ctx context.Context, configPath string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := logging.New(cfg.LogOptions())
	if err != nil {
		return err
	}
	log := logging.Component(logger, "serve")

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if err := db.SeedCatalog(gormDB, cfg.ToCatalog()); err != nil {
		return err
	}
	catalogData, err := db.LoadCatalog(gormDB)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	bus := events.NewBus()

	st := store.New(store.Options{
		Catalog: catalogData,
		Rules:   cfg.Rules(),
		Repo:    db.NewItemRepository(gormDB),
		Bus:     bus,
		Logger:  logger,
	})
	if err := st.Load(ctx); err != nil {
		return err
	}

	gen := pipeline.NewSimulator(
		cfg.Pipeline.Tick,
		cfg.Pipeline.MinStep,
		cfg.Pipeline.MaxStep,
		cfg.Pipeline.FailureRate,
		cfg.Pipeline.MediaBaseURL,
		uint64(time.Now().UnixNano()),
	)
	executor := pipeline.NewExecutor(pipeline.Options{
		Store:     st,
		Generator: gen,
		Timeout:   cfg.Pipeline.Timeout,
		Metrics:   m,
		Logger:    logger,
	})
	defer executor.Close()

	ledger := review.NewLedger(gormDB)
	notifier, err := buildNotifier(cfg.Notify, logger)
	if err != nil {
		return err
	}

	svc := authoring.New(authoring.Options{
		Store:    st,
		Executor: executor,
		Reviews:  ledger,
		Notifier: notifier,
		Metrics:  m,
		Logger:   logger,
	})

	sync := review.NewSynchronizer(review.SyncOptions{
		Ledger:   ledger,
		Target:   st,
		Interval: cfg.Review.SyncInterval,
		Metrics:  m,
		Logger:   logger,
	})
	go sync.Run(ctx)

	if cfg.Review.DigestCron != "" {
		if !notifier.Enabled() {
			log.Warn("digest schedule set but no chat channel configured; digest disabled")
		} else {
			digest, err := notify.NewDigest(cfg.Review.DigestCron, ledger, notifier, logger)
			if err != nil {
				return err
			}
			digest.Start(ctx)
			log.WithField("schedule", cfg.Review.DigestCron).Info("review digest scheduled")
		}
	}

	return server.Start(ctx, server.Options{
		Service:  svc,
		Ledger:   ledger,
		Sync:     sync,
		Bus:      bus,
		Gatherer: reg,
		Port:     cfg.Server.Port,
		Logger:   logger,
	})
}

// buildNotifier creates adapters for every configured chat channel.
func buildNotifier(cfg config.NotifyConfig, logger *logrus.Logger) (*notify.Notifier, error) {
	var adapters []notify.Adapter
	if cfg.Slack.Enabled() {
		a, err := slack.New(slack.AdapterOpts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.ChannelID})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.Discord.Enabled() {
		a, err := discord.New(discord.AdapterOpts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return notify.New(logger, adapters...), nil
}
