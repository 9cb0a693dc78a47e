package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/taskline/internal/config"
	"github.com/zulandar/taskline/internal/db"
	"github.com/zulandar/taskline/internal/logging"
	"github.com/zulandar/taskline/internal/telegraph"
	"go.uber.org/zap"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the Taskline bot",
		Long:  "Connects to the configured chat platform, answers messages and runs the reminder scheduler.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "taskline.yaml", "path to Taskline config file")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer logger.Sync()

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("signal received", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	p, err := newProvider(ctx, cfg.AI, logger.Named("ai"))
	if err != nil {
		return err
	}
	pl, err := newPipeline(p, cfg, logger)
	if err != nil {
		return err
	}

	adapter, err := newAdapter(cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}

	daemon, err := telegraph.NewDaemon(telegraph.DaemonOpts{
		DB:        gormDB,
		Config:    cfg,
		Adapter:   adapter,
		Extractor: pl.extractor,
		Audio:     pl.audio,
		Image:     pl.image,
		Logger:    logger.Named("telegraph"),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Taskline %s starting on %s\n", Version, cfg.Platform)
	return daemon.Run(ctx)
}
