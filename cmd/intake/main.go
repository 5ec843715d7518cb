package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/interactive-solutions/go-intake/cmd/intake/command"
	"github.com/interactive-solutions/go-intake/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	const description = "Lead intake relay"
	root := &cobra.Command{Short: description}

	cfg, err := config.Load()
	if err != nil {
		log.WithContext(ctx).Fatal(err)
	}

	logger := log.New()
	logger.SetLevel(cfg.LogLevel)
	if cfg.AppEnv == config.ProductionEnv {
		logger.SetFormatter(&log.JSONFormatter{})
	}

	root.AddCommand(
		command.Serve{Logger: logger}.Command(ctx, cfg),
		command.Migrate{Logger: logger}.Command(ctx, cfg),
	)

	if err := root.Execute(); err != nil {
		logger.WithContext(ctx).Fatalf("failed to execute root command: \n%v", err)
	}
}
