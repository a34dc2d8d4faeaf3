package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chitragupta/chitragupta/gateway/internal/application"
	"github.com/chitragupta/chitragupta/gateway/internal/domain/service"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/config"
	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/logger"
)

var configPath string

// emptyRegistry serves until the CLI surface injects real providers.
type emptyRegistry struct{}

func (emptyRegistry) Get(string) (service.ProviderClient, bool) { return nil, false }
func (emptyRegistry) List() []service.ProviderClient            { return nil }

func main() {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "Chitragupta cognitive orchestration gateway",
		RunE:  run,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default ~/.chitragupta/config.yaml)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	app, err := application.New(cfg, log, application.Options{
		Providers: emptyRegistry{},
	})
	if err != nil {
		return err
	}
	defer app.Stop()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	log.Info("Gateway core running", zap.String("smriti_home", cfg.SmritiHome))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutting down")
	return nil
}
