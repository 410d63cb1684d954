package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/guideforge/guideforge/internal/api_server"
	"github.com/guideforge/guideforge/internal/config"
	"github.com/guideforge/guideforge/internal/dispatch"
	"github.com/guideforge/guideforge/internal/generation"
	"github.com/guideforge/guideforge/internal/qualitygate"
	"github.com/guideforge/guideforge/internal/service"
	"github.com/guideforge/guideforge/internal/store"
	"github.com/guideforge/guideforge/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the guideforge api and dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalf("reading configuration: %v", err)
		}

		logger := log.InitLog(cfg.Service.LogLevel)
		defer func() { _ = logger.Sync() }()

		zap.S().Named("main").Info("Starting guideforge service")
		defer zap.S().Named("main").Info("Guideforge service stopped")

		zap.S().Named("main").Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Named("main").Fatalf("initializing data store: %v", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(); err != nil {
			zap.S().Named("main").Fatalf("running initial migration: %v", err)
		}

		governor := dispatch.NewRateGovernor(cfg.Queue.CallsPerWindow, cfg.Queue.RateWindow, cfg.Queue.CallsPerGuide)
		generator := generation.NewAnthropicGenerator(cfg.Provider.APIKey, cfg.Provider.Model, cfg.Provider.MaxTokens)
		publisher := service.NewPublishService(s, cfg.Queue.MaxErrorLength)
		dispatcher := dispatch.NewDispatcher(s, generator, qualitygate.NewDefaultChecker(), governor, publisher, dispatch.Config{
			ConcurrencyCap: cfg.Queue.ConcurrencyCap,
			JobsPerTick:    cfg.Queue.JobsPerTick,
			TickInterval:   cfg.Queue.TickInterval,
			MaxWaitPerTick: cfg.Queue.MaxWaitPerTick,
		})

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		go dispatcher.Run(ctx)

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Named("main").Fatalf("creating listener: %s", err)
			}

			server := apiserver.New(cfg, s, dispatcher, publisher, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Named("main").Fatalf("Error running server: %s", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Named("main").Fatalf("creating metrics listener: %s", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Named("main").Fatalf("Error running metrics server: %s", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
