package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guideforge/guideforge/internal/config"
	"github.com/guideforge/guideforge/internal/store"
	"github.com/guideforge/guideforge/pkg/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalf("reading configuration: %v", err)
		}

		logger := log.InitLog(cfg.Service.LogLevel)
		defer func() { _ = logger.Sync() }()

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

		zap.S().Named("main").Info("Db migrated")
		return nil
	},
}
