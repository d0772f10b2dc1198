package main

import (
	"log"

	"go.uber.org/zap"

	"carelink-ws-server/internal/config"
	"carelink-ws-server/internal/logging"
	"carelink-ws-server/internal/metrics"
	"carelink-ws-server/internal/notify"
	"carelink-ws-server/internal/server"
	"carelink-ws-server/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("auth.jwt_secret is required")
	}

	pg, err := store.NewPostgresStore(cfg.Database, logger)
	if err != nil {
		logger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pg.Close()
	logger.Info("connected to postgres",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.NATS.Enabled {
		natsNotifier, err := notify.NewNATSNotifier(cfg.NATS, logger)
		if err != nil {
			logger.Fatal("nats connection failed", zap.Error(err))
		}
		defer natsNotifier.Close()
		notifier = natsNotifier
	}

	srv := server.NewServer(cfg, logger, pg, notifier, metrics.NewRegistry())
	if err := srv.Start(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
