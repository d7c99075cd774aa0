package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zapleopard/campaign-dispatcher/internal/config"
	"github.com/zapleopard/campaign-dispatcher/internal/db"
	"github.com/zapleopard/campaign-dispatcher/internal/dispatcher"
	"github.com/zapleopard/campaign-dispatcher/internal/events"
	"github.com/zapleopard/campaign-dispatcher/internal/logging"
	"github.com/zapleopard/campaign-dispatcher/internal/provider"
	"github.com/zapleopard/campaign-dispatcher/internal/repository"
)

func main() {
	// A missing .env is fine in containers; the environment is already set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("load config: " + err.Error())
	}
	logger := logging.New(cfg.Env)

	conn, err := db.Connect(cfg.DSN())
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	defer conn.Close()

	sender, err := provider.FromConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("build channel provider")
	}
	logger.Info().Str("provider", cfg.Provider).Msg("channel provider ready")

	var emitter events.Emitter
	emitter, err = events.NewAMQPEmitter(cfg.AMQPURL)
	if err != nil {
		if cfg.Env != "development" {
			logger.Fatal().Err(err).Msg("connect to AMQP broker")
		}
		logger.Warn().Err(err).Msg("AMQP broker unavailable, using in-memory emitter")
		emitter = events.NewMemoryEmitter()
	}
	defer emitter.Close()

	d := dispatcher.New(
		&repository.CampaignRepository{DB: conn},
		&repository.CampaignContactRepository{DB: conn},
		&repository.CustomerRepository{DB: conn},
		sender,
		emitter,
		dispatcher.Config{
			PollInterval:    cfg.PollInterval,
			MinSendDelay:    cfg.MinSendDelay,
			MaxSendDelay:    cfg.MaxSendDelay,
			MaxSendAttempts: cfg.MaxSendAttempts,
			StaleClaimAfter: cfg.StaleClaimAfter,
		},
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d.Run(ctx)
}
