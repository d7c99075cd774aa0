package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/zapleopard/campaign-dispatcher/internal/config"
	"github.com/zapleopard/campaign-dispatcher/internal/controller"
	"github.com/zapleopard/campaign-dispatcher/internal/db"
	"github.com/zapleopard/campaign-dispatcher/internal/events"
	"github.com/zapleopard/campaign-dispatcher/internal/logging"
	"github.com/zapleopard/campaign-dispatcher/internal/repository"
	"github.com/zapleopard/campaign-dispatcher/internal/service"
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
	logger.Info().Str("db", cfg.DBName).Msg("connected to database")

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

	customerRepo := &repository.CustomerRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}
	contactRepo := &repository.CampaignContactRepository{DB: conn}
	materializeStore := &repository.MaterializeStore{DB: conn}

	reconciler := &service.Reconciler{
		Customers:          customerRepo,
		DefaultCountryCode: cfg.DefaultCountryCode,
		Logger:             logger,
	}
	importer := &service.Importer{
		Campaigns:  campaignRepo,
		Store:      materializeStore,
		Reconciler: reconciler,
		Logger:     logger,
	}
	campaignService := &service.CampaignService{
		Campaigns: campaignRepo,
		Customers: customerRepo,
		Contacts:  contactRepo,
		Emitter:   emitter,
		Logger:    logger,
	}

	campaignController := &controller.CampaignController{
		Importer:  importer,
		Campaigns: campaignService,
		Logger:    logger,
	}
	webhookController := &controller.WebhookController{
		Campaigns: campaignService,
		Logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/import", campaignController.ImportContacts)
	r.Post("/campaigns/{id}/import", campaignController.ImportContacts)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)
	r.Post("/campaigns/{id}/personalized-preview", campaignController.PersonalizedPreview)
	r.Get("/campaigns/{id}/contacts", campaignController.ListContacts)
	r.Post("/webhooks/channel", webhookController.ChannelCallback)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("server running")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server stopped")
}
