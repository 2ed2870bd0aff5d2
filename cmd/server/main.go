package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/bulkmail-backend/internal/config"
	"github.com/unclebandit/bulkmail-backend/internal/db"
	"github.com/unclebandit/bulkmail-backend/internal/logger"
	"github.com/unclebandit/bulkmail-backend/internal/queue"
	"github.com/unclebandit/bulkmail-backend/internal/repository"
	"github.com/unclebandit/bulkmail-backend/internal/server"
	"github.com/unclebandit/bulkmail-backend/internal/service"
)

const authRatePerMinute = 20

func main() {
	cfg, err := config.Load()
	log := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Info().Str("config", cfg.String()).Msg("starting server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.ApplyMigrations(cfg.DatabaseURL, log); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	q := openQueue(cfg, log)
	defer q.Close()
	if err := queue.StartCampaignEventSubscriber(q, cfg.AMQPQueue, log); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to campaign events")
	}

	campaigns, err := service.Build(cfg, conn, q, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build services")
	}

	var scheduler *service.Scheduler
	if cfg.SchedulerEnabled {
		scheduler = service.NewScheduler(campaigns.CampaignRepo, campaigns, cfg.SchedulerInterval, log)
		if err := scheduler.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start scheduler")
		}
	}

	srv := &http.Server{
		Addr: cfg.AppAddr,
		Handler: server.NewRouter(server.Deps{
			Auth: &service.AuthService{
				UserRepo: &repository.UserRepository{DB: conn},
				Secret:   []byte(cfg.JWTSecret),
				TTL:      cfg.TokenTTL,
			},
			Templates:         &service.TemplateService{TemplateRepo: &repository.TemplateRepository{DB: conn}},
			Recipients:        &service.RecipientService{RecipientRepo: &repository.RecipientRepository{DB: conn}, Log: log},
			Campaigns:         campaigns,
			DB:                conn,
			Log:               log,
			AuthRatePerMinute: authRatePerMinute,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.AppAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openQueue prefers RabbitMQ and falls back to the in-process bus.
func openQueue(cfg config.Config, log zerolog.Logger) queue.Queue {
	if cfg.AMQPURL == "" {
		return queue.NewInMemoryQueue(log)
	}
	q, err := queue.DialAMQP(cfg.AMQPURL, log)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, using in-memory event bus")
		return queue.NewInMemoryQueue(log)
	}
	return q
}
