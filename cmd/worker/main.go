package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/bulkmail-backend/internal/config"
	"github.com/unclebandit/bulkmail-backend/internal/db"
	"github.com/unclebandit/bulkmail-backend/internal/logger"
	"github.com/unclebandit/bulkmail-backend/internal/queue"
	"github.com/unclebandit/bulkmail-backend/internal/service"
)

// The worker runs only the scheduler, for deployments where the API
// server is started with SCHEDULER_ENABLED=false.
func main() {
	cfg, err := config.Load()
	log := logger.New(cfg.AppEnv).With().Str("process", "worker").Logger()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	var q queue.Queue
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.AMQPURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
		}
		q = amqpQueue
	} else {
		q = queue.NewInMemoryQueue(log)
		if err := queue.StartCampaignEventSubscriber(q, cfg.AMQPQueue, log); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe to campaign events")
		}
	}
	defer q.Close()

	campaigns, err := service.Build(cfg, conn, q, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build services")
	}

	scheduler := service.NewScheduler(campaigns.CampaignRepo, campaigns, cfg.SchedulerInterval, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	// first pass without waiting a full interval
	scheduler.Tick(ctx)

	<-ctx.Done()
	log.Info().Msg("worker shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
}
