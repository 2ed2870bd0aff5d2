package service

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/unclebandit/bulkmail-backend/internal/config"
	"github.com/unclebandit/bulkmail-backend/internal/mailer"
	"github.com/unclebandit/bulkmail-backend/internal/queue"
	"github.com/unclebandit/bulkmail-backend/internal/repository"
)

// Build assembles the campaign state machine and its dispatch pipeline on
// Postgres-backed repositories. Server and worker share it.
func Build(cfg config.Config, conn *sql.DB, q queue.Queue, log zerolog.Logger) (*CampaignService, error) {
	transport, err := mailer.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("mail transport: %w", err)
	}

	templates := &repository.TemplateRepository{DB: conn}
	recipients := &repository.RecipientRepository{DB: conn}
	ledger := &repository.SendingHistoryRepository{DB: conn}

	dispatcher := &Dispatcher{
		TemplateRepo:  templates,
		RecipientRepo: recipients,
		Ledger:        ledger,
		Transport:     transport,
		Log:           log.With().Str("component", "dispatcher").Logger(),
		Concurrency:   cfg.SendConcurrency,
		SendTimeout:   cfg.SendTimeout,
		Limiter:       NewLimiter(cfg.SendRatePerSecond),
	}

	return &CampaignService{
		CampaignRepo:  &repository.CampaignRepository{DB: conn},
		TemplateRepo:  templates,
		RecipientRepo: recipients,
		Ledger:        ledger,
		Pipeline:      dispatcher,
		Queue:         q,
		EventTopic:    cfg.AMQPQueue,
		Log:           log.With().Str("component", "campaigns").Logger(),
	}, nil
}
