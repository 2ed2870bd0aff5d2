package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/unclebandit/bulkmail-backend/internal/config"
	"github.com/unclebandit/bulkmail-backend/internal/db"
	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/logger"
	"github.com/unclebandit/bulkmail-backend/internal/model"
	"github.com/unclebandit/bulkmail-backend/internal/repository"
	"github.com/unclebandit/bulkmail-backend/internal/service"
)

var demoRecipients = []model.RecipientRow{
	{Email: "ada@example.com", Name: "Ada Lovelace"},
	{Email: "grace@example.com", Name: "Grace Hopper"},
	{Email: "alan@example.com", Name: "Alan Turing"},
	{Email: "edsger@example.com", Name: "Edsger Dijkstra"},
}

func main() {
	email := flag.String("email", "demo@example.com", "demo account email")
	password := flag.String("password", "demo-password", "demo account password")
	flag.Parse()

	cfg, err := config.Load()
	log := logger.New(cfg.AppEnv).With().Str("process", "seeder").Logger()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.ApplyMigrations(cfg.DatabaseURL, log); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	auth := &service.AuthService{UserRepo: &repository.UserRepository{DB: conn}, Secret: []byte(cfg.JWTSecret), TTL: cfg.TokenTTL}
	user, _, err := auth.Register(ctx, *email, *password)
	if errors.Is(err, appErrors.ErrEmailTaken) {
		user, _, err = auth.Login(ctx, *email, *password)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed demo user")
	}

	templates := &service.TemplateService{TemplateRepo: &repository.TemplateRepository{DB: conn}}
	tpl, err := templates.CreateTemplate(ctx, user.ID, "Welcome",
		"Welcome aboard, {{name}}",
		"<p>Hi {{name}},</p><p>This message was sent to {{email}}.</p>")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed template")
	}

	recipients := &service.RecipientService{RecipientRepo: &repository.RecipientRepository{DB: conn}, Log: log}
	imported, err := recipients.ImportRecipients(ctx, user.ID, demoRecipients)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed recipients")
	}

	campaigns := &service.CampaignService{
		CampaignRepo: &repository.CampaignRepository{DB: conn},
		TemplateRepo: &repository.TemplateRepository{DB: conn},
		Log:          log,
	}
	draft, err := campaigns.CreateCampaign(ctx, user.ID, "Welcome (draft)", tpl.ID, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed draft campaign")
	}
	timed, err := campaigns.CreateCampaign(ctx, user.ID, "Welcome (scheduled)", tpl.ID, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed scheduled campaign")
	}
	if _, err := campaigns.ScheduleCampaign(ctx, user.ID, timed.ID, time.Now().Add(5*time.Minute)); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule seeded campaign")
	}

	log.Info().
		Int("user_id", user.ID).
		Int("template_id", tpl.ID).
		Int("recipients", len(imported.Created)).
		Int("draft_campaign_id", draft.ID).
		Int("scheduled_campaign_id", timed.ID).
		Msg("database seeding completed")
}
