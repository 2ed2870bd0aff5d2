package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/logger"
	"github.com/unclebandit/bulkmail-backend/internal/metrics"
	"github.com/unclebandit/bulkmail-backend/internal/model"
)

// DueCampaigns is what the scheduler needs from the campaign store.
type DueCampaigns interface {
	ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error)
	TransitionStatus(ctx context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus, sentAt *time.Time) (bool, error)
}

// DueSender sends one due campaign through the state machine.
type DueSender interface {
	SendDue(ctx context.Context, c *model.Campaign) (*model.DispatchResult, error)
}

// TickReport summarises one scheduler pass.
type TickReport struct {
	Due     int
	Sent    int
	Failed  int
	Skipped int
}

// Scheduler periodically sends Scheduled campaigns whose time has come.
type Scheduler struct {
	Campaigns DueCampaigns
	Sender    DueSender
	Interval  time.Duration
	Log       zerolog.Logger
	Now       func() time.Time

	cron    *cron.Cron
	running atomic.Bool
}

func NewScheduler(campaigns DueCampaigns, sender DueSender, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Campaigns: campaigns,
		Sender:    sender,
		Interval:  interval,
		Log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the tick with cron and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.Interval)
	}
	cl := logger.CronLogger{Log: s.Log}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc("@every "+s.Interval.String(), func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("register scheduler tick: %w", err)
	}
	s.cron.Start()
	s.Log.Info().Dur("interval", s.Interval).Msg("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
		s.Log.Info().Msg("scheduler stopped")
	case <-ctx.Done():
		s.Log.Warn().Msg("scheduler stop timed out")
	}
}

// Tick sends every campaign that is Scheduled and due. Overlapping calls
// return immediately with an empty report.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	var rep TickReport
	if !s.running.CompareAndSwap(false, true) {
		s.Log.Debug().Msg("tick already running, skipped")
		return rep
	}
	defer s.running.Store(false)

	due, err := s.Campaigns.ListDue(ctx, s.now())
	if err != nil {
		s.Log.Error().Err(err).Msg("failed to list due campaigns")
		metrics.ObserveTick(0)
		return rep
	}
	rep.Due = len(due)
	metrics.ObserveTick(rep.Due)

	for _, c := range due {
		if ctx.Err() != nil {
			break
		}
		switch s.process(ctx, c) {
		case model.StatusSent:
			rep.Sent++
		case model.StatusFailed:
			rep.Failed++
		default:
			rep.Skipped++
		}
	}

	if rep.Due > 0 {
		s.Log.Info().Int("due", rep.Due).Int("sent", rep.Sent).Int("failed", rep.Failed).Int("skipped", rep.Skipped).Msg("tick finished")
	}
	return rep
}

// process sends one due campaign in isolation. The returned status is the
// campaign's outcome, or empty when another actor claimed it first.
func (s *Scheduler) process(ctx context.Context, c *model.Campaign) (status model.CampaignStatus) {
	log := s.Log.With().Int("campaign_id", c.ID).Logger()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("scheduled send panicked")
			s.forceFailed(ctx, c)
			status = model.StatusFailed
		}
	}()

	res, err := s.Sender.SendDue(ctx, c)
	switch {
	case err == nil && res != nil && res.Succeeded > 0:
		return model.StatusSent
	case err == nil:
		return model.StatusFailed
	case errors.Is(err, appErrors.ErrInvalidState):
		log.Debug().Err(err).Msg("campaign already claimed")
		return ""
	default:
		log.Error().Err(err).Msg("scheduled send failed")
		s.forceFailed(ctx, c)
		return model.StatusFailed
	}
}

// forceFailed covers faults before the campaign was claimed. Once claimed the
// state machine finalizes it, so this is a no-op for anything past Scheduled.
func (s *Scheduler) forceFailed(ctx context.Context, c *model.Campaign) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if _, err := s.Campaigns.TransitionStatus(fctx, c.ID, []model.CampaignStatus{model.StatusScheduled}, model.StatusFailed, nil); err != nil {
		s.Log.Error().Err(err).Int("campaign_id", c.ID).Msg("failed to mark campaign failed")
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
