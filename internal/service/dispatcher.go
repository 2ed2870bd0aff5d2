package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/mailer"
	"github.com/unclebandit/bulkmail-backend/internal/metrics"
	"github.com/unclebandit/bulkmail-backend/internal/model"
	"github.com/unclebandit/bulkmail-backend/internal/repository"
)

const defaultSendTimeout = 30 * time.Second

// Pipeline renders and delivers a campaign to its resolved recipients.
type Pipeline interface {
	Dispatch(ctx context.Context, campaign *model.Campaign) (*model.DispatchResult, error)
}

// Dispatcher is the render-and-deliver pipeline. It never changes campaign
// status; that belongs to CampaignService.
type Dispatcher struct {
	TemplateRepo  repository.TemplateRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	Ledger        repository.SendingHistoryRepositoryInterface
	Transport     mailer.Transport
	Log           zerolog.Logger

	Concurrency int
	SendTimeout time.Duration
	// Limiter caps sends per second across the whole run. nil means unlimited.
	Limiter *rate.Limiter
	Now     func() time.Time
}

// NewLimiter returns nil for a non-positive rate.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Dispatch resolves the template and recipients, then attempts delivery to
// each recipient exactly once and appends one ledger row per attempt.
// Transport failures are recorded per recipient and never fail the run.
// MissingTemplate and NoRecipients abort before any ledger write.
// Once started a run is not cancellable: ctx only carries values, and each
// delivery is bounded by SendTimeout instead.
func (d *Dispatcher) Dispatch(ctx context.Context, c *model.Campaign) (*model.DispatchResult, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	runID := uuid.NewString()
	log := d.Log.With().Int("campaign_id", c.ID).Str("run_id", runID).Logger()

	tpl, err := d.TemplateRepo.GetOwned(ctx, c.TemplateID, c.OwnerID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			metrics.IncDispatch("missing_template")
			return nil, appErrors.ErrMissingTemplate
		}
		metrics.IncDispatch("fault")
		return nil, err
	}

	recipients, err := d.resolveRecipients(ctx, c)
	if err != nil {
		metrics.IncDispatch("fault")
		return nil, err
	}
	if len(recipients) == 0 {
		metrics.IncDispatch("no_recipients")
		return nil, appErrors.ErrNoRecipients
	}

	log.Info().Int("recipients", len(recipients)).Msg("dispatch started")

	outcomes := make([]model.RecipientOutcome, len(recipients))
	attempted := make([]bool, len(recipients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency())
	for i, r := range recipients {
		g.Go(func() error {
			// gctx is only cancelled by a ledger fault, which fails the run.
			if gctx.Err() != nil {
				return nil
			}
			out, err := d.deliver(gctx, c.ID, tpl, r, log)
			if err != nil {
				return err
			}
			outcomes[i] = out
			attempted[i] = true
			return nil
		})
	}
	werr := g.Wait()

	res := &model.DispatchResult{CampaignID: c.ID, RunID: runID, PerRecipient: []model.RecipientOutcome{}}
	for i, out := range outcomes {
		if !attempted[i] {
			continue
		}
		res.PerRecipient = append(res.PerRecipient, out)
		if out.Status == model.DeliverySent {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	res.Total = res.Succeeded + res.Failed
	metrics.ObserveDispatchDuration(time.Since(start).Seconds())

	if werr != nil {
		metrics.IncDispatch("fault")
		log.Error().Err(werr).Int("attempted", res.Total).Msg("dispatch aborted")
		return res, werr
	}

	if res.Succeeded > 0 {
		metrics.IncDispatch("sent")
	} else {
		metrics.IncDispatch("failed")
	}
	log.Info().
		Int("total", res.Total).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("dispatch finished")
	return res, nil
}

func (d *Dispatcher) resolveRecipients(ctx context.Context, c *model.Campaign) ([]model.Recipient, error) {
	if c.TargetsAll() {
		return d.RecipientRepo.ListValidByOwner(ctx, c.OwnerID)
	}
	return d.RecipientRepo.ListValidByIDs(ctx, c.OwnerID, c.RecipientIDs)
}

// deliver sends to one recipient and records the attempt. The returned error
// is only ever a ledger fault.
func (d *Dispatcher) deliver(ctx context.Context, campaignID int, tpl *model.Template, r model.Recipient, log zerolog.Logger) (model.RecipientOutcome, error) {
	msg := RenderFor(tpl, r)
	sendErr := d.send(ctx, r.Email, msg)

	out := model.RecipientOutcome{RecipientID: r.ID, Email: r.Email, Status: model.DeliverySent}
	entry := &model.SendingHistory{
		CampaignID:  campaignID,
		RecipientID: r.ID,
		Status:      model.DeliverySent,
		SentAt:      d.now(),
	}
	if sendErr != nil {
		terr := &appErrors.TransportError{Recipient: r.Email, Err: sendErr}
		out.Status = model.DeliveryFailed
		out.Error = sendErr.Error()
		entry.Status = model.DeliveryFailed
		entry.Error = sendErr.Error()
		log.Warn().Err(terr).Int("recipient_id", r.ID).Msg("delivery failed")
	}

	if err := d.Ledger.Append(ctx, entry); err != nil {
		return out, fmt.Errorf("record delivery for recipient %d: %w", r.ID, err)
	}
	metrics.IncDelivery(string(entry.Status))
	return out, nil
}

func (d *Dispatcher) send(ctx context.Context, to string, msg Rendered) (err error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout())
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("transport panic: %v", p)
		}
	}()

	if d.Limiter != nil {
		if err := d.Limiter.Wait(sendCtx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return d.Transport.Send(sendCtx, to, msg.Subject, msg.Body)
}

func (d *Dispatcher) concurrency() int {
	if d.Concurrency < 1 {
		return 1
	}
	return d.Concurrency
}

func (d *Dispatcher) sendTimeout() time.Duration {
	if d.SendTimeout <= 0 {
		return defaultSendTimeout
	}
	return d.SendTimeout
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

var _ Pipeline = (*Dispatcher)(nil)
