package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/model"
	"github.com/unclebandit/bulkmail-backend/internal/queue"
	"github.com/unclebandit/bulkmail-backend/internal/repository"
)

// finalizeTimeout bounds the terminal status write, which runs even after the
// caller's context is gone.
const finalizeTimeout = 10 * time.Second

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	TemplateRepo  repository.TemplateRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	Ledger        repository.SendingHistoryRepositoryInterface
	Pipeline      Pipeline
	Queue         queue.Queue
	EventTopic    string
	Log           zerolog.Logger
	Now           func() time.Time
}

type CampaignUpdate struct {
	Name         *string
	TemplateID   *int
	RecipientIDs *[]int
}

// CampaignDetails is a campaign together with its ledger counts.
type CampaignDetails struct {
	model.Campaign
	Stats model.LedgerStats `json:"stats"`
}

// CreateCampaign stores a Draft campaign. The template must belong to the owner.
func (s *CampaignService) CreateCampaign(ctx context.Context, ownerID int, name string, templateID int, recipientIDs []int) (*model.Campaign, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErrors.NewValidation("name", "is required")
	}
	if templateID <= 0 {
		return nil, appErrors.NewValidation("templateId", "is required")
	}
	ids, err := normalizeRecipientIDs(recipientIDs)
	if err != nil {
		return nil, err
	}
	if _, err := s.TemplateRepo.GetOwned(ctx, templateID, ownerID); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		OwnerID:      ownerID,
		Name:         name,
		TemplateID:   templateID,
		Status:       model.StatusDraft,
		RecipientIDs: ids,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.Log.Info().Int("campaign_id", c.ID).Int("owner_id", ownerID).Msg("campaign created")
	return c, nil
}

// ListCampaigns fetches campaigns with pagination, newest first.
func (s *CampaignService) ListCampaigns(ctx context.Context, ownerID, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, ownerID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, ownerID, id int) (*model.Campaign, error) {
	return s.CampaignRepo.GetOwned(ctx, id, ownerID)
}

// GetCampaignDetailsWithStats fetches a campaign and its delivery counts.
func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, ownerID, id int) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	stats, err := s.Ledger.StatsByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: *c, Stats: stats}, nil
}

// History returns the ledger rows of an owned campaign, newest first.
func (s *CampaignService) History(ctx context.Context, ownerID, id int) ([]model.SendingHistory, error) {
	if _, err := s.CampaignRepo.GetOwned(ctx, id, ownerID); err != nil {
		return nil, err
	}
	return s.Ledger.ListByCampaign(ctx, id)
}

// UpdateCampaign edits name, template or recipients. Sent campaigns are frozen.
func (s *CampaignService) UpdateCampaign(ctx context.Context, ownerID, id int, upd CampaignUpdate) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if c.Status == model.StatusSent {
		return nil, appErrors.NewInvalidState(c.ID, string(c.Status), "update")
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, appErrors.NewValidation("name", "must not be empty")
		}
		c.Name = name
	}
	if upd.TemplateID != nil && *upd.TemplateID != c.TemplateID {
		if _, err := s.TemplateRepo.GetOwned(ctx, *upd.TemplateID, ownerID); err != nil {
			return nil, err
		}
		c.TemplateID = *upd.TemplateID
	}
	if upd.RecipientIDs != nil {
		ids, err := normalizeRecipientIDs(*upd.RecipientIDs)
		if err != nil {
			return nil, err
		}
		c.RecipientIDs = ids
	}

	if err := s.CampaignRepo.Update(ctx, c); err != nil {
		return nil, s.sentMeanwhile(ctx, c, "update", err)
	}
	return c, nil
}

// DeleteCampaign removes a campaign that has not been sent. Its ledger goes with it.
func (s *CampaignService) DeleteCampaign(ctx context.Context, ownerID, id int) error {
	c, err := s.CampaignRepo.GetOwned(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if c.Status == model.StatusSent {
		return appErrors.NewInvalidState(c.ID, string(c.Status), "delete")
	}
	if err := s.CampaignRepo.Delete(ctx, id, ownerID); err != nil {
		return s.sentMeanwhile(ctx, c, "delete", err)
	}
	return nil
}

// sentMeanwhile turns a not-found write on a campaign that still exists into
// InvalidState: a send finalized it between the read and the write.
func (s *CampaignService) sentMeanwhile(ctx context.Context, c *model.Campaign, op string, err error) error {
	if !errors.Is(err, appErrors.ErrNotFound) {
		return err
	}
	cur, gerr := s.CampaignRepo.GetByID(ctx, c.ID)
	if gerr != nil {
		return err
	}
	return appErrors.NewInvalidState(c.ID, string(cur.Status), op)
}

// ScheduleCampaign moves a Draft campaign to Scheduled at the given time.
func (s *CampaignService) ScheduleCampaign(ctx context.Context, ownerID, id int, at time.Time) (*model.Campaign, error) {
	if at.IsZero() {
		return nil, appErrors.NewValidation("scheduledAt", "is required")
	}
	c, err := s.CampaignRepo.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusDraft {
		return nil, appErrors.NewInvalidState(c.ID, string(c.Status), "schedule")
	}

	ok, err := s.CampaignRepo.Schedule(ctx, id, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.lostRace(ctx, c, "schedule")
	}

	c.Status = model.StatusScheduled
	c.ScheduledAt = &at
	s.Log.Info().Int("campaign_id", c.ID).Time("scheduled_at", at).Msg("campaign scheduled")
	s.publish(model.CampaignEvent{CampaignID: c.ID, OwnerID: c.OwnerID, Status: c.Status, At: s.now()})
	return c, nil
}

// PreviewCampaign renders the campaign's template for one of the owner's recipients.
func (s *CampaignService) PreviewCampaign(ctx context.Context, ownerID, campaignID, recipientID int) (*Rendered, error) {
	c, err := s.CampaignRepo.GetOwned(ctx, campaignID, ownerID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.TemplateRepo.GetOwned(ctx, c.TemplateID, ownerID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.ErrMissingTemplate
		}
		return nil, err
	}
	r, err := s.RecipientRepo.GetOwned(ctx, recipientID, ownerID)
	if err != nil {
		return nil, err
	}
	out := RenderFor(tpl, *r)
	return &out, nil
}

// SendCampaign dispatches an owned campaign immediately.
func (s *CampaignService) SendCampaign(ctx context.Context, ownerID, id int) (*model.DispatchResult, error) {
	c, err := s.CampaignRepo.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, c)
}

// SendDue dispatches a campaign the scheduler found due.
func (s *CampaignService) SendDue(ctx context.Context, c *model.Campaign) (*model.DispatchResult, error) {
	return s.send(ctx, c)
}

// send is the only path into Sending. It claims the campaign with a
// compare-and-swap on its observed status, runs the pipeline, and always
// leaves the campaign in Sent or Failed.
func (s *CampaignService) send(ctx context.Context, c *model.Campaign) (result *model.DispatchResult, err error) {
	if !c.Status.Sendable() {
		return nil, appErrors.NewInvalidState(c.ID, string(c.Status), "send")
	}

	startedAt := s.now()
	ok, err := s.CampaignRepo.TransitionStatus(ctx, c.ID, []model.CampaignStatus{c.Status}, model.StatusSending, &startedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.lostRace(ctx, c, "send")
	}
	c.Status = model.StatusSending
	c.SentAt = &startedAt
	s.Log.Info().Int("campaign_id", c.ID).Msg("campaign sending")
	s.publish(model.CampaignEvent{CampaignID: c.ID, OwnerID: c.OwnerID, Status: c.Status, At: startedAt})

	defer func() {
		if p := recover(); p != nil {
			s.Log.Error().Int("campaign_id", c.ID).Interface("panic", p).Msg("dispatch panicked")
			err = fmt.Errorf("dispatch campaign %d: panic: %v", c.ID, p)
		}

		final := model.StatusFailed
		if err == nil && result != nil && result.Succeeded > 0 {
			final = model.StatusSent
		}
		if ferr := s.finalize(ctx, c, final, result); ferr != nil && err == nil {
			err = ferr
		}
	}()

	return s.Pipeline.Dispatch(context.WithoutCancel(ctx), c)
}

func (s *CampaignService) finalize(ctx context.Context, c *model.Campaign, final model.CampaignStatus, result *model.DispatchResult) error {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	ok, err := s.CampaignRepo.TransitionStatus(fctx, c.ID, []model.CampaignStatus{model.StatusSending}, final, nil)
	if err != nil {
		s.Log.Error().Err(err).Int("campaign_id", c.ID).Str("status", string(final)).Msg("failed to finalize campaign")
		return err
	}
	if !ok {
		s.Log.Warn().Int("campaign_id", c.ID).Msg("campaign left Sending before finalize")
		return nil
	}
	c.Status = final

	ev := model.CampaignEvent{CampaignID: c.ID, OwnerID: c.OwnerID, Status: final, At: s.now()}
	if result != nil {
		ev.RunID = result.RunID
		ev.Total = result.Total
		ev.Succeeded = result.Succeeded
		ev.Failed = result.Failed
	}
	s.Log.Info().Int("campaign_id", c.ID).Str("status", string(final)).Int("succeeded", ev.Succeeded).Int("failed", ev.Failed).Msg("campaign finalized")
	s.publish(ev)
	return nil
}

// lostRace reports an InvalidState carrying the status that won.
func (s *CampaignService) lostRace(ctx context.Context, c *model.Campaign, op string) error {
	status := string(c.Status)
	if cur, err := s.CampaignRepo.GetByID(ctx, c.ID); err == nil {
		status = string(cur.Status)
	}
	return appErrors.NewInvalidState(c.ID, status, op)
}

func (s *CampaignService) publish(ev model.CampaignEvent) {
	if s.Queue == nil {
		return
	}
	topic := s.EventTopic
	if topic == "" {
		topic = queue.CampaignEventsTopic
	}
	if err := s.Queue.Publish(topic, ev); err != nil {
		s.Log.Warn().Err(err).Int("campaign_id", ev.CampaignID).Msg("failed to publish campaign event")
	}
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// normalizeRecipientIDs drops repeats. An empty list means every valid recipient.
func normalizeRecipientIDs(ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, appErrors.NewValidation("recipientIds", fmt.Sprintf("invalid recipient id %d", id))
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
