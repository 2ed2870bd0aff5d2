package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/logger"
	"github.com/unclebandit/bulkmail-backend/internal/model"
	"github.com/unclebandit/bulkmail-backend/internal/service"
)

const owner = 1

type harness struct {
	campaigns  *fakeCampaignRepo
	templates  *fakeTemplateRepo
	recipients *fakeRecipientRepo
	ledger     *fakeLedger
	transport  *fakeTransport
	queue      *fakeQueue
	dispatcher *service.Dispatcher
	svc        *service.CampaignService
}

func newHarness(recipients ...model.Recipient) *harness {
	h := &harness{
		campaigns: newFakeCampaignRepo(),
		templates: newFakeTemplateRepo(model.Template{
			ID: 1, OwnerID: owner, Name: "welcome",
			Subject: "Hello {{name}}", Body: "Hi {{name}}, {{email}}",
		}),
		recipients: newFakeRecipientRepo(recipients...),
		ledger:     &fakeLedger{},
		transport:  &fakeTransport{},
		queue:      &fakeQueue{},
	}
	h.dispatcher = &service.Dispatcher{
		TemplateRepo:  h.templates,
		RecipientRepo: h.recipients,
		Ledger:        h.ledger,
		Transport:     h.transport,
		Log:           logger.Nop(),
		Concurrency:   3,
		SendTimeout:   time.Second,
	}
	h.svc = &service.CampaignService{
		CampaignRepo:  h.campaigns,
		TemplateRepo:  h.templates,
		RecipientRepo: h.recipients,
		Ledger:        h.ledger,
		Pipeline:      h.dispatcher,
		Queue:         h.queue,
		Log:           logger.Nop(),
	}
	return h
}

func abc() []model.Recipient {
	return []model.Recipient{
		{ID: 1, OwnerID: owner, Email: "a@x.com", Name: "A", IsValid: true},
		{ID: 2, OwnerID: owner, Email: "b@x.com", Name: "B", IsValid: true},
		{ID: 3, OwnerID: owner, Email: "c@x.com", Name: "C", IsValid: true},
	}
}

func draft(h *harness) *model.Campaign {
	return h.campaigns.put(model.Campaign{OwnerID: owner, Name: "launch", TemplateID: 1, Status: model.StatusDraft})
}

func TestDispatch_PartialFailureIsRecordedPerRecipient(t *testing.T) {
	h := newHarness(abc()...)
	h.transport.fail = map[string]error{"b@x.com": errors.New("mailbox unavailable")}
	c := draft(h)

	res, err := h.dispatcher.Dispatch(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, res.PerRecipient, 3)
	assert.Equal(t, "a@x.com", res.PerRecipient[0].Email)
	assert.Equal(t, model.DeliveryFailed, res.PerRecipient[1].Status)
	assert.Equal(t, "mailbox unavailable", res.PerRecipient[1].Error)
	assert.Equal(t, model.DeliverySent, res.PerRecipient[2].Status)

	rows, _ := h.ledger.ListByCampaign(context.Background(), c.ID)
	require.Len(t, rows, 3)
	byRecipient := map[int]model.SendingHistory{}
	for _, r := range rows {
		byRecipient[r.RecipientID] = r
	}
	assert.Equal(t, model.DeliveryFailed, byRecipient[2].Status)
	assert.Equal(t, "mailbox unavailable", byRecipient[2].Error)
	assert.Equal(t, model.DeliverySent, byRecipient[1].Status)
}

func TestDispatch_RendersSubjectAndBodyPerRecipient(t *testing.T) {
	h := newHarness(model.Recipient{ID: 1, OwnerID: owner, Email: "a@x.com", Name: "Ada", IsValid: true})
	c := draft(h)

	_, err := h.dispatcher.Dispatch(context.Background(), c)
	require.NoError(t, err)

	require.Len(t, h.transport.sent, 1)
	assert.Equal(t, "a@x.com", h.transport.sent[0].To)
	assert.Equal(t, "Hello Ada", h.transport.sent[0].Subject)
	assert.Equal(t, "Hi Ada, a@x.com", h.transport.sent[0].Body)
}

func TestDispatch_MissingTemplateWritesNothing(t *testing.T) {
	h := newHarness(abc()...)
	c := h.campaigns.put(model.Campaign{OwnerID: owner, Name: "orphan", TemplateID: 99, Status: model.StatusDraft})

	res, err := h.dispatcher.Dispatch(context.Background(), c)
	assert.ErrorIs(t, err, appErrors.ErrMissingTemplate)
	assert.Nil(t, res)
	assert.Zero(t, h.ledger.count())
	assert.Zero(t, h.transport.calls)
}

func TestDispatch_TemplateOfAnotherOwnerIsMissing(t *testing.T) {
	h := newHarness(abc()...)
	foreign := &model.Template{OwnerID: owner + 1, Name: "theirs", Subject: "s", Body: "b"}
	require.NoError(t, h.templates.Create(context.Background(), foreign))
	c := h.campaigns.put(model.Campaign{OwnerID: owner, Name: "borrowed", TemplateID: foreign.ID, Status: model.StatusDraft})

	_, err := h.dispatcher.Dispatch(context.Background(), c)
	assert.ErrorIs(t, err, appErrors.ErrMissingTemplate)
	assert.Zero(t, h.ledger.count())
	assert.Zero(t, h.transport.calls)
}

func TestDispatch_NoRecipientsWritesNothing(t *testing.T) {
	h := newHarness(model.Recipient{ID: 1, OwnerID: owner, Email: "a@x.com", IsValid: false})
	c := draft(h)

	_, err := h.dispatcher.Dispatch(context.Background(), c)
	assert.ErrorIs(t, err, appErrors.ErrNoRecipients)
	assert.Zero(t, h.ledger.count())
}

func TestDispatch_ExplicitIDsSkipInvalidAndForeignRecipients(t *testing.T) {
	rs := abc()
	rs[1].IsValid = false
	rs = append(rs, model.Recipient{ID: 4, OwnerID: 2, Email: "d@x.com", IsValid: true})
	h := newHarness(rs...)
	c := h.campaigns.put(model.Campaign{OwnerID: owner, Name: "subset", TemplateID: 1, Status: model.StatusDraft, RecipientIDs: []int{2, 3, 4}})

	res, err := h.dispatcher.Dispatch(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 3, res.PerRecipient[0].RecipientID)
}

func TestDispatch_LedgerFaultAbortsRun(t *testing.T) {
	h := newHarness(abc()...)
	h.ledger.failErr = appErrors.NewStoreFault("append history", errors.New("connection reset"))
	c := draft(h)

	res, err := h.dispatcher.Dispatch(context.Background(), c)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrStoreFault)
	require.NotNil(t, res)
	assert.Zero(t, res.Succeeded)
}

type blockingTransport struct{}

func (blockingTransport) Send(ctx context.Context, _, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatch_SlowTransportTimesOutPerRecipient(t *testing.T) {
	h := newHarness(abc()[:1]...)
	h.dispatcher.Transport = blockingTransport{}
	h.dispatcher.SendTimeout = 20 * time.Millisecond
	c := draft(h)

	res, err := h.dispatcher.Dispatch(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.PerRecipient[0].Error, context.DeadlineExceeded.Error())
	assert.Equal(t, 1, h.ledger.count())
}

func TestDispatch_RateLimitedRunStillDeliversAll(t *testing.T) {
	h := newHarness(abc()...)
	h.dispatcher.Limiter = service.NewLimiter(1000)
	c := draft(h)

	res, err := h.dispatcher.Dispatch(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)
}

func TestNewLimiter_DisabledForNonPositiveRate(t *testing.T) {
	assert.Nil(t, service.NewLimiter(0))
	assert.Nil(t, service.NewLimiter(-1))
	l := service.NewLimiter(0.5)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}
