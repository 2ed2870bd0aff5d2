package service_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/model"
	"github.com/unclebandit/bulkmail-backend/internal/repository"
)

// ---------- campaigns ----------

type fakeCampaignRepo struct {
	mu        sync.Mutex
	next      int
	rows      map[int]*model.Campaign
	listErr   error
	claimErr  error
	claimHook func(id int)
	readHook  func(id int)
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{rows: map[int]*model.Campaign{}}
}

func (f *fakeCampaignRepo) put(c model.Campaign) *model.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == 0 {
		f.next++
		c.ID = f.next
	} else if c.ID > f.next {
		f.next = c.ID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := c
	f.rows[c.ID] = &cp
	return &c
}

func (f *fakeCampaignRepo) status(id int) model.CampaignStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.rows[id]; ok {
		return c.Status
	}
	return ""
}

func (f *fakeCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	stored := f.put(*c)
	*c = *stored
	return nil
}

func (f *fakeCampaignRepo) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaignRepo) GetOwned(ctx context.Context, id, ownerID int) (*model.Campaign, error) {
	c, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	if f.readHook != nil {
		f.readHook(id)
	}
	return c, nil
}

func (f *fakeCampaignRepo) setStatus(id int, st model.CampaignStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].Status = st
}

func (f *fakeCampaignRepo) ListCampaigns(_ context.Context, ownerID, offset, limit int, status string) ([]*model.Campaign, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*model.Campaign
	for _, c := range f.rows {
		if c.OwnerID == ownerID && (status == "" || string(c.Status) == status) {
			cp := *c
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return []*model.Campaign{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (f *fakeCampaignRepo) Update(_ context.Context, c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[c.ID]
	if !ok || cur.OwnerID != c.OwnerID || cur.Status == model.StatusSent {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	cur.Name, cur.TemplateID, cur.RecipientIDs = c.Name, c.TemplateID, c.RecipientIDs
	return nil
}

func (f *fakeCampaignRepo) Delete(_ context.Context, id, ownerID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[id]
	if !ok || cur.OwnerID != ownerID || cur.Status == model.StatusSent {
		return appErrors.NewCampaignNotFound(id)
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeCampaignRepo) Schedule(_ context.Context, id int, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[id]
	if !ok || cur.Status != model.StatusDraft {
		return false, nil
	}
	cur.Status = model.StatusScheduled
	cur.ScheduledAt = &at
	return true, nil
}

func (f *fakeCampaignRepo) TransitionStatus(_ context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus, sentAt *time.Time) (bool, error) {
	if to == model.StatusSending {
		if f.claimHook != nil {
			f.claimHook(id)
		}
		if f.claimErr != nil {
			return false, f.claimErr
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if cur.Status == s {
			cur.Status = to
			if sentAt != nil {
				t := *sentAt
				cur.SentAt = &t
			}
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCampaignRepo) ListDue(_ context.Context, now time.Time) ([]*model.Campaign, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*model.Campaign
	for _, c := range f.rows {
		if c.Status == model.StatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

var _ repository.CampaignRepositoryInterface = (*fakeCampaignRepo)(nil)

// ---------- templates ----------

type fakeTemplateRepo struct {
	mu   sync.Mutex
	next int
	rows map[int]*model.Template
}

func newFakeTemplateRepo(ts ...model.Template) *fakeTemplateRepo {
	f := &fakeTemplateRepo{rows: map[int]*model.Template{}}
	for _, t := range ts {
		t := t
		f.rows[t.ID] = &t
		if t.ID > f.next {
			f.next = t.ID
		}
	}
	return f
}

func (f *fakeTemplateRepo) Create(_ context.Context, t *model.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	t.ID = f.next
	cp := *t
	f.rows[t.ID] = &cp
	return nil
}

func (f *fakeTemplateRepo) GetByID(_ context.Context, id int) (*model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return nil, appErrors.NewNotFound("template", id)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTemplateRepo) GetOwned(ctx context.Context, id, ownerID int) (*model.Template, error) {
	t, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, appErrors.NewNotFound("template", id)
	}
	return t, nil
}

func (f *fakeTemplateRepo) ListByOwner(_ context.Context, ownerID int) ([]model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Template{}
	for _, t := range f.rows {
		if t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTemplateRepo) Update(_ context.Context, t *model.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[t.ID]; !ok {
		return appErrors.NewNotFound("template", t.ID)
	}
	cp := *t
	f.rows[t.ID] = &cp
	return nil
}

func (f *fakeTemplateRepo) Delete(_ context.Context, id, ownerID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok || t.OwnerID != ownerID {
		return appErrors.NewNotFound("template", id)
	}
	delete(f.rows, id)
	return nil
}

var _ repository.TemplateRepositoryInterface = (*fakeTemplateRepo)(nil)

// ---------- recipients ----------

type fakeRecipientRepo struct {
	mu      sync.Mutex
	next    int
	rows    []model.Recipient
	listErr error
}

func newFakeRecipientRepo(rs ...model.Recipient) *fakeRecipientRepo {
	f := &fakeRecipientRepo{}
	for _, r := range rs {
		f.rows = append(f.rows, r)
		if r.ID > f.next {
			f.next = r.ID
		}
	}
	return f
}

func (f *fakeRecipientRepo) Create(_ context.Context, r *model.Recipient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cur := range f.rows {
		if cur.OwnerID == r.OwnerID && strings.EqualFold(cur.Email, r.Email) {
			return appErrors.ErrDuplicateRecipient
		}
	}
	f.next++
	r.ID = f.next
	f.rows = append(f.rows, *r)
	return nil
}

func (f *fakeRecipientRepo) GetOwned(_ context.Context, id, ownerID int) (*model.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id && r.OwnerID == ownerID {
			cp := r
			return &cp, nil
		}
	}
	return nil, appErrors.NewNotFound("recipient", id)
}

func (f *fakeRecipientRepo) ListByOwner(_ context.Context, ownerID int) ([]model.Recipient, error) {
	return f.filter(func(r model.Recipient) bool { return r.OwnerID == ownerID }), nil
}

func (f *fakeRecipientRepo) Update(_ context.Context, r *model.Recipient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cur := range f.rows {
		if cur.ID == r.ID && cur.OwnerID == r.OwnerID {
			f.rows[i] = *r
			return nil
		}
	}
	return appErrors.NewNotFound("recipient", r.ID)
}

func (f *fakeRecipientRepo) Delete(_ context.Context, id, ownerID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cur := range f.rows {
		if cur.ID == id && cur.OwnerID == ownerID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return appErrors.NewNotFound("recipient", id)
}

func (f *fakeRecipientRepo) DeleteAllByOwner(_ context.Context, ownerID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	n := 0
	for _, r := range f.rows {
		if r.OwnerID == ownerID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return n, nil
}

func (f *fakeRecipientRepo) ExistsEmail(_ context.Context, ownerID int, email string) (bool, error) {
	return len(f.filter(func(r model.Recipient) bool {
		return r.OwnerID == ownerID && strings.EqualFold(r.Email, email)
	})) > 0, nil
}

func (f *fakeRecipientRepo) ListEmails(_ context.Context, ownerID int) ([]string, error) {
	var out []string
	for _, r := range f.filter(func(r model.Recipient) bool { return r.OwnerID == ownerID }) {
		out = append(out, r.Email)
	}
	return out, nil
}

func (f *fakeRecipientRepo) ListValidByOwner(_ context.Context, ownerID int) ([]model.Recipient, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.filter(func(r model.Recipient) bool { return r.OwnerID == ownerID && r.IsValid }), nil
}

func (f *fakeRecipientRepo) ListValidByIDs(_ context.Context, ownerID int, ids []int) ([]model.Recipient, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	want := map[int]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return f.filter(func(r model.Recipient) bool { return r.OwnerID == ownerID && r.IsValid && want[r.ID] }), nil
}

func (f *fakeRecipientRepo) filter(keep func(model.Recipient) bool) []model.Recipient {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Recipient{}
	for _, r := range f.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

var _ repository.RecipientRepositoryInterface = (*fakeRecipientRepo)(nil)

// ---------- ledger ----------

type fakeLedger struct {
	mu      sync.Mutex
	rows    []model.SendingHistory
	failErr error
}

func (f *fakeLedger) Append(_ context.Context, e *model.SendingHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	e.ID = len(f.rows) + 1
	f.rows = append(f.rows, *e)
	return nil
}

func (f *fakeLedger) ListByCampaign(_ context.Context, campaignID int) ([]model.SendingHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.SendingHistory{}
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].CampaignID == campaignID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) StatsByCampaign(ctx context.Context, campaignID int) (model.LedgerStats, error) {
	rows, _ := f.ListByCampaign(ctx, campaignID)
	var st model.LedgerStats
	for _, r := range rows {
		st.Total++
		if r.Status == model.DeliverySent {
			st.Sent++
		} else {
			st.Failed++
		}
	}
	return st, nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

var _ repository.SendingHistoryRepositoryInterface = (*fakeLedger)(nil)

// ---------- transport ----------

type sentMail struct {
	To, Subject, Body string
}

type fakeTransport struct {
	mu    sync.Mutex
	fail  map[string]error
	sent  []sentMail
	calls int
}

func (f *fakeTransport) Send(ctx context.Context, to, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: html})
	return nil
}

func (f *fakeTransport) succeedAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = nil
}

// ---------- queue ----------

type fakeQueue struct {
	mu     sync.Mutex
	events []model.CampaignEvent
}

func (q *fakeQueue) Publish(_ string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ev, ok := payload.(model.CampaignEvent); ok {
		q.events = append(q.events, ev)
	}
	return nil
}

func (q *fakeQueue) Subscribe(string, func(any) error) error { return nil }
func (q *fakeQueue) Close() error                            { return nil }

func (q *fakeQueue) statuses() []model.CampaignStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.CampaignStatus
	for _, e := range q.events {
		out = append(out, e.Status)
	}
	return out
}
