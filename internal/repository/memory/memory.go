// Package memory holds in-process implementations of the repository
// interfaces with the same ownership and compare-and-swap rules as Postgres.
package memory

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

// Store backs every repository with one lock so cascades stay consistent.
type Store struct {
	mu         sync.Mutex
	seq        int
	users      map[int]model.User
	templates  map[int]model.Template
	recipients map[int]model.Recipient
	campaigns  map[int]model.Campaign
	history    []model.SendingHistory
}

func NewStore() *Store {
	return &Store{
		users:      map[int]model.User{},
		templates:  map[int]model.Template{},
		recipients: map[int]model.Recipient{},
		campaigns:  map[int]model.Campaign{},
	}
}

func (s *Store) nextID() int {
	s.seq++
	return s.seq
}

func (s *Store) Users() *Users           { return &Users{s} }
func (s *Store) Templates() *Templates   { return &Templates{s} }
func (s *Store) Recipients() *Recipients { return &Recipients{s} }
func (s *Store) Campaigns() *Campaigns   { return &Campaigns{s} }
func (s *Store) History() *History       { return &History{s} }

// ---------- users ----------

type Users struct{ s *Store }

func (r *Users) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, cur := range r.s.users {
		if strings.EqualFold(cur.Email, u.Email) {
			return appErrors.ErrEmailTaken
		}
	}
	u.ID = r.s.nextID()
	u.CreatedAt = time.Now()
	r.s.users[u.ID] = *u
	return nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, appErrors.NewNotFound("user", 0)
}

// ---------- templates ----------

type Templates struct{ s *Store }

func (r *Templates) Create(_ context.Context, t *model.Template) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.ID = r.s.nextID()
	t.CreatedAt = time.Now()
	r.s.templates[t.ID] = *t
	return nil
}

func (r *Templates) get(id int) (*model.Template, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.templates[id]
	if !ok {
		return nil, appErrors.NewNotFound("template", id)
	}
	return &t, nil
}

func (r *Templates) GetOwned(_ context.Context, id, ownerID int) (*model.Template, error) {
	t, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, appErrors.NewNotFound("template", id)
	}
	return t, nil
}

func (r *Templates) ListByOwner(_ context.Context, ownerID int) ([]model.Template, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Template{}
	for _, t := range r.s.templates {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *Templates) Update(_ context.Context, t *model.Template) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.templates[t.ID]
	if !ok || cur.OwnerID != t.OwnerID {
		return appErrors.NewNotFound("template", t.ID)
	}
	now := time.Now()
	t.UpdatedAt = &now
	r.s.templates[t.ID] = *t
	return nil
}

func (r *Templates) Delete(_ context.Context, id, ownerID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.templates[id]
	if !ok || cur.OwnerID != ownerID {
		return appErrors.NewNotFound("template", id)
	}
	delete(r.s.templates, id)
	return nil
}

// ---------- recipients ----------

type Recipients struct{ s *Store }

func (r *Recipients) Create(_ context.Context, rec *model.Recipient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, cur := range r.s.recipients {
		if cur.OwnerID == rec.OwnerID && strings.EqualFold(cur.Email, rec.Email) {
			return appErrors.ErrDuplicateRecipient
		}
	}
	rec.ID = r.s.nextID()
	rec.CreatedAt = time.Now()
	r.s.recipients[rec.ID] = *rec
	return nil
}

func (r *Recipients) GetOwned(_ context.Context, id, ownerID int) (*model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.recipients[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, appErrors.NewNotFound("recipient", id)
	}
	return &rec, nil
}

func (r *Recipients) ListByOwner(_ context.Context, ownerID int) ([]model.Recipient, error) {
	return r.filter(func(rec model.Recipient) bool { return rec.OwnerID == ownerID }), nil
}

func (r *Recipients) ListValidByOwner(_ context.Context, ownerID int) ([]model.Recipient, error) {
	return r.filter(func(rec model.Recipient) bool { return rec.OwnerID == ownerID && rec.IsValid }), nil
}

func (r *Recipients) ListValidByIDs(_ context.Context, ownerID int, ids []int) ([]model.Recipient, error) {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return r.filter(func(rec model.Recipient) bool {
		return rec.OwnerID == ownerID && rec.IsValid && want[rec.ID]
	}), nil
}

func (r *Recipients) Update(_ context.Context, rec *model.Recipient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.recipients[rec.ID]
	if !ok || cur.OwnerID != rec.OwnerID {
		return appErrors.NewNotFound("recipient", rec.ID)
	}
	for _, other := range r.s.recipients {
		if other.ID != rec.ID && other.OwnerID == rec.OwnerID && strings.EqualFold(other.Email, rec.Email) {
			return appErrors.ErrDuplicateRecipient
		}
	}
	now := time.Now()
	rec.UpdatedAt = &now
	r.s.recipients[rec.ID] = *rec
	return nil
}

func (r *Recipients) Delete(_ context.Context, id, ownerID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.recipients[id]
	if !ok || cur.OwnerID != ownerID {
		return appErrors.NewNotFound("recipient", id)
	}
	delete(r.s.recipients, id)
	return nil
}

func (r *Recipients) DeleteAllByOwner(_ context.Context, ownerID int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for id, rec := range r.s.recipients {
		if rec.OwnerID == ownerID {
			delete(r.s.recipients, id)
			n++
		}
	}
	return n, nil
}

func (r *Recipients) ExistsEmail(_ context.Context, ownerID int, email string) (bool, error) {
	return len(r.filter(func(rec model.Recipient) bool {
		return rec.OwnerID == ownerID && strings.EqualFold(rec.Email, email)
	})) > 0, nil
}

func (r *Recipients) ListEmails(_ context.Context, ownerID int) ([]string, error) {
	out := []string{}
	for _, rec := range r.filter(func(rec model.Recipient) bool { return rec.OwnerID == ownerID }) {
		out = append(out, rec.Email)
	}
	return out, nil
}

// filter returns matches in id order, which is insertion order.
func (r *Recipients) filter(keep func(model.Recipient) bool) []model.Recipient {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Recipient{}
	for _, rec := range r.s.recipients {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---------- campaigns ----------

type Campaigns struct{ s *Store }

func (r *Campaigns) Create(_ context.Context, c *model.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.nextID()
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *Campaigns) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return &c, nil
}

func (r *Campaigns) GetOwned(ctx context.Context, id, ownerID int) (*model.Campaign, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (r *Campaigns) ListCampaigns(_ context.Context, ownerID, offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*model.Campaign
	for _, c := range r.s.campaigns {
		if c.OwnerID == ownerID && (status == "" || string(c.Status) == status) {
			c := c
			all = append(all, &c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *Campaigns) Update(_ context.Context, c *model.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.campaigns[c.ID]
	if !ok || cur.OwnerID != c.OwnerID || cur.Status == model.StatusSent {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	now := time.Now()
	cur.Name, cur.TemplateID, cur.RecipientIDs, cur.UpdatedAt = c.Name, c.TemplateID, c.RecipientIDs, &now
	r.s.campaigns[c.ID] = cur
	return nil
}

// Delete cascades to the campaign's ledger rows.
func (r *Campaigns) Delete(_ context.Context, id, ownerID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.campaigns[id]
	if !ok || cur.OwnerID != ownerID || cur.Status == model.StatusSent {
		return appErrors.NewCampaignNotFound(id)
	}
	delete(r.s.campaigns, id)
	kept := r.s.history[:0]
	for _, h := range r.s.history {
		if h.CampaignID != id {
			kept = append(kept, h)
		}
	}
	r.s.history = kept
	return nil
}

func (r *Campaigns) Schedule(_ context.Context, id int, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.campaigns[id]
	if !ok || cur.Status != model.StatusDraft {
		return false, nil
	}
	cur.Status = model.StatusScheduled
	cur.ScheduledAt = &at
	r.s.campaigns[id] = cur
	return true, nil
}

func (r *Campaigns) TransitionStatus(_ context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus, sentAt *time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.campaigns[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if cur.Status != st {
			continue
		}
		cur.Status = to
		if sentAt != nil {
			t := *sentAt
			cur.SentAt = &t
		}
		now := time.Now()
		cur.UpdatedAt = &now
		r.s.campaigns[id] = cur
		return true, nil
	}
	return false, nil
}

func (r *Campaigns) ListDue(_ context.Context, now time.Time) ([]*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var due []*model.Campaign
	for _, c := range r.s.campaigns {
		if c.Status == model.StatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			c := c
			due = append(due, &c)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledAt.Equal(*due[j].ScheduledAt) {
			return due[i].ScheduledAt.Before(*due[j].ScheduledAt)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

// ---------- ledger ----------

type History struct{ s *Store }

func (r *History) Append(_ context.Context, e *model.SendingHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.campaigns[e.CampaignID]; !ok {
		return appErrors.NewStoreFault("append history", appErrors.NewCampaignNotFound(e.CampaignID))
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	e.ID = r.s.nextID()
	r.s.history = append(r.s.history, *e)
	return nil
}

func (r *History) ListByCampaign(_ context.Context, campaignID int) ([]model.SendingHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.SendingHistory{}
	for i := len(r.s.history) - 1; i >= 0; i-- {
		if r.s.history[i].CampaignID == campaignID {
			out = append(out, r.s.history[i])
		}
	}
	return out, nil
}

func (r *History) StatsByCampaign(ctx context.Context, campaignID int) (model.LedgerStats, error) {
	rows, _ := r.ListByCampaign(ctx, campaignID)
	var st model.LedgerStats
	for _, h := range rows {
		st.Total++
		switch h.Status {
		case model.DeliverySent:
			st.Sent++
		case model.DeliveryFailed:
			st.Failed++
		}
	}
	return st, nil
}

var (
	_ repository.UserRepositoryInterface           = (*Users)(nil)
	_ repository.TemplateRepositoryInterface       = (*Templates)(nil)
	_ repository.RecipientRepositoryInterface      = (*Recipients)(nil)
	_ repository.CampaignRepositoryInterface       = (*Campaigns)(nil)
	_ repository.SendingHistoryRepositoryInterface = (*History)(nil)
)
