package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	GetOwned(ctx context.Context, id, ownerID int) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, ownerID, offset, limit int, status string) ([]*model.Campaign, int, error)
	// Update and Delete never touch a Sent campaign; one is reported as not found.
	Update(ctx context.Context, c *model.Campaign) error
	Delete(ctx context.Context, id, ownerID int) error

	// Status transitions are compare-and-swap: a row only moves when its
	// current status is one of from. The bool reports whether it moved.
	Schedule(ctx context.Context, id int, at time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus, sentAt *time.Time) (bool, error)
	ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, user_id, name, template_id, status, recipient_ids, scheduled_at, sent_at, created_at, updated_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	query := `
        INSERT INTO campaigns (user_id, name, template_id, status, recipient_ids, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, query,
		c.OwnerID, c.Name, c.TemplateID, c.Status, pq.Array(toInt64s(c.RecipientIDs)), c.ScheduledAt, c.CreatedAt,
	).Scan(&c.ID)
	return appErrors.NewStoreFault("create campaign", err)
}

func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) error {
	query := `
        UPDATE campaigns
        SET name=$1, template_id=$2, recipient_ids=$3, updated_at=NOW()
        WHERE id=$4 AND user_id=$5 AND status <> $6
    `
	res, err := r.DB.ExecContext(ctx, query, c.Name, c.TemplateID, pq.Array(toInt64s(c.RecipientIDs)), c.ID, c.OwnerID, model.StatusSent)
	if err != nil {
		return appErrors.NewStoreFault("update campaign", err)
	}
	return requireRow(res, appErrors.NewCampaignNotFound(c.ID))
}

func (r *CampaignRepository) Delete(ctx context.Context, id, ownerID int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM campaigns WHERE id=$1 AND user_id=$2 AND status <> $3`, id, ownerID, model.StatusSent)
	if err != nil {
		return appErrors.NewStoreFault("delete campaign", err)
	}
	return requireRow(res, appErrors.NewCampaignNotFound(id))
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id)
	return scanCampaignRow(row, id)
}

func (r *CampaignRepository) GetOwned(ctx context.Context, id, ownerID int) (*model.Campaign, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id=$1 AND user_id=$2`, id, ownerID)
	return scanCampaignRow(row, id)
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, ownerID, offset, limit int, status string) ([]*model.Campaign, int, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE user_id=$1`
	countQuery := `SELECT COUNT(*) FROM campaigns WHERE user_id=$1`
	args := []interface{}{ownerID}
	argPos := 2

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		countQuery += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, appErrors.NewStoreFault("count campaigns", err)
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	campaigns, err := r.query(ctx, "list campaigns", query, args...)
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// ====================== Status transitions ======================

func (r *CampaignRepository) Schedule(ctx context.Context, id int, at time.Time) (bool, error) {
	query := `
        UPDATE campaigns
        SET status=$1, scheduled_at=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4
    `
	res, err := r.DB.ExecContext(ctx, query, model.StatusScheduled, at, id, model.StatusDraft)
	if err != nil {
		return false, appErrors.NewStoreFault("schedule campaign", err)
	}
	return moved(res)
}

func (r *CampaignRepository) TransitionStatus(ctx context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus, sentAt *time.Time) (bool, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	query := `
        UPDATE campaigns
        SET status=$1, sent_at=COALESCE($2, sent_at), updated_at=NOW()
        WHERE id=$3 AND status = ANY($4)
    `
	res, err := r.DB.ExecContext(ctx, query, to, sentAt, id, pq.Array(fromStr))
	if err != nil {
		return false, appErrors.NewStoreFault("transition campaign status", err)
	}
	return moved(res)
}

func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
        WHERE status=$1 AND scheduled_at <= $2
        ORDER BY scheduled_at ASC, id ASC`
	return r.query(ctx, "list due campaigns", query, model.StatusScheduled, now)
}

// ====================== helpers ======================

func (r *CampaignRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]*model.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, appErrors.NewStoreFault(op, err)
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, appErrors.NewStoreFault(op, err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewStoreFault(op, err)
	}
	return campaigns, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var ids pq.Int64Array
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.TemplateID, &c.Status, &ids,
		&c.ScheduledAt, &c.SentAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.RecipientIDs = fromInt64s(ids)
	return &c, nil
}

func scanCampaignRow(row *sql.Row, id int) (*model.Campaign, error) {
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, appErrors.NewStoreFault("get campaign", err)
	}
	return c, nil
}

func moved(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, appErrors.NewStoreFault("rows affected", err)
	}
	return n > 0, nil
}

func requireRow(res sql.Result, notFound error) error {
	ok, err := moved(res)
	if err != nil {
		return err
	}
	if !ok {
		return notFound
	}
	return nil
}

func toInt64s(ids []int) []int64 {
	if ids == nil {
		return nil
	}
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func fromInt64s(ids []int64) []int {
	if ids == nil {
		return nil
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
