package repository

import (
	"context"
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/model"
)

// SendingHistoryRepositoryInterface is the delivery ledger. Rows are only ever appended.
type SendingHistoryRepositoryInterface interface {
	Append(ctx context.Context, entry *model.SendingHistory) error
	ListByCampaign(ctx context.Context, campaignID int) ([]model.SendingHistory, error)
	StatsByCampaign(ctx context.Context, campaignID int) (model.LedgerStats, error)
}

type SendingHistoryRepository struct {
	DB *sql.DB
}

// Append inserts a new ledger row and fills in its ID
func (r *SendingHistoryRepository) Append(ctx context.Context, entry *model.SendingHistory) error {
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now()
	}
	query := `
        INSERT INTO sending_history (campaign_id, recipient_id, status, error, sent_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, query,
		entry.CampaignID,
		entry.RecipientID,
		entry.Status,
		entry.Error,
		entry.SentAt,
	).Scan(&entry.ID)
	return appErrors.NewStoreFault("append sending history", err)
}

func (r *SendingHistoryRepository) ListByCampaign(ctx context.Context, campaignID int) ([]model.SendingHistory, error) {
	query := `
        SELECT id, campaign_id, recipient_id, status, error, sent_at
        FROM sending_history
        WHERE campaign_id=$1
        ORDER BY sent_at DESC, id DESC
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, appErrors.NewStoreFault("list sending history", err)
	}
	defer rows.Close()

	entries := []model.SendingHistory{}
	for rows.Next() {
		var e model.SendingHistory
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.RecipientID, &e.Status, &e.Error, &e.SentAt); err != nil {
			return nil, appErrors.NewStoreFault("list sending history", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewStoreFault("list sending history", err)
	}
	return entries, nil
}

func (r *SendingHistoryRepository) StatsByCampaign(ctx context.Context, campaignID int) (model.LedgerStats, error) {
	query := `SELECT status, COUNT(*) FROM sending_history WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return model.LedgerStats{}, appErrors.NewStoreFault("ledger stats", err)
	}
	defer rows.Close()

	var stats model.LedgerStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return model.LedgerStats{}, appErrors.NewStoreFault("ledger stats", err)
		}
		switch model.DeliveryStatus(status) {
		case model.DeliverySent:
			stats.Sent = count
		case model.DeliveryFailed:
			stats.Failed = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return model.LedgerStats{}, appErrors.NewStoreFault("ledger stats", err)
	}
	return stats, nil
}

var _ SendingHistoryRepositoryInterface = (*SendingHistoryRepository)(nil)
