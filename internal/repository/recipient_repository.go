package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/model"
)

// RecipientRepositoryInterface defines methods used by services
type RecipientRepositoryInterface interface {
	Create(ctx context.Context, r *model.Recipient) error
	GetOwned(ctx context.Context, id, ownerID int) (*model.Recipient, error)
	ListByOwner(ctx context.Context, ownerID int) ([]model.Recipient, error)
	Update(ctx context.Context, r *model.Recipient) error
	Delete(ctx context.Context, id, ownerID int) error
	DeleteAllByOwner(ctx context.Context, ownerID int) (int, error)

	ExistsEmail(ctx context.Context, ownerID int, email string) (bool, error)
	ListEmails(ctx context.Context, ownerID int) ([]string, error)

	// Dispatch-time resolution. Both only return is_valid recipients of ownerID.
	ListValidByOwner(ctx context.Context, ownerID int) ([]model.Recipient, error)
	ListValidByIDs(ctx context.Context, ownerID int, ids []int) ([]model.Recipient, error)
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, user_id, email, name, is_valid, created_at, updated_at`

// uniqueViolation is the Postgres SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

func (r *RecipientRepository) Create(ctx context.Context, rec *model.Recipient) error {
	rec.CreatedAt = time.Now()
	query := `
        INSERT INTO recipients (user_id, email, name, is_valid, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, query, rec.OwnerID, rec.Email, rec.Name, rec.IsValid, rec.CreatedAt).Scan(&rec.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.ErrDuplicateRecipient
		}
		return appErrors.NewStoreFault("create recipient", err)
	}
	return nil
}

func (r *RecipientRepository) GetOwned(ctx context.Context, id, ownerID int) (*model.Recipient, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+recipientColumns+` FROM recipients WHERE id=$1 AND user_id=$2`, id, ownerID)
	rec, err := scanRecipient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("recipient", id)
		}
		return nil, appErrors.NewStoreFault("get recipient", err)
	}
	return &rec, nil
}

func (r *RecipientRepository) ListByOwner(ctx context.Context, ownerID int) ([]model.Recipient, error) {
	return r.list(ctx, "list recipients",
		`SELECT `+recipientColumns+` FROM recipients WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, ownerID)
}

func (r *RecipientRepository) ListValidByOwner(ctx context.Context, ownerID int) ([]model.Recipient, error) {
	return r.list(ctx, "list valid recipients",
		`SELECT `+recipientColumns+` FROM recipients WHERE user_id=$1 AND is_valid=TRUE ORDER BY id`, ownerID)
}

func (r *RecipientRepository) ListValidByIDs(ctx context.Context, ownerID int, ids []int) ([]model.Recipient, error) {
	return r.list(ctx, "list selected recipients",
		`SELECT `+recipientColumns+` FROM recipients WHERE user_id=$1 AND is_valid=TRUE AND id = ANY($2) ORDER BY id`,
		ownerID, pq.Array(toInt64s(ids)))
}

func (r *RecipientRepository) Update(ctx context.Context, rec *model.Recipient) error {
	query := `
        UPDATE recipients
        SET email=$1, name=$2, is_valid=$3, updated_at=NOW()
        WHERE id=$4 AND user_id=$5
    `
	res, err := r.DB.ExecContext(ctx, query, rec.Email, rec.Name, rec.IsValid, rec.ID, rec.OwnerID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.ErrDuplicateRecipient
		}
		return appErrors.NewStoreFault("update recipient", err)
	}
	return requireRow(res, appErrors.NewNotFound("recipient", rec.ID))
}

func (r *RecipientRepository) Delete(ctx context.Context, id, ownerID int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM recipients WHERE id=$1 AND user_id=$2`, id, ownerID)
	if err != nil {
		return appErrors.NewStoreFault("delete recipient", err)
	}
	return requireRow(res, appErrors.NewNotFound("recipient", id))
}

func (r *RecipientRepository) DeleteAllByOwner(ctx context.Context, ownerID int) (int, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM recipients WHERE user_id=$1`, ownerID)
	if err != nil {
		return 0, appErrors.NewStoreFault("delete all recipients", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, appErrors.NewStoreFault("rows affected", err)
	}
	return int(n), nil
}

func (r *RecipientRepository) ExistsEmail(ctx context.Context, ownerID int, email string) (bool, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recipients WHERE user_id=$1 AND LOWER(email)=$2`,
		ownerID, strings.ToLower(strings.TrimSpace(email))).Scan(&count)
	if err != nil {
		return false, appErrors.NewStoreFault("recipient exists", err)
	}
	return count > 0, nil
}

func (r *RecipientRepository) ListEmails(ctx context.Context, ownerID int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT email FROM recipients WHERE user_id=$1`, ownerID)
	if err != nil {
		return nil, appErrors.NewStoreFault("list recipient emails", err)
	}
	defer rows.Close()

	emails := []string{}
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, appErrors.NewStoreFault("list recipient emails", err)
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewStoreFault("list recipient emails", err)
	}
	return emails, nil
}

func (r *RecipientRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]model.Recipient, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, appErrors.NewStoreFault(op, err)
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, appErrors.NewStoreFault(op, err)
		}
		recipients = append(recipients, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewStoreFault(op, err)
	}
	return recipients, nil
}

func scanRecipient(row rowScanner) (model.Recipient, error) {
	var rec model.Recipient
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Email, &rec.Name, &rec.IsValid, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
