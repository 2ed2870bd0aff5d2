package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/model"
	"github.com/unclebandit/bulkmail-backend/internal/platform/validation"
	"github.com/unclebandit/bulkmail-backend/internal/repository"
)

type RecipientService struct {
	RecipientRepo repository.RecipientRepositoryInterface
	Log           zerolog.Logger
}

type RecipientUpdate struct {
	Email   *string
	Name    *string
	IsValid *bool
}

// ImportResult reports what a bulk import persisted and what it skipped.
type ImportResult struct {
	Created []model.Recipient     `json:"created"`
	Skipped []model.ClassifiedRow `json:"skipped"`
}

// CreateRecipient adds a recipient. isValid defaults to true.
func (s *RecipientService) CreateRecipient(ctx context.Context, ownerID int, email, name string, isValid *bool) (*model.Recipient, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, appErrors.NewValidation("email", "is required")
	}
	if !validation.IsEmail(email) {
		return nil, appErrors.NewValidation("email", "invalid email format")
	}

	exists, err := s.RecipientRepo.ExistsEmail(ctx, ownerID, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, appErrors.ErrDuplicateRecipient
	}

	r := &model.Recipient{OwnerID: ownerID, Email: email, Name: strings.TrimSpace(name), IsValid: true}
	if isValid != nil {
		r.IsValid = *isValid
	}
	if err := s.RecipientRepo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RecipientService) GetRecipient(ctx context.Context, ownerID, id int) (*model.Recipient, error) {
	return s.RecipientRepo.GetOwned(ctx, id, ownerID)
}

func (s *RecipientService) ListRecipients(ctx context.Context, ownerID int) ([]model.Recipient, error) {
	return s.RecipientRepo.ListByOwner(ctx, ownerID)
}

func (s *RecipientService) UpdateRecipient(ctx context.Context, ownerID, id int, upd RecipientUpdate) (*model.Recipient, error) {
	r, err := s.RecipientRepo.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if !validation.IsEmail(email) {
			return nil, appErrors.NewValidation("email", "invalid email format")
		}
		if !strings.EqualFold(email, r.Email) {
			exists, err := s.RecipientRepo.ExistsEmail(ctx, ownerID, email)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, appErrors.ErrDuplicateRecipient
			}
		}
		r.Email = email
	}
	if upd.Name != nil {
		r.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.IsValid != nil {
		r.IsValid = *upd.IsValid
	}

	if err := s.RecipientRepo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RecipientService) DeleteRecipient(ctx context.Context, ownerID, id int) error {
	return s.RecipientRepo.Delete(ctx, id, ownerID)
}

// DeleteAllRecipients removes every recipient of the owner and returns the count.
func (s *RecipientService) DeleteAllRecipients(ctx context.Context, ownerID int) (int, error) {
	n, err := s.RecipientRepo.DeleteAllByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	s.Log.Info().Int("owner_id", ownerID).Int("deleted", n).Msg("recipients cleared")
	return n, nil
}

var requiredCSVHeaders = []string{"name", "email"}

// ClassifyBulk sorts candidate rows into valid, invalid, duplicate-in-batch
// and duplicate-existing buckets without persisting anything. csvHeaders is
// optional; when given it must contain name and email.
func (s *RecipientService) ClassifyBulk(ctx context.Context, ownerID int, rows []model.RecipientRow, csvHeaders []string) (*model.BulkClassification, error) {
	if len(rows) == 0 {
		return nil, appErrors.NewValidation("recipients", "must be a non-empty list")
	}
	if csvHeaders != nil {
		if missing := missingHeaders(csvHeaders); len(missing) > 0 {
			return nil, appErrors.NewValidation("csvHeaders",
				fmt.Sprintf("CSV is missing required columns: %s", strings.Join(missing, ", ")))
		}
	}

	existingEmails, err := s.RecipientRepo.ListEmails(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(existingEmails))
	for _, e := range existingEmails {
		existing[strings.ToLower(e)] = true
	}

	counts := map[string]int{}
	for _, row := range rows {
		if key := normalizeEmail(row.Email); key != "" {
			counts[key]++
		}
	}

	out := &model.BulkClassification{
		Valid:              []model.ClassifiedRow{},
		Invalid:            []model.ClassifiedRow{},
		DuplicatesInCsv:    []model.ClassifiedRow{},
		DuplicatesExisting: []model.ClassifiedRow{},
	}
	seen := map[string]bool{}

	for _, row := range rows {
		key := normalizeEmail(row.Email)
		entry := model.ClassifiedRow{Email: row.Email, Name: row.Name}
		var check model.EmailCheck
		if key != "" {
			check = ValidateEmail(key)
		}

		switch {
		case key == "":
			entry.Reason = "Email is required"
			out.Invalid = append(out.Invalid, entry)
		case !check.IsValid:
			entry.Reason = check.Reason
			out.Invalid = append(out.Invalid, entry)
		case existing[key]:
			entry.Reason = "Email already exists in your recipients list"
			out.DuplicatesExisting = append(out.DuplicatesExisting, entry)
		case seen[key]:
			entry.Reason = fmt.Sprintf("Duplicate email within CSV file (appears %d times)", counts[key])
			out.DuplicatesInCsv = append(out.DuplicatesInCsv, entry)
		default:
			seen[key] = true
			entry.IsValid = true
			out.Valid = append(out.Valid, entry)
		}
	}

	out.Summary = model.BulkSummary{
		Total:              len(rows),
		Valid:              len(out.Valid),
		Invalid:            len(out.Invalid),
		DuplicatesInCsv:    len(out.DuplicatesInCsv),
		DuplicatesExisting: len(out.DuplicatesExisting),
		TotalDuplicates:    len(out.DuplicatesInCsv) + len(out.DuplicatesExisting),
	}
	return out, nil
}

// ImportRecipients persists reviewed rows. Rows that fail validation or
// collide with an existing recipient are skipped, not fatal.
func (s *RecipientService) ImportRecipients(ctx context.Context, ownerID int, rows []model.RecipientRow) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, appErrors.NewValidation("recipients", "must be a non-empty list")
	}

	res := &ImportResult{Created: []model.Recipient{}, Skipped: []model.ClassifiedRow{}}
	for _, row := range rows {
		r, err := s.CreateRecipient(ctx, ownerID, row.Email, row.Name, nil)
		if err != nil {
			var verr *appErrors.ValidationError
			switch {
			case errors.Is(err, appErrors.ErrDuplicateRecipient):
				res.Skipped = append(res.Skipped, model.ClassifiedRow{Email: row.Email, Name: row.Name, Reason: err.Error()})
				continue
			case errors.As(err, &verr):
				res.Skipped = append(res.Skipped, model.ClassifiedRow{Email: row.Email, Name: row.Name, Reason: verr.Reason})
				continue
			}
			return res, err
		}
		res.Created = append(res.Created, *r)
	}

	s.Log.Info().Int("owner_id", ownerID).Int("created", len(res.Created)).Int("skipped", len(res.Skipped)).Msg("recipients imported")
	return res, nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func missingHeaders(headers []string) []string {
	have := map[string]bool{}
	for _, h := range headers {
		have[strings.ToLower(strings.TrimSpace(h))] = true
	}
	var missing []string
	for _, h := range requiredCSVHeaders {
		if !have[h] {
			missing = append(missing, h)
		}
	}
	return missing
}
