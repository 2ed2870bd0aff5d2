package service

import (
	"context"
	"sort"
	"strings"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/model"
	"github.com/unclebandit/bulkmail-backend/internal/repository"
)

// RenderTemplate replaces every {{key}} in template with data[key].
// Substitution is a single pass, so a value that itself contains a
// placeholder is never expanded. Unknown placeholders are left as-is.
func RenderTemplate(template string, data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Rendered is a template personalised for one recipient.
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RenderFor personalises subject and body with the recipient's name and email.
func RenderFor(t *model.Template, r model.Recipient) Rendered {
	data := map[string]string{
		"name":  r.Name,
		"email": r.Email,
	}
	return Rendered{
		Subject: RenderTemplate(t.Subject, data),
		Body:    RenderTemplate(t.Body, data),
	}
}

type TemplateService struct {
	TemplateRepo repository.TemplateRepositoryInterface
}

type TemplateUpdate struct {
	Name    *string
	Subject *string
	Body    *string
}

func (s *TemplateService) CreateTemplate(ctx context.Context, ownerID int, name, subject, body string) (*model.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErrors.NewValidation("name", "is required")
	}
	if strings.TrimSpace(subject) == "" {
		return nil, appErrors.NewValidation("subject", "is required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, appErrors.NewValidation("body", "is required")
	}

	t := &model.Template{OwnerID: ownerID, Name: name, Subject: subject, Body: body}
	if err := s.TemplateRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) GetTemplate(ctx context.Context, ownerID, id int) (*model.Template, error) {
	return s.TemplateRepo.GetOwned(ctx, id, ownerID)
}

func (s *TemplateService) ListTemplates(ctx context.Context, ownerID int) ([]model.Template, error) {
	return s.TemplateRepo.ListByOwner(ctx, ownerID)
}

func (s *TemplateService) UpdateTemplate(ctx context.Context, ownerID, id int, upd TemplateUpdate) (*model.Template, error) {
	t, err := s.TemplateRepo.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return nil, appErrors.NewValidation("name", "must not be empty")
		}
		t.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Subject != nil {
		if strings.TrimSpace(*upd.Subject) == "" {
			return nil, appErrors.NewValidation("subject", "must not be empty")
		}
		t.Subject = *upd.Subject
	}
	if upd.Body != nil {
		if strings.TrimSpace(*upd.Body) == "" {
			return nil, appErrors.NewValidation("body", "must not be empty")
		}
		t.Body = *upd.Body
	}
	if err := s.TemplateRepo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) DeleteTemplate(ctx context.Context, ownerID, id int) error {
	return s.TemplateRepo.Delete(ctx, id, ownerID)
}
