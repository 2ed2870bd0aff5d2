package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/model"
	"github.com/unclebandit/bulkmail-backend/internal/service"
)

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name string
		tpl  string
		data map[string]string
		want string
	}{
		{"both placeholders", "Hi {{name}}, {{email}}", map[string]string{"name": "Ada", "email": "a@x.com"}, "Hi Ada, a@x.com"},
		{"repeated", "{{name}} {{name}}", map[string]string{"name": "Bo"}, "Bo Bo"},
		{"unknown placeholder kept", "Hi {{first}}", map[string]string{"name": "Ada"}, "Hi {{first}}"},
		{"single braces untouched", "Hi {name}", map[string]string{"name": "Ada"}, "Hi {name}"},
		{"no placeholders", "plain", map[string]string{"name": "Ada"}, "plain"},
		{"empty value", "Hi {{name}}!", map[string]string{"name": ""}, "Hi !"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.RenderTemplate(tt.tpl, tt.data))
		})
	}
}

func TestRenderTemplate_ValuesAreNotReExpanded(t *testing.T) {
	data := map[string]string{"name": "{{email}}", "email": "a@x.com"}
	for i := 0; i < 20; i++ {
		assert.Equal(t, "{{email}} a@x.com", service.RenderTemplate("{{name}} {{email}}", data))
	}
}

func TestRenderFor(t *testing.T) {
	tpl := &model.Template{Subject: "For {{name}}", Body: "<p>{{email}}</p>"}
	out := service.RenderFor(tpl, model.Recipient{Name: "Ada", Email: "a@x.com"})
	assert.Equal(t, "For Ada", out.Subject)
	assert.Equal(t, "<p>a@x.com</p>", out.Body)
}

func TestTemplateService_CRUD(t *testing.T) {
	svc := &service.TemplateService{TemplateRepo: newFakeTemplateRepo()}
	ctx := context.Background()

	_, err := svc.CreateTemplate(ctx, owner, "", "s", "b")
	var verr *appErrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)

	tpl, err := svc.CreateTemplate(ctx, owner, "welcome", "Hi", "Body")
	require.NoError(t, err)

	subject := "Hello {{name}}"
	updated, err := svc.UpdateTemplate(ctx, owner, tpl.ID, service.TemplateUpdate{Subject: &subject})
	require.NoError(t, err)
	assert.Equal(t, "Hello {{name}}", updated.Subject)
	assert.Equal(t, "Body", updated.Body)

	_, err = svc.GetTemplate(ctx, owner+1, tpl.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	list, err := svc.ListTemplates(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.DeleteTemplate(ctx, owner, tpl.ID))
	_, err = svc.GetTemplate(ctx, owner, tpl.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
