package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

func validFields() Fields {
	return Fields{
		Name:      "Invoice Reminder",
		Subject:   "Invoice {{.number}} is due",
		Body:      "Hello {{.name}}, invoice {{.number}} is due on {{.due}}.",
		Variables: []string{" number", "name", "due", "name"},
		Active:    true,
	}
}

func TestNewTemplateDerivesKey(t *testing.T) {
	tmpl, err := NewTemplate(domain.NewTenantID(), validFields(), time.Now(), domain.NewUserID())
	require.NoError(t, err)
	assert.Equal(t, "invoice-reminder", tmpl.Slug)
	assert.Equal(t, []string{"due", "name", "number"}, tmpl.Variables)
}

func TestTemplateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Fields)
		msg    string
	}{
		{"blank name", func(f *Fields) { f.Name = "  " }, "template name is required"},
		{"bad key", func(f *Fields) { f.Slug = "Invoice Reminder" }, "template key must contain only lowercase letters, digits and hyphens"},
		{"blank subject", func(f *Fields) { f.Subject = "" }, "template subject is required"},
		{"blank body", func(f *Fields) { f.Body = "\n" }, "template body is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFields()
			tt.mutate(&f)
			_, err := NewTemplate(domain.NewTenantID(), f, time.Now(), domain.NewUserID())
			require.Error(t, err)
			assert.Equal(t, tt.msg, dErrors.MessageOf(err))
		})
	}
}

func TestTemplateParseError(t *testing.T) {
	f := validFields()
	f.Body = "Hello {{.name"
	_, err := NewTemplate(domain.NewTenantID(), f, time.Now(), domain.NewUserID())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	assert.Contains(t, dErrors.MessageOf(err), "invalid template body")
}

func TestRender(t *testing.T) {
	tmpl, err := NewTemplate(domain.NewTenantID(), validFields(), time.Now(), domain.NewUserID())
	require.NoError(t, err)

	out, err := tmpl.Render(map[string]any{"number": "INV-000004", "name": "Ana", "due": "May 1"})
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV-000004 is due", out.Subject)
	assert.Equal(t, "Hello Ana, invoice INV-000004 is due on May 1.", out.Body)

	_, err = tmpl.Render(map[string]any{"number": "INV-000004"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, "missing template variables: due, name", dErrors.MessageOf(err))

	tmpl.Active = false
	_, err = tmpl.Render(map[string]any{"number": "1", "name": "x", "due": "y"})
	assert.Equal(t, "template is inactive", dErrors.MessageOf(err))
}

func TestRenderUndeclaredKey(t *testing.T) {
	f := validFields()
	f.Variables = nil
	tmpl, err := NewTemplate(domain.NewTenantID(), f, time.Now(), domain.NewUserID())
	require.NoError(t, err)
	_, err = tmpl.Render(map[string]any{"number": "1"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
