package models

import (
	"bytes"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	strs "opsdesk/pkg/platform/strings"
)

const (
	PermRead   = "email_templates:read"
	maxKeyLen  = 64
	maxNameLen = 128
)

var Schema = docstore.Schema{
	Collection: "emailTemplates",
	Unique:     []string{"key"},
	Indexes:    []string{"active"},
}

// Template is a named subject/body pair rendered with text/template.
//
// Invariants:
//   - Slug is a slug, unique among the tenant's live templates
//   - Subject and Body parse as templates
type Template struct {
	ID        domain.TemplateID `json:"id"`
	TenantID  domain.TenantID   `json:"tenantId"`
	Slug      string            `json:"key"`
	Name      string            `json:"name"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Variables []string          `json:"variables"`
	Active    bool              `json:"active"`
	domain.Audit
}

type Fields struct {
	Slug      string
	Name      string
	Subject   string
	Body      string
	Variables []string
	Active    bool
}

func NewTemplate(tenantID domain.TenantID, f Fields, now time.Time, actor domain.UserID) (*Template, error) {
	t := &Template{ID: domain.NewTemplateID(), TenantID: tenantID}
	if err := t.Apply(f); err != nil {
		return nil, err
	}
	t.Stamp(now, actor)
	return t, nil
}

// Apply validates and sets the editable fields. A blank key is derived
// from the name.
func (t *Template) Apply(f Fields) error {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "template name is required")
	}
	if len(name) > maxNameLen {
		return dErrors.New(dErrors.CodeInvariantViolation, "template name is too long")
	}
	key := strings.TrimSpace(f.Slug)
	if key == "" {
		key = strs.Slugify(name)
	}
	if !strs.IsSlug(key) {
		return dErrors.New(dErrors.CodeInvariantViolation, "template key must contain only lowercase letters, digits and hyphens")
	}
	if len(key) > maxKeyLen {
		return dErrors.New(dErrors.CodeInvariantViolation, "template key is too long")
	}
	if strings.TrimSpace(f.Subject) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "template subject is required")
	}
	if strings.TrimSpace(f.Body) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "template body is required")
	}
	if _, err := parse("subject", f.Subject); err != nil {
		return err
	}
	if _, err := parse("body", f.Body); err != nil {
		return err
	}
	vars := strs.DedupeAndTrim(f.Variables)
	sort.Strings(vars)

	t.Slug = key
	t.Name = name
	t.Subject = f.Subject
	t.Body = f.Body
	t.Variables = vars
	t.Active = f.Active
	return nil
}

func (t *Template) Fields() Fields {
	return Fields{
		Slug:      t.Slug,
		Name:      t.Name,
		Subject:   t.Subject,
		Body:      t.Body,
		Variables: append([]string(nil), t.Variables...),
		Active:    t.Active,
	}
}

// Rendered is the output of a template execution.
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Render executes subject and body against data. Every declared variable
// must be present; references to undeclared keys fail execution.
func (t *Template) Render(data map[string]any) (Rendered, error) {
	if !t.Active {
		return Rendered{}, dErrors.New(dErrors.CodeInvariantViolation, "template is inactive")
	}
	var missing []string
	for _, v := range t.Variables {
		if _, ok := data[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return Rendered{}, dErrors.New(dErrors.CodeValidation, "missing template variables: "+strings.Join(missing, ", "))
	}
	subject, err := execute("subject", t.Subject, data)
	if err != nil {
		return Rendered{}, err
	}
	body, err := execute("body", t.Body, data)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject, Body: body}, nil
}

func parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid template "+name+": "+err.Error())
	}
	return tmpl, nil
}

func execute(name, text string, data map[string]any) (string, error) {
	tmpl, err := parse(name, text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "failed to render template "+name+": "+err.Error())
	}
	return buf.String(), nil
}

func (t *Template) Key() uuid.UUID          { return uuid.UUID(t.ID) }
func (t *Template) Tenant() domain.TenantID { return t.TenantID }
func (t *Template) IsDeleted() bool         { return t.Audit.IsDeleted() }

func (t *Template) Clone() *Template {
	out := *t
	out.Variables = append([]string(nil), t.Variables...)
	out.Audit = t.Audit.CloneAudit()
	return &out
}

func CanRead(p domain.Principal) bool { return authz.Can(p, PermRead) }

func RequireRead(p domain.Principal) error {
	if !CanRead(p) {
		return authz.Require(p, PermRead)
	}
	return nil
}

func RequireWrite(p domain.Principal) error { return authz.RequireAdmin(p) }
