package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

const (
	maxNameLen = 128
	maxWidgets = 50
)

var Schema = docstore.Schema{
	Collection: "dashboards",
	Indexes:    []string{"ownerId", "shared", "isDefault"},
}

type WidgetType string

const (
	WidgetKPI   WidgetType = "kpi"
	WidgetChart WidgetType = "chart"
	WidgetTable WidgetType = "table"
	WidgetList  WidgetType = "list"
)

func (t WidgetType) IsValid() bool {
	switch t {
	case WidgetKPI, WidgetChart, WidgetTable, WidgetList:
		return true
	}
	return false
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type Widget struct {
	ID       string     `json:"id"`
	Type     WidgetType `json:"type"`
	Title    string     `json:"title"`
	Query    string     `json:"query,omitempty"`
	Position Position   `json:"position"`
}

// Dashboard is a user's arrangement of widgets.
//
// Invariants:
//   - widget IDs are unique within the dashboard
//   - at most one dashboard per owner has IsDefault set
type Dashboard struct {
	ID          domain.DashboardID `json:"id"`
	TenantID    domain.TenantID    `json:"tenantId"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	OwnerID     domain.UserID      `json:"ownerId"`
	Shared      bool               `json:"shared"`
	IsDefault   bool               `json:"isDefault"`
	Widgets     []Widget           `json:"widgets"`
	domain.Audit
}

type Fields struct {
	Name        string
	Description string
	Shared      bool
	Widgets     []Widget
}

func NewDashboard(tenantID domain.TenantID, f Fields, owner domain.UserID, now time.Time) (*Dashboard, error) {
	d := &Dashboard{ID: domain.NewDashboardID(), TenantID: tenantID, OwnerID: owner}
	if err := d.Apply(f); err != nil {
		return nil, err
	}
	d.Stamp(now, owner)
	return d, nil
}

func (d *Dashboard) Apply(f Fields) error {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "dashboard name is required")
	}
	if len(name) > maxNameLen {
		return dErrors.New(dErrors.CodeInvariantViolation, "dashboard name is too long")
	}
	widgets, err := normalizeWidgets(f.Widgets)
	if err != nil {
		return err
	}
	d.Name = name
	d.Description = strings.TrimSpace(f.Description)
	d.Shared = f.Shared
	d.Widgets = widgets
	return nil
}

func (d *Dashboard) Fields() Fields {
	return Fields{Name: d.Name, Description: d.Description, Shared: d.Shared, Widgets: cloneWidgets(d.Widgets)}
}

// normalizeWidgets validates widgets and assigns IDs to those without one.
func normalizeWidgets(in []Widget) ([]Widget, error) {
	if len(in) > maxWidgets {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a dashboard holds at most "+strconv.Itoa(maxWidgets)+" widgets")
	}
	out := make([]Widget, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for i, w := range in {
		label := "widget " + strconv.Itoa(i+1)
		w.Title = strings.TrimSpace(w.Title)
		w.ID = strings.TrimSpace(w.ID)
		if !w.Type.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, label+": type must be one of kpi, chart, table, list")
		}
		if w.Title == "" {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, label+": title is required")
		}
		if w.Position.X < 0 || w.Position.Y < 0 || w.Position.W <= 0 || w.Position.H <= 0 {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, label+": position needs x,y >= 0 and w,h > 0")
		}
		if w.ID == "" {
			w.ID = uuid.NewString()
		}
		if _, dup := seen[w.ID]; dup {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, label+": duplicate widget id "+w.ID)
		}
		seen[w.ID] = struct{}{}
		out = append(out, w)
	}
	return out, nil
}

func cloneWidgets(in []Widget) []Widget {
	if in == nil {
		return nil
	}
	return append([]Widget(nil), in...)
}

func (d *Dashboard) Key() uuid.UUID          { return uuid.UUID(d.ID) }
func (d *Dashboard) Tenant() domain.TenantID { return d.TenantID }
func (d *Dashboard) IsDeleted() bool         { return d.Audit.IsDeleted() }

func (d *Dashboard) Clone() *Dashboard {
	out := *d
	out.Widgets = cloneWidgets(d.Widgets)
	out.Audit = d.Audit.CloneAudit()
	return &out
}

// CanView allows the owner, admins, and anyone once the dashboard is shared.
func CanView(p domain.Principal, d *Dashboard) bool {
	return d.Shared || authz.CanModifyOwned(p, d.OwnerID, "")
}

func RequireModify(p domain.Principal, d *Dashboard) error {
	return authz.RequireModifyOwned(p, d.OwnerID, "")
}
