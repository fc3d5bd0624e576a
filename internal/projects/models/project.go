package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

const (
	MaxNameLength        = 128
	MaxDescriptionLength = 4000
)

var Schema = docstore.Schema{
	Collection: "projects",
	Indexes:    []string{"status", "ownerId", "customerId"},
}

// Status is the lifecycle stage of a project.
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusActive    Status = "active"
	StatusOnHold    Status = "on_hold"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPlanning, StatusActive, StatusOnHold, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid project status: "+s)
	}
	return st, nil
}

// Project groups work for a customer.
//
// Invariants:
//   - Name is non-empty and at most MaxNameLength
//   - BudgetCents >= 0
//   - DueDate is not before StartDate when both are set
type Project struct {
	ID          domain.ProjectID   `json:"id"`
	TenantID    domain.TenantID    `json:"tenantId"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Status      Status             `json:"status"`
	OwnerID     domain.UserID      `json:"ownerId"`
	CustomerID  *domain.CustomerID `json:"customerId,omitempty"`
	BudgetCents int64              `json:"budgetCents"`
	StartDate   *time.Time         `json:"startDate,omitempty"`
	DueDate     *time.Time         `json:"dueDate,omitempty"`
	domain.Audit
}

// NewProject builds a project owned by actor. An empty status means planning.
func NewProject(tenantID domain.TenantID, name, description string, status Status, customerID *domain.CustomerID, budget int64, start, due *time.Time, now time.Time, actor domain.UserID) (*Project, error) {
	if status == "" {
		status = StatusPlanning
	}
	p := &Project{
		ID:          domain.NewProjectID(),
		TenantID:    tenantID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Status:      status,
		OwnerID:     actor,
		CustomerID:  customerID,
		BudgetCents: budget,
		StartDate:   start,
		DueDate:     due,
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	p.Stamp(now, actor)
	return p, nil
}

// Check verifies the invariants; used after construction and after edits.
func (p *Project) Check() error {
	if p.Name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "project name is required")
	}
	if len(p.Name) > MaxNameLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "project name must be 128 characters or less")
	}
	if len(p.Description) > MaxDescriptionLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "project description is too long")
	}
	if !p.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid project status: "+string(p.Status))
	}
	if p.BudgetCents < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "project budget cannot be negative")
	}
	if p.StartDate != nil && p.DueDate != nil && p.DueDate.Before(*p.StartDate) {
		return dErrors.New(dErrors.CodeInvariantViolation, "project due date cannot be before its start date")
	}
	return nil
}

func (p *Project) Key() uuid.UUID          { return uuid.UUID(p.ID) }
func (p *Project) Tenant() domain.TenantID { return p.TenantID }
func (p *Project) IsDeleted() bool         { return p.Audit.IsDeleted() }

func (p *Project) Clone() *Project {
	out := *p
	out.CustomerID = clonePtr(p.CustomerID)
	out.StartDate = clonePtr(p.StartDate)
	out.DueDate = clonePtr(p.DueDate)
	out.Audit = p.Audit.CloneAudit()
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
