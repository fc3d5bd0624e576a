package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/email"
)

const PermRead = "employees:read"

var Schema = docstore.Schema{
	Collection: "employees",
	Unique:     []string{"email", "userId"},
	Indexes:    []string{"status", "department"},
}

type Status string

const (
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
)

// Employee is a staff record, optionally linked to a login.
//
// Invariants:
//   - FirstName and Email are set; Email is normalized
//   - TerminatedAt is set exactly when Status is terminated
type Employee struct {
	ID           domain.EmployeeID `json:"id"`
	TenantID     domain.TenantID   `json:"tenantId"`
	UserID       *domain.UserID    `json:"userId,omitempty"`
	FirstName    string            `json:"firstName"`
	LastName     string            `json:"lastName"`
	Email        string            `json:"email"`
	Department   string            `json:"department,omitempty"`
	Position     string            `json:"position,omitempty"`
	HireDate     *time.Time        `json:"hireDate,omitempty"`
	Status       Status            `json:"status"`
	TerminatedAt *time.Time        `json:"terminatedAt,omitempty"`
	domain.Audit
}

type Fields struct {
	UserID     *domain.UserID
	FirstName  string
	LastName   string
	Email      string
	Department string
	Position   string
	HireDate   *time.Time
}

func NewEmployee(tenantID domain.TenantID, f Fields, now time.Time, actor domain.UserID) (*Employee, error) {
	e := &Employee{ID: domain.NewEmployeeID(), TenantID: tenantID, Status: StatusActive}
	if err := e.Apply(f); err != nil {
		return nil, err
	}
	e.Stamp(now, actor)
	return e, nil
}

// Apply sets the editable fields. Blank names are derived from the email
// local part.
func (e *Employee) Apply(f Fields) error {
	addr := email.Normalize(f.Email)
	if err := email.Validate(addr); err != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, dErrors.MessageOf(err))
	}
	first, last := strings.TrimSpace(f.FirstName), strings.TrimSpace(f.LastName)
	if first == "" && last == "" {
		first, last = email.DeriveNameFromEmail(addr)
	}
	if first == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "employee first name is required")
	}
	e.UserID = f.UserID
	e.FirstName = first
	e.LastName = last
	e.Email = addr
	e.Department = strings.TrimSpace(f.Department)
	e.Position = strings.TrimSpace(f.Position)
	e.HireDate = f.HireDate
	return nil
}

func (e *Employee) Fields() Fields {
	return Fields{
		UserID: e.UserID, FirstName: e.FirstName, LastName: e.LastName, Email: e.Email,
		Department: e.Department, Position: e.Position, HireDate: e.HireDate,
	}
}

func (e *Employee) CanTerminate() error {
	if e.Status == StatusTerminated {
		return dErrors.New(dErrors.CodeInvariantViolation, "employee is already terminated")
	}
	return nil
}

func (e *Employee) ApplyTerminate(at, now time.Time, actor domain.UserID) {
	e.Status = StatusTerminated
	e.TerminatedAt = &at
	e.Touch(now, actor)
}

func (e *Employee) Key() uuid.UUID          { return uuid.UUID(e.ID) }
func (e *Employee) Tenant() domain.TenantID { return e.TenantID }
func (e *Employee) IsDeleted() bool         { return e.Audit.IsDeleted() }

func (e *Employee) Clone() *Employee {
	out := *e
	if e.UserID != nil {
		u := *e.UserID
		out.UserID = &u
	}
	if e.HireDate != nil {
		h := *e.HireDate
		out.HireDate = &h
	}
	if e.TerminatedAt != nil {
		t := *e.TerminatedAt
		out.TerminatedAt = &t
	}
	out.Audit = e.Audit.CloneAudit()
	return &out
}

func CanRead(p domain.Principal) bool { return authz.Can(p, PermRead) }

func RequireRead(p domain.Principal) error { return authz.Require(p, PermRead) }

// RequireWrite: every employee mutation is admin only.
func RequireWrite(p domain.Principal) error { return authz.RequireAdmin(p) }
