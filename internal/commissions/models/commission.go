package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

var Schema = docstore.Schema{
	Collection: "commissions",
	Indexes:    []string{"status", "employeeId", "userId", "period", "invoiceId"},
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected, StatusPaid:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid commission status: "+s)
}

const periodLayout = "2006-01"

// ParsePeriod checks a YYYY-MM accounting period.
func ParsePeriod(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "commission period is required")
	}
	if _, err := time.Parse(periodLayout, s); err != nil {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "commission period must be formatted as YYYY-MM")
	}
	return s, nil
}

// Commission is an amount owed to an employee for a period.
//
// Invariants:
//   - AmountCents > 0 and RateBps within 0..10000
//   - UserID mirrors the employee's login at creation and scopes own-only reads
//   - pending -> approved -> paid, or pending -> rejected
type Commission struct {
	ID          domain.CommissionID `json:"id"`
	TenantID    domain.TenantID     `json:"tenantId"`
	EmployeeID  domain.EmployeeID   `json:"employeeId"`
	UserID      *domain.UserID      `json:"userId,omitempty"`
	InvoiceID   *domain.InvoiceID   `json:"invoiceId,omitempty"`
	AmountCents int64               `json:"amountCents"`
	RateBps     int                 `json:"rateBps"`
	Period      string              `json:"period"`
	Notes       string              `json:"notes,omitempty"`
	Status      Status              `json:"status"`
	ReviewedBy  *domain.UserID      `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time          `json:"reviewedAt,omitempty"`
	PaidAt      *time.Time          `json:"paidAt,omitempty"`
	domain.Audit
}

type Fields struct {
	EmployeeID  domain.EmployeeID
	InvoiceID   *domain.InvoiceID
	AmountCents int64
	RateBps     int
	Period      string
	Notes       string
}

func NewCommission(tenantID domain.TenantID, f Fields, payee *domain.UserID, now time.Time, actor domain.UserID) (*Commission, error) {
	if f.EmployeeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "commission employee is required")
	}
	if f.AmountCents <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "commission amount must be greater than zero")
	}
	if f.RateBps < 0 || f.RateBps > 10000 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "commission rate must be between 0 and 10000 basis points")
	}
	period, err := ParsePeriod(f.Period)
	if err != nil {
		return nil, err
	}
	c := &Commission{
		ID:          domain.NewCommissionID(),
		TenantID:    tenantID,
		EmployeeID:  f.EmployeeID,
		UserID:      payee,
		InvoiceID:   f.InvoiceID,
		AmountCents: f.AmountCents,
		RateBps:     f.RateBps,
		Period:      period,
		Notes:       strings.TrimSpace(f.Notes),
		Status:      StatusPending,
	}
	c.Stamp(now, actor)
	return c, nil
}

// IsPayee reports whether the commission is owed to the given login.
func (c *Commission) IsPayee(user domain.UserID) bool {
	return c.UserID != nil && *c.UserID == user
}

func (c *Commission) CanReview() error {
	if c.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "commission is "+string(c.Status)+", only pending commissions can be reviewed")
	}
	return nil
}

func (c *Commission) ApplyReview(status Status, now time.Time, reviewer domain.UserID) {
	c.Status = status
	c.ReviewedAt = &now
	c.ReviewedBy = &reviewer
}

func (c *Commission) CanPay() error {
	if c.Status != StatusApproved {
		return dErrors.New(dErrors.CodeInvariantViolation, "only approved commissions can be paid")
	}
	return nil
}

func (c *Commission) ApplyPaid(at time.Time) {
	c.Status = StatusPaid
	c.PaidAt = &at
}

func (c *Commission) CanRemove() error {
	if c.Status == StatusPaid {
		return dErrors.New(dErrors.CodeInvariantViolation, "paid commissions cannot be deleted")
	}
	return c.CanDelete()
}

func (c *Commission) Key() uuid.UUID          { return uuid.UUID(c.ID) }
func (c *Commission) Tenant() domain.TenantID { return c.TenantID }
func (c *Commission) IsDeleted() bool         { return c.Audit.IsDeleted() }

func (c *Commission) Clone() *Commission {
	out := *c
	out.UserID = clonePtr(c.UserID)
	out.InvoiceID = clonePtr(c.InvoiceID)
	out.ReviewedBy = clonePtr(c.ReviewedBy)
	out.ReviewedAt = clonePtr(c.ReviewedAt)
	out.PaidAt = clonePtr(c.PaidAt)
	out.Audit = c.Audit.CloneAudit()
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
