package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/billing"
	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

const (
	NumberPrefix = "Q"
	PermRead     = "quotes:read"
	PermWrite    = "quotes:write"
)

var Schema = docstore.Schema{
	Collection: "quotes",
	Unique:     []string{"number"},
	Indexes:    []string{"status", "customerId"},
}

type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDraft, StatusSent, StatusAccepted, StatusRejected, StatusExpired:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid quote status: "+s)
}

// Quote is a priced offer that can become an invoice once accepted.
//
// Invariants:
//   - Accept and Reject apply only to sent quotes
//   - a sent quote past ValidUntil can only become expired
//   - InvoiceID is set at most once, and only on accepted quotes
type Quote struct {
	ID         domain.QuoteID     `json:"id"`
	TenantID   domain.TenantID    `json:"tenantId"`
	Number     string             `json:"number"`
	CustomerID domain.CustomerID  `json:"customerId"`
	LineItems  []billing.LineItem `json:"lineItems"`
	TaxRateBps int                `json:"taxRateBps"`
	Currency   string             `json:"currency"`
	Notes      string             `json:"notes,omitempty"`
	ValidUntil *time.Time         `json:"validUntil,omitempty"`
	Status     Status             `json:"status"`
	SentAt     *time.Time         `json:"sentAt,omitempty"`
	DecidedAt  *time.Time         `json:"decidedAt,omitempty"`
	InvoiceID  *domain.InvoiceID  `json:"invoiceId,omitempty"`
	billing.Totals
	domain.Audit
}

type Draft struct {
	CustomerID domain.CustomerID
	LineItems  []billing.LineItem
	TaxRateBps int
	Currency   string
	Notes      string
	ValidUntil *time.Time
}

func NewQuote(tenantID domain.TenantID, number string, d Draft, now time.Time, actor domain.UserID) (*Quote, error) {
	q := &Quote{ID: domain.NewQuoteID(), TenantID: tenantID, Number: number, Status: StatusDraft}
	if err := q.ApplyDraft(d); err != nil {
		return nil, err
	}
	q.Stamp(now, actor)
	return q, nil
}

func (q *Quote) ApplyDraft(d Draft) error {
	if d.CustomerID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "quote customer is required")
	}
	items, err := billing.NormalizeItems(d.LineItems)
	if err != nil {
		return err
	}
	if err := billing.ValidateTaxRate(d.TaxRateBps); err != nil {
		return err
	}
	currency, err := billing.NormalizeCurrency(d.Currency)
	if err != nil {
		return err
	}
	q.CustomerID = d.CustomerID
	q.LineItems = items
	q.TaxRateBps = d.TaxRateBps
	q.Currency = currency
	q.Notes = strings.TrimSpace(d.Notes)
	q.ValidUntil = d.ValidUntil
	q.Totals = billing.Compute(items, d.TaxRateBps)
	return nil
}

func (q *Quote) Draft() Draft {
	return Draft{
		CustomerID: q.CustomerID,
		LineItems:  billing.CloneItems(q.LineItems),
		TaxRateBps: q.TaxRateBps,
		Currency:   q.Currency,
		Notes:      q.Notes,
		ValidUntil: q.ValidUntil,
	}
}

func (q *Quote) CanEdit() error {
	if q.Status != StatusDraft {
		return dErrors.New(dErrors.CodeInvariantViolation, "only draft quotes can be edited")
	}
	return nil
}

func (q *Quote) CanSend(now time.Time) error {
	if q.Status != StatusDraft {
		return dErrors.New(dErrors.CodeInvariantViolation, "only draft quotes can be sent")
	}
	if len(q.LineItems) == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "quote has no line items")
	}
	if q.ValidUntil != nil && !now.Before(*q.ValidUntil) {
		return dErrors.New(dErrors.CodeInvariantViolation, "quote validity date has passed")
	}
	return nil
}

func (q *Quote) ApplySend(now time.Time) {
	q.Status = StatusSent
	q.SentAt = &now
}

// IsExpired reports whether a sent quote has passed its validity date.
func (q *Quote) IsExpired(now time.Time) bool {
	return q.Status == StatusSent && q.ValidUntil != nil && now.After(*q.ValidUntil)
}

// CanDecide allows accept/reject on sent quotes, expired or not; the caller
// turns an expired acceptance into an expiry.
func (q *Quote) CanDecide() error {
	if q.Status != StatusSent {
		return dErrors.New(dErrors.CodeInvariantViolation, "only sent quotes can be accepted or rejected")
	}
	return nil
}

func (q *Quote) ApplyDecision(status Status, now time.Time) {
	q.Status = status
	q.DecidedAt = &now
}

func (q *Quote) CanConvert() error {
	if q.Status != StatusAccepted {
		return dErrors.New(dErrors.CodeInvariantViolation, "only accepted quotes can be converted")
	}
	if q.InvoiceID != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "quote was already converted to invoice "+q.InvoiceID.String())
	}
	return nil
}

func (q *Quote) Key() uuid.UUID          { return uuid.UUID(q.ID) }
func (q *Quote) Tenant() domain.TenantID { return q.TenantID }
func (q *Quote) IsDeleted() bool         { return q.Audit.IsDeleted() }

func (q *Quote) Clone() *Quote {
	out := *q
	out.LineItems = billing.CloneItems(q.LineItems)
	out.ValidUntil = clonePtr(q.ValidUntil)
	out.SentAt = clonePtr(q.SentAt)
	out.DecidedAt = clonePtr(q.DecidedAt)
	out.InvoiceID = clonePtr(q.InvoiceID)
	out.Audit = q.Audit.CloneAudit()
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func CanRead(p domain.Principal) bool { return authz.Can(p, PermRead) || authz.Can(p, PermWrite) }

func RequireRead(p domain.Principal) error {
	if !CanRead(p) {
		return authz.Require(p, PermRead)
	}
	return nil
}

func RequireWrite(p domain.Principal) error  { return authz.Require(p, PermWrite) }
func RequireDelete(p domain.Principal) error { return authz.RequireAdmin(p) }
