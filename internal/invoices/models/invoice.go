package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/billing"
	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

const (
	NumberPrefix   = "INV"
	MaxNotesLength = 2000
)

var Schema = docstore.Schema{
	Collection: "invoices",
	Unique:     []string{"number"},
	Indexes:    []string{"status", "customerId", "quoteId"},
}

type Status string

const (
	StatusDraft Status = "draft"
	StatusSent  Status = "sent"
	StatusPaid  Status = "paid"
	StatusVoid  Status = "void"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDraft, StatusSent, StatusPaid, StatusVoid:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid invoice status: "+s)
}

// Invoice bills a customer.
//
// Invariants:
//   - Number is assigned once from the tenant's invoice counter
//   - Totals always equal billing.Compute(LineItems, TaxRateBps)
//   - Only drafts are editable; status moves draft -> sent -> paid, and
//     draft or sent -> void
type Invoice struct {
	ID         domain.InvoiceID   `json:"id"`
	TenantID   domain.TenantID    `json:"tenantId"`
	Number     string             `json:"number"`
	CustomerID domain.CustomerID  `json:"customerId"`
	QuoteID    *domain.QuoteID    `json:"quoteId,omitempty"`
	LineItems  []billing.LineItem `json:"lineItems"`
	TaxRateBps int                `json:"taxRateBps"`
	Currency   string             `json:"currency"`
	Notes      string             `json:"notes,omitempty"`
	Status     Status             `json:"status"`
	DueDate    *time.Time         `json:"dueDate,omitempty"`
	IssuedAt   *time.Time         `json:"issuedAt,omitempty"`
	PaidAt     *time.Time         `json:"paidAt,omitempty"`
	VoidedAt   *time.Time         `json:"voidedAt,omitempty"`
	billing.Totals
	domain.Audit
}

// Draft is the editable content of an invoice.
type Draft struct {
	CustomerID domain.CustomerID
	LineItems  []billing.LineItem
	TaxRateBps int
	Currency   string
	Notes      string
	DueDate    *time.Time
}

func NewInvoice(tenantID domain.TenantID, number string, d Draft, quoteID *domain.QuoteID, now time.Time, actor domain.UserID) (*Invoice, error) {
	if strings.TrimSpace(number) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invoice number is required")
	}
	inv := &Invoice{
		ID:       domain.NewInvoiceID(),
		TenantID: tenantID,
		Number:   number,
		QuoteID:  quoteID,
		Status:   StatusDraft,
	}
	if err := inv.ApplyDraft(d); err != nil {
		return nil, err
	}
	inv.Stamp(now, actor)
	return inv, nil
}

// ApplyDraft replaces the editable content and recomputes totals.
func (inv *Invoice) ApplyDraft(d Draft) error {
	if d.CustomerID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invoice customer is required")
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
	notes := strings.TrimSpace(d.Notes)
	if len(notes) > MaxNotesLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "invoice notes are too long")
	}
	inv.CustomerID = d.CustomerID
	inv.LineItems = items
	inv.TaxRateBps = d.TaxRateBps
	inv.Currency = currency
	inv.Notes = notes
	inv.DueDate = d.DueDate
	inv.Totals = billing.Compute(items, d.TaxRateBps)
	return nil
}

func (inv *Invoice) Draft() Draft {
	return Draft{
		CustomerID: inv.CustomerID,
		LineItems:  billing.CloneItems(inv.LineItems),
		TaxRateBps: inv.TaxRateBps,
		Currency:   inv.Currency,
		Notes:      inv.Notes,
		DueDate:    inv.DueDate,
	}
}

func (inv *Invoice) CanEdit() error {
	if inv.Status != StatusDraft {
		return dErrors.New(dErrors.CodeInvariantViolation, "only draft invoices can be edited")
	}
	return nil
}

func (inv *Invoice) CanSend() error {
	if inv.Status != StatusDraft {
		return dErrors.New(dErrors.CodeInvariantViolation, "only draft invoices can be sent")
	}
	if len(inv.LineItems) == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "invoice has no line items")
	}
	return nil
}

func (inv *Invoice) ApplySend(now time.Time, actor domain.UserID) {
	inv.Status = StatusSent
	inv.IssuedAt = &now
	inv.Touch(now, actor)
}

func (inv *Invoice) CanMarkPaid() error {
	if inv.Status != StatusSent {
		return dErrors.New(dErrors.CodeInvariantViolation, "only sent invoices can be marked paid")
	}
	return nil
}

func (inv *Invoice) ApplyPaid(paidAt, now time.Time, actor domain.UserID) {
	inv.Status = StatusPaid
	inv.PaidAt = &paidAt
	inv.Touch(now, actor)
}

func (inv *Invoice) CanVoid() error {
	if inv.Status != StatusDraft && inv.Status != StatusSent {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot void a "+string(inv.Status)+" invoice")
	}
	return nil
}

func (inv *Invoice) ApplyVoid(now time.Time, actor domain.UserID) {
	inv.Status = StatusVoid
	inv.VoidedAt = &now
	inv.Touch(now, actor)
}

// IsOverdue is true for a sent invoice past its due date.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	return inv.Status == StatusSent && inv.DueDate != nil && now.After(*inv.DueDate)
}

func (inv *Invoice) Key() uuid.UUID          { return uuid.UUID(inv.ID) }
func (inv *Invoice) Tenant() domain.TenantID { return inv.TenantID }
func (inv *Invoice) IsDeleted() bool         { return inv.Audit.IsDeleted() }

func (inv *Invoice) Clone() *Invoice {
	out := *inv
	out.LineItems = billing.CloneItems(inv.LineItems)
	out.QuoteID = clonePtr(inv.QuoteID)
	out.DueDate = clonePtr(inv.DueDate)
	out.IssuedAt = clonePtr(inv.IssuedAt)
	out.PaidAt = clonePtr(inv.PaidAt)
	out.VoidedAt = clonePtr(inv.VoidedAt)
	out.Audit = inv.Audit.CloneAudit()
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
