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

const (
	MaxNameLength = 200
	PermRead      = "customers:read"
	PermWrite     = "customers:write"
)

// Schema: email is unique among a tenant's live customers. Emails are stored
// normalized so the comparison is case-insensitive.
var Schema = docstore.Schema{
	Collection: "customers",
	Unique:     []string{"email"},
	Indexes:    []string{"status", "company"},
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusInactive:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid customer status: "+s)
}

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Customer struct {
	ID       domain.CustomerID `json:"id"`
	TenantID domain.TenantID   `json:"tenantId"`
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Phone    string            `json:"phone,omitempty"`
	Company  string            `json:"company,omitempty"`
	Address  Address           `json:"address"`
	Status   Status            `json:"status"`
	domain.Audit
}

// Fields are the editable attributes shared by create and update.
type Fields struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Address Address
	Status  Status
}

func NewCustomer(tenantID domain.TenantID, f Fields, now time.Time, actor domain.UserID) (*Customer, error) {
	c := &Customer{ID: domain.NewCustomerID(), TenantID: tenantID}
	if err := c.Apply(f); err != nil {
		return nil, err
	}
	c.Stamp(now, actor)
	return c, nil
}

// Apply replaces the editable fields after checking them.
func (c *Customer) Apply(f Fields) error {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "customer name is required")
	}
	if len(name) > MaxNameLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "customer name must be 200 characters or less")
	}
	addr := email.Normalize(f.Email)
	if err := email.Validate(addr); err != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, dErrors.MessageOf(err))
	}
	status := f.Status
	if status == "" {
		status = StatusActive
	}
	c.Name = name
	c.Email = addr
	c.Phone = strings.TrimSpace(f.Phone)
	c.Company = strings.TrimSpace(f.Company)
	c.Address = f.Address
	c.Status = status
	return nil
}

// Fields returns the current editable attributes.
func (c *Customer) Fields() Fields {
	return Fields{Name: c.Name, Email: c.Email, Phone: c.Phone, Company: c.Company, Address: c.Address, Status: c.Status}
}

func (c *Customer) Key() uuid.UUID          { return uuid.UUID(c.ID) }
func (c *Customer) Tenant() domain.TenantID { return c.TenantID }
func (c *Customer) IsDeleted() bool         { return c.Audit.IsDeleted() }

func (c *Customer) Clone() *Customer {
	out := *c
	out.Audit = c.Audit.CloneAudit()
	return &out
}

func CanRead(p domain.Principal) bool  { return authz.Can(p, PermRead) || authz.Can(p, PermWrite) }
func CanWrite(p domain.Principal) bool { return authz.Can(p, PermWrite) }

func RequireRead(p domain.Principal) error {
	if !CanRead(p) {
		return authz.Require(p, PermRead)
	}
	return nil
}

func RequireWrite(p domain.Principal) error  { return authz.Require(p, PermWrite) }
func RequireDelete(p domain.Principal) error { return authz.RequireAdmin(p) }
