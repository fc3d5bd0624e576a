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
	MaxReferenceLength = 64
	MaxLocationLength  = 256
	MaxCarrierLength   = 128
)

// Schema: references are unique per tenant; list filters hit status,
// customer and SLA status.
var Schema = docstore.Schema{
	Collection: "shipments",
	Unique:     []string{"reference"},
	Indexes:    []string{"status", "customerId", "slaStatus"},
}

// Shipment is a tracked delivery.
//
// Invariants:
//   - Reference and Destination are non-empty
//   - Status only moves along the transitions in status.go
//   - SLAStatus is empty exactly when SLADeadline is nil
//   - DeliveredAt is set once the shipment reaches delivered
type Shipment struct {
	ID               domain.ShipmentID  `json:"id"`
	TenantID         domain.TenantID    `json:"tenantId"`
	Reference        string             `json:"reference"`
	CustomerID       *domain.CustomerID `json:"customerId,omitempty"`
	Origin           string             `json:"origin"`
	Destination      string             `json:"destination"`
	Carrier          string             `json:"carrier,omitempty"`
	Status           Status             `json:"status"`
	SLADeadline      *time.Time         `json:"slaDeadline,omitempty"`
	SLAStatus        SLAStatus          `json:"slaStatus,omitempty"`
	SLALastCheckedAt *time.Time         `json:"slaLastCheckedAt,omitempty"`
	DeliveredAt      *time.Time         `json:"deliveredAt,omitempty"`
	domain.Audit
}

// NewShipment builds a pending shipment. The SLA status is left for the
// caller to classify against the request clock.
func NewShipment(tenantID domain.TenantID, reference, origin, destination, carrier string, customerID *domain.CustomerID, deadline *time.Time, now time.Time, actor domain.UserID) (*Shipment, error) {
	reference = strings.TrimSpace(reference)
	destination = strings.TrimSpace(destination)
	if reference == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "shipment reference is required")
	}
	if len(reference) > MaxReferenceLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "shipment reference must be 64 characters or less")
	}
	if destination == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "shipment destination is required")
	}
	s := &Shipment{
		ID:          domain.NewShipmentID(),
		TenantID:    tenantID,
		Reference:   reference,
		CustomerID:  customerID,
		Origin:      strings.TrimSpace(origin),
		Destination: destination,
		Carrier:     strings.TrimSpace(carrier),
		Status:      StatusPending,
		SLADeadline: deadline,
	}
	s.Stamp(now, actor)
	return s, nil
}

func (s *Shipment) Key() uuid.UUID          { return uuid.UUID(s.ID) }
func (s *Shipment) Tenant() domain.TenantID { return s.TenantID }
func (s *Shipment) IsDeleted() bool         { return s.Audit.IsDeleted() }

func (s *Shipment) Clone() *Shipment {
	out := *s
	out.CustomerID = clonePtr(s.CustomerID)
	out.SLADeadline = clonePtr(s.SLADeadline)
	out.SLALastCheckedAt = clonePtr(s.SLALastCheckedAt)
	out.DeliveredAt = clonePtr(s.DeliveredAt)
	out.Audit = s.Audit.CloneAudit()
	return &out
}

// CanTransition checks a status change against the transition table.
func (s *Shipment) CanTransition(to Status) error {
	if s.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "shipment is deleted")
	}
	if !s.Status.CanTransitionTo(to) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"cannot change shipment status from "+string(s.Status)+" to "+string(to))
	}
	return nil
}

// ApplyTransition moves the shipment to status to. Call CanTransition first.
func (s *Shipment) ApplyTransition(to Status, now time.Time, actor domain.UserID) {
	s.Status = to
	if to == StatusDelivered {
		delivered := now
		s.DeliveredAt = &delivered
	}
	s.Touch(now, actor)
}

// CanEdit rejects edits to deleted or finished shipments.
func (s *Shipment) CanEdit() error {
	if s.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "shipment is deleted")
	}
	if s.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "shipment is "+string(s.Status)+" and can no longer be edited")
	}
	return nil
}

// ApplySLA records a classification and the time it was computed.
func (s *Shipment) ApplySLA(status SLAStatus, checkedAt time.Time) {
	s.SLAStatus = status
	checked := checkedAt
	s.SLALastCheckedAt = &checked
}

// TracksSLA reports whether the sweeper should look at this shipment.
func (s *Shipment) TracksSLA() bool {
	return s.SLADeadline != nil && !s.Status.IsTerminal() && !s.IsDeleted()
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
