package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"opsdesk/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// Stores and publishers may route or retain categories differently.
type EventCategory string

const (
	// CategoryCompliance covers changes to money, people and access grants.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers deletions and permission decisions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine record changes.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from services after a successful mutation. It stays
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID           uuid.UUID       `json:"id"`
	Category     EventCategory   `json:"category"`
	Timestamp    time.Time       `json:"timestamp"`
	TenantID     domain.TenantID `json:"tenantId"`
	ActorID      domain.UserID   `json:"actorId"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	Summary      string          `json:"summary,omitempty"`
	RequestID    string          `json:"requestId,omitempty"`
	ClientIP     string          `json:"clientIp,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	Device       string          `json:"device,omitempty"`
}

type AuditEvent string

const (
	// Projects
	EventProjectCreated AuditEvent = "project.created"
	EventProjectUpdated AuditEvent = "project.updated"
	EventProjectDeleted AuditEvent = "project.deleted"

	// Shipments
	EventShipmentCreated          AuditEvent = "shipment.created"
	EventShipmentUpdated          AuditEvent = "shipment.updated"
	EventShipmentStatusChanged    AuditEvent = "shipment.status_changed"
	EventShipmentSLAStatusChanged AuditEvent = "shipment.sla_status_changed"
	EventShipmentDeleted          AuditEvent = "shipment.deleted"

	// Customers
	EventCustomerCreated AuditEvent = "customer.created"
	EventCustomerUpdated AuditEvent = "customer.updated"
	EventCustomerDeleted AuditEvent = "customer.deleted"

	// Employees
	EventEmployeeCreated    AuditEvent = "employee.created"
	EventEmployeeUpdated    AuditEvent = "employee.updated"
	EventEmployeeTerminated AuditEvent = "employee.terminated"
	EventEmployeeDeleted    AuditEvent = "employee.deleted"

	// Invoices
	EventInvoiceCreated AuditEvent = "invoice.created"
	EventInvoiceUpdated AuditEvent = "invoice.updated"
	EventInvoiceSent    AuditEvent = "invoice.sent"
	EventInvoicePaid    AuditEvent = "invoice.paid"
	EventInvoiceVoided  AuditEvent = "invoice.voided"
	EventInvoiceDeleted AuditEvent = "invoice.deleted"

	// Quotes
	EventQuoteCreated   AuditEvent = "quote.created"
	EventQuoteUpdated   AuditEvent = "quote.updated"
	EventQuoteSent      AuditEvent = "quote.sent"
	EventQuoteAccepted  AuditEvent = "quote.accepted"
	EventQuoteRejected  AuditEvent = "quote.rejected"
	EventQuoteExpired   AuditEvent = "quote.expired"
	EventQuoteConverted AuditEvent = "quote.converted"
	EventQuoteDeleted   AuditEvent = "quote.deleted"

	// Commissions
	EventCommissionCreated  AuditEvent = "commission.created"
	EventCommissionApproved AuditEvent = "commission.approved"
	EventCommissionRejected AuditEvent = "commission.rejected"
	EventCommissionPaid     AuditEvent = "commission.paid"
	EventCommissionDeleted  AuditEvent = "commission.deleted"

	// Email templates
	EventTemplateCreated AuditEvent = "email_template.created"
	EventTemplateUpdated AuditEvent = "email_template.updated"
	EventTemplateDeleted AuditEvent = "email_template.deleted"

	// Dashboards
	EventDashboardCreated AuditEvent = "dashboard.created"
	EventDashboardUpdated AuditEvent = "dashboard.updated"
	EventDashboardDeleted AuditEvent = "dashboard.deleted"

	// Permission requests
	EventPermissionRequested AuditEvent = "permission_request.created"
	EventPermissionApproved  AuditEvent = "permission_request.approved"
	EventPermissionDenied    AuditEvent = "permission_request.denied"
	EventPermissionCancelled AuditEvent = "permission_request.cancelled"
	EventPermissionRevoked   AuditEvent = "permission_grant.revoked"

	// Documents
	EventDocumentUploaded AuditEvent = "document.uploaded"
	EventDocumentDeleted  AuditEvent = "document.deleted"

	// Tokens
	EventTokenIssued AuditEvent = "token.issued"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventInvoiceCreated:     CategoryCompliance,
	EventInvoiceSent:        CategoryCompliance,
	EventInvoicePaid:        CategoryCompliance,
	EventInvoiceVoided:      CategoryCompliance,
	EventQuoteAccepted:      CategoryCompliance,
	EventQuoteConverted:     CategoryCompliance,
	EventCommissionApproved: CategoryCompliance,
	EventCommissionPaid:     CategoryCompliance,
	EventEmployeeCreated:    CategoryCompliance,
	EventEmployeeTerminated: CategoryCompliance,
	EventPermissionApproved: CategoryCompliance,

	EventPermissionDenied:  CategorySecurity,
	EventPermissionRevoked: CategorySecurity,
	EventTokenIssued:       CategorySecurity,
	EventProjectDeleted:    CategorySecurity,
	EventShipmentDeleted:   CategorySecurity,
	EventCustomerDeleted:   CategorySecurity,
	EventEmployeeDeleted:   CategorySecurity,
	EventInvoiceDeleted:    CategorySecurity,
	EventQuoteDeleted:      CategorySecurity,
	EventDocumentDeleted:   CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	ResourceType string
	ResourceID   string
	ActorID      domain.UserID
	Action       string
	Limit        int
}

// Matches reports whether e satisfies every set field of f.
func (f Filter) Matches(e Event) bool {
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if !f.ActorID.IsNil() && e.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	return true
}

// Store persists audit events. List returns newest first.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, tenantID domain.TenantID, filter Filter) ([]Event, error)
}

// Publisher accepts events from services.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Normalize fills ID, timestamp and category when the caller left them unset.
func Normalize(event Event) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}
	return event
}
