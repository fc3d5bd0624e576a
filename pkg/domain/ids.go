package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "opsdesk/pkg/domain-errors"
)

// Typed identifiers. Each is a distinct uuid.UUID newtype so a ShipmentID can
// never be passed where an InvoiceID is expected.
//
// Construct from external input with the ParseX functions; they reject empty,
// malformed and nil UUIDs with CodeInvalidInput.
type (
	TenantID     uuid.UUID
	UserID       uuid.UUID
	ProjectID    uuid.UUID
	ShipmentID   uuid.UUID
	HistoryID    uuid.UUID
	InvoiceID    uuid.UUID
	CustomerID   uuid.UUID
	EmployeeID   uuid.UUID
	QuoteID      uuid.UUID
	CommissionID uuid.UUID
	TemplateID   uuid.UUID
	DashboardID  uuid.UUID
	RequestID    uuid.UUID
	DocumentID   uuid.UUID
)

// maxIDLength bounds input before it reaches uuid.Parse.
const maxIDLength = 64

func parseUUID(s, label string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return u, nil
}

func unmarshalUUID(text []byte) (uuid.UUID, error) {
	if len(text) == 0 {
		return uuid.Nil, nil
	}
	return uuid.ParseBytes(text)
}

// ParseTenantID parses a TenantID from external input.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant_id")
	return TenantID(u), err
}

// NewTenantID returns a random TenantID.
func NewTenantID() TenantID {
	return TenantID(uuid.New())
}

func (i TenantID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i TenantID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i TenantID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *TenantID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid tenant_id")
	}
	*i = TenantID(u)
	return nil
}

// ParseUserID parses a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

// NewUserID returns a random UserID.
func NewUserID() UserID {
	return UserID(uuid.New())
}

func (i UserID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i UserID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i UserID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *UserID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid user_id")
	}
	*i = UserID(u)
	return nil
}

// ParseProjectID parses a ProjectID from external input.
func ParseProjectID(s string) (ProjectID, error) {
	u, err := parseUUID(s, "project_id")
	return ProjectID(u), err
}

// NewProjectID returns a random ProjectID.
func NewProjectID() ProjectID {
	return ProjectID(uuid.New())
}

func (i ProjectID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i ProjectID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i ProjectID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *ProjectID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid project_id")
	}
	*i = ProjectID(u)
	return nil
}

// ParseShipmentID parses a ShipmentID from external input.
func ParseShipmentID(s string) (ShipmentID, error) {
	u, err := parseUUID(s, "shipment_id")
	return ShipmentID(u), err
}

// NewShipmentID returns a random ShipmentID.
func NewShipmentID() ShipmentID {
	return ShipmentID(uuid.New())
}

func (i ShipmentID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i ShipmentID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i ShipmentID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *ShipmentID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid shipment_id")
	}
	*i = ShipmentID(u)
	return nil
}

// ParseHistoryID parses a HistoryID from external input.
func ParseHistoryID(s string) (HistoryID, error) {
	u, err := parseUUID(s, "history_id")
	return HistoryID(u), err
}

// NewHistoryID returns a random HistoryID.
func NewHistoryID() HistoryID {
	return HistoryID(uuid.New())
}

func (i HistoryID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i HistoryID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i HistoryID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *HistoryID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid history_id")
	}
	*i = HistoryID(u)
	return nil
}

// ParseInvoiceID parses a InvoiceID from external input.
func ParseInvoiceID(s string) (InvoiceID, error) {
	u, err := parseUUID(s, "invoice_id")
	return InvoiceID(u), err
}

// NewInvoiceID returns a random InvoiceID.
func NewInvoiceID() InvoiceID {
	return InvoiceID(uuid.New())
}

func (i InvoiceID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i InvoiceID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i InvoiceID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *InvoiceID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid invoice_id")
	}
	*i = InvoiceID(u)
	return nil
}

// ParseCustomerID parses a CustomerID from external input.
func ParseCustomerID(s string) (CustomerID, error) {
	u, err := parseUUID(s, "customer_id")
	return CustomerID(u), err
}

// NewCustomerID returns a random CustomerID.
func NewCustomerID() CustomerID {
	return CustomerID(uuid.New())
}

func (i CustomerID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i CustomerID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i CustomerID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *CustomerID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid customer_id")
	}
	*i = CustomerID(u)
	return nil
}

// ParseEmployeeID parses a EmployeeID from external input.
func ParseEmployeeID(s string) (EmployeeID, error) {
	u, err := parseUUID(s, "employee_id")
	return EmployeeID(u), err
}

// NewEmployeeID returns a random EmployeeID.
func NewEmployeeID() EmployeeID {
	return EmployeeID(uuid.New())
}

func (i EmployeeID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i EmployeeID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i EmployeeID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *EmployeeID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid employee_id")
	}
	*i = EmployeeID(u)
	return nil
}

// ParseQuoteID parses a QuoteID from external input.
func ParseQuoteID(s string) (QuoteID, error) {
	u, err := parseUUID(s, "quote_id")
	return QuoteID(u), err
}

// NewQuoteID returns a random QuoteID.
func NewQuoteID() QuoteID {
	return QuoteID(uuid.New())
}

func (i QuoteID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i QuoteID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i QuoteID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *QuoteID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid quote_id")
	}
	*i = QuoteID(u)
	return nil
}

// ParseCommissionID parses a CommissionID from external input.
func ParseCommissionID(s string) (CommissionID, error) {
	u, err := parseUUID(s, "commission_id")
	return CommissionID(u), err
}

// NewCommissionID returns a random CommissionID.
func NewCommissionID() CommissionID {
	return CommissionID(uuid.New())
}

func (i CommissionID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i CommissionID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i CommissionID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *CommissionID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid commission_id")
	}
	*i = CommissionID(u)
	return nil
}

// ParseTemplateID parses a TemplateID from external input.
func ParseTemplateID(s string) (TemplateID, error) {
	u, err := parseUUID(s, "template_id")
	return TemplateID(u), err
}

// NewTemplateID returns a random TemplateID.
func NewTemplateID() TemplateID {
	return TemplateID(uuid.New())
}

func (i TemplateID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i TemplateID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i TemplateID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *TemplateID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid template_id")
	}
	*i = TemplateID(u)
	return nil
}

// ParseDashboardID parses a DashboardID from external input.
func ParseDashboardID(s string) (DashboardID, error) {
	u, err := parseUUID(s, "dashboard_id")
	return DashboardID(u), err
}

// NewDashboardID returns a random DashboardID.
func NewDashboardID() DashboardID {
	return DashboardID(uuid.New())
}

func (i DashboardID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i DashboardID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i DashboardID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *DashboardID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid dashboard_id")
	}
	*i = DashboardID(u)
	return nil
}

// ParseRequestID parses a RequestID from external input.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request_id")
	return RequestID(u), err
}

// NewRequestID returns a random RequestID.
func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

func (i RequestID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i RequestID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i RequestID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *RequestID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid request_id")
	}
	*i = RequestID(u)
	return nil
}

// ParseDocumentID parses a DocumentID from external input.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document_id")
	return DocumentID(u), err
}

// NewDocumentID returns a random DocumentID.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.New())
}

func (i DocumentID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the ID is the zero UUID.
func (i DocumentID) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i DocumentID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *DocumentID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid document_id")
	}
	*i = DocumentID(u)
	return nil
}
