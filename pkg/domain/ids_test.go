package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "opsdesk/pkg/domain-errors"
)

// parsers lists every typed ID parser with the label used in its messages.
var parsers = []struct {
	label string
	parse func(string) error
}{
	{"tenant_id", func(s string) error { _, err := ParseTenantID(s); return err }},
	{"user_id", func(s string) error { _, err := ParseUserID(s); return err }},
	{"project_id", func(s string) error { _, err := ParseProjectID(s); return err }},
	{"shipment_id", func(s string) error { _, err := ParseShipmentID(s); return err }},
	{"history_id", func(s string) error { _, err := ParseHistoryID(s); return err }},
	{"invoice_id", func(s string) error { _, err := ParseInvoiceID(s); return err }},
	{"customer_id", func(s string) error { _, err := ParseCustomerID(s); return err }},
	{"employee_id", func(s string) error { _, err := ParseEmployeeID(s); return err }},
	{"quote_id", func(s string) error { _, err := ParseQuoteID(s); return err }},
	{"commission_id", func(s string) error { _, err := ParseCommissionID(s); return err }},
	{"template_id", func(s string) error { _, err := ParseTemplateID(s); return err }},
	{"dashboard_id", func(s string) error { _, err := ParseDashboardID(s); return err }},
	{"request_id", func(s string) error { _, err := ParseRequestID(s); return err }},
	{"document_id", func(s string) error { _, err := ParseDocumentID(s); return err }},
}

func TestParsersAgreeOnInput(t *testing.T) {
	inputs := []struct {
		in string
		ok bool
	}{
		{uuid.NewString(), true},
		{" 550e8400-e29b-41d4-a716-446655440000 ", true},
		{"550E8400-E29B-41D4-A716-446655440000", true},
		{"", false},
		{"   ", false},
		{uuid.Nil.String(), false},
		{"INV-000001", false},
		{"../../etc/passwd", false},
		{"550e8400\x00-e29b-41d4-a716-446655440000", false},
		{strings.Repeat("f", 200), false},
	}
	for _, p := range parsers {
		for _, in := range inputs {
			err := p.parse(in.in)
			if in.ok {
				assert.NoError(t, err, "%s(%q)", p.label, in.in)
				continue
			}
			require.Error(t, err, "%s(%q)", p.label, in.in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	}
}

func TestParseMessagesNameTheField(t *testing.T) {
	for _, p := range parsers {
		assert.Equal(t, p.label+" is required", dErrors.MessageOf(p.parse("")))
		assert.Equal(t, "invalid "+p.label, dErrors.MessageOf(p.parse("nope")))
	}
}

func TestIDsRoundTripThroughJSON(t *testing.T) {
	type row struct {
		Shipment ShipmentID `json:"shipment"`
		Tenant   TenantID   `json:"tenant"`
		Owner    UserID     `json:"owner"`
	}
	in := row{Shipment: NewShipmentID(), Tenant: NewTenantID(), Owner: NewUserID()}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"shipment":"`+in.Shipment.String()+`"`)

	var out row
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var id InvoiceID
	err := json.Unmarshal([]byte(`"INV-000001"`), &id)
	require.Error(t, err)

	var empty InvoiceID
	require.NoError(t, empty.UnmarshalText(nil))
	assert.True(t, empty.IsNil())
}
