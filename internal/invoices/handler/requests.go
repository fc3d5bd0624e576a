package handler

import (
	"strings"
	"time"

	"opsdesk/internal/billing"
	"opsdesk/internal/invoices/models"
	"opsdesk/internal/invoices/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

type LineItemRequest struct {
	Description    string `json:"description"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

func toLineItems(in []LineItemRequest) []billing.LineItem {
	if in == nil {
		return nil
	}
	out := make([]billing.LineItem, len(in))
	for i, item := range in {
		out[i] = billing.LineItem{Description: item.Description, Quantity: item.Quantity, UnitPriceCents: item.UnitPriceCents}
	}
	return out
}

func validateLineItems(items []LineItemRequest) error {
	for _, item := range items {
		if strings.TrimSpace(item.Description) == "" {
			return dErrors.New(dErrors.CodeValidation, "line item description is required")
		}
		if item.Quantity <= 0 {
			return dErrors.New(dErrors.CodeValidation, "line item quantity must be greater than zero")
		}
		if item.UnitPriceCents < 0 {
			return dErrors.New(dErrors.CodeValidation, "line item unit price cannot be negative")
		}
	}
	return nil
}

type CreateInvoiceRequest struct {
	CustomerID string            `json:"customerId"`
	LineItems  []LineItemRequest `json:"lineItems"`
	TaxRateBps int               `json:"taxRateBps"`
	Currency   string            `json:"currency,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	DueDate    *time.Time        `json:"dueDate,omitempty"`

	input service.CreateInput
}

func (r *CreateInvoiceRequest) Validate() error {
	if strings.TrimSpace(r.CustomerID) == "" {
		return dErrors.New(dErrors.CodeValidation, "customerId is required")
	}
	customer, err := domain.ParseCustomerID(r.CustomerID)
	if err != nil {
		return err
	}
	if err := validateLineItems(r.LineItems); err != nil {
		return err
	}
	r.input = service.CreateInput{Draft: models.Draft{
		CustomerID: customer,
		LineItems:  toLineItems(r.LineItems),
		TaxRateBps: r.TaxRateBps,
		Currency:   r.Currency,
		Notes:      r.Notes,
		DueDate:    r.DueDate,
	}}
	return nil
}

type UpdateInvoiceRequest struct {
	CustomerID *string           `json:"customerId,omitempty"`
	LineItems  []LineItemRequest `json:"lineItems,omitempty"`
	TaxRateBps *int              `json:"taxRateBps,omitempty"`
	Currency   *string           `json:"currency,omitempty"`
	Notes      *string           `json:"notes,omitempty"`
	DueDate    *time.Time        `json:"dueDate,omitempty"`

	input service.UpdateInput
}

func (r *UpdateInvoiceRequest) Validate() error {
	if err := validateLineItems(r.LineItems); err != nil {
		return err
	}
	in := service.UpdateInput{
		LineItems:  toLineItems(r.LineItems),
		TaxRateBps: r.TaxRateBps,
		Currency:   r.Currency,
		Notes:      r.Notes,
		DueDate:    r.DueDate,
	}
	if r.CustomerID != nil {
		id, err := domain.ParseCustomerID(*r.CustomerID)
		if err != nil {
			return err
		}
		in.CustomerID = &id
	}
	r.input = in
	return nil
}

type PayInvoiceRequest struct {
	PaidAt *time.Time `json:"paidAt,omitempty"`
}
