package handler

import (
	"strings"
	"time"

	"opsdesk/internal/shipments/models"
	"opsdesk/internal/shipments/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

type CreateShipmentRequest struct {
	Reference   string     `json:"reference"`
	CustomerID  string     `json:"customerId,omitempty"`
	Origin      string     `json:"origin"`
	Destination string     `json:"destination"`
	Carrier     string     `json:"carrier,omitempty"`
	SLADeadline *time.Time `json:"slaDeadline,omitempty"`

	customerID *domain.CustomerID
}

func (r *CreateShipmentRequest) Normalize() {
	r.Reference = strings.TrimSpace(r.Reference)
	r.CustomerID = strings.TrimSpace(r.CustomerID)
	r.Origin = strings.TrimSpace(r.Origin)
	r.Destination = strings.TrimSpace(r.Destination)
	r.Carrier = strings.TrimSpace(r.Carrier)
}

func (r *CreateShipmentRequest) Validate() error {
	if r.Reference == "" {
		return dErrors.New(dErrors.CodeValidation, "reference is required")
	}
	if len(r.Reference) > models.MaxReferenceLength {
		return dErrors.New(dErrors.CodeValidation, "reference must be 64 characters or less")
	}
	if r.Destination == "" {
		return dErrors.New(dErrors.CodeValidation, "destination is required")
	}
	if len(r.Origin) > models.MaxLocationLength || len(r.Destination) > models.MaxLocationLength {
		return dErrors.New(dErrors.CodeValidation, "origin and destination must be 256 characters or less")
	}
	if len(r.Carrier) > models.MaxCarrierLength {
		return dErrors.New(dErrors.CodeValidation, "carrier must be 128 characters or less")
	}
	if r.CustomerID != "" {
		id, err := domain.ParseCustomerID(r.CustomerID)
		if err != nil {
			return err
		}
		r.customerID = &id
	}
	return nil
}

func (r *CreateShipmentRequest) Input() service.CreateInput {
	return service.CreateInput{
		Reference:   r.Reference,
		CustomerID:  r.customerID,
		Origin:      r.Origin,
		Destination: r.Destination,
		Carrier:     r.Carrier,
		SLADeadline: r.SLADeadline,
	}
}

type UpdateShipmentRequest struct {
	Reference        *string    `json:"reference,omitempty"`
	CustomerID       *string    `json:"customerId,omitempty"`
	Origin           *string    `json:"origin,omitempty"`
	Destination      *string    `json:"destination,omitempty"`
	Carrier          *string    `json:"carrier,omitempty"`
	SLADeadline      *time.Time `json:"slaDeadline,omitempty"`
	ClearSLADeadline bool       `json:"clearSlaDeadline,omitempty"`

	input service.UpdateInput
}

// Validate parses the patch. An empty customerId clears the link.
func (r *UpdateShipmentRequest) Validate() error {
	in := service.UpdateInput{
		Reference:     r.Reference,
		Origin:        r.Origin,
		Destination:   r.Destination,
		Carrier:       r.Carrier,
		SLADeadline:   r.SLADeadline,
		ClearDeadline: r.ClearSLADeadline,
	}
	if r.ClearSLADeadline && r.SLADeadline != nil {
		return dErrors.New(dErrors.CodeValidation, "slaDeadline and clearSlaDeadline are mutually exclusive")
	}
	if r.CustomerID != nil {
		if strings.TrimSpace(*r.CustomerID) == "" {
			in.ClearCustomer = true
		} else {
			id, err := domain.ParseCustomerID(*r.CustomerID)
			if err != nil {
				return err
			}
			in.CustomerID = &id
		}
	}
	r.input = in
	return nil
}

type ChangeStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`

	status models.Status
}

func (r *ChangeStatusRequest) Normalize() {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	r.Note = strings.TrimSpace(r.Note)
}

func (r *ChangeStatusRequest) Validate() error {
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	st, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	if len(r.Note) > models.MaxNoteLength {
		return dErrors.New(dErrors.CodeValidation, "note must be 500 characters or less")
	}
	r.status = st
	return nil
}
