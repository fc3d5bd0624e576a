package handler

import (
	"strings"
	"time"

	"opsdesk/internal/projects/models"
	"opsdesk/internal/projects/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

type CreateProjectRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	CustomerID  string     `json:"customerId,omitempty"`
	BudgetCents int64      `json:"budgetCents,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`

	input service.CreateInput
}

func (r *CreateProjectRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	r.CustomerID = strings.TrimSpace(r.CustomerID)
}

func (r *CreateProjectRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "project name is required")
	}
	if len(r.Name) > models.MaxNameLength {
		return dErrors.New(dErrors.CodeValidation, "project name must be 128 characters or less")
	}
	if r.BudgetCents < 0 {
		return dErrors.New(dErrors.CodeValidation, "budgetCents cannot be negative")
	}
	in := service.CreateInput{
		Name:        r.Name,
		Description: r.Description,
		BudgetCents: r.BudgetCents,
		StartDate:   r.StartDate,
		DueDate:     r.DueDate,
	}
	if r.Status != "" {
		st, err := models.ParseStatus(r.Status)
		if err != nil {
			return err
		}
		in.Status = st
	}
	if r.CustomerID != "" {
		id, err := domain.ParseCustomerID(r.CustomerID)
		if err != nil {
			return err
		}
		in.CustomerID = &id
	}
	r.input = in
	return nil
}

type UpdateProjectRequest struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	CustomerID  *string    `json:"customerId,omitempty"`
	OwnerID     *string    `json:"ownerId,omitempty"`
	BudgetCents *int64     `json:"budgetCents,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`

	input service.UpdateInput
}

func (r *UpdateProjectRequest) Validate() error {
	in := service.UpdateInput{
		Name:        r.Name,
		Description: r.Description,
		BudgetCents: r.BudgetCents,
		StartDate:   r.StartDate,
		DueDate:     r.DueDate,
	}
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "project name is required")
	}
	if r.Status != nil {
		st, err := models.ParseStatus(*r.Status)
		if err != nil {
			return err
		}
		in.Status = &st
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
	if r.OwnerID != nil {
		id, err := domain.ParseUserID(*r.OwnerID)
		if err != nil {
			return err
		}
		in.OwnerID = &id
	}
	r.input = in
	return nil
}
