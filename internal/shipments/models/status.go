package models

import (
	"slices"

	dErrors "opsdesk/pkg/domain-errors"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusPickedUp       Status = "picked_up"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:        {StatusPickedUp, StatusCancelled},
	StatusPickedUp:       {StatusInTransit, StatusCancelled},
	StatusInTransit:      {StatusOutForDelivery, StatusDelivered, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusInTransit, StatusCancelled},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid shipment status: "+s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPickedUp, StatusInTransit, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal is true for delivered and cancelled.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// SLAStatus classifies time left before the SLA deadline.
type SLAStatus string

const (
	SLAOnTime  SLAStatus = "on_time"
	SLAWarning SLAStatus = "warning"
	SLAOverdue SLAStatus = "overdue"
)

func ParseSLAStatus(s string) (SLAStatus, error) {
	switch st := SLAStatus(s); st {
	case SLAOnTime, SLAWarning, SLAOverdue:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid sla status: "+s)
}
