// Package sla classifies shipments against their delivery deadline and runs
// the periodic sweep that keeps stored classifications current.
package sla

import (
	"time"

	"opsdesk/internal/shipments/models"
)

// DefaultWarningThreshold is the time-left boundary between on_time and warning.
const DefaultWarningThreshold = 15 * time.Minute

// RemainingHours is the signed time to deadline in hours, at millisecond
// resolution. Negative means the deadline has passed; anything less than a
// millisecond late truncates to zero and still counts as warning.
func RemainingHours(deadline, now time.Time) float64 {
	return float64(deadline.Sub(now).Milliseconds()) / float64(time.Hour.Milliseconds())
}

// Classifier holds the warning threshold.
type Classifier struct {
	Warning time.Duration
}

func NewClassifier(warning time.Duration) Classifier {
	if warning <= 0 {
		warning = DefaultWarningThreshold
	}
	return Classifier{Warning: warning}
}

// Classify is overdue below zero hours remaining, warning below the
// threshold (zero included), on_time otherwise.
func (c Classifier) Classify(deadline, now time.Time) models.SLAStatus {
	remaining := RemainingHours(deadline, now)
	switch {
	case remaining < 0:
		return models.SLAOverdue
	case remaining < c.Warning.Hours():
		return models.SLAWarning
	default:
		return models.SLAOnTime
	}
}

// Evaluate returns the classification a shipment should carry at now.
// Delivered shipments are judged at delivery time and never change again;
// shipments without a deadline have no SLA status.
func (c Classifier) Evaluate(s *models.Shipment, now time.Time) models.SLAStatus {
	if s.SLADeadline == nil {
		return ""
	}
	if s.Status == models.StatusDelivered && s.DeliveredAt != nil {
		if s.DeliveredAt.After(*s.SLADeadline) {
			return models.SLAOverdue
		}
		return models.SLAOnTime
	}
	if s.Status == models.StatusCancelled {
		return s.SLAStatus
	}
	return c.Classify(*s.SLADeadline, now)
}

// Classify uses the default threshold.
func Classify(deadline, now time.Time) models.SLAStatus {
	return NewClassifier(DefaultWarningThreshold).Classify(deadline, now)
}
