package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"opsdesk/internal/shipments/models"
	"opsdesk/pkg/domain"
)

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestRemainingHours(t *testing.T) {
	assert.InDelta(t, 2.0, RemainingHours(base.Add(2*time.Hour), base), 1e-9)
	assert.InDelta(t, -0.5, RemainingHours(base.Add(-30*time.Minute), base), 1e-9)
	assert.InDelta(t, 0.25, RemainingHours(base.Add(15*time.Minute), base), 1e-9)
	assert.Zero(t, RemainingHours(base.Add(-999*time.Microsecond), base))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		deadline time.Time
		want     models.SLAStatus
	}{
		{"well ahead", base.Add(48 * time.Hour), models.SLAOnTime},
		{"exactly at threshold", base.Add(15 * time.Minute), models.SLAOnTime},
		{"just inside threshold", base.Add(15*time.Minute - time.Millisecond), models.SLAWarning},
		{"deadline is now", base, models.SLAWarning},
		{"sub-millisecond late truncates to zero", base.Add(-500 * time.Microsecond), models.SLAWarning},
		{"one millisecond late", base.Add(-time.Millisecond), models.SLAOverdue},
		{"days late", base.Add(-72 * time.Hour), models.SLAOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.deadline, base))
		})
	}
}

func TestClassifierCustomThreshold(t *testing.T) {
	c := NewClassifier(time.Hour)
	assert.Equal(t, models.SLAWarning, c.Classify(base.Add(30*time.Minute), base))
	assert.Equal(t, DefaultWarningThreshold, NewClassifier(0).Warning)
}

func shipmentWith(status models.Status, deadline *time.Time) *models.Shipment {
	s, _ := models.NewShipment(domain.NewTenantID(), "REF-1", "A", "B", "", nil, deadline, base.Add(-24*time.Hour), domain.NewUserID())
	s.Status = status
	return s
}

func TestEvaluate(t *testing.T) {
	c := NewClassifier(DefaultWarningThreshold)
	deadline := base.Add(-time.Hour)

	t.Run("no deadline has no status", func(t *testing.T) {
		assert.Equal(t, models.SLAStatus(""), c.Evaluate(shipmentWith(models.StatusInTransit, nil), base))
	})

	t.Run("open shipment is classified at now", func(t *testing.T) {
		assert.Equal(t, models.SLAOverdue, c.Evaluate(shipmentWith(models.StatusInTransit, &deadline), base))
	})

	t.Run("delivered before deadline stays on time", func(t *testing.T) {
		s := shipmentWith(models.StatusDelivered, &deadline)
		delivered := deadline.Add(-time.Minute)
		s.DeliveredAt = &delivered
		assert.Equal(t, models.SLAOnTime, c.Evaluate(s, base.Add(100*time.Hour)))
	})

	t.Run("delivered late is overdue", func(t *testing.T) {
		s := shipmentWith(models.StatusDelivered, &deadline)
		delivered := deadline.Add(time.Minute)
		s.DeliveredAt = &delivered
		assert.Equal(t, models.SLAOverdue, c.Evaluate(s, base))
	})

	t.Run("cancelled keeps last status", func(t *testing.T) {
		s := shipmentWith(models.StatusCancelled, &deadline)
		s.SLAStatus = models.SLAWarning
		assert.Equal(t, models.SLAWarning, c.Evaluate(s, base))
	})
}
