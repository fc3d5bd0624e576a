package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
)

const MaxNoteLength = 500

var HistorySchema = docstore.Schema{
	Collection: "shipmentStatusHistory",
	Indexes:    []string{"shipmentId"},
}

// StatusHistoryEntry is an append-only record of one status change.
type StatusHistoryEntry struct {
	ID         domain.HistoryID  `json:"id"`
	TenantID   domain.TenantID   `json:"tenantId"`
	ShipmentID domain.ShipmentID `json:"shipmentId"`
	From       Status            `json:"from,omitempty"`
	To         Status            `json:"to"`
	Note       string            `json:"note,omitempty"`
	ChangedAt  time.Time         `json:"changedAt"`
	ChangedBy  domain.UserID     `json:"changedBy"`
}

// NewHistoryEntry records a change; From is empty for the creation entry.
func NewHistoryEntry(s *Shipment, from Status, note string, now time.Time, actor domain.UserID) *StatusHistoryEntry {
	note = strings.TrimSpace(note)
	if len(note) > MaxNoteLength {
		note = note[:MaxNoteLength]
	}
	return &StatusHistoryEntry{
		ID:         domain.NewHistoryID(),
		TenantID:   s.TenantID,
		ShipmentID: s.ID,
		From:       from,
		To:         s.Status,
		Note:       note,
		ChangedAt:  now,
		ChangedBy:  actor,
	}
}

func (h *StatusHistoryEntry) Key() uuid.UUID          { return uuid.UUID(h.ID) }
func (h *StatusHistoryEntry) Tenant() domain.TenantID { return h.TenantID }
func (h *StatusHistoryEntry) IsDeleted() bool         { return false }

func (h *StatusHistoryEntry) Clone() *StatusHistoryEntry {
	out := *h
	return &out
}
