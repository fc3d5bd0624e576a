package domain

import (
	"time"

	dErrors "opsdesk/pkg/domain-errors"
)

// Audit carries the bookkeeping fields every document has.
//
// Invariants:
//   - CreatedAt/CreatedBy are set once by Stamp and never change
//   - UpdatedAt >= CreatedAt
//   - DeletedAt and DeletedBy are either both nil or both set
type Audit struct {
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	CreatedBy UserID     `json:"createdBy"`
	UpdatedBy UserID     `json:"updatedBy"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy *UserID    `json:"deletedBy,omitempty"`
}

// Stamp initializes the audit fields for a new document.
func (a *Audit) Stamp(now time.Time, actor UserID) {
	a.CreatedAt = now
	a.UpdatedAt = now
	a.CreatedBy = actor
	a.UpdatedBy = actor
}

// Touch records a modification.
func (a *Audit) Touch(now time.Time, actor UserID) {
	a.UpdatedAt = now
	a.UpdatedBy = actor
}

// IsDeleted reports whether the document has been soft deleted.
func (a *Audit) IsDeleted() bool {
	return a.DeletedAt != nil
}

// CanDelete checks whether a soft delete is allowed.
func (a *Audit) CanDelete() error {
	if a.IsDeleted() {
		return dErrors.New(dErrors.CodeConflict, "record is already deleted")
	}
	return nil
}

// ApplyDelete marks the document deleted. Call CanDelete first.
func (a *Audit) ApplyDelete(now time.Time, actor UserID) {
	deletedAt := now
	deletedBy := actor
	a.DeletedAt = &deletedAt
	a.DeletedBy = &deletedBy
	a.Touch(now, actor)
}

// MarkDeleted validates and applies a soft delete in one call.
func (a *Audit) MarkDeleted(now time.Time, actor UserID) error {
	if err := a.CanDelete(); err != nil {
		return err
	}
	a.ApplyDelete(now, actor)
	return nil
}

// CloneAudit returns a deep copy so pointer fields are not shared between
// stored and returned documents.
func (a Audit) CloneAudit() Audit {
	out := a
	if a.DeletedAt != nil {
		t := *a.DeletedAt
		out.DeletedAt = &t
	}
	if a.DeletedBy != nil {
		u := *a.DeletedBy
		out.DeletedBy = &u
	}
	return out
}
