package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

const maxReasonLen = 1000

var (
	Schema = docstore.Schema{
		Collection: "permissionRequests",
		Indexes:    []string{"status", "requesterId", "permission"},
	}
	GrantSchema = docstore.Schema{
		Collection: "permissionGrants",
		Indexes:    []string{"userId", "permission"},
	}
)

// permissionPattern matches "<module>:<action>" strings such as
// "shipments:write".
var permissionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*:[a-z][a-z0-9_]*$`)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusDenied, StatusCancelled:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid permission request status: "+s)
}

// ParsePermission normalizes and checks a permission string. The wildcard
// cannot be requested.
func ParsePermission(s string) (string, error) {
	perm := strings.ToLower(strings.TrimSpace(s))
	if perm == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "permission is required")
	}
	if !permissionPattern.MatchString(perm) {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "permission must look like module:action")
	}
	return perm, nil
}

// Request asks an admin to grant one permission to the requester.
//
// Invariants:
//   - only pending requests can be approved, denied or cancelled
//   - ReviewerID and ReviewedAt are set once the request leaves pending
type Request struct {
	ID          domain.RequestID `json:"id"`
	TenantID    domain.TenantID  `json:"tenantId"`
	RequesterID domain.UserID    `json:"requesterId"`
	Permission  string           `json:"permission"`
	Reason      string           `json:"reason"`
	Status      Status           `json:"status"`
	ReviewerID  *domain.UserID   `json:"reviewerId,omitempty"`
	ReviewedAt  *time.Time       `json:"reviewedAt,omitempty"`
	ReviewNote  string           `json:"reviewNote,omitempty"`
	domain.Audit
}

func NewRequest(tenantID domain.TenantID, requester domain.UserID, permission, reason string, now time.Time) (*Request, error) {
	perm, err := ParsePermission(permission)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "reason is required")
	}
	if len(reason) > maxReasonLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "reason is too long")
	}
	r := &Request{
		ID:          domain.NewRequestID(),
		TenantID:    tenantID,
		RequesterID: requester,
		Permission:  perm,
		Reason:      reason,
		Status:      StatusPending,
	}
	r.Stamp(now, requester)
	return r, nil
}

func (r *Request) CanResolve() error {
	if r.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "permission request is already "+string(r.Status))
	}
	return nil
}

func (r *Request) ApplyReview(status Status, reviewer domain.UserID, note string, now time.Time) {
	r.Status = status
	r.ReviewerID = &reviewer
	r.ReviewedAt = &now
	r.ReviewNote = strings.TrimSpace(note)
}

// ReopenReview returns an approved request to pending.
func (r *Request) ReopenReview() {
	r.Status = StatusPending
	r.ReviewerID = nil
	r.ReviewedAt = nil
	r.ReviewNote = ""
}

func (r *Request) Key() uuid.UUID          { return uuid.UUID(r.ID) }
func (r *Request) Tenant() domain.TenantID { return r.TenantID }
func (r *Request) IsDeleted() bool         { return r.Audit.IsDeleted() }

func (r *Request) Clone() *Request {
	out := *r
	if r.ReviewerID != nil {
		v := *r.ReviewerID
		out.ReviewerID = &v
	}
	if r.ReviewedAt != nil {
		v := *r.ReviewedAt
		out.ReviewedAt = &v
	}
	out.Audit = r.Audit.CloneAudit()
	return &out
}

// Grant is a permission approved for a user. Revoking soft-deletes it.
type Grant struct {
	ID         uuid.UUID        `json:"id"`
	TenantID   domain.TenantID  `json:"tenantId"`
	UserID     domain.UserID    `json:"userId"`
	Permission string           `json:"permission"`
	RequestID  domain.RequestID `json:"requestId"`
	domain.Audit
}

func NewGrant(r *Request, now time.Time, approver domain.UserID) *Grant {
	g := &Grant{
		ID:         uuid.New(),
		TenantID:   r.TenantID,
		UserID:     r.RequesterID,
		Permission: r.Permission,
		RequestID:  r.ID,
	}
	g.Stamp(now, approver)
	return g
}

func (g *Grant) Key() uuid.UUID          { return g.ID }
func (g *Grant) Tenant() domain.TenantID { return g.TenantID }
func (g *Grant) IsDeleted() bool         { return g.Audit.IsDeleted() }

func (g *Grant) Clone() *Grant {
	out := *g
	out.Audit = g.Audit.CloneAudit()
	return &out
}

// CanView allows the requester and admins.
func CanView(p domain.Principal, r *Request) bool {
	return p.IsAdmin() || p.UserID == r.RequesterID
}

// RequireReview is the approve/deny guard: a non-admin cannot approve a
// permission request.
func RequireReview(p domain.Principal) error { return authz.RequireAdmin(p) }

func RequireCancel(p domain.Principal, r *Request) error {
	if p.UserID != r.RequesterID && !p.IsAdmin() {
		return dErrors.New(dErrors.CodeForbidden, "Permission denied: only the requester can cancel this request")
	}
	return nil
}

// CanListGrants allows users to see their own grants and admins everyone's.
func CanListGrants(p domain.Principal, user domain.UserID) bool {
	return p.IsAdmin() || p.UserID == user
}
