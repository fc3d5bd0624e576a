// Package tokens exposes the admin endpoint that mints access tokens for
// tenant users.
package tokens

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/httputil"
	dedupe "opsdesk/pkg/platform/strings"
	"opsdesk/pkg/requestcontext"
)

const maxTTL = 30 * 24 * time.Hour

// Issuer mints signed access tokens.
type Issuer interface {
	GenerateAccessToken(p domain.Principal, expiresIn time.Duration) (string, time.Time, error)
}

type Handler struct {
	issuer     Issuer
	defaultTTL time.Duration
	emitter    *audit.Emitter
	logger     *slog.Logger
}

func New(issuer Issuer, defaultTTL time.Duration, publisher audit.Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		issuer:     issuer,
		defaultTTL: defaultTTL,
		emitter:    audit.NewEmitter(logger, publisher),
		logger:     logger,
	}
}

// Register mounts POST /tokens; the caller wraps it in the admin token guard.
func (h *Handler) Register(r chi.Router) {
	r.Post("/tokens", h.HandleIssue)
}

type IssueRequest struct {
	UserID      string   `json:"user_id"`
	TenantID    string   `json:"tenant_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	TTLSeconds  int      `json:"ttl_seconds,omitempty"`

	principal domain.Principal
}

func (r *IssueRequest) Normalize() {
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	if r.Role == "" {
		r.Role = string(domain.RoleMember)
	}
	r.Permissions = dedupe.DedupeAndTrim(r.Permissions)
}

func (r *IssueRequest) Validate() error {
	userID, err := domain.ParseUserID(r.UserID)
	if err != nil {
		return err
	}
	tenantID, err := domain.ParseTenantID(r.TenantID)
	if err != nil {
		return err
	}
	role, err := domain.ParseRole(r.Role)
	if err != nil {
		return err
	}
	if r.TTLSeconds < 0 || time.Duration(r.TTLSeconds)*time.Second > maxTTL {
		return dErrors.New(dErrors.CodeValidation, "ttl_seconds must be between 0 and 2592000")
	}
	r.principal = domain.Principal{UserID: userID, TenantID: tenantID, Role: role, Permissions: r.Permissions}
	return nil
}

type IssueResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	ttl := h.defaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	token, expiresAt, err := h.issuer.GenerateAccessToken(req.principal, ttl)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to sign token",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token"))
		return
	}
	if err := h.recordIssued(ctx, req.principal); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, IssueResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}

func (h *Handler) recordIssued(ctx context.Context, p domain.Principal) error {
	event := audit.FromContext(ctx, audit.EventTokenIssued, "user", p.UserID.String(), "role="+string(p.Role))
	event.TenantID = p.TenantID
	return h.emitter.Emit(ctx, event)
}
