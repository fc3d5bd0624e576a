package models

import (
	"mime"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

const (
	PermRead  = "documents:read"
	PermWrite = "documents:write"

	DefaultContentType = "application/octet-stream"
	maxNameLen         = 255
)

var Schema = docstore.Schema{
	Collection: "documents",
	Indexes:    []string{"resourceType", "resourceId", "uploadedBy"},
}

var resourceTypePattern = regexp.MustCompile(`^[a-z][a-z_]{0,63}$`)

// Document is the metadata row for a blob held in the object store.
// The blob itself lives under ObjectKey and survives soft deletion.
type Document struct {
	ID           domain.DocumentID `json:"id"`
	TenantID     domain.TenantID   `json:"tenantId"`
	Name         string            `json:"name"`
	ContentType  string            `json:"contentType"`
	Size         int64             `json:"size"`
	Checksum     string            `json:"checksum"`
	ObjectKey    string            `json:"objectKey"`
	ResourceType string            `json:"resourceType,omitempty"`
	ResourceID   string            `json:"resourceId,omitempty"`
	UploadedBy   domain.UserID     `json:"uploadedBy"`
	domain.Audit
}

type Fields struct {
	Name         string
	ContentType  string
	ResourceType string
	ResourceID   string
}

// NewDocument validates upload metadata and allocates the object key.
// Size and Checksum are filled in once the body has been stored.
func NewDocument(tenantID domain.TenantID, f Fields, now time.Time, actor domain.UserID) (*Document, error) {
	name := strings.TrimSpace(path.Base(strings.ReplaceAll(f.Name, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document name is required")
	}
	if len(name) > maxNameLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document name is too long")
	}
	contentType, err := normalizeContentType(f.ContentType)
	if err != nil {
		return nil, err
	}
	resourceType := strings.ToLower(strings.TrimSpace(f.ResourceType))
	resourceID := strings.TrimSpace(f.ResourceID)
	if (resourceType == "") != (resourceID == "") {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "resource type and resource id must be set together")
	}
	if resourceType != "" && !resourceTypePattern.MatchString(resourceType) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "resource type must be lowercase letters and underscores")
	}

	d := &Document{
		ID:           domain.NewDocumentID(),
		TenantID:     tenantID,
		Name:         name,
		ContentType:  contentType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		UploadedBy:   actor,
	}
	d.ObjectKey = ObjectKey(tenantID, d.ID)
	d.Stamp(now, actor)
	return d, nil
}

// ObjectKey is the blob key for a document: "<tenant>/<document>".
func ObjectKey(tenantID domain.TenantID, id domain.DocumentID) string {
	return tenantID.String() + "/" + id.String()
}

func normalizeContentType(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultContentType, nil
	}
	mediaType, params, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "invalid content type")
	}
	return mime.FormatMediaType(mediaType, params), nil
}

// SetContent records the stored blob's size and sha256 checksum.
func (d *Document) SetContent(size int64, checksum string) {
	d.Size = size
	d.Checksum = checksum
}

// ContentDisposition is the attachment header value for downloads.
func (d *Document) ContentDisposition() string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": d.Name})
}

func (d *Document) Key() uuid.UUID          { return uuid.UUID(d.ID) }
func (d *Document) Tenant() domain.TenantID { return d.TenantID }
func (d *Document) IsDeleted() bool         { return d.Audit.IsDeleted() }

func (d *Document) Clone() *Document {
	out := *d
	out.Audit = d.Audit.CloneAudit()
	return &out
}

func CanRead(p domain.Principal) bool { return authz.Can(p, PermRead) || authz.Can(p, PermWrite) }

func RequireRead(p domain.Principal) error {
	if !CanRead(p) {
		return authz.Require(p, PermRead)
	}
	return nil
}

func RequireUpload(p domain.Principal) error { return authz.Require(p, PermWrite) }

// RequireDelete allows the uploader or an admin.
func RequireDelete(p domain.Principal, d *Document) error {
	return authz.RequireModifyOwned(p, d.UploadedBy, "")
}
