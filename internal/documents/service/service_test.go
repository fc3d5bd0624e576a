package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/docstore"
	"opsdesk/internal/docstore/memory"
	"opsdesk/internal/documents/models"
	"opsdesk/internal/platform/objectstore"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	auditmemory "opsdesk/pkg/platform/audit/store/memory"
	"opsdesk/pkg/testutil"
)

type storePublisher struct{ store audit.Store }

func (p storePublisher) Emit(ctx context.Context, e audit.Event) error { return p.store.Append(ctx, e) }

type failingInsert struct {
	docstore.Store[*models.Document]
}

func (failingInsert) Insert(context.Context, *models.Document) error {
	return errors.New("connection reset")
}

type fixture struct {
	svc      *Service
	blobs    *objectstore.Memory
	events   *auditmemory.InMemoryStore
	tenant   domain.TenantID
	uploader domain.Principal
	reader   domain.Principal
	admin    domain.Principal
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		blobs:  objectstore.NewMemory(),
		events: auditmemory.NewInMemoryStore(),
		tenant: domain.NewTenantID(),
	}
	opts = append([]Option{WithAuditPublisher(storePublisher{f.events})}, opts...)
	f.svc = New(memory.New[*models.Document](models.Schema), f.blobs, opts...)
	f.uploader = testutil.Principal(f.tenant, domain.RoleMember, models.PermWrite)
	f.reader = testutil.Principal(f.tenant, domain.RoleMember, models.PermRead)
	f.admin = testutil.Principal(f.tenant, domain.RoleAdmin)
	return f
}

func upload(name, body string) UploadInput {
	return UploadInput{
		Fields: models.Fields{Name: name, ContentType: "text/plain", ResourceType: "invoice", ResourceID: "INV-000001"},
		Size:   int64(len(body)),
		Body:   strings.NewReader(body),
	}
}

func TestUploadAndDownload(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Ctx(f.uploader)

	doc, err := f.svc.Upload(ctx, upload("receipt.txt", "paid in full"))
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("paid in full"))
	assert.Equal(t, int64(12), doc.Size)
	assert.Equal(t, hex.EncodeToString(sum[:]), doc.Checksum)
	assert.Equal(t, f.uploader.UserID, doc.UploadedBy)

	got, rc, err := f.svc.Download(testutil.Ctx(f.reader), doc.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "paid in full", string(data))
	assert.Equal(t, doc.ID, got.ID)

	events, err := f.events.List(context.Background(), f.tenant, audit.Filter{ResourceID: doc.ID.String()})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventDocumentUploaded), events[0].Action)
}

func TestUploadUnknownSize(t *testing.T) {
	f := newFixture(t)
	in := upload("notes.txt", "streamed")
	in.Size = -1

	doc, err := f.svc.Upload(testutil.Ctx(f.uploader), in)
	require.NoError(t, err)
	assert.Equal(t, int64(8), doc.Size)
}

func TestUploadRequiresWrite(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Upload(testutil.Ctx(f.reader), upload("a.txt", "x"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	f := newFixture(t, WithMaxSize(4))
	ctx := testutil.Ctx(f.uploader)

	_, err := f.svc.Upload(ctx, upload("big.txt", "too large"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, "document exceeds the maximum size of 4 bytes", dErrors.MessageOf(err))

	in := upload("big.txt", "too large")
	in.Size = -1
	_, err = f.svc.Upload(ctx, in)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	docs, err := f.svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUploadRejectsEmptyBody(t *testing.T) {
	f := newFixture(t)
	in := upload("empty.txt", "")
	in.Size = -1
	_, err := f.svc.Upload(testutil.Ctx(f.uploader), in)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, "document body is empty", dErrors.MessageOf(err))
}

func TestUploadRemovesBlobWhenMetadataFails(t *testing.T) {
	blobs := objectstore.NewMemory()
	svc := New(failingInsert{memory.New[*models.Document](models.Schema)}, blobs)
	p := testutil.Principal(domain.NewTenantID(), domain.RoleMember, models.PermWrite)

	_, err := svc.Upload(testutil.Ctx(p), upload("a.txt", "content"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	assert.Equal(t, 0, blobs.Len())
}

func TestListByResource(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Ctx(f.uploader)
	_, err := f.svc.Upload(ctx, upload("a.txt", "a"))
	require.NoError(t, err)
	other := upload("b.txt", "b")
	other.ResourceID = "INV-000002"
	_, err = f.svc.Upload(ctx, other)
	require.NoError(t, err)

	docs, err := f.svc.List(testutil.Ctx(f.reader), ListFilter{ResourceType: "invoice", ResourceID: "INV-000002"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b.txt", docs[0].Name)
}

func TestDeleteKeepsBlob(t *testing.T) {
	f := newFixture(t)
	doc, err := f.svc.Upload(testutil.Ctx(f.uploader), upload("a.txt", "keep me"))
	require.NoError(t, err)

	err = f.svc.Delete(testutil.Ctx(f.reader), doc.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	require.NoError(t, f.svc.Delete(testutil.Ctx(f.uploader), doc.ID))

	_, err = f.svc.Get(testutil.Ctx(f.reader), doc.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	err = f.svc.Delete(testutil.Ctx(f.admin), doc.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	rc, err := f.blobs.Get(context.Background(), doc.ObjectKey)
	require.NoError(t, err)
	rc.Close()

	deleted, err := f.svc.List(testutil.Ctx(f.admin), ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, deleted, 1)
}
