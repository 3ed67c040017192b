package archive

import (
	"context"
	"testing"

	"housing-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalArchiveRoundTrip(t *testing.T) {
	a := NewLocalArchive(t.TempDir())
	ctx := context.Background()

	require.NoError(t, a.Put(ctx, "invoices/2400042.pdf", []byte("%PDF-1.3"), "application/pdf"))
	got, err := a.Get(ctx, "invoices/2400042.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.3"), got)

	require.NoError(t, a.Put(ctx, "invoices/2400042.pdf", []byte("%PDF-1.4"), "application/pdf"))
	got, err = a.Get(ctx, "invoices/2400042.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), got)

	_, err = a.Get(ctx, "sepa/missing.xml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalArchiveRejectsEscapingKeys(t *testing.T) {
	a := NewLocalArchive(t.TempDir())
	assert.Error(t, a.Put(context.Background(), "../etc/passwd", []byte("x"), "text/plain"))
	assert.Error(t, a.Put(context.Background(), "", []byte("x"), "text/plain"))
}

func TestNewSelectsDriver(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, config.ArchiveConfig{Driver: "local"}, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &LocalArchive{}, a)

	s, err := New(ctx, config.ArchiveConfig{Driver: "s3", Bucket: "housing", Region: "auto", Endpoint: "http://127.0.0.1:9000", AccessKey: "k", SecretKey: "s", Prefix: "prod"}, "")
	require.NoError(t, err)
	require.IsType(t, &S3Archive{}, s)
	assert.Equal(t, "prod/invoices/2400042.pdf", s.(*S3Archive).objectKey("invoices/2400042.pdf"))

	_, err = New(ctx, config.ArchiveConfig{Driver: "s3"}, "")
	assert.Error(t, err)

	_, err = New(ctx, config.ArchiveConfig{Driver: "ftp"}, "")
	assert.Error(t, err)
}
