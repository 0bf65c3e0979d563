package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnrun/kiln/pkg/signing"
	"github.com/kilnrun/kiln/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	signer, err := signing.NewSigner([]byte("test-key"), "http://localhost:8080", 10*time.Minute)
	require.NoError(t, err)
	s, err := NewStore(t.TempDir(), signer)
	require.NoError(t, err)
	return s
}

func TestSaveUploadAndLookup(t *testing.T) {
	s := newTestStore(t)

	meta, err := s.SaveUpload("input.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Regexp(t, `^file_[A-Za-z0-9]{12}$`, meta.ID)
	assert.Equal(t, "input.txt", meta.Name)
	assert.Equal(t, int64(5), meta.Size)
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", meta.SHA256)

	got, err := s.Lookup(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, got.ID)
	assert.Equal(t, meta.SHA256, got.SHA256)

	rc, gotMeta, err := s.Open(meta.ID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, "text/plain", gotMeta.ContentType)
}

func TestLookupUnknownID(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"file_AAAAAAAAAAAA", "nonsense", "../../etc/passwd", "file_../escape00"} {
		_, err := s.Lookup(id)
		require.Error(t, err)
		assert.Equal(t, types.ErrNotFound, types.KindOf(err))
	}
}

func TestIngestArtifact(t *testing.T) {
	s := newTestStore(t)

	src := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("ok"), 0o644))

	now := time.Now()
	art, err := s.IngestArtifact(src, "report.txt", now)
	require.NoError(t, err)
	assert.Equal(t, "report.txt", art.Name)
	assert.Equal(t, int64(2), art.Size)
	assert.Contains(t, art.URL, "/v1/files/"+art.ID)
	assert.Contains(t, art.URL, "payload=")
	assert.Contains(t, art.URL, "sig=")
	assert.Equal(t, now.Add(10*time.Minute).Unix(), art.ExpiresAt.Unix())

	// Source is deleted after ingestion.
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	rc, meta, err := s.Open(art.ID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "text/plain; charset=utf-8", meta.ContentType)
}

func TestIngestArtifactUnremovableSource(t *testing.T) {
	s := newTestStore(t)

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("ok"), 0o644))

	// A read-only parent makes the post-copy source removal fail; the
	// ingest must still succeed and only log the failure.
	require.NoError(t, os.Chmod(srcDir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(srcDir, 0o755) })

	art, err := s.IngestArtifact(src, "report.txt", time.Now())
	require.NoError(t, err)

	rc, _, err := s.Open(art.ID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestMetadataSurvivesReopen(t *testing.T) {
	signer, err := signing.NewSigner([]byte("test-key"), "http://localhost:8080", 10*time.Minute)
	require.NoError(t, err)
	root := t.TempDir()

	s1, err := NewStore(root, signer)
	require.NoError(t, err)
	meta, err := s1.SaveUpload("data.csv", "text/csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)

	s2, err := NewStore(root, signer)
	require.NoError(t, err)
	got, err := s2.Lookup(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, meta.SHA256, got.SHA256)
	assert.Equal(t, meta.Size, got.Size)
}
