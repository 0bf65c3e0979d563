package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/kilnrun/kiln/pkg/ids"
	"github.com/kilnrun/kiln/pkg/log"
	"github.com/kilnrun/kiln/pkg/signing"
	"github.com/kilnrun/kiln/pkg/types"
)

const (
	uploadsDir   = "uploads"
	artifactsDir = "artifacts"
	metaFile     = "meta.json"
)

// idPattern guards against path traversal through a crafted id.
var idPattern = regexp.MustCompile(`^file_[A-Za-z0-9]{12}$`)

// Store is the content-addressed blob store. Each stored file lives in its
// own id-named directory containing the payload under its declared filename
// and a meta.json sidecar. Per-id directory creation relies on mkdir
// atomicity on a fresh random id; no additional locking is needed.
type Store struct {
	root   string
	signer *signing.Signer
	logger zerolog.Logger
}

// NewStore opens (creating if necessary) a blob store rooted at root.
func NewStore(root string, signer *signing.Signer) (*Store, error) {
	for _, sub := range []string{uploadsDir, artifactsDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &Store{
		root:   root,
		signer: signer,
		logger: log.WithComponent("storage"),
	}, nil
}

// SaveUpload persists an uploaded file, computing its SHA-256 during the
// copy. The hash is computed once here and never recomputed.
func (s *Store) SaveUpload(name, contentType string, r io.Reader) (*types.FileMeta, error) {
	if name == "" {
		name = "file"
	}
	name = filepath.Base(name)

	id := ids.NewFileID()
	dir := filepath.Join(s.root, uploadsDir, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	size, sum, err := writeAndHash(filepath.Join(dir, name), r)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	meta := &types.FileMeta{
		ID:          id,
		Name:        name,
		Size:        size,
		SHA256:      sum,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
		Path:        filepath.Join(dir, name),
	}
	if err := writeMeta(dir, meta); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return meta, nil
}

// Lookup resolves an id to its metadata, checking uploads first and then
// artifacts. Unknown ids report not-found.
func (s *Store) Lookup(id string) (*types.FileMeta, error) {
	if !idPattern.MatchString(id) {
		return nil, types.E(types.ErrNotFound, "unknown file %q", id)
	}
	for _, sub := range []string{uploadsDir, artifactsDir} {
		meta, err := readMeta(filepath.Join(s.root, sub, id))
		if err == nil {
			return meta, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read file metadata: %w", err)
		}
	}
	return nil, types.E(types.ErrNotFound, "unknown file %q", id)
}

// IngestArtifact moves a file produced by a run into the artifact store:
// copy with SHA-256 on the way, write the sidecar, delete the source, and
// mint a signed URL valid for the configured TTL.
func (s *Store) IngestArtifact(srcPath, name string, now time.Time) (*types.Artifact, error) {
	id := ids.NewFileID()
	dir := filepath.Join(s.root, artifactsDir, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open artifact source: %w", err)
	}
	// Artifact names may carry subdirectories (outputs/sub/file).
	dst := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		src.Close()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	size, sum, err := writeAndHash(dst, src)
	src.Close()
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	meta := &types.FileMeta{
		ID:          id,
		Name:        name,
		Size:        size,
		SHA256:      sum,
		ContentType: contentTypeFor(name),
		CreatedAt:   now.UTC(),
		Path:        filepath.Join(dir, name),
	}
	if err := writeMeta(dir, meta); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	if err := os.Remove(srcPath); err != nil {
		s.logger.Warn().Err(err).Str("path", srcPath).Msg("failed to remove ingested artifact source")
	}

	url, expires := s.signer.SignURL("/v1/files/"+id, now)
	return &types.Artifact{
		ID:          id,
		Name:        name,
		Size:        size,
		SHA256:      sum,
		ContentType: meta.ContentType,
		URL:         url,
		ExpiresAt:   expires,
	}, nil
}

// Open returns a reader over the stored payload for id.
func (s *Store) Open(id string) (io.ReadCloser, *types.FileMeta, error) {
	meta, err := s.Lookup(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(meta.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	return f, meta, nil
}

func writeAndHash(dst string, r io.Reader) (int64, string, error) {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create stored file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		return 0, "", fmt.Errorf("failed to write stored file: %w", err)
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}

func writeMeta(dir string, meta *types.FileMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), raw, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func readMeta(dir string) (*types.FileMeta, error) {
	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, err
	}
	var meta types.FileMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("corrupt metadata sidecar: %w", err)
	}
	meta.Path = filepath.Join(dir, meta.Name)
	return &meta, nil
}

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".txt", ".log":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".html":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
