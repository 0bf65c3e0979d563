package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilnrun/kiln/pkg/types"
)

const (
	// maxStagedFileBytes caps a single staged input.
	maxStagedFileBytes = 10 * 1024 * 1024
	// maxStagedTotalBytes caps the sum of all staged inputs for one run.
	maxStagedTotalBytes = 25 * 1024 * 1024
)

// stageInputs copies each referenced upload into <workdir>/inputs at its
// declared relative path. Destination paths must stay inside inputs/: an
// absolute path or any ".." segment rejects the whole request.
func (o *Orchestrator) stageInputs(workdir string, files []types.FileStage) error {
	if len(files) == 0 {
		return nil
	}

	inputsRoot := filepath.Join(workdir, "inputs")
	var total int64

	for _, f := range files {
		if err := validateStagePath(f.Path); err != nil {
			return err
		}

		meta, err := o.blobs.Lookup(f.FileID)
		if err != nil {
			return err
		}
		if meta.Size > maxStagedFileBytes {
			return types.E(types.ErrValidation, "staged file %q exceeds %d bytes", f.FileID, int64(maxStagedFileBytes))
		}
		total += meta.Size
		if total > maxStagedTotalBytes {
			return types.E(types.ErrValidation, "staged files exceed %d bytes in total", int64(maxStagedTotalBytes))
		}

		dst := filepath.Join(inputsRoot, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
			return fmt.Errorf("failed to create input directory: %w", err)
		}
		if err := copyFile(meta.Path, dst); err != nil {
			return fmt.Errorf("failed to stage input %q: %w", f.FileID, err)
		}
	}
	return nil
}

func validateStagePath(p string) error {
	if p == "" {
		return types.E(types.ErrValidation, "staged file path is empty")
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return types.E(types.ErrValidation, "staged file path %q is absolute", p)
	}
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return types.E(types.ErrValidation, "staged file path %q escapes the input directory", p)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
