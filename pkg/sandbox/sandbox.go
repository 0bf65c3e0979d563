package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/kilnrun/kiln/pkg/types"
)

// WorkMount is the well-known path the run workdir is mounted at inside
// the sandbox. The bootstrap contract depends on it.
const WorkMount = "/work"

// Spec is a fully prepared run handed to a Runner. The workdir already
// contains staged inputs; env is already sanitized.
type Spec struct {
	RunID    string
	Language types.Language
	Code     string
	Args     []string
	Env      map[string]string
	Workdir  string
	Limits   types.Limits
	Files    []types.FileStage

	// OnStdout and OnStderr, when set, receive incremental output segments
	// as they are captured. Used by the streaming path; nil otherwise.
	OnStdout func([]byte)
	OnStderr func([]byte)
}

// Result is what a Runner reports back: the classified status, the raw
// captured streams (already truncated to the output cap), the wall time the
// runner observed, and candidate artifact paths found under outputs/.
type Result struct {
	Status    types.RunStatus
	ExitCode  *int
	Stdout    []byte
	Stderr    []byte
	WallMS    int64
	Artifacts []string
}

// Runner executes one prepared run inside a sandbox. Implementations must
// honor the isolation contract: no network, read-only rootfs with the
// workdir as the only writable area, dropped capabilities, bounded
// processes, CPU, and memory, and a forcible kill at wall-clock expiry.
//
// There are two implementations: the containerd-backed production runner
// and a mock for tests. They share no code beyond this contract.
type Runner interface {
	Run(ctx context.Context, spec *Spec) (*Result, error)
}

// entryFiles maps each language to the conventional entry-file name the
// bootstrap executes.
var entryFiles = map[types.Language]string{
	types.LanguagePython: "main.py",
	types.LanguageNode:   "main.js",
	types.LanguageRuby:   "main.rb",
	types.LanguagePHP:    "main.php",
	types.LanguageGo:     "main.go",
}

// EntryFile returns the entry-file name for a language.
func EntryFile(lang types.Language) string {
	return entryFiles[lang]
}

// BootstrapSpec is the JSON object delivered on the bootstrap's stdin
// before user code runs.
type BootstrapSpec struct {
	ID     string            `json:"id"`
	Args   []string          `json:"args"`
	Env    map[string]string `json:"env"`
	Limits types.Limits      `json:"limits"`
}

// ClassifyExit maps an observed exit to a run status. timedOut is true when
// the runner's wall-clock timer fired; the bootstrap's self-detected
// timeout surfaces as exit 124 and maps the same way. Exit 137 is the OOM
// killer's SIGKILL.
func ClassifyExit(code int, timedOut bool) types.RunStatus {
	switch {
	case timedOut:
		return types.StatusTimeout
	case code == 0:
		return types.StatusSucceeded
	case code == 124:
		return types.StatusTimeout
	case code == 137:
		return types.StatusOOM
	default:
		return types.StatusFailed
	}
}

// ListOutputs walks <workdir>/outputs and returns every regular file, in
// directory-iteration order, as candidate artifacts. A missing outputs
// directory yields an empty list.
func ListOutputs(workdir string) []string {
	root := filepath.Join(workdir, "outputs")
	var out []string
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out
}
