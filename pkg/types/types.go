package types

import (
	"time"
)

// Language identifies a supported execution target. The set is closed;
// adding a language means adding a sandbox image, not code.
type Language string

const (
	LanguagePython Language = "python"
	LanguageNode   Language = "node"
	LanguageRuby   Language = "ruby"
	LanguagePHP    Language = "php"
	LanguageGo     Language = "go"
)

// Languages lists every supported language tag.
var Languages = []Language{
	LanguagePython,
	LanguageNode,
	LanguageRuby,
	LanguagePHP,
	LanguageGo,
}

// Valid reports whether l is one of the supported language tags.
func (l Language) Valid() bool {
	switch l {
	case LanguagePython, LanguageNode, LanguageRuby, LanguagePHP, LanguageGo:
		return true
	}
	return false
}

// MaxCodeBytes bounds the size of a submitted code body.
const MaxCodeBytes = 200 * 1024

// Limits are the resource bounds applied to a single run. Every field has a
// configurable default and a hard maximum; requests may lower values but
// never raise them past the maximum.
type Limits struct {
	TimeoutMS        int64 `json:"timeout_ms" yaml:"timeout_ms"`
	MemoryMB         int64 `json:"memory_mb" yaml:"memory_mb"`
	CPUMs            int64 `json:"cpu_ms" yaml:"cpu_ms"`
	MaxOutputBytes   int64 `json:"max_output_bytes" yaml:"max_output_bytes"`
	MaxArtifactBytes int64 `json:"max_artifact_bytes" yaml:"max_artifact_bytes"`
	MaxArtifactFiles int64 `json:"max_artifact_files" yaml:"max_artifact_files"`
}

// LimitsPatch is a caller-supplied partial override of Limits. Nil fields
// take the configured defaults.
type LimitsPatch struct {
	TimeoutMS        *int64 `json:"timeout_ms,omitempty"`
	MemoryMB         *int64 `json:"memory_mb,omitempty"`
	CPUMs            *int64 `json:"cpu_ms,omitempty"`
	MaxOutputBytes   *int64 `json:"max_output_bytes,omitempty"`
	MaxArtifactBytes *int64 `json:"max_artifact_bytes,omitempty"`
	MaxArtifactFiles *int64 `json:"max_artifact_files,omitempty"`
}

// FileStage pairs an uploaded file with a relative destination path under
// the sandbox input directory.
type FileStage struct {
	FileID string `json:"file_id"`
	Path   string `json:"path"`
}

// RunRequest is a request to execute a code body.
type RunRequest struct {
	Language Language          `json:"language"`
	Code     string            `json:"code"`
	Args     []string          `json:"args,omitempty"`
	Files    []FileStage       `json:"files,omitempty"`
	Limits   *LimitsPatch      `json:"limits,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
}

// RunStatus is the externally visible outcome of a run.
type RunStatus string

const (
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusTimeout   RunStatus = "timeout"
	StatusOOM       RunStatus = "oom"
	StatusKilled    RunStatus = "killed"
)

// Usage records observed resource consumption of a run. CompileMS is only
// set for compiled languages (the Go bootstrap reports its build phase).
type Usage struct {
	WallMS    int64 `json:"wall_ms"`
	CPUMs     int64 `json:"cpu_ms"`
	MaxRSSMB  int64 `json:"max_rss_mb"`
	CompileMS int64 `json:"compile_ms,omitempty"`
}

// Artifact describes a file produced by a run and ingested into the blob
// store. It is reachable only through its signed URL.
type Artifact struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	ContentType string    `json:"content_type"`
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RunRecord is the final record of a run, returned to the caller and kept
// in the run store for retrieval by id.
type RunRecord struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	ExitCode  *int       `json:"exit_code"`
	Stdout    string     `json:"stdout"`
	Stderr    string     `json:"stderr"`
	Usage     Usage      `json:"usage"`
	Artifacts []Artifact `json:"artifacts"`
	Limits    Limits     `json:"limits"`
	CreatedAt time.Time  `json:"created_at"`
	Language  Language   `json:"language"`
	CodeSHA   string     `json:"code_sha256"`
}

// FileMeta describes an uploaded file held in the blob store. Persisted as
// a meta.json sidecar next to the payload so descriptors survive for as
// long as the store directory does.
type FileMeta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	Path        string    `json:"-"`
}

// Tenant is the identity behind an API key; the unit of rate limiting.
type Tenant struct {
	Token string
	Label string
	RPS   float64
	Burst float64
}
