package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/kilnrun/kiln/pkg/ids"
	"github.com/kilnrun/kiln/pkg/limits"
	"github.com/kilnrun/kiln/pkg/log"
	"github.com/kilnrun/kiln/pkg/metrics"
	"github.com/kilnrun/kiln/pkg/runstore"
	"github.com/kilnrun/kiln/pkg/sandbox"
	"github.com/kilnrun/kiln/pkg/storage"
	"github.com/kilnrun/kiln/pkg/stream"
	"github.com/kilnrun/kiln/pkg/types"
)

// Orchestrator drives a validated run request through staging, sandbox
// launch, result classification, artifact persistence, and cleanup.
type Orchestrator struct {
	runner   sandbox.Runner
	blobs    *storage.Store
	runs     *runstore.Store
	policy   limits.Policy
	workRoot string
}

// New wires an orchestrator. workRoot must be shared storage visible to
// both the orchestrator and the sandbox runtime.
func New(runner sandbox.Runner, blobs *storage.Store, runs *runstore.Store, policy limits.Policy, workRoot string) *Orchestrator {
	return &Orchestrator{
		runner:   runner,
		blobs:    blobs,
		runs:     runs,
		policy:   policy,
		workRoot: workRoot,
	}
}

// NewRunID mints a run identifier. The streaming path needs the id before
// the pipeline starts, so minting is exposed.
func (o *Orchestrator) NewRunID() string {
	return ids.NewRunID()
}

// Validate applies the admission checks that precede any side effects:
// language in the closed set, code non-empty and within the size cap.
func (o *Orchestrator) Validate(req *types.RunRequest) error {
	if !req.Language.Valid() {
		return types.E(types.ErrValidation, "unsupported language %q", req.Language)
	}
	if req.Code == "" {
		return types.E(types.ErrValidation, "code body is empty")
	}
	if len(req.Code) > types.MaxCodeBytes {
		return types.E(types.ErrValidation, "code body exceeds %d bytes", types.MaxCodeBytes)
	}
	return nil
}

// CreateRun executes a request synchronously and returns the finished
// record. User-code failure (nonzero exit, timeout, oom) is not an error
// here; it is a record with the corresponding status.
func (o *Orchestrator) CreateRun(ctx context.Context, req *types.RunRequest, tenant *types.Tenant) (*types.RunRecord, error) {
	return o.execute(ctx, req, tenant, ids.NewRunID(), nil)
}

// CreateRunStreaming is CreateRun with a pre-minted id and a frame sink:
// stage transitions and incremental output are forwarded as they happen.
// The caller owns the terminal complete/error frame.
func (o *Orchestrator) CreateRunStreaming(ctx context.Context, req *types.RunRequest, tenant *types.Tenant, runID string, sink stream.Sink) (*types.RunRecord, error) {
	return o.execute(ctx, req, tenant, runID, sink)
}

func (o *Orchestrator) execute(ctx context.Context, req *types.RunRequest, tenant *types.Tenant, runID string, sink stream.Sink) (rec *types.RunRecord, err error) {
	if err := o.Validate(req); err != nil {
		return nil, err
	}

	eff, err := o.policy.Merge(req.Limits)
	if err != nil {
		return nil, err
	}

	logger := log.WithRunID(runID).With().Str("component", "orchestrator").Logger()
	if tenant != nil {
		logger = logger.With().Str("tenant", tenant.Label).Logger()
	}

	metrics.ActiveRuns.Inc()
	start := time.Now()
	defer func() {
		metrics.ActiveRuns.Dec()
		if rec != nil {
			metrics.RunsTotal.WithLabelValues(string(rec.Status)).Inc()
			metrics.RunDuration.Observe(time.Since(start).Seconds())
		}
	}()

	workdir := filepath.Join(o.workRoot, runID)
	for _, sub := range []string{"inputs", "outputs"} {
		if err := os.MkdirAll(filepath.Join(workdir, sub), 0o777); err != nil {
			return nil, fmt.Errorf("failed to create workdir: %w", err)
		}
	}
	// Every successfully created workdir is removed, on success and on
	// every failure path alike.
	defer o.removeWorkdir(workdir, logger)

	o.emit(sink, runID, stream.Frame{Type: stream.FrameStatus, Stage: "staging"})
	if err := o.stageInputs(workdir, req.Files); err != nil {
		return nil, err
	}

	codeSum := sha256.Sum256([]byte(req.Code))
	env := SanitizeEnv(req.Env)

	spec := &sandbox.Spec{
		RunID:    runID,
		Language: req.Language,
		Code:     req.Code,
		Args:     req.Args,
		Env:      env,
		Workdir:  workdir,
		Limits:   eff,
		Files:    req.Files,
	}
	if sink != nil {
		spec.OnStdout = func(p []byte) {
			o.emit(sink, runID, stream.Frame{Type: stream.FrameStdout, Data: string(p)})
		}
		spec.OnStderr = func(p []byte) {
			o.emit(sink, runID, stream.Frame{Type: stream.FrameStderr, Data: string(p)})
		}
	}

	o.emit(sink, runID, stream.Frame{Type: stream.FrameStatus, Stage: "running"})
	logger.Info().Str("language", string(req.Language)).Msg("launching sandbox")

	res, err := o.runner.Run(ctx, spec)
	if err != nil {
		logger.Error().Err(err).Msg("sandbox launch failed")
		return nil, types.E(types.ErrSandboxFailure, "sandbox failure: %v", err)
	}

	status := res.Status
	if status == types.StatusSucceeded && res.ExitCode != nil && *res.ExitCode != 0 {
		// The runner's word is final except for this inconsistency.
		status = types.StatusFailed
	}

	o.emit(sink, runID, stream.Frame{Type: stream.FrameStatus, Stage: "collecting"})
	artifacts := o.collectArtifacts(workdir, res.Artifacts, eff, logger)

	usage := o.readUsage(workdir, eff, logger)

	rec = &types.RunRecord{
		ID:        runID,
		Status:    status,
		ExitCode:  res.ExitCode,
		Stdout:    string(truncate(res.Stdout, eff.MaxOutputBytes)),
		Stderr:    string(truncate(res.Stderr, eff.MaxOutputBytes)),
		Usage:     usage,
		Artifacts: artifacts,
		Limits:    eff,
		CreatedAt: time.Now().UTC(),
		Language:  req.Language,
		CodeSHA:   hex.EncodeToString(codeSum[:]),
	}

	// The record enters the store only after the workdir teardown has been
	// scheduled (the deferred removal above runs before we return).
	o.runs.Put(rec)

	logger.Info().
		Str("status", string(status)).
		Int64("wall_ms", usage.WallMS).
		Int("artifacts", len(artifacts)).
		Msg("run finished")

	return rec, nil
}

// GetRun fetches a stored run record by id.
func (o *Orchestrator) GetRun(id string) (*types.RunRecord, error) {
	return o.runs.Get(id)
}

// collectArtifacts iterates the sandbox's candidates in order, drops paths
// escaping the outputs prefix, stops once either cap would be exceeded,
// and moves survivors into the blob store.
func (o *Orchestrator) collectArtifacts(workdir string, candidates []string, eff types.Limits, logger zerolog.Logger) []types.Artifact {
	outputsRoot := filepath.Join(workdir, "outputs")
	now := time.Now()

	artifacts := make([]types.Artifact, 0, len(candidates))
	var totalBytes int64

	for _, path := range candidates {
		rel, err := filepath.Rel(outputsRoot, filepath.Clean(path))
		if err != nil || rel == ".." || filepath.IsAbs(rel) || (len(rel) >= 3 && rel[:3] == "../") {
			// Escaping paths are dropped, not an error.
			continue
		}

		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		if int64(len(artifacts)) >= eff.MaxArtifactFiles {
			break
		}
		if totalBytes+info.Size() > eff.MaxArtifactBytes {
			break
		}

		art, err := o.blobs.IngestArtifact(path, rel, now)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to ingest artifact")
			continue
		}
		artifacts = append(artifacts, *art)
		totalBytes += art.Size
		metrics.ArtifactsIngestedTotal.Inc()
	}

	return artifacts
}

func (o *Orchestrator) removeWorkdir(workdir string, logger zerolog.Logger) {
	if err := os.RemoveAll(workdir); err != nil {
		logger.Warn().Err(err).Str("workdir", workdir).Msg("failed to remove workdir")
	}
}

func (o *Orchestrator) emit(sink stream.Sink, runID string, f stream.Frame) {
	if sink == nil {
		return
	}
	f.RunID = runID
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	_ = sink.Send(f)
}

func truncate(b []byte, max int64) []byte {
	if int64(len(b)) > max {
		return b[:max]
	}
	return b
}
