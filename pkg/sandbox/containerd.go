package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/contrib/seccomp"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog"

	"github.com/kilnrun/kiln/pkg/log"
	"github.com/kilnrun/kiln/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace for Kiln sandboxes
	DefaultNamespace = "kiln"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// bootstrapPath is where runner images install the bootstrap binary
	bootstrapPath = "/usr/local/bin/kiln-bootstrap"

	// pidsLimit bounds the process count inside one sandbox
	pidsLimit = 256

	// killGrace is how long past the wall-clock limit the runner waits for
	// the bootstrap's own timeout handling before sending SIGKILL itself
	killGrace = 500 * time.Millisecond
)

// ContainerdConfig configures the production runner.
type ContainerdConfig struct {
	SocketPath      string
	Images          map[string]string
	SeccompProfile  string
	ApparmorProfile string
	// DisableSecurity turns off seccomp and AppArmor for development hosts.
	// The rest of the isolation contract (no network, read-only rootfs,
	// dropped capabilities, resource caps) always applies.
	DisableSecurity bool
}

// ContainerdRunner launches one ephemeral container per run via containerd.
type ContainerdRunner struct {
	client *containerd.Client
	cfg    ContainerdConfig
	logger zerolog.Logger
}

// NewContainerdRunner connects to containerd.
func NewContainerdRunner(cfg ContainerdConfig) (*ContainerdRunner, error) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}

	client, err := containerd.New(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdRunner{
		client: client,
		cfg:    cfg,
		logger: log.WithComponent("sandbox"),
	}, nil
}

// Close closes the containerd client connection.
func (r *ContainerdRunner) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Run executes one prepared run in a fresh container. The workdir is bind
// mounted at /work; the bootstrap spec goes in on stdin; stdout and stderr
// are captured up to the output cap. The wall-clock timer here is the
// authoritative deadline.
func (r *ContainerdRunner) Run(ctx context.Context, spec *Spec) (*Result, error) {
	ctx = namespaces.WithNamespace(ctx, DefaultNamespace)

	if err := r.materializeCode(spec); err != nil {
		return nil, err
	}

	imageRef, ok := r.cfg.Images[string(spec.Language)]
	if !ok {
		return nil, types.E(types.ErrSandboxFailure, "no sandbox image for language %q", spec.Language)
	}
	image, err := r.ensureImage(ctx, imageRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve image %s: %w", imageRef, err)
	}

	container, err := r.client.NewContainer(
		ctx,
		spec.RunID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.RunID+"-snapshot", image),
		containerd.WithNewSpec(r.specOpts(spec, image)...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		if err := container.Delete(context.WithoutCancel(ctx), containerd.WithSnapshotCleanup); err != nil {
			r.logger.Warn().Err(err).Str("run_id", spec.RunID).Msg("failed to delete container")
		}
	}()

	stdin, err := bootstrapStdin(spec)
	if err != nil {
		return nil, err
	}
	stdout := newCapBuffer(spec.Limits.MaxOutputBytes, spec.OnStdout)
	stderr := newCapBuffer(spec.Limits.MaxOutputBytes, spec.OnStderr)

	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStreams(stdin, stdout, stderr)))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	defer func() {
		if _, err := task.Delete(context.WithoutCancel(ctx), containerd.WithProcessKill); err != nil {
			r.logger.Warn().Err(err).Str("run_id", spec.RunID).Msg("failed to delete task")
		}
	}()

	statusC, err := task.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for task: %w", err)
	}

	start := time.Now()
	if err := task.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start task: %w", err)
	}

	// The bootstrap enforces the wall clock itself and exits 124; the timer
	// here is the backstop for a wedged bootstrap.
	deadline := time.Duration(spec.Limits.TimeoutMS)*time.Millisecond + killGrace
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	var (
		status   containerd.ExitStatus
		timedOut bool
		killed   bool
	)
	select {
	case status = <-statusC:
	case <-timer.C:
		timedOut = true
		r.kill(ctx, task, spec.RunID)
		status = <-statusC
	case <-ctx.Done():
		killed = true
		r.kill(context.WithoutCancel(ctx), task, spec.RunID)
		status = <-statusC
	}
	wallMS := time.Since(start).Milliseconds()

	code := int(status.ExitCode())
	runStatus := ClassifyExit(code, timedOut)
	if killed {
		runStatus = types.StatusKilled
	}

	r.logger.Debug().
		Str("run_id", spec.RunID).
		Str("status", string(runStatus)).
		Int("exit_code", code).
		Int64("wall_ms", wallMS).
		Msg("sandbox exited")

	return &Result{
		Status:    runStatus,
		ExitCode:  &code,
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		WallMS:    wallMS,
		Artifacts: ListOutputs(spec.Workdir),
	}, nil
}

// materializeCode writes the code body to the conventional entry file in
// the workdir root, where the bootstrap expects it.
func (r *ContainerdRunner) materializeCode(spec *Spec) error {
	entry := EntryFile(spec.Language)
	if entry == "" {
		return types.E(types.ErrSandboxFailure, "no entry file for language %q", spec.Language)
	}
	if err := os.WriteFile(filepath.Join(spec.Workdir, entry), []byte(spec.Code), 0o644); err != nil {
		return fmt.Errorf("failed to write entry file: %w", err)
	}
	return nil
}

// ensureImage resolves a local image, pulling it on first use.
func (r *ContainerdRunner) ensureImage(ctx context.Context, ref string) (containerd.Image, error) {
	image, err := r.client.GetImage(ctx, ref)
	if err == nil {
		return image, nil
	}
	r.logger.Info().Str("image", ref).Msg("pulling sandbox image")
	return r.client.Pull(ctx, ref, containerd.WithPullUnpack)
}

// specOpts builds the OCI spec for one sandbox. The defaults already place
// the container in fresh namespaces (the empty network namespace has no
// interfaces, so there is no network reachability); everything else is
// tightened explicitly.
func (r *ContainerdRunner) specOpts(spec *Spec, image containerd.Image) []oci.SpecOpts {
	args := append([]string{bootstrapPath, "--language", string(spec.Language), "--"}, spec.Args...)

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithProcessArgs(args...),
		oci.WithProcessCwd(WorkMount),
		oci.WithEnv(env),
		oci.WithRootFSReadonly(),
		oci.WithNoNewPrivileges,
		oci.WithCapabilities(nil),
		oci.WithMemoryLimit(uint64(spec.Limits.MemoryMB) << 20),
		// One full core; the total CPU-time budget is enforced by the
		// bootstrap via RLIMIT_CPU.
		oci.WithCPUCFS(100000, 100000),
		withPidsLimit(pidsLimit),
		oci.WithMounts([]specs.Mount{{
			Source:      spec.Workdir,
			Destination: WorkMount,
			Type:        "bind",
			Options:     []string{"rbind", "rw"},
		}}),
	}

	if !r.cfg.DisableSecurity {
		if r.cfg.SeccompProfile != "" {
			opts = append(opts, seccomp.WithProfile(r.cfg.SeccompProfile))
		} else {
			opts = append(opts, seccomp.WithDefaultProfile())
		}
		if r.cfg.ApparmorProfile != "" {
			opts = append(opts, oci.WithApparmorProfile(r.cfg.ApparmorProfile))
		}
	}

	return opts
}

func (r *ContainerdRunner) kill(ctx context.Context, task containerd.Task, runID string) {
	if err := task.Kill(ctx, syscall.SIGKILL, containerd.WithKillAll); err != nil {
		r.logger.Warn().Err(err).Str("run_id", runID).Msg("failed to kill task")
	}
}

func bootstrapStdin(spec *Spec) (*bytes.Reader, error) {
	raw, err := json.Marshal(BootstrapSpec{
		ID:     spec.RunID,
		Args:   spec.Args,
		Env:    spec.Env,
		Limits: spec.Limits,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode bootstrap spec: %w", err)
	}
	raw = append(raw, '\n')
	return bytes.NewReader(raw), nil
}

// withPidsLimit bounds the number of processes inside the sandbox.
func withPidsLimit(limit int64) oci.SpecOpts {
	return func(_ context.Context, _ oci.Client, _ *containers.Container, s *oci.Spec) error {
		if s.Linux == nil {
			s.Linux = &specs.Linux{}
		}
		if s.Linux.Resources == nil {
			s.Linux.Resources = &specs.LinuxResources{}
		}
		s.Linux.Resources.Pids = &specs.LinuxPids{Limit: limit}
		return nil
	}
}
