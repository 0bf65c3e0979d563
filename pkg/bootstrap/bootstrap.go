// Package bootstrap is the in-sandbox side of the run contract: PID 1 of
// every runner container. It reads the run spec from stdin, hardens the
// process environment, executes the language runtime against the
// conventional entry file, accounts resource usage from /proc, and writes
// usage.json before propagating the child's exit code.
//
// The bootstrap trusts nothing about its inherited environment and resets
// it wholesale. It enforces the wall clock itself (exit 124) so the
// gateway's kill timer is a backstop, not the primary mechanism.
package bootstrap

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/kilnrun/kiln/pkg/sandbox"
	"github.com/kilnrun/kiln/pkg/types"
)

const (
	// fixedPath is the only PATH user code ever sees.
	fixedPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

	// goToolchainPath extends fixedPath inside the Go runner image.
	goToolchainPath = fixedPath + ":/usr/local/go/bin"

	// compileTimeout caps the Go build phase, separately from the run
	// wall clock.
	compileTimeout = 10 * time.Second

	// exitTimeout is the conventional timeout exit code.
	exitTimeout = 124

	// exitInternal reports a bootstrap-side failure before user code ran.
	exitInternal = 125
)

// Options configures one bootstrap invocation.
type Options struct {
	Language types.Language
	WorkDir  string
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
}

// Run executes the bootstrap sequence and returns the process exit code.
func Run(opts Options) int {
	if opts.WorkDir == "" {
		opts.WorkDir = sandbox.WorkMount
	}

	var spec sandbox.BootstrapSpec
	if err := json.NewDecoder(opts.Stdin).Decode(&spec); err != nil {
		fmt.Fprintf(opts.Stderr, "kiln-bootstrap: bad spec: %v\n", err)
		return exitInternal
	}

	if err := os.Chdir(opts.WorkDir); err != nil {
		fmt.Fprintf(opts.Stderr, "kiln-bootstrap: %v\n", err)
		return exitInternal
	}
	for _, dir := range []string{"tmp", "outputs"} {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			fmt.Fprintf(opts.Stderr, "kiln-bootstrap: %v\n", err)
			return exitInternal
		}
	}

	env := BuildEnv(spec.Env, opts.Language, opts.WorkDir)

	if err := applyRlimits(spec.Limits); err != nil {
		fmt.Fprintf(opts.Stderr, "kiln-bootstrap: rlimits: %v\n", err)
		return exitInternal
	}

	var compileMS int64
	runArgs := runtimeCommand(opts.Language, opts.WorkDir, spec.Args)
	if opts.Language == types.LanguageGo {
		ms, code := compileGo(opts, spec, env)
		if code != 0 {
			return code
		}
		compileMS = ms
	}

	code, usage := runChild(opts, spec, runArgs, env)
	if code == exitTimeout {
		// Timed out: no usage.json, the gateway substitutes the limits.
		return exitTimeout
	}
	usage.CompileMS = compileMS

	if raw, err := json.Marshal(usage); err == nil {
		_ = os.WriteFile(filepath.Join(opts.WorkDir, "usage.json"), raw, 0o644)
	}
	return code
}

// BuildEnv produces the child environment: the request env first, then
// HOME, TMPDIR, and PATH pinned last so no request entry overrides them.
func BuildEnv(requested map[string]string, lang types.Language, workDir string) []string {
	merged := make(map[string]string, len(requested)+3)
	for k, v := range requested {
		merged[k] = v
	}
	merged["HOME"] = workDir
	merged["TMPDIR"] = filepath.Join(workDir, "tmp")

	path := fixedPath
	if lang == types.LanguageGo {
		path = goToolchainPath
	}
	merged["PATH"] = path

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// runtimeCommand builds the argv that executes user code. Go runs the
// binary produced by the compile phase; every other language invokes its
// interpreter on the entry file.
func runtimeCommand(lang types.Language, workDir string, args []string) []string {
	entry := sandbox.EntryFile(lang)
	var argv []string
	switch lang {
	case types.LanguagePython:
		argv = []string{"python3", entry}
	case types.LanguageNode:
		argv = []string{"node", entry}
	case types.LanguageRuby:
		argv = []string{"ruby", entry}
	case types.LanguagePHP:
		argv = []string{"php", entry}
	case types.LanguageGo:
		argv = []string{compiledBinary(workDir)}
	}
	return append(argv, args...)
}

func compiledBinary(workDir string) string {
	return filepath.Join(workDir, "tmp", "app")
}

// compileGo builds main.go with the toolchain confined to /work/tmp and a
// memory ceiling below the sandbox cap so the compiler itself cannot
// trigger the OOM killer.
func compileGo(opts Options, spec sandbox.BootstrapSpec, env []string) (int64, int) {
	tmp := filepath.Join(opts.WorkDir, "tmp")
	buildEnv := append([]string{}, env...)
	buildEnv = append(buildEnv,
		"GOPATH="+filepath.Join(tmp, "gopath"),
		"GOCACHE="+filepath.Join(tmp, "gocache"),
		"GOMEMLIMIT="+fmt.Sprintf("%dMiB", spec.Limits.MemoryMB*3/4),
		"GOGC=50",
		"GOFLAGS=-mod=mod",
		"GO111MODULE=off",
	)

	cmd := exec.Command("go", "build", "-o", compiledBinary(opts.WorkDir), sandbox.EntryFile(types.LanguageGo))
	cmd.Dir = opts.WorkDir
	cmd.Env = buildEnv
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(opts.Stderr, "kiln-bootstrap: go build: %v\n", err)
		return 0, exitInternal
	}

	timer := time.AfterFunc(compileTimeout, func() {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	})
	err := cmd.Wait()
	fired := !timer.Stop()

	if fired {
		fmt.Fprintln(opts.Stderr, "kiln-bootstrap: compile timed out")
		return 0, exitTimeout
	}
	if err != nil {
		return 0, exitCodeOf(cmd)
	}
	return time.Since(start).Milliseconds(), 0
}

// runChild executes the runtime command under the wall-clock deadline,
// sampling /proc for usage while it runs.
func runChild(opts Options, spec sandbox.BootstrapSpec, argv []string, env []string) (int, types.Usage) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.WorkDir
	cmd.Env = env
	cmd.Stdin = nil
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(opts.Stderr, "kiln-bootstrap: exec: %v\n", err)
		return exitInternal, types.Usage{}
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(time.Duration(spec.Limits.TimeoutMS)*time.Millisecond, func() {
		timedOut.Store(true)
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	})

	sampler := newProcSampler(cmd.Process.Pid)
	sampler.start()

	waitErr := cmd.Wait()
	timer.Stop()
	sampler.stop()
	wallMS := time.Since(start).Milliseconds()

	if timedOut.Load() {
		return exitTimeout, types.Usage{}
	}

	usage := types.Usage{
		WallMS:   wallMS,
		CPUMs:    sampler.cpuMS(),
		MaxRSSMB: sampler.maxRSSMB(),
	}

	// rusage from wait() is authoritative where the sampler raced the exit.
	if ps := cmd.ProcessState; ps != nil {
		if ru, ok := ps.SysUsage().(*syscall.Rusage); ok {
			cpu := (time.Duration(ru.Utime.Nano()) + time.Duration(ru.Stime.Nano())).Milliseconds()
			if cpu > usage.CPUMs {
				usage.CPUMs = cpu
			}
			if rssMB := ru.Maxrss >> 10; rssMB > usage.MaxRSSMB {
				usage.MaxRSSMB = rssMB
			}
		}
	}

	if waitErr != nil {
		return exitCodeOf(cmd), usage
	}
	return 0, usage
}

// exitCodeOf maps a finished child to its exit code, with 128+signal for
// signal deaths (137 for the OOM killer's SIGKILL).
func exitCodeOf(cmd *exec.Cmd) int {
	ps := cmd.ProcessState
	if ps == nil {
		return exitInternal
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	if code := ps.ExitCode(); code >= 0 {
		return code
	}
	return exitInternal
}
