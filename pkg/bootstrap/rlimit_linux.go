package bootstrap

import (
	"fmt"
	"syscall"

	"github.com/kilnrun/kiln/pkg/types"
)

const (
	// maxWriteBytes caps any single file the sandbox can create.
	maxWriteBytes = 50 << 20

	maxProcs = 256
	maxFiles = 256
)

// applyRlimits installs the per-process resource limits before user code
// runs. They are inherited by every descendant, so the caps hold for the
// whole process tree even past a fork.
func applyRlimits(l types.Limits) error {
	cpuSecs := uint64(l.CPUMs / 1000)
	if cpuSecs < 1 {
		cpuSecs = 1
	}

	rlimits := []struct {
		resource int
		limit    uint64
	}{
		{syscall.RLIMIT_DATA, uint64(l.MemoryMB) << 20},
		{syscall.RLIMIT_FSIZE, maxWriteBytes},
		{syscall.RLIMIT_NOFILE, maxFiles},
		{unixRLIMIT_NPROC, maxProcs},
		{syscall.RLIMIT_CPU, cpuSecs},
	}
	for _, r := range rlimits {
		rl := &syscall.Rlimit{Cur: r.limit, Max: r.limit}
		if err := syscall.Setrlimit(r.resource, rl); err != nil {
			return fmt.Errorf("setrlimit(%d): %w", r.resource, err)
		}
	}
	return nil
}

// unixRLIMIT_NPROC is not exported by syscall on linux.
const unixRLIMIT_NPROC = 6
