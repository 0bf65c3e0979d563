//go:build !linux

package bootstrap

import "github.com/kilnrun/kiln/pkg/types"

// Rlimits only apply on Linux; elsewhere the sandbox's cgroup limits are
// the sole enforcement (useful for running unit tests on a dev machine).
func applyRlimits(types.Limits) error {
	return nil
}
