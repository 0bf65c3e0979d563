// Package limits implements the run limits policy: caller-supplied partial
// limits are merged against configured defaults and clamped by hard
// maximums. Merging is pure; the returned value is treated as immutable by
// downstream consumers.
package limits

import (
	"github.com/kilnrun/kiln/pkg/types"
)

// Policy holds the installation's default and maximum limits.
type Policy struct {
	Defaults types.Limits
	Maximums types.Limits
}

// DefaultPolicy mirrors the stock runner images: 5 s wall clock, 256 MiB,
// 5 s CPU, 1 MiB per stream, 10 MiB / 10 files of artifacts.
func DefaultPolicy() Policy {
	return Policy{
		Defaults: types.Limits{
			TimeoutMS:        5000,
			MemoryMB:         256,
			CPUMs:            5000,
			MaxOutputBytes:   1 << 20,
			MaxArtifactBytes: 10 << 20,
			MaxArtifactFiles: 10,
		},
		Maximums: types.Limits{
			TimeoutMS:        60000,
			MemoryMB:         1024,
			CPUMs:            60000,
			MaxOutputBytes:   5 << 20,
			MaxArtifactBytes: 50 << 20,
			MaxArtifactFiles: 50,
		},
	}
}

// Merge applies the caller's partial override to the policy defaults. A nil
// patch yields the defaults. Any field that is zero, negative, or above its
// configured maximum fails the request with a validation error naming the
// field.
func (p Policy) Merge(patch *types.LimitsPatch) (types.Limits, error) {
	out := p.Defaults
	if patch == nil {
		return out, nil
	}

	fields := []struct {
		name string
		req  *int64
		dst  *int64
		max  int64
	}{
		{"timeout_ms", patch.TimeoutMS, &out.TimeoutMS, p.Maximums.TimeoutMS},
		{"memory_mb", patch.MemoryMB, &out.MemoryMB, p.Maximums.MemoryMB},
		{"cpu_ms", patch.CPUMs, &out.CPUMs, p.Maximums.CPUMs},
		{"max_output_bytes", patch.MaxOutputBytes, &out.MaxOutputBytes, p.Maximums.MaxOutputBytes},
		{"max_artifact_bytes", patch.MaxArtifactBytes, &out.MaxArtifactBytes, p.Maximums.MaxArtifactBytes},
		{"max_artifact_files", patch.MaxArtifactFiles, &out.MaxArtifactFiles, p.Maximums.MaxArtifactFiles},
	}

	for _, f := range fields {
		if f.req == nil {
			continue
		}
		v := *f.req
		if v <= 0 {
			return types.Limits{}, types.E(types.ErrValidation, "limit %s must be positive, got %d", f.name, v)
		}
		if v > f.max {
			return types.Limits{}, types.E(types.ErrValidation, "limit %s exceeds maximum %d", f.name, f.max)
		}
		*f.dst = v
	}

	return out, nil
}
