package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnrun/kiln/pkg/types"
)

func i64(v int64) *int64 { return &v }

func TestMergeEmptyPatchYieldsDefaults(t *testing.T) {
	p := DefaultPolicy()

	got, err := p.Merge(nil)
	require.NoError(t, err)
	assert.Equal(t, p.Defaults, got)

	got, err = p.Merge(&types.LimitsPatch{})
	require.NoError(t, err)
	assert.Equal(t, p.Defaults, got)
}

func TestMergeLowersFields(t *testing.T) {
	p := DefaultPolicy()

	got, err := p.Merge(&types.LimitsPatch{
		TimeoutMS: i64(1000),
		MemoryMB:  i64(64),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.TimeoutMS)
	assert.Equal(t, int64(64), got.MemoryMB)
	assert.Equal(t, p.Defaults.CPUMs, got.CPUMs)
}

func TestMergeIdempotent(t *testing.T) {
	p := DefaultPolicy()
	patch := &types.LimitsPatch{TimeoutMS: i64(2500), MaxArtifactFiles: i64(3)}

	first, err := p.Merge(patch)
	require.NoError(t, err)
	second, err := p.Merge(patch)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMergeRejectsExcessiveValues(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name  string
		patch *types.LimitsPatch
	}{
		{"timeout above max", &types.LimitsPatch{TimeoutMS: i64(p.Maximums.TimeoutMS + 1)}},
		{"memory above max", &types.LimitsPatch{MemoryMB: i64(p.Maximums.MemoryMB + 1)}},
		{"cpu above max", &types.LimitsPatch{CPUMs: i64(p.Maximums.CPUMs + 1)}},
		{"output above max", &types.LimitsPatch{MaxOutputBytes: i64(p.Maximums.MaxOutputBytes + 1)}},
		{"artifact bytes above max", &types.LimitsPatch{MaxArtifactBytes: i64(p.Maximums.MaxArtifactBytes + 1)}},
		{"artifact files above max", &types.LimitsPatch{MaxArtifactFiles: i64(p.Maximums.MaxArtifactFiles + 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Merge(tt.patch)
			require.Error(t, err)
			assert.Equal(t, types.ErrValidation, types.KindOf(err))
		})
	}
}

func TestMergeRejectsNonsenseValues(t *testing.T) {
	p := DefaultPolicy()

	for _, v := range []int64{0, -1, -5000} {
		_, err := p.Merge(&types.LimitsPatch{TimeoutMS: i64(v)})
		require.Error(t, err)
		assert.Equal(t, types.ErrValidation, types.KindOf(err))
	}
}
