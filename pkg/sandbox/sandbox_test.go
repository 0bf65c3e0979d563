package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnrun/kiln/pkg/types"
)

func TestClassifyExit(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		timedOut bool
		want     types.RunStatus
	}{
		{"clean exit", 0, false, types.StatusSucceeded},
		{"timer fired", 137, true, types.StatusTimeout},
		{"self-detected timeout", 124, false, types.StatusTimeout},
		{"oom kill", 137, false, types.StatusOOM},
		{"nonzero exit", 1, false, types.StatusFailed},
		{"segfault", 139, false, types.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyExit(tt.code, tt.timedOut))
		})
	}
}

func TestEntryFiles(t *testing.T) {
	for _, lang := range types.Languages {
		assert.NotEmpty(t, EntryFile(lang), "language %s has no entry file", lang)
	}
	assert.Equal(t, "main.py", EntryFile(types.LanguagePython))
	assert.Equal(t, "main.go", EntryFile(types.LanguageGo))
}

func TestCapBufferTruncates(t *testing.T) {
	b := newCapBuffer(5, nil)

	n, err := b.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n, "writes past the cap still report consumed")
	assert.Equal(t, "hello", string(b.Bytes()))

	n, err = b.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "hello", string(b.Bytes()))
}

func TestCapBufferTeeMatchesRetained(t *testing.T) {
	var teed []byte
	b := newCapBuffer(8, func(p []byte) { teed = append(teed, p...) })

	b.Write([]byte("abcde"))
	b.Write([]byte("fghij"))

	assert.Equal(t, string(b.Bytes()), string(teed))
	assert.Equal(t, "abcdefgh", string(teed))
}

func TestListOutputs(t *testing.T) {
	workdir := t.TempDir()
	outputs := filepath.Join(workdir, "outputs")
	require.NoError(t, os.MkdirAll(filepath.Join(outputs, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outputs, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outputs, "sub", "b.txt"), []byte("b"), 0o644))

	got := ListOutputs(workdir)
	require.Len(t, got, 2)
	assert.Equal(t, filepath.Join(outputs, "a.txt"), got[0])
	assert.Equal(t, filepath.Join(outputs, "sub", "b.txt"), got[1])
}

func TestListOutputsMissingDir(t *testing.T) {
	assert.Empty(t, ListOutputs(t.TempDir()))
}

func TestBootstrapStdinShape(t *testing.T) {
	spec := &Spec{
		RunID:    "run_abc123def456",
		Language: types.LanguagePython,
		Args:     []string{"--flag"},
		Env:      map[string]string{"HOME": "/work"},
		Limits:   types.Limits{TimeoutMS: 1000, MemoryMB: 64, CPUMs: 1000, MaxOutputBytes: 1024, MaxArtifactBytes: 1024, MaxArtifactFiles: 1},
	}
	r, err := bootstrapStdin(spec)
	require.NoError(t, err)

	buf := make([]byte, r.Len())
	_, err = r.Read(buf)
	require.NoError(t, err)
	s := string(buf)
	assert.Contains(t, s, `"id":"run_abc123def456"`)
	assert.Contains(t, s, `"timeout_ms":1000`)
	assert.Contains(t, s, `"HOME":"/work"`)
}
