package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilnrun/kiln/pkg/types"
)

func findEnv(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, e := range env {
		if len(e) > len(prefix) && e[:len(prefix)] == prefix {
			return e[len(prefix):], true
		}
	}
	return "", false
}

func TestBuildEnvPins(t *testing.T) {
	env := BuildEnv(map[string]string{
		"MY_VAR": "1",
		"PATH":   "/attacker/bin",
		"HOME":   "/root",
		"TMPDIR": "/elsewhere",
	}, types.LanguagePython, "/work")

	path, ok := findEnv(env, "PATH")
	assert.True(t, ok)
	assert.Equal(t, fixedPath, path)

	// Pinned entries win over request entries.
	home, _ := findEnv(env, "HOME")
	assert.Equal(t, "/work", home)
	tmp, _ := findEnv(env, "TMPDIR")
	assert.Equal(t, "/work/tmp", tmp)
	v, _ := findEnv(env, "MY_VAR")
	assert.Equal(t, "1", v)
}

func TestBuildEnvGoToolchain(t *testing.T) {
	env := BuildEnv(nil, types.LanguageGo, "/work")
	path, _ := findEnv(env, "PATH")
	assert.Equal(t, goToolchainPath, path)
}

func TestRuntimeCommand(t *testing.T) {
	tests := []struct {
		lang types.Language
		want []string
	}{
		{types.LanguagePython, []string{"python3", "main.py"}},
		{types.LanguageNode, []string{"node", "main.js"}},
		{types.LanguageRuby, []string{"ruby", "main.rb"}},
		{types.LanguagePHP, []string{"php", "main.php"}},
		{types.LanguageGo, []string{"/work/tmp/app"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.lang), func(t *testing.T) {
			assert.Equal(t, tt.want, runtimeCommand(tt.lang, "/work", nil))
		})
	}
}

func TestRuntimeCommandArgs(t *testing.T) {
	argv := runtimeCommand(types.LanguagePython, "/work", []string{"--fast", "input.csv"})
	assert.Equal(t, []string{"python3", "main.py", "--fast", "input.csv"}, argv)
}
