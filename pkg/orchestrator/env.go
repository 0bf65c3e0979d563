package orchestrator

import "strings"

// SanitizeEnv builds the environment handed to the sandbox: loader-control
// variables (LD_*) dropped, everything else from the request carried
// through, then HOME and TMPDIR pinned inside the workdir so user entries
// cannot redirect them. PATH is fixed later by the bootstrap and cannot be
// overridden here either.
func SanitizeEnv(requested map[string]string) map[string]string {
	env := make(map[string]string, len(requested)+2)
	for k, v := range requested {
		if strings.HasPrefix(strings.ToUpper(k), "LD_") {
			continue
		}
		env[k] = v
	}
	env["HOME"] = "/work"
	env["TMPDIR"] = "/work/tmp"
	return env
}
