/*
Package sandbox launches untrusted code in strongly isolated, ephemeral
containers via containerd.

The orchestrator depends only on the Runner interface: one operation that
takes a fully prepared run spec and produces a completed result. The
production implementation creates one container per run; the MockRunner
satisfies the same contract for tests.

# Isolation contract

Every run gets, simultaneously:

  - no network reachability (fresh network namespace, no interfaces)
  - a read-only root filesystem; the workdir bind-mounted at /work is the
    only writable area
  - all capabilities dropped, no-new-privileges set
  - a seccomp syscall allowlist and optional AppArmor profile (both can be
    disabled with DISABLE_SANDBOX_SECURITY on development hosts)
  - a bounded process count, CPU quota, and memory cap from the effective
    run limits
  - a forcible SIGKILL at wall-clock expiry

# Bootstrap contract

The container entrypoint is the kiln-bootstrap binary baked into every
runner image. It receives a single JSON object on stdin ({id, args, env,
limits}), resets the environment, creates /work/tmp and /work/outputs,
applies rlimits, executes the language runtime against the conventional
entry file (main.py, main.js, main.rb, main.php, main.go), samples /proc
for usage accounting, writes /work/usage.json, and propagates the child's
exit code. A self-detected timeout is reported as exit 124, which the
runner maps to the timeout status alongside its own timer.
*/
package sandbox
