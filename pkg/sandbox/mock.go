package sandbox

import (
	"context"

	"github.com/kilnrun/kiln/pkg/types"
)

// MockRunner satisfies Runner for tests. Its contract is identical to the
// containerd runner's; tests script behavior through RunFunc, typically
// writing into the spec's workdir the way real user code would.
type MockRunner struct {
	RunFunc func(ctx context.Context, spec *Spec) (*Result, error)

	// Specs records every spec this runner received, in order.
	Specs []*Spec
}

func (m *MockRunner) Run(ctx context.Context, spec *Spec) (*Result, error) {
	m.Specs = append(m.Specs, spec)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, spec)
	}
	code := 0
	return &Result{
		Status:    types.StatusSucceeded,
		ExitCode:  &code,
		Artifacts: ListOutputs(spec.Workdir),
	}, nil
}
