package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kilnrun/kiln/pkg/types"
)

// readUsage loads the bootstrap's usage.json from the workdir. The file is
// missing whenever the run was killed before accounting completed (hard
// timeout, OOM kill), in which case the effective limits stand in as the
// observed consumption: the run is charged what it was allowed.
func (o *Orchestrator) readUsage(workdir string, eff types.Limits, logger zerolog.Logger) types.Usage {
	fallback := types.Usage{
		WallMS:   eff.TimeoutMS,
		CPUMs:    eff.CPUMs,
		MaxRSSMB: eff.MemoryMB,
	}

	raw, err := os.ReadFile(filepath.Join(workdir, "usage.json"))
	if err != nil {
		return fallback
	}

	var u types.Usage
	if err := json.Unmarshal(raw, &u); err != nil {
		logger.Warn().Err(err).Msg("corrupt usage.json, substituting limits")
		return fallback
	}
	return u
}
