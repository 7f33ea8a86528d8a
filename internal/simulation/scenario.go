package simulation

import (
	"errors"
	"fmt"

	"github.com/nvandessel/memtrace/internal/layout"
	"github.com/nvandessel/memtrace/internal/process"
)

// ErrNoProcesses is returned for a scenario without processes.
var ErrNoProcesses = errors.New("at least one process is required")

// Scenario defines one generation run.
type Scenario struct {
	// Name is an optional label used in logs and the run catalog.
	Name string

	// Steps is the number of scheduler steps. The leading switch record is
	// not a step.
	Steps int

	// Seed initializes the random source.
	Seed uint64

	// Processes configures one simulated process per entry; the index is
	// the process id.
	Processes []process.Config
}

// Validate checks the scenario the way the core assumes it was checked.
func (s Scenario) Validate() error {
	if s.Steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", s.Steps)
	}
	if len(s.Processes) == 0 {
		return ErrNoProcesses
	}
	for i, p := range s.Processes {
		if !(p.Locality >= 0 && p.Locality <= 1) {
			return fmt.Errorf("process %d: locality must be between 0 and 1, got %v", i, p.Locality)
		}
		if p.MaxMemory == 0 {
			return fmt.Errorf("process %d: max memory must be positive", i)
		}
		if p.MaxMemory > layout.MaxHeapBudget {
			return fmt.Errorf("process %d: max memory %d exceeds the heap region (%d bytes)", i, p.MaxMemory, layout.MaxHeapBudget)
		}
	}
	return nil
}

// Result summarizes a finished run.
type Result struct {
	Seed     uint64          `json:"seed"`
	Steps    int             `json:"steps"`
	Records  int             `json:"records"`
	Switches int             `json:"switches"`
	Aborted  bool            `json:"aborted"`
	Final    []process.State `json:"final"`
}
