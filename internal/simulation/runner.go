package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/nvandessel/memtrace/internal/logging"
	"github.com/nvandessel/memtrace/internal/process"
	"github.com/nvandessel/memtrace/internal/trace"
)

// cancelCheckInterval is how many steps run between context checks.
const cancelCheckInterval = 1024

// Options carries the optional collaborators of a Runner.
type Options struct {
	// Logger receives operational output. Nil discards it.
	Logger *slog.Logger

	// Decisions receives one JSONL entry per step. Nil disables it.
	Decisions *logging.DecisionLogger
}

// Runner interleaves the processes of a scenario into one trace.
type Runner struct {
	scenario  Scenario
	sink      trace.Sink
	logger    *slog.Logger
	decisions *logging.DecisionLogger

	rng     *rand.Rand
	procs   []*process.Process
	current *process.Process

	records  int
	switches int
}

// NewRunner builds the processes of sc, all sharing one random source seeded
// from sc.Seed. sc must be valid.
func NewRunner(sc Scenario, sink trace.Sink, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	rng := NewRand(sc.Seed)
	procs := make([]*process.Process, len(sc.Processes))
	for i, cfg := range sc.Processes {
		procs[i] = process.New(i, cfg, rng)
	}

	return &Runner{
		scenario:  sc,
		sink:      sink,
		logger:    logger,
		decisions: opts.Decisions,
		rng:       rng,
		procs:     procs,
	}
}

// Processes returns the simulated processes, indexed by id.
func (r *Runner) Processes() []*process.Process {
	return r.procs
}

// Current returns the active process, or nil before Run.
func (r *Runner) Current() *process.Process {
	return r.current
}

// Run emits the initial switch record and then executes the scenario's
// steps. Cancelling ctx stops the run between steps; everything emitted up
// to that point is complete. Run does not close the sink.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	r.logger.Info("generation started",
		"name", r.scenario.Name,
		"seed", r.scenario.Seed,
		"steps", r.scenario.Steps,
		"processes", len(r.procs))

	r.current = r.procs[r.rng.IntN(len(r.procs))]
	if err := r.emitSwitch(); err != nil {
		return r.result(0, false), err
	}

	for step := 0; step < r.scenario.Steps; step++ {
		if step%cancelCheckInterval == 0 && ctx.Err() != nil {
			r.logger.Warn("generation aborted", "step", step, "records", r.records)
			return r.result(step, true), nil
		}

		event, p := EventTable.Draw(r.rng)
		if r.decisions != nil {
			r.decisions.Log(map[string]any{
				"step":  step,
				"pid":   r.current.ID(),
				"event": event.String(),
				"p":     p,
			})
		}

		if err := r.dispatch(event); err != nil {
			return r.result(step, false), fmt.Errorf("step %d (%s): %w", step, event, err)
		}
	}

	res := r.result(r.scenario.Steps, false)
	r.logger.Info("generation finished",
		"records", res.Records,
		"switches", res.Switches)
	return res, nil
}

// dispatch routes one event to the active process and emits its records.
func (r *Runner) dispatch(event Event) error {
	proc := r.current
	pid := proc.ID()

	switch event {
	case EventFetch:
		return r.emit(trace.Access(pid, trace.KindCode, proc.AccessCode()))

	case EventStack:
		for _, addr := range proc.AccessStack() {
			if err := r.emit(trace.Access(pid, trace.KindStack, addr)); err != nil {
				return err
			}
		}
		return nil

	case EventHeap:
		addr, ok := proc.AccessHeap()
		if !ok {
			// No heap yet: the access turns into an allocation.
			return r.allocate()
		}
		return r.emit(trace.Access(pid, trace.KindHeap, addr))

	case EventAllocate:
		return r.allocate()

	case EventFree:
		base, ok := proc.Free()
		if !ok {
			return nil
		}
		r.logger.Debug("page freed", "pid", pid, "base", base, "heap_size", proc.HeapSize())
		return r.emit(trace.Free(pid, base))

	case EventSwitch:
		r.current = r.pickOther()
		return r.emitSwitch()
	}
	return nil
}

func (r *Runner) allocate() error {
	proc := r.current
	size, ok := proc.Allocate()
	if !ok {
		r.logger.Log(context.Background(), logging.LevelTrace, "heap budget exhausted",
			"pid", proc.ID(), "heap_size", proc.HeapSize(), "max_memory", proc.MaxMemory())
		return nil
	}
	r.logger.Debug("page allocated", "pid", proc.ID(), "size", size, "heap_size", proc.HeapSize())
	return r.emit(trace.Alloc(proc.ID(), size))
}

// pickOther returns a uniformly random process other than the current one,
// or the current one when it is alone.
func (r *Runner) pickOther() *process.Process {
	n := len(r.procs)
	if n == 1 {
		return r.current
	}
	idx := r.rng.IntN(n - 1)
	if idx >= r.current.ID() {
		idx++
	}
	return r.procs[idx]
}

func (r *Runner) emitSwitch() error {
	r.switches++
	r.logger.Debug("switched process", "pid", r.current.ID())
	return r.emit(trace.Switch(r.current.ID()))
}

func (r *Runner) emit(rec trace.Record) error {
	if err := r.sink.Write(rec); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	r.records++
	return nil
}

func (r *Runner) result(steps int, aborted bool) Result {
	final := make([]process.State, len(r.procs))
	for i, p := range r.procs {
		final[i] = p.Snapshot()
	}
	return Result{
		Seed:     r.scenario.Seed,
		Steps:    steps,
		Records:  r.records,
		Switches: r.switches,
		Aborted:  aborted,
		Final:    final,
	}
}
