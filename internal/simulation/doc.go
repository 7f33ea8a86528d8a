// Package simulation drives trace generation: it builds the simulated
// processes for a scenario, repeatedly draws an event category, routes the
// event to the active process and hands the resulting records to a sink.
//
// Generation is sequential. Each step mutates exactly one process and emits
// its records before the next step begins, so the output order is the
// generation order. All randomness comes from one seeded source, which makes
// a run reproducible from its seed.
//
// Usage:
//
//	sc := simulation.Scenario{
//	    Steps: 100000,
//	    Seed:  42,
//	    Processes: []process.Config{
//	        {Locality: 0.5, MaxMemory: 1 << 20},
//	        {Locality: 0.95, MaxMemory: 1 << 30},
//	    },
//	}
//	w := trace.NewTextWriter(os.Stdout)
//	res, err := simulation.NewRunner(sc, w, simulation.Options{Logger: logger}).Run(ctx)
package simulation
