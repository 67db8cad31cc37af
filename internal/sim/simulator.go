package sim

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/pitchsim/internal/dynamo"
	"github.com/san-kum/pitchsim/internal/integrators"
	"github.com/san-kum/pitchsim/internal/physics"
)

type statsSolver interface {
	SolveStats(dyn dynamo.System, x0 dynamo.State, ts []float64) ([]dynamo.State, integrators.Stats, error)
}

// Simulator integrates the pitch loop onto its uniform output grid.
// It keeps no state between runs and is safe for concurrent use.
type Simulator struct {
	solver dynamo.Solver
}

// New returns a Simulator using solver, or the default Dormand-Prince
// solver when solver is nil.
func New(solver dynamo.Solver) *Simulator {
	if solver == nil {
		solver = integrators.NewDormandPrince()
	}
	return &Simulator{solver: solver}
}

// Run integrates p from x0 (the zero state when nil) over [0, T] and samples
// the solution every dt. Any solver failure aborts the run; no partial
// result is returned.
func (s *Simulator) Run(ctx context.Context, p physics.Params, x0 dynamo.State) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if x0 == nil {
		x0 = make(dynamo.State, physics.StateDim)
	}
	if len(x0) != physics.StateDim {
		return nil, fmt.Errorf("%w: initial state has %d components, want %d",
			dynamo.ErrDimensionMismatch, len(x0), physics.StateDim)
	}
	if !x0.IsValid() {
		return nil, fmt.Errorf("%w: initial state %v", dynamo.ErrInvalidState, x0)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	times := TimeGrid(p)
	dyn := physics.NewPitchLoop(p)

	var (
		states []dynamo.State
		stats  integrators.Stats
		err    error
	)
	if ss, ok := s.solver.(statsSolver); ok {
		states, stats, err = ss.SolveStats(dyn, x0, times)
	} else {
		states, err = s.solver.Solve(dyn, x0, times)
	}
	if err != nil {
		return nil, err
	}
	if len(states) != len(times) {
		return nil, fmt.Errorf("%w: solver returned %d states for %d times",
			dynamo.ErrIntegration, len(states), len(times))
	}

	n := len(times)
	result := &Result{
		Times:    times,
		Theta:    make([]float64, n),
		Q:        make([]float64, n),
		EInt:     make([]float64, n),
		ThetaCmd: make([]float64, n),
		Params:   p,
		Stats:    stats,
	}
	for i, x := range states {
		result.Theta[i] = x[physics.Theta]
		result.Q[i] = x[physics.Q]
		result.EInt[i] = x[physics.EInt]
		result.ThetaCmd[i] = physics.Command(times[i], p)
	}

	return result, nil
}

// TimeGrid returns floor(T/dt)+1 evenly spaced times from 0 to T inclusive.
func TimeGrid(p physics.Params) []float64 {
	ts := floats.Span(make([]float64, p.Samples()), 0, p.T)
	ts[len(ts)-1] = p.T
	return ts
}
