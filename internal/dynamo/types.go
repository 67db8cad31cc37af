package dynamo

import "math"

// State is a system state vector. For the pitch loop it is (theta, q, e_int).
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// System is an autonomous-in-form ODE dX/dt = f(X, t). Any control law is
// part of the system itself.
type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

// SystemFunc adapts a plain derivative function to System.
type SystemFunc struct {
	Dim int
	Fn  func(x State, t float64) State
}

func (f SystemFunc) Derive(x State, t float64) State { return f.Fn(x, t) }
func (f SystemFunc) StateDim() int                   { return f.Dim }

// Solver integrates a System over the output times ts, returning one state
// per entry of ts. ts[0] is the initial time and must be followed by
// strictly increasing values.
type Solver interface {
	Solve(dyn System, x0 State, ts []float64) ([]State, error)
}
