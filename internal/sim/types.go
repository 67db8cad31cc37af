package sim

import (
	"github.com/san-kum/pitchsim/internal/dynamo"
	"github.com/san-kum/pitchsim/internal/integrators"
	"github.com/san-kum/pitchsim/internal/physics"
)

// Result is the time history of one run. It is built once by Simulator.Run
// and treated as immutable afterwards.
type Result struct {
	Times    []float64         `json:"times"`
	Theta    []float64         `json:"theta"`
	Q        []float64         `json:"q"`
	EInt     []float64         `json:"e_int"`
	ThetaCmd []float64         `json:"theta_cmd"`
	Params   physics.Params    `json:"params"`
	Stats    integrators.Stats `json:"stats"`
}

func (r *Result) Len() int { return len(r.Times) }

// State returns the full state vector at sample i.
func (r *Result) State(i int) dynamo.State {
	return dynamo.State{r.Theta[i], r.Q[i], r.EInt[i]}
}

// Validate checks that the sequences are non-empty and in lockstep.
func (r *Result) Validate() error {
	if r == nil {
		return dynamo.Invalid("nil result")
	}
	n := len(r.Times)
	if n == 0 {
		return dynamo.Invalid("empty time history")
	}
	for name, s := range map[string][]float64{
		"theta":     r.Theta,
		"q":         r.Q,
		"e_int":     r.EInt,
		"theta_cmd": r.ThetaCmd,
	} {
		if len(s) != n {
			return dynamo.Invalid("%s has %d samples, time has %d", name, len(s), n)
		}
	}
	return nil
}
