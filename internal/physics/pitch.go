package physics

import "github.com/san-kum/pitchsim/internal/dynamo"

// State indices of the pitch loop.
const (
	Theta = iota // pitch angle, rad
	Q            // pitch rate, rad/s
	EInt         // integral of tracking error, rad·s

	StateDim
)

// Step is the Heaviside function u0·[t >= 0].
func Step(t, u0 float64) float64 {
	if t >= 0 {
		return u0
	}
	return 0
}

// Command is the commanded pitch angle at time t, in radians.
func Command(t float64, p Params) float64 {
	return Step(t, p.ThetaCmd())
}

// Derivative returns d(theta, q, e_int)/dt for the closed loop
//
//	Iyy·q' = -c·q - k·theta + K_act·(Kp·e + Ki·e_int),  e = theta_cmd - theta
//
// The third component is the tracking error itself, so e_int is its running
// integral. With Ki = 0 it is still integrated but has no effect.
func Derivative(t float64, x dynamo.State, p Params) dynamo.State {
	theta, q, eInt := x[Theta], x[Q], x[EInt]

	e := Command(t, p) - theta
	uEff := p.Kp*e + p.Ki*eInt
	qdot := (-p.C*q - p.K*theta + p.KAct*uEff) / p.Iyy

	return dynamo.State{q, qdot, e}
}

// PitchLoop adapts Derivative to dynamo.System for a fixed parameter set.
type PitchLoop struct {
	Params Params
}

func NewPitchLoop(p Params) *PitchLoop {
	return &PitchLoop{Params: p}
}

func (m *PitchLoop) StateDim() int { return StateDim }

func (m *PitchLoop) Derive(x dynamo.State, t float64) dynamo.State {
	return Derivative(t, x, m.Params)
}

// TheoreticalSteadyState is the closed-form final angle: the command itself
// with integral action, the proportional-loop DC gain times the command
// without it.
func TheoreticalSteadyState(p Params) float64 {
	cmd := p.ThetaCmd()
	if p.Ki != 0 {
		return cmd
	}
	return (p.KAct * p.Kp) / (p.K + p.KAct*p.Kp) * cmd
}
