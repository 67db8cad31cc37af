package physics

import (
	"math"

	"github.com/san-kum/pitchsim/internal/dynamo"
)

// Default physical and control constants of the pitch loop.
const (
	DefaultIyy         = 8000.0 // kg·m²
	DefaultDamping     = 2.4e5  // N·m·s/rad
	DefaultStiffness   = 2.5e6  // N·m/rad
	DefaultKAct        = 5.0e5  // N·m/rad
	DefaultKp          = 1.3
	DefaultKi          = 1.0 // 1/s
	DefaultThetaCmdDeg = 1.0
	DefaultT           = 30.0
	DefaultDt          = 0.001
)

// MaxSamples bounds the length of the output grid.
const MaxSamples = 100_000_000

// Params holds the plant, controller and run constants. It is a comparable
// value and may be used as a map key.
type Params struct {
	Iyy         float64 `yaml:"iyy" json:"iyy"`
	C           float64 `yaml:"c" json:"c"`
	K           float64 `yaml:"k" json:"k"`
	KAct        float64 `yaml:"k_act" json:"k_act"`
	Kp          float64 `yaml:"kp" json:"kp"`
	Ki          float64 `yaml:"ki" json:"ki"`
	ThetaCmdDeg float64 `yaml:"theta_cmd_deg" json:"theta_cmd_deg"`
	T           float64 `yaml:"t" json:"t"`
	Dt          float64 `yaml:"dt" json:"dt"`
}

func DefaultParams() Params {
	return Params{
		Iyy:         DefaultIyy,
		C:           DefaultDamping,
		K:           DefaultStiffness,
		KAct:        DefaultKAct,
		Kp:          DefaultKp,
		Ki:          DefaultKi,
		ThetaCmdDeg: DefaultThetaCmdDeg,
		T:           DefaultT,
		Dt:          DefaultDt,
	}
}

// Validate rejects parameter sets that cannot be integrated.
func (p Params) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"iyy", p.Iyy}, {"c", p.C}, {"k", p.K}, {"k_act", p.KAct},
		{"kp", p.Kp}, {"ki", p.Ki}, {"theta_cmd_deg", p.ThetaCmdDeg},
		{"t", p.T}, {"dt", p.Dt},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return dynamo.Invalid("%s must be finite, got %g", f.name, f.v)
		}
	}

	if p.Iyy <= 0 {
		return dynamo.Invalid("iyy must be positive, got %g", p.Iyy)
	}
	if p.K <= 0 {
		return dynamo.Invalid("k must be positive, got %g", p.K)
	}
	if p.KAct <= 0 {
		return dynamo.Invalid("k_act must be positive, got %g", p.KAct)
	}
	if p.C < 0 {
		return dynamo.Invalid("c must be non-negative, got %g", p.C)
	}
	if p.T <= 0 {
		return dynamo.Invalid("t must be positive, got %g", p.T)
	}
	if p.Dt <= 0 {
		return dynamo.Invalid("dt must be positive, got %g", p.Dt)
	}
	if n := p.T / p.Dt; n >= MaxSamples {
		return dynamo.Invalid("t/dt yields %.4g samples, limit %d", math.Floor(n)+1, MaxSamples)
	}
	if p.Samples() < 2 {
		return dynamo.Invalid("dt (%g) must not exceed t (%g)", p.Dt, p.T)
	}
	return nil
}

// Samples is the length of the output grid, floor(T/dt)+1.
func (p Params) Samples() int {
	return int(p.T/p.Dt) + 1
}

// ThetaCmd is the step command magnitude in radians.
func (p Params) ThetaCmd() float64 {
	return DegToRad(p.ThetaCmdDeg)
}

// ControlMode names the loop: "PI" with integral action, "P" without.
func (p Params) ControlMode() string {
	if p.Ki != 0 {
		return "PI"
	}
	return "P"
}

func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }
func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }
