package experiment

import (
	"math"

	"github.com/san-kum/pitchsim/internal/dynamo"
	"github.com/san-kum/pitchsim/internal/metrics"
)

// Requirement holds the handling-quality limits a trial must meet.
type Requirement struct {
	OSMax        float64 `yaml:"os_max" json:"os_max"`                   // percent
	TsMax        float64 `yaml:"ts_max" json:"ts_max"`                   // seconds
	DCGainErrMax float64 `yaml:"dc_gain_err_max" json:"dc_gain_err_max"` // fraction
}

func DefaultRequirement() Requirement {
	return Requirement{OSMax: 30, TsMax: 4, DCGainErrMax: 0.10}
}

func (r Requirement) Validate() error {
	for _, v := range []float64{r.OSMax, r.TsMax, r.DCGainErrMax} {
		if math.IsNaN(v) || v < 0 {
			return dynamo.Invalid("requirement limits must be non-negative, got %+v", r)
		}
	}
	return nil
}

// Passes reports whether resp meets every limit. A NaN figure never passes.
func (r Requirement) Passes(resp metrics.Response) bool {
	return resp.Overshoot <= r.OSMax &&
		resp.SettlingTime <= r.TsMax &&
		math.Abs(resp.DCGainError) <= r.DCGainErrMax
}
