package metrics

import (
	"encoding/json"
	"math"

	"github.com/san-kum/pitchsim/internal/sim"
)

// Response holds the handling-quality figures of one run. Angles are in
// radians, times in seconds, Overshoot in percent.
type Response struct {
	ThetaSS       float64 `json:"theta_ss"`
	Overshoot     float64 `json:"overshoot"`
	SettlingTime  float64 `json:"settling_time"`
	RiseTime      float64 `json:"rise_time"`
	ThetaSSTheory float64 `json:"theta_ss_theory"`
	DCGainError   float64 `json:"dc_gain_error"`
	RMSError      float64 `json:"rms_error"`
}

// Analyze reduces r to its Response using the default settling band.
func Analyze(r *sim.Result) (Response, error) {
	return AnalyzeBand(r, DefaultBand)
}

func AnalyzeBand(r *sim.Result, band float64) (Response, error) {
	if err := r.Validate(); err != nil {
		return Response{}, err
	}

	ss := SteadyState(r.Theta)
	theory, dcErr := DCGain(ss, r.Params)

	return Response{
		ThetaSS:       ss,
		Overshoot:     Overshoot(r.Theta, ss),
		SettlingTime:  SettlingTime(r.Times, r.Theta, ss, band),
		RiseTime:      RiseTime(r.Times, r.Theta, ss),
		ThetaSSTheory: theory,
		DCGainError:   dcErr,
		RMSError:      RMSError(r.Times, r.Theta, r.ThetaCmd),
	}, nil
}

type responseJSON struct {
	ThetaSS       *float64 `json:"theta_ss"`
	Overshoot     *float64 `json:"overshoot"`
	SettlingTime  *float64 `json:"settling_time"`
	RiseTime      *float64 `json:"rise_time"`
	ThetaSSTheory *float64 `json:"theta_ss_theory"`
	DCGainError   *float64 `json:"dc_gain_error"`
	RMSError      *float64 `json:"rms_error"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// MarshalJSON writes non-finite figures, such as an unreached rise time,
// as null.
func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(responseJSON{
		ThetaSS:       finite(r.ThetaSS),
		Overshoot:     finite(r.Overshoot),
		SettlingTime:  finite(r.SettlingTime),
		RiseTime:      finite(r.RiseTime),
		ThetaSSTheory: finite(r.ThetaSSTheory),
		DCGainError:   finite(r.DCGainError),
		RMSError:      finite(r.RMSError),
	})
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var j responseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*r = Response{
		ThetaSS:       orNaN(j.ThetaSS),
		Overshoot:     orNaN(j.Overshoot),
		SettlingTime:  orNaN(j.SettlingTime),
		RiseTime:      orNaN(j.RiseTime),
		ThetaSSTheory: orNaN(j.ThetaSSTheory),
		DCGainError:   orNaN(j.DCGainError),
		RMSError:      orNaN(j.RMSError),
	}
	return nil
}
