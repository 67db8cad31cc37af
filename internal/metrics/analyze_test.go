package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/pitchsim/internal/dynamo"
	"github.com/san-kum/pitchsim/internal/physics"
	"github.com/san-kum/pitchsim/internal/sim"
)

func run(t *testing.T, p physics.Params) Response {
	t.Helper()
	result, err := sim.New(nil).Run(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	resp, err := Analyze(result)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	return resp
}

func TestAnalyze_ProportionalMatchesTheory(t *testing.T) {
	p := physics.DefaultParams()
	p.Ki = 0
	p.T = 10

	resp := run(t, p)

	if rel := math.Abs(resp.ThetaSS-resp.ThetaSSTheory) / resp.ThetaSSTheory; rel > 0.02 {
		t.Errorf("steady state %g differs from theory %g by %.2f%%", resp.ThetaSS, resp.ThetaSSTheory, rel*100)
	}
	if resp.RiseTime <= 0 || math.IsNaN(resp.RiseTime) {
		t.Errorf("expected a positive rise time, got %g", resp.RiseTime)
	}
	if resp.SettlingTime > 1 {
		t.Errorf("P loop should settle within 1s, got %g", resp.SettlingTime)
	}
}

func TestAnalyze_IntegralTracksCommand(t *testing.T) {
	p := physics.DefaultParams()
	p.Kp = 2
	p.Ki = 6

	resp := run(t, p)

	if math.Abs(resp.DCGainError) > 0.02 {
		t.Errorf("PI loop should track the command, dc gain error %g", resp.DCGainError)
	}
	if resp.ThetaSSTheory != p.ThetaCmd() {
		t.Errorf("theory should equal the command, got %g", resp.ThetaSSTheory)
	}
	if resp.SettlingTime > 4 {
		t.Errorf("expected settling under 4s, got %g", resp.SettlingTime)
	}
}

func TestAnalyze_Nominal(t *testing.T) {
	if testing.Short() {
		t.Skip("30s horizon at 1ms output")
	}
	p := physics.DefaultParams()
	resp := run(t, p)

	if resp.Overshoot < 0 || resp.Overshoot > 30 {
		t.Errorf("overshoot %g outside [0, 30]", resp.Overshoot)
	}
	if math.Abs(resp.DCGainError) > 0.02 {
		t.Errorf("dc gain error %g too large", resp.DCGainError)
	}
	if resp.SettlingTime < 0 || resp.SettlingTime > p.T {
		t.Errorf("settling time %g outside [0, %g]", resp.SettlingTime, p.T)
	}
	if resp.RMSError <= 0 {
		t.Errorf("expected a positive tracking error, got %g", resp.RMSError)
	}
}

func TestAnalyze_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		result *sim.Result
	}{
		{"nil", nil},
		{"empty", &sim.Result{}},
		{"mismatched", &sim.Result{
			Times:    []float64{0, 1},
			Theta:    []float64{0},
			Q:        []float64{0, 0},
			EInt:     []float64{0, 0},
			ThetaCmd: []float64{1, 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Analyze(tt.result); !errors.Is(err, dynamo.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestAnalyze_ZeroResponse(t *testing.T) {
	p := physics.DefaultParams()
	p.ThetaCmdDeg = 0
	p.T = 1
	p.Dt = 0.01

	resp := run(t, p)

	if resp.Overshoot != 0 {
		t.Errorf("expected no overshoot at rest, got %g", resp.Overshoot)
	}
	if resp.SettlingTime != 0 {
		t.Errorf("expected settling at t=0, got %g", resp.SettlingTime)
	}
	if !math.IsNaN(resp.RiseTime) {
		t.Errorf("expected NaN rise time without a command, got %g", resp.RiseTime)
	}
}

func TestResponse_JSONWithNaN(t *testing.T) {
	in := Response{ThetaSS: 0.0174, Overshoot: 2.5, SettlingTime: 0.3, RiseTime: math.NaN()}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !math.IsNaN(out.RiseTime) {
		t.Errorf("expected NaN rise time back, got %g", out.RiseTime)
	}
	if out.ThetaSS != in.ThetaSS || out.Overshoot != in.Overshoot || out.SettlingTime != in.SettlingTime {
		t.Errorf("finite fields changed: %+v", out)
	}
}
