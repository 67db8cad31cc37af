package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/pitchsim/internal/dynamo"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0

	// continuous extension (Hairer, Norsett & Wanner)
	d1 = -12715105075.0 / 11282082432.0
	d3 = 87487479700.0 / 32700410799.0
	d4 = -10690763975.0 / 1880347072.0
	d5 = 701980252875.0 / 199316789632.0
	d6 = -1453857185.0 / 822651844.0
	d7 = 69997945.0 / 29380423.0
)

const (
	DefaultRelTol   = 1e-7
	DefaultAbsTol   = 1e-9
	DefaultMaxSteps = 1_000_000
)

// Stats counts the work done by one Solve call.
type Stats struct {
	Accepted    int `json:"accepted"`
	Rejected    int `json:"rejected"`
	Evaluations int `json:"evaluations"`
}

// DormandPrince is an adaptive explicit Runge-Kutta 5(4) solver with local
// error control and dense output. The internal step is chosen by the error
// controller alone; output values are interpolated onto the requested grid.
// A DormandPrince holds no per-call state and may be shared between
// goroutines. Zero fields take the defaults, so a literal such as
// &DormandPrince{MaxStep: 0.01} is usable.
type DormandPrince struct {
	RelTol   float64
	AbsTol   float64
	MaxSteps int
	MaxStep  float64 // 0 means unbounded

	safety   float64
	minScale float64
	maxScale float64
}

func NewDormandPrince() *DormandPrince {
	return &DormandPrince{
		RelTol:   DefaultRelTol,
		AbsTol:   DefaultAbsTol,
		MaxSteps: DefaultMaxSteps,
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

// withDefaults returns a copy with every unset field filled in.
func (r *DormandPrince) withDefaults() *DormandPrince {
	c := *r
	d := NewDormandPrince()
	if c.RelTol <= 0 {
		c.RelTol = d.RelTol
	}
	if c.AbsTol <= 0 {
		c.AbsTol = d.AbsTol
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.safety <= 0 {
		c.safety = d.safety
	}
	if c.minScale <= 0 {
		c.minScale = d.minScale
	}
	if c.maxScale <= 0 {
		c.maxScale = d.maxScale
	}
	return &c
}

func (r *DormandPrince) Solve(dyn dynamo.System, x0 dynamo.State, ts []float64) ([]dynamo.State, error) {
	out, _, err := r.SolveStats(dyn, x0, ts)
	return out, err
}

// SolveStats is Solve that also reports step statistics.
func (r *DormandPrince) SolveStats(dyn dynamo.System, x0 dynamo.State, ts []float64) ([]dynamo.State, Stats, error) {
	var st Stats
	r = r.withDefaults()

	if err := checkInputs(dyn, x0, ts); err != nil {
		return nil, st, err
	}

	out := make([]dynamo.State, len(ts))
	out[0] = x0.Clone()
	if len(ts) == 1 {
		return out, st, nil
	}

	t, tEnd := ts[0], ts[len(ts)-1]
	x := x0.Clone()
	f := r.derive(dyn, x, t, &st)
	h := r.initialStep(dyn, x, f, t, tEnd-t, &st)

	next := 1
	rejected := false

	for next < len(ts) {
		if st.Accepted+st.Rejected >= r.MaxSteps {
			return nil, st, r.failure(st, t, x, dynamo.ErrStepBudget)
		}
		if h < minStep(t) {
			return nil, st, r.failure(st, t, x, dynamo.ErrStepTooSmall)
		}

		last := false
		if t+h >= tEnd {
			h = tEnd - t
			last = true
		}

		s := r.attempt(dyn, x, f, t, h, &st)

		if !(s.errNorm <= 1) {
			st.Rejected++
			scale := r.minScale
			if !math.IsInf(s.errNorm, 0) && !math.IsNaN(s.errNorm) {
				scale = math.Max(r.minScale, r.safety*math.Pow(s.errNorm, -0.2))
			}
			h *= scale
			rejected = true
			continue
		}
		st.Accepted++

		tNew := t + h
		if last {
			tNew = tEnd
		}
		for next < len(ts) && ts[next] <= tNew {
			if ts[next] == tNew {
				out[next] = s.xNew.Clone()
			} else {
				out[next] = s.interpolate(ts[next])
			}
			next++
		}

		scale := r.maxScale
		if s.errNorm > 0 {
			scale = math.Min(r.maxScale, r.safety*math.Pow(s.errNorm, -0.2))
		}
		if rejected {
			scale = math.Min(1, scale)
		}
		h *= scale
		if r.MaxStep > 0 && h > r.MaxStep {
			h = r.MaxStep
		}

		t, x, f = tNew, s.xNew, s.k7
		rejected = false
	}

	return out, st, nil
}

func checkInputs(dyn dynamo.System, x0 dynamo.State, ts []float64) error {
	if len(ts) == 0 {
		return dynamo.Invalid("empty output grid")
	}
	if len(x0) != dyn.StateDim() {
		return fmt.Errorf("%w: state has %d components, system expects %d",
			dynamo.ErrDimensionMismatch, len(x0), dyn.StateDim())
	}
	if !x0.IsValid() {
		return fmt.Errorf("%w: initial state %v", dynamo.ErrInvalidState, x0)
	}
	for i := 1; i < len(ts); i++ {
		if !(ts[i] > ts[i-1]) {
			return dynamo.Invalid("output times must be strictly increasing (index %d)", i)
		}
	}
	return nil
}

func (r *DormandPrince) failure(st Stats, t float64, x dynamo.State, cause error) error {
	return &dynamo.SimulationError{
		Step:    st.Accepted,
		Time:    t,
		State:   x.Clone(),
		Wrapped: fmt.Errorf("%w: %w", dynamo.ErrIntegration, cause),
	}
}

// minStep is ten ulps of t; a step below that no longer advances time.
func minStep(t float64) float64 {
	at := math.Abs(t)
	return 10 * (math.Nextafter(at, math.Inf(1)) - at)
}

func (r *DormandPrince) derive(dyn dynamo.System, x dynamo.State, t float64, st *Stats) dynamo.State {
	st.Evaluations++
	return dyn.Derive(x, t)
}

// rmsNorm is the root-mean-square of v[i]/scale[i].
func rmsNorm(v, scale []float64) float64 {
	sum := 0.0
	for i := range v {
		q := v[i] / scale[i]
		sum += q * q
	}
	return math.Sqrt(sum / float64(len(v)))
}

func (r *DormandPrince) initialStep(dyn dynamo.System, x, f dynamo.State, t, span float64, st *Stats) float64 {
	n := len(x)
	scale := make([]float64, n)
	for i := range x {
		scale[i] = r.AbsTol + math.Abs(x[i])*r.RelTol
	}

	dx0 := rmsNorm(x, scale)
	df0 := rmsNorm(f, scale)

	h0 := 1e-6
	if dx0 >= 1e-5 && df0 >= 1e-5 {
		h0 = 0.01 * dx0 / df0
	}
	h0 = math.Min(h0, span)

	x1 := make(dynamo.State, n)
	for i := range x {
		x1[i] = x[i] + h0*f[i]
	}
	f1 := r.derive(dyn, x1, t+h0, st)

	diff := make([]float64, n)
	for i := range f {
		diff[i] = f1[i] - f[i]
	}
	df1 := rmsNorm(diff, scale) / h0

	var h1 float64
	if df0 <= 1e-15 && df1 <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/math.Max(df0, df1), 0.2)
	}

	return math.Min(math.Min(100*h0, h1), span)
}

// stage holds one attempted step together with what the dense output needs.
type stage struct {
	t0, h   float64
	x, xNew dynamo.State
	k1, k3  dynamo.State
	k4, k5  dynamo.State
	k6, k7  dynamo.State
	errNorm float64
}

func (r *DormandPrince) attempt(dyn dynamo.System, x, k1 dynamo.State, t, h float64, st *Stats) *stage {
	n := len(x)

	x2 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x2[i] = x[i] + h*b21*k1[i]
	}
	k2 := r.derive(dyn, x2, t+a2*h, st)

	x3 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x3[i] = x[i] + h*(b31*k1[i]+b32*k2[i])
	}
	k3 := r.derive(dyn, x3, t+a3*h, st)

	x4 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x4[i] = x[i] + h*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	k4 := r.derive(dyn, x4, t+a4*h, st)

	x5 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x5[i] = x[i] + h*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	k5 := r.derive(dyn, x5, t+a5*h, st)

	x6 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x6[i] = x[i] + h*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	k6 := r.derive(dyn, x6, t+h, st)

	xNew := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + h*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
	}

	s := &stage{t0: t, h: h, x: x, xNew: xNew, k1: k1, k3: k3, k4: k4, k5: k5, k6: k6}

	if !xNew.IsValid() {
		s.errNorm = math.Inf(1)
		return s
	}

	s.k7 = r.derive(dyn, xNew, t+h, st)

	sum := 0.0
	for i := 0; i < n; i++ {
		errEst := h * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*s.k7[i])
		scale := r.AbsTol + r.RelTol*math.Max(math.Abs(x[i]), math.Abs(xNew[i]))
		q := errEst / scale
		sum += q * q
	}
	s.errNorm = math.Sqrt(sum / float64(n))

	return s
}

// interpolate evaluates the 4th-order continuous extension at tq in [t0, t0+h].
func (s *stage) interpolate(tq float64) dynamo.State {
	theta := (tq - s.t0) / s.h
	theta1 := 1 - theta
	h := s.h

	y := make(dynamo.State, len(s.x))
	for i := range s.x {
		r1 := s.x[i]
		r2 := s.xNew[i] - s.x[i]
		r3 := h*s.k1[i] - r2
		r4 := r2 - h*s.k7[i] - r3
		r5 := h * (d1*s.k1[i] + d3*s.k3[i] + d4*s.k4[i] + d5*s.k5[i] + d6*s.k6[i] + d7*s.k7[i])
		y[i] = r1 + theta*(r2+theta1*(r3+theta*(r4+theta1*r5)))
	}
	return y
}
