package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/pitchsim/internal/physics"
)

const (
	// DefaultBand is the settling band as a fraction of steady state.
	DefaultBand = 0.02

	// tailFraction of the samples precede the steady-state window.
	tailFraction = 0.9

	zeroGuard  = 1e-12
	flatSlope  = 1e-15
	riseLow    = 0.1
	riseHigh   = 0.9
	percentage = 100.0
)

// denom is |x|, or 1 when x is too close to zero to divide by.
func denom(x float64) float64 {
	a := math.Abs(x)
	if a < zeroGuard {
		return 1
	}
	return a
}

// SteadyState is the mean of the last 10% of samples, starting at index
// int(0.9*n).
func SteadyState(theta []float64) float64 {
	start := int(tailFraction * float64(len(theta)))
	return stat.Mean(theta[start:], nil)
}

// Overshoot is the peak excursion above ss in percent of |ss|. It is never
// negative.
func Overshoot(theta []float64, ss float64) float64 {
	if len(theta) == 0 {
		return 0
	}
	peak := floats.Max(theta)
	return math.Max(0, (peak-ss)/denom(ss)*percentage)
}

// SettlingTime is the earliest sample time after which theta never leaves
// the band ss ± band·|ss| again. A response that ends outside the band
// settles at the final sample.
func SettlingTime(t, theta []float64, ss, band float64) float64 {
	n := len(theta)
	if n == 0 {
		return math.NaN()
	}
	tol := band * denom(ss)

	for j := n - 1; j >= 0; j-- {
		if math.Abs(theta[j]-ss) > tol {
			if j == n-1 {
				return t[n-1]
			}
			return t[j+1]
		}
	}
	return t[0]
}

// RiseTime is the 10%→90% rise time of theta toward ss, NaN when either
// level is never crossed upward.
func RiseTime(t, theta []float64, ss float64) float64 {
	t10, ok := crossing(t, theta, riseLow*ss)
	if !ok {
		return math.NaN()
	}
	t90, ok := crossing(t, theta, riseHigh*ss)
	if !ok {
		return math.NaN()
	}
	return t90 - t10
}

// crossing finds the first i with theta[i] < level <= theta[i+1] and
// interpolates the crossing time inside that interval.
func crossing(t, theta []float64, level float64) (float64, bool) {
	for i := 0; i+1 < len(theta); i++ {
		if theta[i] < level && theta[i+1] >= level {
			d := theta[i+1] - theta[i]
			if math.Abs(d) < flatSlope {
				return t[i], true
			}
			return t[i] + (level-theta[i])*(t[i+1]-t[i])/d, true
		}
	}
	return 0, false
}

// DCGain returns the closed-form steady state for p and the signed relative
// error of ss against it.
func DCGain(ss float64, p physics.Params) (theory, relErr float64) {
	if p.Ki != 0 {
		theory = p.ThetaCmd()
	} else {
		theory = (p.KAct * p.Kp) / (p.K + p.KAct*p.Kp) * p.ThetaCmd()
	}

	d := theory
	if math.Abs(d) < zeroGuard {
		d = 1
	}
	return theory, (ss - theory) / d
}

// RMSError is the root-mean-square of theta-ref over the time span, using
// trapezoidal quadrature.
func RMSError(t, theta, ref []float64) float64 {
	n := len(theta)
	if n == 0 {
		return math.NaN()
	}
	sq := make([]float64, n)
	for i := range theta {
		d := theta[i] - ref[i]
		sq[i] = d * d
	}
	if n == 1 || t[n-1] == t[0] {
		return math.Sqrt(sq[0])
	}
	return math.Sqrt(integrate.Trapezoidal(t, sq) / (t[n-1] - t[0]))
}
