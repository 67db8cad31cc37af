package experiment

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/pitchsim/internal/dynamo"
	"github.com/san-kum/pitchsim/internal/metrics"
	"github.com/san-kum/pitchsim/internal/physics"
	"github.com/san-kum/pitchsim/internal/sim"
)

// Statistics aggregates a campaign in trial order. Std fields are population
// standard deviations.
type Statistics struct {
	Trials        int       `json:"trials"`
	Passes        int       `json:"passes"`
	PassRate      float64   `json:"pass_rate"`
	OvershootMean float64   `json:"overshoot_mean"`
	OvershootStd  float64   `json:"overshoot_std"`
	SettlingMean  float64   `json:"settling_mean"`
	SettlingStd   float64   `json:"settling_std"`
	Overshoot     []float64 `json:"overshoot"`
	SettlingTime  []float64 `json:"settling_time"`
}

// ProgressFunc is told how many trials have finished. Calls are serialized.
type ProgressFunc func(done, total int)

type Option func(*Campaign)

// WithWorkers bounds the number of trials run at once. Zero or less means
// runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(c *Campaign) { c.workers = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Campaign) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(c *Campaign) { c.progress = fn }
}

// Campaign is a seeded Monte Carlo robustness study around a nominal
// parameter set.
type Campaign struct {
	sim      *sim.Simulator
	workers  int
	logger   *zap.Logger
	progress ProgressFunc

	mu sync.Mutex
}

func NewCampaign(s *sim.Simulator, opts ...Option) *Campaign {
	if s == nil {
		s = sim.New(nil)
	}
	c := &Campaign{sim: s, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Perturb scales Iyy, c, k and K_act of nominal, in that order, by
// independent draws from U[1-frac, 1+frac). Gains, command and timing are
// left at nominal.
func Perturb(nominal physics.Params, frac float64, rng *rand.Rand) physics.Params {
	scale := func(v float64) float64 {
		return v * (1 - frac + 2*frac*rng.Float64())
	}
	p := nominal
	p.Iyy = scale(p.Iyy)
	p.C = scale(p.C)
	p.K = scale(p.K)
	p.KAct = scale(p.KAct)
	return p
}

// TrialRNG is the random stream of trial i. Streams depend only on seed and
// i, never on scheduling.
func TrialRNG(seed int64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(i)))
}

// Run executes trials perturbed copies of nominal and aggregates their
// responses. The first failing trial aborts the campaign and its error names
// the trial; no partial statistics are returned.
func (c *Campaign) Run(ctx context.Context, nominal physics.Params, frac float64, trials int, req Requirement, seed int64) (*Statistics, error) {
	if err := nominal.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(frac) || frac < 0 || frac >= 1 {
		return nil, dynamo.Invalid("perturbation fraction must be in [0, 1), got %g", frac)
	}
	if trials <= 0 {
		return nil, dynamo.Invalid("trial count must be positive, got %d", trials)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.logger.Info("campaign started",
		zap.Int("trials", trials),
		zap.Float64("perturbation", frac),
		zap.Int64("seed", seed),
		zap.String("mode", nominal.ControlMode()),
	)

	responses := make([]metrics.Response, trials)
	done := 0

	err := dynamo.ForEach(ctx, trials, c.workers, func(ctx context.Context, i int) error {
		p := Perturb(nominal, frac, TrialRNG(seed, i))

		result, err := c.sim.Run(ctx, p, nil)
		if err != nil {
			return fmt.Errorf("experiment: trial %d: %w", i, err)
		}
		resp, err := metrics.Analyze(result)
		if err != nil {
			return fmt.Errorf("experiment: trial %d: %w", i, err)
		}
		responses[i] = resp

		c.logger.Debug("trial finished",
			zap.Int("trial", i),
			zap.Float64("overshoot", resp.Overshoot),
			zap.Float64("settling_time", resp.SettlingTime),
		)
		c.report(&done, trials)
		return nil
	})
	if err != nil {
		c.logger.Error("campaign aborted", zap.Error(err))
		return nil, err
	}

	stats := aggregate(responses, req)
	c.logger.Info("campaign finished",
		zap.Int("passes", stats.Passes),
		zap.Float64("pass_rate", stats.PassRate),
	)
	return stats, nil
}

func (c *Campaign) report(done *int, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*done++
	if c.progress != nil {
		c.progress(*done, total)
	}
}

func aggregate(responses []metrics.Response, req Requirement) *Statistics {
	n := len(responses)
	s := &Statistics{
		Trials:       n,
		Overshoot:    make([]float64, n),
		SettlingTime: make([]float64, n),
	}
	for i, resp := range responses {
		if req.Passes(resp) {
			s.Passes++
		}
		s.Overshoot[i] = resp.Overshoot
		s.SettlingTime[i] = resp.SettlingTime
	}
	s.PassRate = float64(s.Passes) / float64(n)
	s.OvershootMean, s.OvershootStd = stat.PopMeanStdDev(s.Overshoot, nil)
	s.SettlingMean, s.SettlingStd = stat.PopMeanStdDev(s.SettlingTime, nil)
	return s
}
