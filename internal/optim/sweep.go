package optim

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pitchsim/internal/dynamo"
	"github.com/san-kum/pitchsim/internal/metrics"
	"github.com/san-kum/pitchsim/internal/physics"
	"github.com/san-kum/pitchsim/internal/sim"
)

type Option func(*Sweep)

// WithWorkers bounds the number of cells evaluated at once. Zero or less
// means runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(s *Sweep) { s.workers = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Sweep) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMemo reuses responses of parameter sets already stored in m and
// records new ones there.
func WithMemo(m *Memo) Option {
	return func(s *Sweep) { s.memo = m }
}

// Sweep evaluates the response over the Cartesian product of stiffness and
// damping values.
type Sweep struct {
	sim     *sim.Simulator
	workers int
	logger  *zap.Logger
	memo    *Memo
}

func NewSweep(s *sim.Simulator, opts ...Option) *Sweep {
	if s == nil {
		s = sim.New(nil)
	}
	sw := &Sweep{sim: s, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(sw)
	}
	return sw
}

// Run overrides base.K and base.C for every (c, k) pair and fills the grid
// row by c, column by k. The first failing cell aborts the sweep.
func (s *Sweep) Run(ctx context.Context, kValues, cValues []float64, base physics.Params) (*Grid, error) {
	if len(kValues) == 0 || len(cValues) == 0 {
		return nil, dynamo.Invalid("sweep needs at least one k and one c value, got %d and %d",
			len(kValues), len(cValues))
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	for _, k := range kValues {
		if math.IsNaN(k) || math.IsInf(k, 0) || k <= 0 {
			return nil, dynamo.Invalid("k values must be positive and finite, got %g", k)
		}
	}
	for _, c := range cValues {
		if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
			return nil, dynamo.Invalid("c values must be non-negative and finite, got %g", c)
		}
	}

	rows, cols := len(cValues), len(kValues)
	s.logger.Info("sweep started", zap.Int("c_points", rows), zap.Int("k_points", cols))

	cells := make([]metrics.Response, rows*cols)
	err := dynamo.ForEach(ctx, len(cells), s.workers, func(ctx context.Context, idx int) error {
		ci, ki := idx/cols, idx%cols
		p := base
		p.C = cValues[ci]
		p.K = kValues[ki]

		resp, err := s.evaluate(ctx, p)
		if err != nil {
			return fmt.Errorf("optim: cell c=%g k=%g: %w", p.C, p.K, err)
		}
		cells[idx] = resp

		s.logger.Debug("cell finished",
			zap.Float64("c", p.C),
			zap.Float64("k", p.K),
			zap.Float64("overshoot", resp.Overshoot),
		)
		return nil
	})
	if err != nil {
		s.logger.Error("sweep aborted", zap.Error(err))
		return nil, err
	}

	g := &Grid{
		K:            append([]float64(nil), kValues...),
		C:            append([]float64(nil), cValues...),
		Overshoot:    mat.NewDense(rows, cols, nil),
		SettlingTime: mat.NewDense(rows, cols, nil),
	}
	for idx, resp := range cells {
		g.Overshoot.Set(idx/cols, idx%cols, resp.Overshoot)
		g.SettlingTime.Set(idx/cols, idx%cols, resp.SettlingTime)
	}

	s.logger.Info("sweep finished")
	return g, nil
}

func (s *Sweep) evaluate(ctx context.Context, p physics.Params) (metrics.Response, error) {
	if s.memo != nil {
		if resp, ok := s.memo.Get(s.sim, p); ok {
			return resp, nil
		}
	}

	result, err := s.sim.Run(ctx, p, nil)
	if err != nil {
		return metrics.Response{}, err
	}
	resp, err := metrics.Analyze(result)
	if err != nil {
		return metrics.Response{}, err
	}

	if s.memo != nil {
		s.memo.Put(s.sim, p, resp)
	}
	return resp, nil
}
