package optim_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pitchsim/internal/dynamo"
	"github.com/san-kum/pitchsim/internal/integrators"
	"github.com/san-kum/pitchsim/internal/metrics"
	"github.com/san-kum/pitchsim/internal/optim"
	"github.com/san-kum/pitchsim/internal/physics"
	"github.com/san-kum/pitchsim/internal/sim"
)

func shortBase() physics.Params {
	p := physics.DefaultParams()
	p.Ki = 0
	p.T = 2
	p.Dt = 0.01
	return p
}

var _ = Describe("Linspace", func() {
	It("includes both ends", func() {
		v, err := optim.Linspace(2.0e6, 3.0e6, 11)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(HaveLen(11))
		Expect(v[0]).To(Equal(2.0e6))
		Expect(v[10]).To(Equal(3.0e6))
		Expect(v[5]).To(BeNumerically("~", 2.5e6, 1e-6))
	})

	It("returns the lower bound for a single point", func() {
		v, err := optim.Linspace(1, 5, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]float64{1}))
	})

	It("rejects an empty range", func() {
		_, err := optim.Linspace(1, 5, 0)
		Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
	})
})

var _ = Describe("Sweep", func() {
	var (
		ctx  context.Context
		base physics.Params
	)

	BeforeEach(func() {
		ctx = context.Background()
		base = shortBase()
	})

	It("lays the grid out with c on rows and k on columns", func() {
		ks := []float64{2.0e6, 2.5e6, 3.0e6}
		cs := []float64{1.8e5, 3.0e5}

		g, err := optim.NewSweep(nil).Run(ctx, ks, cs, base)
		Expect(err).NotTo(HaveOccurred())

		r, c := g.Overshoot.Dims()
		Expect(r).To(Equal(2))
		Expect(c).To(Equal(3))
		r, c = g.SettlingTime.Dims()
		Expect(r).To(Equal(2))
		Expect(c).To(Equal(3))

		p := base
		p.C, p.K = cs[1], ks[0]
		result, err := sim.New(nil).Run(ctx, p, nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := metrics.Analyze(result)
		Expect(err).NotTo(HaveOccurred())

		Expect(g.Overshoot.At(1, 0)).To(Equal(resp.Overshoot))
		Expect(g.SettlingTime.At(1, 0)).To(Equal(resp.SettlingTime))
		Expect(g.At(1, 0).C).To(Equal(cs[1]))
		Expect(g.At(1, 0).K).To(Equal(ks[0]))
	})

	It("does not depend on the worker count", func() {
		ks := []float64{2.2e6, 2.8e6}
		cs := []float64{2.0e5, 2.4e5, 2.8e5}

		a, err := optim.NewSweep(nil, optim.WithWorkers(1)).Run(ctx, ks, cs, base)
		Expect(err).NotTo(HaveOccurred())
		b, err := optim.NewSweep(nil, optim.WithWorkers(6)).Run(ctx, ks, cs, base)
		Expect(err).NotTo(HaveOccurred())

		Expect(mat.Equal(a.Overshoot, b.Overshoot)).To(BeTrue())
		Expect(mat.Equal(a.SettlingTime, b.SettlingTime)).To(BeTrue())
	})

	It("copies the value lists", func() {
		ks := []float64{2.5e6}
		cs := []float64{2.4e5}
		g, err := optim.NewSweep(nil).Run(ctx, ks, cs, base)
		Expect(err).NotTo(HaveOccurred())

		ks[0] = 0
		Expect(g.K[0]).To(Equal(2.5e6))
	})

	It("reuses memoized responses for repeated parameter sets", func() {
		memo := optim.NewMemo()
		sw := optim.NewSweep(nil, optim.WithWorkers(1), optim.WithMemo(memo))

		g, err := sw.Run(ctx, []float64{2.5e6, 2.5e6}, []float64{2.4e5}, base)
		Expect(err).NotTo(HaveOccurred())
		Expect(memo.Len()).To(Equal(1))
		hits, misses := memo.Stats()
		Expect(hits).To(Equal(1))
		Expect(misses).To(Equal(1))
		Expect(g.Overshoot.At(0, 0)).To(Equal(g.Overshoot.At(0, 1)))

		_, err = sw.Run(ctx, []float64{2.5e6}, []float64{2.4e5}, base)
		Expect(err).NotTo(HaveOccurred())
		hits, _ = memo.Stats()
		Expect(hits).To(Equal(2))
	})

	It("keeps memoized responses separate per simulator", func() {
		memo := optim.NewMemo()
		ks, cs := []float64{2.5e6}, []float64{2.4e5}

		_, err := optim.NewSweep(nil, optim.WithWorkers(1), optim.WithMemo(memo)).Run(ctx, ks, cs, base)
		Expect(err).NotTo(HaveOccurred())

		starved := integrators.NewDormandPrince()
		starved.MaxSteps = 3
		sw := optim.NewSweep(sim.New(starved), optim.WithWorkers(1), optim.WithMemo(memo))
		_, err = sw.Run(ctx, ks, cs, base)
		Expect(err).To(MatchError(dynamo.ErrIntegration))
		Expect(memo.Len()).To(Equal(1))
	})

	DescribeTable("rejects invalid grids",
		func(ks, cs []float64) {
			_, err := optim.NewSweep(nil).Run(ctx, ks, cs, base)
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		},
		Entry("no k values", nil, []float64{2e5}),
		Entry("no c values", []float64{2e6}, []float64{}),
		Entry("zero stiffness", []float64{0, 2e6}, []float64{2e5}),
		Entry("negative damping", []float64{2e6}, []float64{-1}),
	)

	It("aborts on the first failed cell", func() {
		solver := integrators.NewDormandPrince()
		solver.MaxSteps = 3

		g, err := optim.NewSweep(sim.New(solver)).Run(ctx, []float64{2e6}, []float64{2e5, 3e5}, base)
		Expect(err).To(MatchError(dynamo.ErrIntegration))
		Expect(g).To(BeNil())
	})

	It("produces an 11x11 overshoot map that falls with damping", func() {
		if testing.Short() {
			Skip("121 runs over a 30s horizon")
		}

		ks, err := optim.Linspace(2.0e6, 3.0e6, 11)
		Expect(err).NotTo(HaveOccurred())
		cs, err := optim.Linspace(1.8e5, 3.0e5, 11)
		Expect(err).NotTo(HaveOccurred())

		g, err := optim.NewSweep(nil).Run(ctx, ks, cs, physics.DefaultParams())
		Expect(err).NotTo(HaveOccurred())

		r, c := g.Overshoot.Dims()
		Expect(r).To(Equal(11))
		Expect(c).To(Equal(11))

		for j := 0; j < c; j++ {
			for i := 1; i < r; i++ {
				Expect(g.Overshoot.At(i, j)).To(BeNumerically("<", g.Overshoot.At(i-1, j)),
					"k=%g: overshoot should fall from c=%g to c=%g", ks[j], cs[i-1], cs[i])
			}
		}
	})
})

var _ = Describe("Grid.Best", func() {
	grid := &optim.Grid{
		K: []float64{1, 2, 3},
		C: []float64{10, 20},
		Overshoot: mat.NewDense(2, 3, []float64{
			40, 5, 12,
			8, 31, 2,
		}),
		SettlingTime: mat.NewDense(2, 3, []float64{
			0.5, 3.0, 1.0,
			2.0, 0.1, 1.0,
		}),
	}

	It("picks the fastest cell within the overshoot limit", func() {
		best, ok := grid.Best(30)
		Expect(ok).To(BeTrue())
		Expect(best.Row).To(Equal(0))
		Expect(best.Col).To(Equal(2))
		Expect(best.K).To(Equal(3.0))
		Expect(best.C).To(Equal(10.0))
	})

	It("reports when nothing qualifies", func() {
		_, ok := grid.Best(1)
		Expect(ok).To(BeFalse())
	})
})
