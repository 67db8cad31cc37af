package experiment_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/pitchsim/internal/dynamo"
	"github.com/san-kum/pitchsim/internal/experiment"
	"github.com/san-kum/pitchsim/internal/integrators"
	"github.com/san-kum/pitchsim/internal/metrics"
	"github.com/san-kum/pitchsim/internal/physics"
	"github.com/san-kum/pitchsim/internal/sim"
)

func shortNominal() physics.Params {
	p := physics.DefaultParams()
	p.Ki = 0
	p.T = 2
	p.Dt = 0.01
	return p
}

var _ = Describe("Perturb", func() {
	nominal := physics.DefaultParams()

	It("leaves the nominal set unchanged at zero perturbation", func() {
		p := experiment.Perturb(nominal, 0, experiment.TrialRNG(1, 0))
		Expect(p).To(Equal(nominal))
	})

	It("keeps every physical parameter inside its band", func() {
		const frac = 0.15
		for i := 0; i < 200; i++ {
			p := experiment.Perturb(nominal, frac, experiment.TrialRNG(42, i))
			Expect(p.Iyy).To(BeNumerically(">=", nominal.Iyy*(1-frac)))
			Expect(p.Iyy).To(BeNumerically("<=", nominal.Iyy*(1+frac)))
			Expect(p.C).To(BeNumerically(">=", nominal.C*(1-frac)))
			Expect(p.C).To(BeNumerically("<=", nominal.C*(1+frac)))
			Expect(p.K).To(BeNumerically(">=", nominal.K*(1-frac)))
			Expect(p.K).To(BeNumerically("<=", nominal.K*(1+frac)))
			Expect(p.KAct).To(BeNumerically(">=", nominal.KAct*(1-frac)))
			Expect(p.KAct).To(BeNumerically("<=", nominal.KAct*(1+frac)))
		}
	})

	It("holds gains, command and timing at nominal", func() {
		p := experiment.Perturb(nominal, 0.3, experiment.TrialRNG(7, 3))
		Expect(p.Kp).To(Equal(nominal.Kp))
		Expect(p.Ki).To(Equal(nominal.Ki))
		Expect(p.ThetaCmdDeg).To(Equal(nominal.ThetaCmdDeg))
		Expect(p.T).To(Equal(nominal.T))
		Expect(p.Dt).To(Equal(nominal.Dt))
	})

	It("draws the same set for the same seed and trial", func() {
		a := experiment.Perturb(nominal, 0.15, experiment.TrialRNG(9, 5))
		b := experiment.Perturb(nominal, 0.15, experiment.TrialRNG(9, 5))
		Expect(a).To(Equal(b))

		c := experiment.Perturb(nominal, 0.15, experiment.TrialRNG(9, 6))
		Expect(c).NotTo(Equal(a))
	})
})

var _ = Describe("Requirement", func() {
	req := experiment.DefaultRequirement()

	DescribeTable("classifies responses",
		func(resp metrics.Response, pass bool) {
			Expect(req.Passes(resp)).To(Equal(pass))
		},
		Entry("within all limits", metrics.Response{Overshoot: 10, SettlingTime: 2, DCGainError: 0.01}, true),
		Entry("on the limits", metrics.Response{Overshoot: 30, SettlingTime: 4, DCGainError: -0.10}, true),
		Entry("too much overshoot", metrics.Response{Overshoot: 31, SettlingTime: 2}, false),
		Entry("too slow", metrics.Response{Overshoot: 5, SettlingTime: 4.5}, false),
		Entry("steady-state error", metrics.Response{Overshoot: 5, SettlingTime: 2, DCGainError: -0.2}, false),
		Entry("NaN settling", metrics.Response{SettlingTime: math.NaN()}, false),
	)

	It("rejects negative limits", func() {
		bad := experiment.Requirement{OSMax: -1, TsMax: 4, DCGainErrMax: 0.1}
		Expect(bad.Validate()).To(MatchError(dynamo.ErrInvalidParameter))
		Expect(req.Validate()).To(Succeed())
	})
})

var _ = Describe("Campaign", func() {
	var (
		ctx     context.Context
		nominal physics.Params
		req     experiment.Requirement
	)

	BeforeEach(func() {
		ctx = context.Background()
		nominal = shortNominal()
		req = experiment.DefaultRequirement()
	})

	It("reproduces statistics bit for bit regardless of worker count", func() {
		serial, err := experiment.NewCampaign(nil, experiment.WithWorkers(1)).
			Run(ctx, nominal, 0.15, 12, req, 3)
		Expect(err).NotTo(HaveOccurred())

		parallel, err := experiment.NewCampaign(nil, experiment.WithWorkers(4)).
			Run(ctx, nominal, 0.15, 12, req, 3)
		Expect(err).NotTo(HaveOccurred())

		Expect(parallel).To(Equal(serial))
	})

	It("changes with the seed", func() {
		c := experiment.NewCampaign(nil)
		a, err := c.Run(ctx, nominal, 0.15, 6, req, 1)
		Expect(err).NotTo(HaveOccurred())
		b, err := c.Run(ctx, nominal, 0.15, 6, req, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Overshoot).NotTo(Equal(b.Overshoot))
	})

	It("keeps every trial and derives the moments from them", func() {
		stats, err := experiment.NewCampaign(nil).Run(ctx, nominal, 0.15, 10, req, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(stats.Trials).To(Equal(10))
		Expect(stats.Overshoot).To(HaveLen(10))
		Expect(stats.SettlingTime).To(HaveLen(10))
		Expect(stats.Passes).To(BeNumerically("<=", stats.Trials))
		Expect(stats.PassRate).To(Equal(float64(stats.Passes) / 10))
		Expect(stats.OvershootStd).To(BeNumerically(">=", 0))
		Expect(stats.SettlingStd).To(BeNumerically(">=", 0))

		sum := 0.0
		for _, v := range stats.Overshoot {
			Expect(v).To(BeNumerically(">=", 0))
			sum += v
		}
		Expect(stats.OvershootMean).To(BeNumerically("~", sum/10, 1e-12))
		for _, v := range stats.SettlingTime {
			Expect(v).To(BeNumerically(">=", 0))
			Expect(v).To(BeNumerically("<=", nominal.T))
		}
	})

	It("matches a single run when nothing is perturbed", func() {
		result, err := sim.New(nil).Run(ctx, nominal, nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := metrics.Analyze(result)
		Expect(err).NotTo(HaveOccurred())

		stats, err := experiment.NewCampaign(nil).Run(ctx, nominal, 0, 4, req, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(stats.OvershootMean).To(BeNumerically("~", resp.Overshoot, 1e-12))
		Expect(stats.OvershootStd).To(BeNumerically("~", 0, 1e-12))
		Expect(stats.SettlingMean).To(BeNumerically("~", resp.SettlingTime, 1e-12))
		Expect(stats.PassRate).To(Equal(1.0))
	})

	It("reports progress once per trial", func() {
		var calls, last int
		var totals []int
		c := experiment.NewCampaign(nil, experiment.WithWorkers(3), experiment.WithProgress(func(done, total int) {
			calls++
			last = done
			totals = append(totals, total)
		}))

		_, err := c.Run(ctx, nominal, 0.1, 7, req, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(7))
		Expect(last).To(Equal(7))
		Expect(totals).To(HaveEach(7))
	})

	DescribeTable("rejects invalid inputs",
		func(frac float64, trials int, mutate func(*physics.Params)) {
			p := shortNominal()
			mutate(&p)
			_, err := experiment.NewCampaign(nil).Run(ctx, p, frac, trials, req, 0)
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		},
		Entry("fraction of one", 1.0, 5, func(*physics.Params) {}),
		Entry("negative fraction", -0.1, 5, func(*physics.Params) {}),
		Entry("no trials", 0.1, 0, func(*physics.Params) {}),
		Entry("zero inertia", 0.1, 5, func(p *physics.Params) { p.Iyy = 0 }),
	)

	It("aborts on the first failed trial", func() {
		solver := integrators.NewDormandPrince()
		solver.MaxSteps = 3

		stats, err := experiment.NewCampaign(sim.New(solver)).Run(ctx, nominal, 0.1, 5, req, 0)
		Expect(err).To(MatchError(dynamo.ErrIntegration))
		Expect(err.Error()).To(ContainSubstring("trial"))
		Expect(stats).To(BeNil())
	})

	It("stops when the context is cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := experiment.NewCampaign(nil).Run(cancelled, nominal, 0.1, 5, req, 0)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("compares scenarios under the same seed", func() {
		improved := nominal
		improved.K = 2.8e6
		improved.C = 2.2e5

		out, err := experiment.NewCampaign(nil).Compare(ctx, []experiment.Scenario{
			{Name: "baseline", Params: nominal},
			{Name: "improved", Params: improved},
		}, 0.15, 4, req, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(out[0].Scenario.Name).To(Equal("baseline"))
		Expect(out[1].Scenario.Name).To(Equal("improved"))
		Expect(out[0].Stats.Overshoot).NotTo(Equal(out[1].Stats.Overshoot))
	})
})
