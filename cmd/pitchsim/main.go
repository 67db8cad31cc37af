package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/pitchsim/internal/config"
	"github.com/san-kum/pitchsim/internal/experiment"
	"github.com/san-kum/pitchsim/internal/metrics"
	"github.com/san-kum/pitchsim/internal/optim"
	"github.com/san-kum/pitchsim/internal/physics"
	"github.com/san-kum/pitchsim/internal/sim"
	"github.com/san-kum/pitchsim/internal/storage"
	"github.com/san-kum/pitchsim/internal/tui"
	"github.com/san-kum/pitchsim/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	verbose    bool
	workers    int
	save       bool
	name       string

	// plant and controller overrides
	iyy       float64
	damping   float64
	stiffness float64
	kAct      float64
	kp        float64
	ki        float64
	cmdDeg    float64
	horizon   float64
	dt        float64

	plot bool

	trials       int
	perturbation float64
	seed         int64
	compare      string
	progress     bool

	kMin, kMax, cMin, cMax float64
	kPoints, cPoints       int
	osMax                  float64

	logger = zap.NewNop()
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pitchsim",
		Short:         "closed-loop pitch response analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(verbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".pitchsim", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "simulate one step response",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	addParamFlags(runCmd)
	runCmd.Flags().BoolVar(&plot, "plot", false, "draw theta against time")

	campaignCmd := &cobra.Command{
		Use:   "campaign",
		Short: "monte carlo robustness campaign",
		Args:  cobra.NoArgs,
		RunE:  runCampaign,
	}
	addConfigFlags(campaignCmd)
	addParamFlags(campaignCmd)
	campaignCmd.Flags().IntVar(&trials, "trials", config.DefaultTrials, "number of trials")
	campaignCmd.Flags().Float64Var(&perturbation, "frac", config.DefaultPerturbation, "perturbation fraction")
	campaignCmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	campaignCmd.Flags().IntVar(&workers, "workers", 0, "parallel trials (0 = all cpus)")
	campaignCmd.Flags().StringVar(&compare, "compare", "", "comma separated presets to compare, e.g. baseline,improved")
	campaignCmd.Flags().BoolVar(&progress, "progress", false, "show a progress view")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "stiffness and damping grid sweep",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	addParamFlags(sweepCmd)
	sweepCmd.Flags().Float64Var(&kMin, "k-min", config.DefaultKMin, "lowest stiffness")
	sweepCmd.Flags().Float64Var(&kMax, "k-max", config.DefaultKMax, "highest stiffness")
	sweepCmd.Flags().IntVar(&kPoints, "k-points", config.DefaultSweepPoints, "stiffness points")
	sweepCmd.Flags().Float64Var(&cMin, "c-min", config.DefaultCMin, "lowest damping")
	sweepCmd.Flags().Float64Var(&cMax, "c-max", config.DefaultCMax, "highest damping")
	sweepCmd.Flags().IntVar(&cPoints, "c-points", config.DefaultSweepPoints, "damping points")
	sweepCmd.Flags().Float64Var(&osMax, "os-max", experiment.DefaultRequirement().OSMax, "overshoot limit for the best cell (%)")
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "parallel cells (0 = all cpus)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list parameter presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a saved run to JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(dataDir).ExportJSON(os.Stdout, args[0])
		},
	}

	rootCmd.AddCommand(runCmd, campaignCmd, sweepCmd, presetsCmd, listCmd, showCmd, exportJSONCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "start from a named preset")
	cmd.Flags().BoolVar(&save, "save", false, "save the result")
	cmd.Flags().StringVar(&name, "name", "", "name stored with a saved result")
}

func addParamFlags(cmd *cobra.Command) {
	d := physics.DefaultParams()
	cmd.Flags().Float64Var(&iyy, "iyy", d.Iyy, "pitch inertia (kg·m²)")
	cmd.Flags().Float64Var(&damping, "c", d.C, "damping (N·m·s/rad)")
	cmd.Flags().Float64Var(&stiffness, "k", d.K, "stiffness (N·m/rad)")
	cmd.Flags().Float64Var(&kAct, "k-act", d.KAct, "actuator effectiveness (N·m/rad)")
	cmd.Flags().Float64Var(&kp, "kp", d.Kp, "proportional gain")
	cmd.Flags().Float64Var(&ki, "ki", d.Ki, "integral gain (1/s), 0 for P control")
	cmd.Flags().Float64Var(&cmdDeg, "cmd", d.ThetaCmdDeg, "step command (deg)")
	cmd.Flags().Float64Var(&horizon, "time", d.T, "simulated time (s)")
	cmd.Flags().Float64Var(&dt, "dt", d.Dt, "output sample interval (s)")
}

// loadConfig layers defaults, preset, config file and changed flags, in that
// order.
func loadConfig(cmd *cobra.Command, defaultPreset string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	presetName := preset
	if presetName == "" {
		presetName = defaultPreset
	}
	if presetName != "" {
		cfg = config.GetPreset(presetName)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", presetName, config.ListPresets())
		}
	}

	if configFile != "" {
		if err := cfg.Merge(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	flags := cmd.Flags()
	floats := []struct {
		flag string
		src  *float64
		dst  *float64
	}{
		{"iyy", &iyy, &cfg.Params.Iyy},
		{"c", &damping, &cfg.Params.C},
		{"k", &stiffness, &cfg.Params.K},
		{"k-act", &kAct, &cfg.Params.KAct},
		{"kp", &kp, &cfg.Params.Kp},
		{"ki", &ki, &cfg.Params.Ki},
		{"cmd", &cmdDeg, &cfg.Params.ThetaCmdDeg},
		{"time", &horizon, &cfg.Params.T},
		{"dt", &dt, &cfg.Params.Dt},
		{"frac", &perturbation, &cfg.Campaign.Perturbation},
		{"k-min", &kMin, &cfg.Sweep.KMin},
		{"k-max", &kMax, &cfg.Sweep.KMax},
		{"c-min", &cMin, &cfg.Sweep.CMin},
		{"c-max", &cMax, &cfg.Sweep.CMax},
	}
	for _, f := range floats {
		if flags.Lookup(f.flag) != nil && flags.Changed(f.flag) {
			*f.dst = *f.src
		}
	}

	ints := []struct {
		flag string
		src  *int
		dst  *int
	}{
		{"trials", &trials, &cfg.Campaign.Trials},
		{"k-points", &kPoints, &cfg.Sweep.KPoints},
		{"c-points", &cPoints, &cfg.Sweep.CPoints},
		{"workers", &workers, &cfg.Workers},
	}
	for _, f := range ints {
		if flags.Lookup(f.flag) != nil && flags.Changed(f.flag) {
			*f.dst = *f.src
		}
	}
	if flags.Lookup("seed") != nil && flags.Changed("seed") {
		cfg.Campaign.Seed = seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "")
	if err != nil {
		return err
	}
	p := cfg.Params
	logger.Debug("run", zap.Any("params", p))

	result, err := sim.New(nil).Run(cmd.Context(), p, cfg.InitialState())
	if err != nil {
		return err
	}
	resp, err := metrics.Analyze(result)
	if err != nil {
		return err
	}

	fmt.Println(viz.RenderResponse(p, resp, cfg.Campaign.Requirement))
	if plot {
		fmt.Println()
		fmt.Println(viz.PlotTheta(result, 80, 12))
	}
	fmt.Println(viz.Subtle.Render(fmt.Sprintf("solver: %d steps, %d rejected, %d evaluations",
		result.Stats.Accepted, result.Stats.Rejected, result.Stats.Evaluations)))

	if save {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.SaveRun(name, result, resp)
		if err != nil {
			return err
		}
		fmt.Printf("\nsaved: %s\n", runID)
	}
	return nil
}

func runCampaign(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "")
	if err != nil {
		return err
	}
	cc := cfg.Campaign

	scenarios := []experiment.Scenario{{Name: scenarioName(), Params: cfg.Params}}
	if compare != "" {
		scenarios = scenarios[:0]
		for _, n := range strings.Split(compare, ",") {
			n = strings.TrimSpace(n)
			pc := config.GetPreset(n)
			if pc == nil {
				return fmt.Errorf("unknown preset: %s (available: %v)", n, config.ListPresets())
			}
			scenarios = append(scenarios, experiment.Scenario{Name: n, Params: pc.Params})
		}
	}

	opts := []experiment.Option{
		experiment.WithWorkers(cfg.Workers),
		experiment.WithLogger(logger),
	}

	var outcomes []experiment.Outcome
	if progress {
		err = tui.RunProgress(cmd.Context(), "monte carlo campaign", os.Stderr,
			func(ctx context.Context, report experiment.ProgressFunc) error {
				c := experiment.NewCampaign(sim.New(nil), append(opts, experiment.WithProgress(report))...)
				var err error
				outcomes, err = c.Compare(ctx, scenarios, cc.Perturbation, cc.Trials, cc.Requirement, cc.Seed)
				return err
			})
	} else {
		c := experiment.NewCampaign(sim.New(nil), opts...)
		outcomes, err = c.Compare(cmd.Context(), scenarios, cc.Perturbation, cc.Trials, cc.Requirement, cc.Seed)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%d trials, ±%.0f%% on Iyy, c, k, K_act, seed %d\n\n", cc.Trials, cc.Perturbation*100, cc.Seed)
	fmt.Print(viz.RenderCampaign(outcomes))

	if save {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		for _, o := range outcomes {
			runID, err := st.SaveCampaign(o.Scenario.Name, o.Scenario.Params, cc.Perturbation, cc.Seed, cc.Requirement, o.Stats)
			if err != nil {
				return err
			}
			fmt.Printf("saved %s: %s\n", o.Scenario.Name, runID)
		}
	}
	return nil
}

func scenarioName() string {
	switch {
	case name != "":
		return name
	case preset != "":
		return preset
	default:
		return "nominal"
	}
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "tuning")
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("os-max") {
		osMax = cfg.Campaign.Requirement.OSMax
	}
	ks, cs, err := cfg.Sweep.Values()
	if err != nil {
		return err
	}

	memo := optim.NewMemo()
	sw := optim.NewSweep(sim.New(nil),
		optim.WithWorkers(cfg.Workers),
		optim.WithLogger(logger),
		optim.WithMemo(memo),
	)

	grid, err := sw.Run(cmd.Context(), ks, cs, cfg.Params)
	if err != nil {
		return err
	}
	hits, misses := memo.Stats()
	logger.Debug("sweep memo", zap.Int("hits", hits), zap.Int("misses", misses))

	fmt.Println(viz.RenderSweep(grid))
	best, ok := grid.Best(osMax)
	fmt.Println(viz.RenderBest(best, ok, osMax))

	if save {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		var bestCell *optim.Cell
		if ok {
			bestCell = &best
		}
		runID, err := st.SaveSweep(name, cfg.Params, grid, bestCell)
		if err != nil {
			return err
		}
		fmt.Printf("\nsaved: %s\n", runID)
	}
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tMODE\tIYY\tC\tK\tK_ACT\tKP\tKI\tT")
	for _, n := range config.ListPresets() {
		p := config.Presets[n]
		fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%g\t%g\t%g\t%g\t%g\n",
			n, p.ControlMode(), p.Iyy, p.C, p.K, p.KAct, p.Kp, p.Ki, p.T)
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tNAME\tMODE\tTIMESTAMP\tSUMMARY")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, r.Name, r.Mode, r.Timestamp.Format("2006-01-02 15:04:05"), summary(r))
	}
	return w.Flush()
}

func summary(r storage.RunMetadata) string {
	switch {
	case r.Response != nil:
		return fmt.Sprintf("OS %.2f%%, t_s %.3fs", r.Response.Overshoot, r.Response.SettlingTime)
	case r.Campaign != nil && r.Campaign.Stats != nil:
		return fmt.Sprintf("pass-rate %.1f%% of %d", r.Campaign.Stats.PassRate*100, r.Campaign.Stats.Trials)
	case r.Sweep != nil:
		return fmt.Sprintf("%dx%d grid", len(r.Sweep.C), len(r.Sweep.K))
	}
	return ""
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w (see 'pitchsim list')", err)
		}
		return err
	}

	fmt.Printf("%s  %s  %s\n\n", meta.ID, meta.Kind, meta.Timestamp.Format("2006-01-02 15:04:05"))

	switch meta.Kind {
	case storage.KindRun:
		result, err := st.LoadResult(meta.ID)
		if err != nil {
			return err
		}
		resp, err := metrics.Analyze(result)
		if err != nil {
			return err
		}
		fmt.Println(viz.RenderResponse(meta.Params, resp, experiment.DefaultRequirement()))
		fmt.Println()
		fmt.Println(viz.PlotTheta(result, 80, 12))
	case storage.KindCampaign:
		c := meta.Campaign
		if c == nil || c.Stats == nil {
			return fmt.Errorf("%s: campaign metadata missing", meta.ID)
		}
		fmt.Printf("%d trials, ±%.0f%%, seed %d\n\n", c.Stats.Trials, c.Perturbation*100, c.Seed)
		fmt.Print(viz.RenderCampaign([]experiment.Outcome{{
			Scenario: experiment.Scenario{Name: meta.Name, Params: meta.Params},
			Stats:    c.Stats,
		}}))
	case storage.KindSweep:
		s := meta.Sweep
		if s == nil || len(s.K) == 0 || len(s.C) == 0 {
			return fmt.Errorf("%s: sweep metadata missing", meta.ID)
		}
		fmt.Printf("k: %d points %.4g … %.4g\n", len(s.K), s.K[0], s.K[len(s.K)-1])
		fmt.Printf("c: %d points %.4g … %.4g\n", len(s.C), s.C[0], s.C[len(s.C)-1])
		if s.Best != nil {
			fmt.Println(viz.RenderBest(*s.Best, true, experiment.DefaultRequirement().OSMax))
		}
	}
	return nil
}
