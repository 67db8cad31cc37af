package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pitchsim/internal/experiment"
	"github.com/san-kum/pitchsim/internal/metrics"
	"github.com/san-kum/pitchsim/internal/optim"
	"github.com/san-kum/pitchsim/internal/physics"
	"github.com/san-kum/pitchsim/internal/sim"
)

func row(label, value string) string {
	return MetricLabel.Render(label) + MetricValue.Render(value)
}

func seconds(v float64) string {
	if math.IsNaN(v) {
		return "not reached"
	}
	return fmt.Sprintf("%.3f s", v)
}

// RenderResponse summarizes one run, with angles in degrees.
func RenderResponse(p physics.Params, resp metrics.Response, req experiment.Requirement) string {
	status := StatusPass.Render("PASS")
	if !req.Passes(resp) {
		status = StatusFail.Render("FAIL")
	}

	lines := []string{
		Title.Render(fmt.Sprintf("%s step response, %.2f° command", p.ControlMode(), p.ThetaCmdDeg)),
		Subtle.Render(fmt.Sprintf("Iyy=%g c=%g k=%g K_act=%g Kp=%g Ki=%g", p.Iyy, p.C, p.K, p.KAct, p.Kp, p.Ki)),
		"",
		row("steady state", fmt.Sprintf("%.4f°", physics.RadToDeg(resp.ThetaSS))),
		row("theory", fmt.Sprintf("%.4f°", physics.RadToDeg(resp.ThetaSSTheory))),
		row("dc gain error", fmt.Sprintf("%+.2f%%", resp.DCGainError*100)),
		row("overshoot", fmt.Sprintf("%.2f%%", resp.Overshoot)),
		row("settling (2%)", seconds(resp.SettlingTime)),
		row("rise (10-90%)", seconds(resp.RiseTime)),
		row("rms error", fmt.Sprintf("%.4f°", physics.RadToDeg(resp.RMSError))),
		"",
		row("requirement", status),
	}
	return Panel.Render(strings.Join(lines, "\n"))
}

// PlotTheta draws theta and the command against time, in degrees.
func PlotTheta(r *sim.Result, width, height int) string {
	theta := make([]float64, len(r.Theta))
	cmd := make([]float64, len(r.ThetaCmd))
	for i := range r.Theta {
		theta[i] = physics.RadToDeg(r.Theta[i])
		cmd[i] = physics.RadToDeg(r.ThetaCmd[i])
	}

	return asciigraph.PlotMany([][]float64{theta, cmd},
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.SeriesColors(asciigraph.Cyan, asciigraph.Yellow),
		asciigraph.Caption(fmt.Sprintf("theta (deg) vs time, 0 to %gs", r.Params.T)),
	)
}

// RenderCampaign prints one report line per scenario.
func RenderCampaign(outcomes []experiment.Outcome) string {
	var b strings.Builder
	for _, o := range outcomes {
		s := o.Stats
		rate := StatusPass
		if s.PassRate < 0.5 {
			rate = StatusFail
		}
		fmt.Fprintf(&b, "%s: pass-rate = %s  OS mean±std = %.2f±%.2f  t_s mean±std = %.2f±%.2f\n",
			Title.Render(o.Scenario.Name),
			rate.Render(fmt.Sprintf("%.1f%%", s.PassRate*100)),
			s.OvershootMean, s.OvershootStd,
			s.SettlingMean, s.SettlingStd,
		)
		fmt.Fprintf(&b, "  %s %s\n", ProgressBar(s.PassRate, 40), Subtle.Render(fmt.Sprintf("%d/%d trials", s.Passes, s.Trials)))
	}
	return b.String()
}

// RenderSweep draws both sweep matrices as shaded maps, c rows top to bottom
// and k columns left to right.
func RenderSweep(g *optim.Grid) string {
	overshoot := lipgloss.JoinVertical(lipgloss.Left,
		Title.Render("overshoot (%)"),
		heatmap(g, g.Overshoot),
	)
	settling := lipgloss.JoinVertical(lipgloss.Left,
		Title.Render("settling time (s)"),
		heatmap(g, g.SettlingTime),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, Panel.Render(overshoot), Panel.Render(settling))
}

func heatmap(g *optim.Grid, m mat.Matrix) string {
	lo, hi := mat.Min(m), mat.Max(m)
	cols := len(g.K)

	var b strings.Builder
	for i, c := range g.C {
		fmt.Fprintf(&b, "%s ", Subtle.Render(fmt.Sprintf("c=%7.3g", c)))
		for j := 0; j < cols; j++ {
			b.WriteString(Shade(m.At(i, j), lo, hi))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s k %.3g … %.3g\n", Subtle.Render(strings.Repeat(" ", 9)), g.K[0], g.K[cols-1])
	fmt.Fprintf(&b, "%s", Subtle.Render(fmt.Sprintf("range %.4g … %.4g", lo, hi)))
	return b.String()
}

// RenderBest describes the grid-search optimum.
func RenderBest(best optim.Cell, ok bool, osMax float64) string {
	if !ok {
		return StatusFail.Render(fmt.Sprintf("no cell with overshoot ≤ %g%%", osMax))
	}
	return row("best cell", fmt.Sprintf("k=%.4g c=%.4g  OS=%.3f%%  t_s=%.3f s",
		best.K, best.C, best.Overshoot, best.SettlingTime))
}
