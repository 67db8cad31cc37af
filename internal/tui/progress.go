package tui

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/pitchsim/internal/experiment"
	"github.com/san-kum/pitchsim/internal/viz"
)

var (
	cyan = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dim  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	red  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const barWidth = 40

type progressMsg struct{ done, total int }

type finishedMsg struct{ err error }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type model struct {
	title    string
	done     int
	total    int
	frame    int
	started  time.Time
	elapsed  time.Duration
	finished bool
	err      error
	cancel   context.CancelFunc
}

func newModel(title string, cancel context.CancelFunc) model {
	return model{title: title, cancel: cancel, started: time.Now()}
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case progressMsg:
		m.done, m.total = msg.done, msg.total
	case finishedMsg:
		m.finished = true
		m.err = msg.err
		m.elapsed = time.Since(m.started)
		return m, tea.Quit
	case tickMsg:
		m.frame++
		m.elapsed = time.Since(m.started)
		return m, tick()
	}
	return m, nil
}

func (m model) View() string {
	pct := 0.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}

	head := spinner[m.frame%len(spinner)]
	if m.finished {
		head = "✓"
		if m.err != nil {
			head = red.Render("✗")
		}
	}

	s := fmt.Sprintf("%s %s\n  %s %s %s\n",
		head,
		cyan.Render(m.title),
		viz.ProgressBar(pct, barWidth),
		fmt.Sprintf("%d/%d", m.done, m.total),
		dim.Render(m.elapsed.Round(100*time.Millisecond).String()),
	)
	if m.err != nil {
		s += red.Render("  "+m.err.Error()) + "\n"
	}
	return s
}

// RunProgress runs work while drawing its progress to out. Quitting the view
// cancels the context handed to work; RunProgress always waits for work to
// return.
func RunProgress(ctx context.Context, title string, out io.Writer, work func(ctx context.Context, progress experiment.ProgressFunc) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(title, cancel), tea.WithOutput(out), tea.WithContext(ctx))

	result := make(chan error, 1)
	go func() {
		err := work(ctx, func(done, total int) {
			p.Send(progressMsg{done: done, total: total})
		})
		result <- err
		p.Send(finishedMsg{err: err})
	}()

	_, runErr := p.Run()
	interrupted := ctx.Err() != nil
	cancel()
	workErr := <-result

	if workErr != nil {
		return workErr
	}
	if runErr != nil && !interrupted {
		return runErr
	}
	return nil
}
