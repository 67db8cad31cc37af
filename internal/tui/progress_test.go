package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestModel_Progress(t *testing.T) {
	m := newModel("campaign", nil)

	next, cmd := m.Update(progressMsg{done: 3, total: 10})
	if cmd != nil {
		t.Error("progress should not schedule a command")
	}
	m = next.(model)
	if m.done != 3 || m.total != 10 {
		t.Errorf("expected 3/10, got %d/%d", m.done, m.total)
	}
	if !strings.Contains(m.View(), "3/10") {
		t.Errorf("view should show the count:\n%s", m.View())
	}
}

func TestModel_Finished(t *testing.T) {
	m := newModel("campaign", nil)

	next, cmd := m.Update(finishedMsg{err: errors.New("trial 4 failed")})
	m = next.(model)
	if !m.finished {
		t.Error("expected finished")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !strings.Contains(m.View(), "trial 4 failed") {
		t.Errorf("view should show the error:\n%s", m.View())
	}
}

func TestModel_QuitCancels(t *testing.T) {
	cancelled := false
	m := newModel("campaign", func() { cancelled = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled {
		t.Error("quitting should cancel the work")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
}

func TestModel_Tick(t *testing.T) {
	m := newModel("sweep", nil)
	next, cmd := m.Update(tickMsg{})
	if next.(model).frame != 1 {
		t.Error("tick should advance the spinner")
	}
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
}
