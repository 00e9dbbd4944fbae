package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/qa"
)

type stubAsker struct {
	res qa.Result
	err error
	got string
}

func (s *stubAsker) Ask(_ context.Context, q string) (qa.Result, error) {
	s.got = q
	return s.res, s.err
}

// sized returns m after a window resize so View renders content.
func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

// typeText feeds s into the input one rune at a time.
func typeText(m Model, s string) Model {
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func TestModel_AnswerAppearsInTranscript(t *testing.T) {
	t.Parallel()

	asker := &stubAsker{res: qa.Result{
		Answer:  "X is defined as Y.",
		Sources: []answer.Source{{ID: 0, Score: 0.62}},
		Outcome: qa.OutcomeAnswered,
	}}
	m := sized(t, New(asker, "notes.txt", time.Second))
	m = typeText(m, "What is X?")

	// Enter dispatches the ask; run it so the stub records the question.
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if cmd == nil || !m.pending {
		t.Fatal("expected an in-flight ask after enter")
	}
	if m.input.Value() != "" {
		t.Errorf("input should reset after submit, got %q", m.input.Value())
	}
	next, _ = m.Update(m.ask("What is X?")())
	m = next.(Model)

	if asker.got != "What is X?" {
		t.Errorf("question not forwarded: %q", asker.got)
	}
	if m.pending {
		t.Error("pending should clear once the answer arrives")
	}
	out := m.renderTranscript()
	for _, want := range []string{"What is X?", "X is defined as Y.", "#0 (0.62)"} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(m.status, "answered") {
		t.Errorf("status: %q", m.status)
	}
}

func TestModel_ErrorShownInStatus(t *testing.T) {
	t.Parallel()

	asker := &stubAsker{err: errors.New("provider down")}
	m := sized(t, New(asker, "doc", time.Second))

	next, _ := m.Update(m.ask("q")())
	m = next.(Model)

	if !strings.Contains(m.status, "provider down") {
		t.Errorf("status: %q", m.status)
	}
	if !strings.Contains(m.renderTranscript(), "provider down") {
		t.Error("transcript should show the error")
	}
}

func TestModel_BlankEnterIgnored(t *testing.T) {
	t.Parallel()

	m := sized(t, New(&stubAsker{}, "doc", time.Second))
	m = typeText(m, "   ")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	if cmd != nil || m.pending {
		t.Error("blank question must not be sent")
	}
}

func TestModel_CtrlCQuits(t *testing.T) {
	t.Parallel()

	m := New(&stubAsker{}, "doc", time.Second)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModel_ViewBeforeResize(t *testing.T) {
	t.Parallel()

	if got := New(&stubAsker{}, "doc", 0).View(); got != "Loading..." {
		t.Errorf("got %q", got)
	}
}
