// Package tui is the interactive terminal front end for `docqa chat`: a
// question box, a scrolling transcript, and a status line.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/54b3r/docqa-go/internal/qa"
)

// Asker is the TUI-facing subset of the question-answering service.
type Asker interface {
	Ask(ctx context.Context, question string) (qa.Result, error)
}

// turn is one question and its answer in the transcript.
type turn struct {
	question string
	result   qa.Result
	err      error
	elapsed  time.Duration
}

// answerMsg carries a finished Ask back into the update loop.
type answerMsg struct {
	turn
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	asker    Asker
	timeout  time.Duration
	title    string
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	turns    []turn
	status   string
	pending  bool
	ready    bool
}

// New creates a chat model over asker. title is shown in the header (usually
// the document name); timeout bounds each question.
func New(asker Asker, title string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "? "
	ti.Placeholder = "Ask about the document and press Enter"
	ti.Focus()
	ti.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return Model{
		asker:    asker,
		timeout:  timeout,
		title:    title,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready. Ctrl+C to quit.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window, spinner and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, qh := inputStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.pending = false
		m.turns = append(m.turns, msg.turn)
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("%s · %s · %d source(s) · %s",
				msg.result.Outcome, msg.result.Intent, len(msg.result.Sources), msg.elapsed.Round(time.Millisecond))
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.input.Reset()
			m.pending = true
			m.status = "Thinking…"
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask runs the question off the update loop.
func (m Model) ask(question string) tea.Cmd {
	asker, timeout := m.asker, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		res, err := asker.Ask(ctx, question)
		return answerMsg{turn{question: question, result: res, err: err, elapsed: time.Since(start)}}
	}
}

// refresh re-renders the transcript and scrolls to the latest answer.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("docqa") + " " + mutedStyle.Render(m.title)
	status := statusStyle.Render(m.status)
	if m.pending {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return mutedStyle.Render("No questions yet.")
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("Q: " + t.question))
		b.WriteString("\n")
		if t.err != nil {
			b.WriteString(errorStyle.Render(t.err.Error()))
			continue
		}
		b.WriteString(t.result.Answer)
		if len(t.result.Sources) > 0 {
			ids := make([]string, len(t.result.Sources))
			for j, s := range t.result.Sources {
				ids[j] = fmt.Sprintf("#%d (%.2f)", s.ID, s.Score)
			}
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render("sources: " + strings.Join(ids, ", ")))
		}
	}
	return b.String()
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
