package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"loan-rag/internal/models"
)

// Asker is the TUI-facing subset of the query pipeline.
type Asker interface {
	Ask(ctx context.Context, question string) (*models.QueryResponse, error)
}

type answerMsg struct {
	resp *models.QueryResponse
	err  error
}

// exchange is one answered question. Each question is answered on its own;
// earlier exchanges are only shown, never sent back to the model.
type exchange struct {
	question string
	resp     *models.QueryResponse
	err      error
}

// Model is the Bubble Tea model for the chat window.
type Model struct {
	ctx      context.Context
	pipeline Asker
	input    textinput.Model
	viewport viewport.Model
	history  []exchange
	summary  string
	status   string
	pending  string
	ready    bool
}

func New(ctx context.Context, pipeline Asker, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about loan products and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		pipeline: pipeline,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Ready. Ctrl+C to quit.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ah := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-ah)
		m.refresh()
		return m, nil
	case answerMsg:
		m.history = append(m.history, exchange{question: m.pending, resp: msg.resp, err: msg.err})
		m.pending = ""
		switch {
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
		case msg.resp.GenerationFailed:
			m.status = "Answer service unavailable, showing sources only."
		default:
			m.status = fmt.Sprintf("Answered with confidence %.2f", msg.resp.Confidence)
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending != "" {
				return m, nil
			}
			m.pending = q
			m.input.Reset()
			m.status = "Thinking..."
			return m, m.ask(q)
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

// ask runs the pipeline off the UI loop and reports back with an answerMsg.
func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.pipeline.Ask(m.ctx, question)
		return answerMsg{resp: resp, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Loan Products Assistant")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	answers := answerBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + answers + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("Q: " + ex.question))
		b.WriteString("\n")
		if ex.err != nil {
			b.WriteString(errorStyle.Render("Error: " + ex.err.Error()))
			continue
		}
		b.WriteString(ex.resp.Answer)
		b.WriteString("\n")
		b.WriteString(renderSources(ex.resp))
	}
	return b.String()
}

func renderSources(resp *models.QueryResponse) string {
	var b strings.Builder
	b.WriteString(sourceStyle.Render(fmt.Sprintf("Confidence: %.2f", resp.Confidence)))
	for i, src := range resp.Sources {
		label := models.DefaultLabel
		if i < len(resp.Labels) {
			label = resp.Labels[i]
		}
		b.WriteString("\n")
		b.WriteString(sourceStyle.Render(fmt.Sprintf("[%d] %s: %s", i+1, label, truncate(src, 120))))
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var (
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
