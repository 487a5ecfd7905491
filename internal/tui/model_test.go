package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-rag/internal/models"
)

type fakeAsker struct {
	err   error
	asked []string
}

func (f *fakeAsker) Ask(_ context.Context, question string) (*models.QueryResponse, error) {
	f.asked = append(f.asked, question)
	if f.err != nil {
		return nil, f.err
	}
	return &models.QueryResponse{
		Question:   question,
		Answer:     "Gold loans are offered at 9% p.a.",
		Sources:    []string{"Gold loan against ornaments at 9% p.a."},
		Labels:     []string{"Gold Loan"},
		Distances:  []float64{0.3},
		Confidence: 0.7,
	}, nil
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func submit(t *testing.T, m Model, question string) Model {
	t.Helper()
	m.input.SetValue(question)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Equal(t, "Thinking...", m.status)
	assert.Empty(t, m.input.Value())

	next, _ = m.Update(cmd())
	return next.(Model)
}

func TestViewBeforeResize(t *testing.T) {
	m := New(context.Background(), &fakeAsker{}, "12 fragments")
	assert.Equal(t, "Loading...", m.View())
}

func TestEnterAsksAndRendersAnswer(t *testing.T) {
	asker := &fakeAsker{}
	m := sized(t, New(context.Background(), asker, "12 fragments"))

	m = submit(t, m, "  What is the gold loan rate?  ")
	assert.Equal(t, []string{"What is the gold loan rate?"}, asker.asked)
	require.Len(t, m.history, 1)
	assert.Equal(t, "Answered with confidence 0.70", m.status)

	out := m.renderHistory()
	assert.Contains(t, out, "Q: What is the gold loan rate?")
	assert.Contains(t, out, "Gold loans are offered at 9% p.a.")
	assert.Contains(t, out, "[1] Gold Loan: Gold loan against ornaments")
	assert.Contains(t, m.View(), "Loan Products Assistant")
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	asker := &fakeAsker{}
	m := sized(t, New(context.Background(), asker, ""))
	m.input.SetValue("   ")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, next.(Model).history)
	assert.Empty(t, asker.asked)
}

func TestErrorIsShown(t *testing.T) {
	m := sized(t, New(context.Background(), &fakeAsker{err: errors.New("index unavailable")}, ""))
	m = submit(t, m, "rates?")
	assert.True(t, strings.HasPrefix(m.status, "Error: "))
	assert.Contains(t, m.renderHistory(), "Error: index unavailable")
}

func TestQuitKeys(t *testing.T) {
	m := New(context.Background(), &fakeAsker{}, "")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b c", truncate("a\n b   c", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
}
