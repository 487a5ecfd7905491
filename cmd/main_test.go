package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"loan-rag/internal/config"
	"loan-rag/internal/models"
)

func TestRedactedHidesSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.InferenceLLM.Key = "sk-secret"
	cfg.Database.Password = "hunter2"

	out := redacted(*cfg)
	assert.Equal(t, "***", out.InferenceLLM.Key)
	assert.Equal(t, "***", out.Database.Password)
	assert.Empty(t, out.EmbedLLM.Key)
	assert.Equal(t, "sk-secret", cfg.InferenceLLM.Key)
}

func TestPrintResponse(t *testing.T) {
	var buf bytes.Buffer
	printResponse(&buf, &models.QueryResponse{
		Question:   "What is the home loan rate?",
		Answer:     "8.5% p.a.",
		Sources:    []string{"Home loan\ninterest rate 8.5% p.a.", "Gold loan at 9%"},
		Labels:     []string{"Home Loan"},
		Distances:  []float64{0.25, 0.5},
		Confidence: 0.62,
	})
	out := buf.String()
	assert.Contains(t, out, "Answer:\n8.5% p.a.")
	assert.Contains(t, out, "Confidence: 0.62")
	assert.Contains(t, out, "[1] Home Loan (distance 0.250): Home loan interest rate 8.5% p.a.")
	assert.Contains(t, out, "[2] General (distance 0.500): Gold loan at 9%")
}

func TestCommandNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range commands {
		assert.False(t, seen[c.name], c.name)
		seen[c.name] = true
	}
	assert.Len(t, demoQuestions, 4)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview(" a \n b ", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
}
