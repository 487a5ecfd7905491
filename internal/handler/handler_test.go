package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-rag/internal/models"
)

type fakePipeline struct {
	askErr   error
	countErr error
	count    int
	asked    []string
}

func (f *fakePipeline) Ask(_ context.Context, question string) (*models.QueryResponse, error) {
	f.asked = append(f.asked, question)
	if f.askErr != nil {
		return nil, f.askErr
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", models.ErrInvalidArgument)
	}
	return &models.QueryResponse{
		Question:   question,
		Answer:     "The home loan rate starts at 8.5%.",
		Sources:    []string{"Home loan interest rate 8.5% p.a."},
		Labels:     []string{"Home Loan"},
		Distances:  []float64{0.2},
		Confidence: 0.8,
	}, nil
}

func (f *fakePipeline) Count(context.Context) (int, error) { return f.count, f.countErr }
func (f *fakePipeline) TopK() int                          { return 3 }

func newTestApp(p *fakePipeline) *fiber.App {
	app := fiber.New()
	NewAskHandler(p).Register(app)
	return app
}

func postAsk(t *testing.T, app *fiber.App, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp, out
}

func TestAsk(t *testing.T) {
	p := &fakePipeline{}
	resp, out := postAsk(t, newTestApp(p), `{"question":"What is the home loan rate?"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "What is the home loan rate?", out["question"])
	assert.Equal(t, "The home loan rate starts at 8.5%.", out["answer"])
	assert.Equal(t, []any{"Home loan interest rate 8.5% p.a."}, out["sources"])
	assert.InDelta(t, 0.8, out["confidence"], 1e-9)
	assert.NotContains(t, out, "generation_failed")
	assert.Equal(t, []string{"What is the home loan rate?"}, p.asked)
}

func TestAskErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed body", `{"question":`, nil, http.StatusBadRequest},
		{"blank question", `{"question":"   "}`, nil, http.StatusBadRequest},
		{"index down", `{"question":"rates?"}`, models.ErrIndexUnavailable, http.StatusServiceUnavailable},
		{"embedding failure", `{"question":"rates?"}`, models.ErrConfiguration, http.StatusInternalServerError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp, out := postAsk(t, newTestApp(&fakePipeline{askErr: tc.err}), tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(&fakePipeline{count: 42})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
	assert.EqualValues(t, 42, out["fragments"])
	assert.EqualValues(t, 3, out["top_k"])

	app = newTestApp(&fakePipeline{countErr: models.ErrIndexUnavailable})
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
