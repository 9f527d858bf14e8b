package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/runstate"
)

func analyzeEnv(t *testing.T) *env {
	t.Helper()
	e := newEnv(t)
	e.add(t, "H1", RoleHypothesize, "hypothesize")
	e.add(t, "E1-T1", RoleSimulation, "simulate", "H1")
	e.add(t, "A1", RoleAnalyze, "analyze results", "E1-T1", "H1")
	e.state.Set("H1", map[string]any{runstate.KeyHypothesis: "wet sand is stronger"})
	e.state.Set("E1-T1", map[string]any{KeySimulationResult: "collapse at 40cm"})
	return e
}

func TestAnalyzeExecute(t *testing.T) {
	e := analyzeEnv(t)
	fake := reasoning.NewFake(`{"conclusion": "hypothesis confirmed", "novelty_score": 0.82}`)

	a, err := NewAnalyze(fake)
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), e.input("A1", "E1-T1", "H1"))
	require.NoError(t, err)
	assert.Equal(t, "hypothesis confirmed", res[runstate.KeyConclusion])
	assert.Equal(t, 0.82, res[runstate.KeyNoveltyScore])

	require.Len(t, fake.Prompts(), 1)
	prompt := fake.Prompts()[0]
	assert.Contains(t, prompt, "Result from E1-T1")
	assert.Contains(t, prompt, "collapse at 40cm")
	assert.NotContains(t, prompt, "Result from H1", "the hypothesis is context, not an experiment result")
}

func TestAnalyzeExecuteRejectsBadResponses(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"score above one", `{"conclusion": "c", "novelty_score": 1.2}`},
		{"negative score", `{"conclusion": "c", "novelty_score": -0.1}`},
		{"empty conclusion", `{"conclusion": "", "novelty_score": 0.5}`},
		{"not json", `the results were interesting`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := analyzeEnv(t)
			a, err := NewAnalyze(reasoning.NewFake(tt.response))
			require.NoError(t, err)

			_, err = a.Execute(context.Background(), e.input("A1", "E1-T1", "H1"))
			assert.Error(t, err)
		})
	}
}
