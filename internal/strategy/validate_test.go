package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/runstate"
	"github.com/fyrsmithlabs/discoveryd/internal/vetting"
)

func validateEnv(t *testing.T, hypoResult map[string]any) *env {
	t.Helper()
	e := newEnv(t)
	e.add(t, "H1", RoleHypothesize, "hypothesize")
	e.add(t, "A1", RoleAnalyze, "analyze", "H1")
	e.add(t, "V1", RoleValidate, "validate discovery", "A1", "H1")
	e.state.Set("H1", hypoResult)
	e.state.Set("A1", map[string]any{
		runstate.KeyConclusion:   "hypothesis confirmed",
		runstate.KeyNoveltyScore: 0.9,
	})
	return e
}

func TestValidateExecute(t *testing.T) {
	e := validateEnv(t, map[string]any{runstate.KeyHypothesis: "wet sand is stronger"})
	fake := reasoning.NewFake(`{"is_discovery": true, "justification": "genuinely surprising"}`)

	v, err := NewValidate(fake, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := v.Execute(context.Background(), e.input("V1", "A1", "H1"))
	require.NoError(t, err)
	assert.Equal(t, true, res[runstate.KeyIsDiscovery])
	assert.Equal(t, "genuinely surprising", res[runstate.KeyJustification])

	require.Len(t, fake.Prompts(), 1)
	assert.Contains(t, fake.Prompts()[0], "wet sand is stronger")
	assert.Contains(t, fake.Prompts()[0], "hypothesis confirmed")
	assert.Contains(t, fake.Prompts()[0], "0.9")
}

func TestValidateExecuteVettedReportPasses(t *testing.T) {
	e := validateEnv(t, map[string]any{
		runstate.KeyHypothesis: "wet sand is stronger",
		KeyStrategyID:          "h1",
		KeyStrategyStatement:   "go deep",
	})
	fake := reasoning.NewFake(`{
		"is_discovery": true,
		"justification": "genuinely surprising",
		"report": "Strategy: go deep. Phase 1: baseline established and verified."
	}`)

	v, err := NewValidate(fake, vetting.NewEngine(vetting.DefaultRules()), zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := v.Execute(context.Background(), e.input("V1", "A1", "H1"))
	require.NoError(t, err)
	assert.Equal(t, true, res[runstate.KeyIsDiscovery])
	assert.Contains(t, res[KeyReport], "Phase 1")
}

func TestValidateExecuteVettedReportFailsDowngradesVerdict(t *testing.T) {
	e := validateEnv(t, map[string]any{
		runstate.KeyHypothesis: "wet sand is stronger",
		KeyStrategyID:          "h2",
		KeyStrategyStatement:   "go deep",
	})
	// h2 requires phases 1-3; the report stops at phase 1.
	fake := reasoning.NewFake(`{
		"is_discovery": true,
		"justification": "genuinely surprising",
		"report": "Strategy: go deep. Phase 1: baseline."
	}`)

	v, err := NewValidate(fake, vetting.NewEngine(vetting.DefaultRules()), zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := v.Execute(context.Background(), e.input("V1", "A1", "H1"))
	require.NoError(t, err)
	assert.Equal(t, false, res[runstate.KeyIsDiscovery])
	assert.Contains(t, res[runstate.KeyJustification], "self-correction")
	assert.Contains(t, res[runstate.KeyJustification], "Phase 2")
}

func TestValidateExecuteMissingAnalysis(t *testing.T) {
	e := newEnvWithHypothesis(t)
	e.add(t, "V1", RoleValidate, "validate", "H1")

	v, err := NewValidate(reasoning.NewFake(`{}`), nil, nil)
	require.NoError(t, err)

	_, err = v.Execute(context.Background(), e.input("V1", "H1"))
	assert.ErrorContains(t, err, "could not find parent analysis")
}

func newEnvWithHypothesis(t *testing.T) *env {
	t.Helper()
	e := newEnv(t)
	e.add(t, "H1", RoleHypothesize, "hypothesize")
	e.state.Set("H1", map[string]any{runstate.KeyHypothesis: "wet sand is stronger"})
	return e
}
