package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/discoveryd/internal/reasoner"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/runstate"
)

func TestHypothesizeExecute(t *testing.T) {
	e := newEnv(t)
	e.add(t, "H1", RoleHypothesize, "hypothesize")
	e.state.Set(runstate.KeyKnowledge, "\n- Hypothesis: x. Conclusion: y.")

	fake := reasoning.NewFake("Compaction waves explain sandcastle collapse thresholds.")
	h, err := NewHypothesize(fake, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := h.Execute(context.Background(), e.input("H1"))
	require.NoError(t, err)
	assert.Equal(t, "Compaction waves explain sandcastle collapse thresholds.", res[runstate.KeyHypothesis])
	assert.NotContains(t, res, KeyStrategyID)

	require.Len(t, fake.Prompts(), 1)
	assert.Contains(t, fake.Prompts()[0], "the physics of sandcastles")
	assert.Contains(t, fake.Prompts()[0], "Hypothesis: x. Conclusion: y.")
}

func TestHypothesizeExecuteNoKnowledgeYet(t *testing.T) {
	e := newEnv(t)
	e.add(t, "H1", RoleHypothesize, "hypothesize")

	fake := reasoning.NewFake("A hypothesis.")
	h, err := NewHypothesize(fake, nil, nil)
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), e.input("H1"))
	require.NoError(t, err)
	assert.Contains(t, fake.Prompts()[0], "No knowledge yet.")
}

func TestHypothesizeExecuteDeliberated(t *testing.T) {
	e := newEnv(t)
	e.add(t, "H1", RoleHypothesize, "hypothesize")

	fake := reasoning.NewFake(
		`{"hypotheses": [
			{"id": "h1", "statement": "go wide"},
			{"id": "h2", "statement": "go deep"}
		]}`,
		`{"h1": 0.3, "h2": 0.9}`,
		"A deliberated hypothesis.",
	)
	d, err := reasoner.NewDeliberator(fake, zaptest.NewLogger(t))
	require.NoError(t, err)
	h, err := NewHypothesize(fake, d, zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := h.Execute(context.Background(), e.input("H1"))
	require.NoError(t, err)
	assert.Equal(t, "A deliberated hypothesis.", res[runstate.KeyHypothesis])
	assert.Equal(t, "h2", res[KeyStrategyID])
	assert.Equal(t, "go deep", res[KeyStrategyStatement])

	prompts := fake.Prompts()
	require.Len(t, prompts, 3)
	assert.Contains(t, prompts[2], "go deep")
}

func TestHypothesizeExecuteEmptyResponse(t *testing.T) {
	e := newEnv(t)
	e.add(t, "H1", RoleHypothesize, "hypothesize")

	h, err := NewHypothesize(reasoning.NewFake("   "), nil, nil)
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), e.input("H1"))
	assert.ErrorContains(t, err, "empty hypothesis")
}
