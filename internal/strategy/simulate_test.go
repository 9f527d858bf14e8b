package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/runstate"
)

func TestSimulationExecute(t *testing.T) {
	e := newEnv(t)
	e.add(t, "H1", RoleHypothesize, "hypothesize")
	e.add(t, "E1-T1", RoleDataCollection, "collect", "H1")
	e.add(t, "E1-T2", RoleSimulation, "predict collapse point", "E1-T1", "H1")
	e.state.Set("H1", map[string]any{runstate.KeyHypothesis: "wet sand is stronger"})
	e.state.Set("E1-T1", map[string]any{KeyData: "3x strength gain observed"})

	fake := reasoning.NewFake("The castle collapses at 40cm.")
	s, err := NewSimulation(fake)
	require.NoError(t, err)

	res, err := s.Execute(context.Background(), e.input("E1-T2", "E1-T1", "H1"))
	require.NoError(t, err)
	assert.Equal(t, "The castle collapses at 40cm.", res[KeySimulationResult])

	require.Len(t, fake.Prompts(), 1)
	assert.Contains(t, fake.Prompts()[0], "wet sand is stronger")
	assert.Contains(t, fake.Prompts()[0], "predict collapse point")
	assert.Contains(t, fake.Prompts()[0], "3x strength gain observed")
}

func TestSimulationExecuteMissingHypothesis(t *testing.T) {
	e := newEnv(t)
	e.add(t, "E1-T2", RoleSimulation, "predict")

	s, err := NewSimulation(reasoning.NewFake("x"))
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), e.input("E1-T2"))
	assert.ErrorContains(t, err, "could not find parent hypothesis")
}
