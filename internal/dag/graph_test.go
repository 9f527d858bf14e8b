package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop() Strategy {
	return StrategyFunc(func(ctx context.Context, in Input) (Result, error) {
		return Result{}, nil
	})
}

func TestGraph_Add_RejectsDuplicateID(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(NewNode("H1", "Hypothesize", "b", noop())))

	err := g.Add(NewNode("H1", "Hypothesize", "b", noop()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, g.Len())
}

func TestGraph_Get(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(NewNode("H1", "Hypothesize", "b", noop())))

	n, ok := g.Get("H1")
	require.True(t, ok)
	assert.Equal(t, "H1", n.ID)

	_, ok = g.Get("missing")
	assert.False(t, ok)
}

func TestGraph_Runnable_OnlyPendingWithCompletedDeps(t *testing.T) {
	g := NewGraph()
	root := NewNode("H1", "Hypothesize", "b", noop())
	child := NewNode("D1", "ExperimentDesign", "b", noop(), "H1")
	require.NoError(t, g.Add(root))
	require.NoError(t, g.Add(child))

	runnable := g.Runnable()
	require.Len(t, runnable, 1)
	assert.Equal(t, "H1", runnable[0].ID)

	root.Status = StatusCompleted
	runnable = g.Runnable()
	require.Len(t, runnable, 1)
	assert.Equal(t, "D1", runnable[0].ID)

	child.Status = StatusRunning
	assert.Empty(t, g.Runnable(), "RUNNING nodes must not be returned again")
}

func TestGraph_Runnable_MissingDependencyBlocks(t *testing.T) {
	g := NewGraph()
	n := NewNode("E1-T2", "Simulation", "b", noop(), "E1-T1")
	require.NoError(t, g.Add(n))

	// E1-T1 not inserted yet: blocked, not an error.
	assert.Empty(t, g.Runnable())

	dep := NewNode("E1-T1", "DataCollection", "b", noop())
	dep.Status = StatusCompleted
	require.NoError(t, g.Add(dep))

	runnable := g.Runnable()
	require.Len(t, runnable, 1)
	assert.Equal(t, "E1-T2", runnable[0].ID)
}

func TestGraph_Runnable_FailedDependencyBlocks(t *testing.T) {
	g := NewGraph()
	dep := NewNode("E1-T1", "DataCollection", "b", noop())
	dep.Status = StatusFailed
	require.NoError(t, g.Add(dep))
	require.NoError(t, g.Add(NewNode("E1-T2", "Simulation", "b", noop(), "E1-T1")))

	assert.Empty(t, g.Runnable())
}

func TestGraph_Runnable_InsertionOrder(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, g.Add(NewNode(id, "Simulation", "b", noop())))
	}

	runnable := g.Runnable()
	require.Len(t, runnable, 3)
	assert.Equal(t, "c", runnable[0].ID)
	assert.Equal(t, "a", runnable[1].ID)
	assert.Equal(t, "b", runnable[2].ID)
}

func TestGraph_NearestAncestor(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(NewNode("H1", "Hypothesize", "b", noop())))
	require.NoError(t, g.Add(NewNode("D1", "ExperimentDesign", "b", noop(), "H1")))
	require.NoError(t, g.Add(NewNode("E1-T1", "DataCollection", "b", noop(), "D1", "H1")))
	require.NoError(t, g.Add(NewNode("E1-T2", "Simulation", "b", noop(), "E1-T1", "D1")))

	// Direct dependency.
	anc, ok := g.NearestAncestor("E1-T1", "Hypothesize")
	require.True(t, ok)
	assert.Equal(t, "H1", anc.ID)

	// Transitive: E1-T2 reaches H1 through D1.
	anc, ok = g.NearestAncestor("E1-T2", "Hypothesize")
	require.True(t, ok)
	assert.Equal(t, "H1", anc.ID)

	_, ok = g.NearestAncestor("E1-T2", "Analyze")
	assert.False(t, ok)

	_, ok = g.NearestAncestor("missing", "Hypothesize")
	assert.False(t, ok)
}

func TestGraph_NearestAncestor_PrefersClosest(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(NewNode("H1", "Hypothesize", "old", noop())))
	require.NoError(t, g.Add(NewNode("A1", "Analyze", "b", noop(), "H1")))
	require.NoError(t, g.Add(NewNode("H2", "Hypothesize", "new", noop(), "A1")))
	require.NoError(t, g.Add(NewNode("D2", "ExperimentDesign", "b", noop(), "H2")))

	anc, ok := g.NearestAncestor("D2", "Hypothesize")
	require.True(t, ok)
	assert.Equal(t, "H2", anc.ID)
}
