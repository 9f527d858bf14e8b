package runstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGet(t *testing.T) {
	s := New()

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set(KeyDomain, "sorting algorithms")
	assert.Equal(t, "sorting algorithms", s.Domain())
}

func TestStore_Snapshot_SkipsMissingIDs(t *testing.T) {
	s := New()
	s.Set("H1", map[string]any{KeyHypothesis: "h"})
	s.Set("E1-T1", map[string]any{"data": "d"})

	snap := s.Snapshot([]string{"H1", "E1-T1", "E1-T2"})
	require.Len(t, snap, 2)
	assert.Contains(t, snap, "H1")
	assert.Contains(t, snap, "E1-T1")
	assert.NotContains(t, snap, "E1-T2")
}

func TestStore_AppendKnowledge(t *testing.T) {
	s := New()
	s.Set(KeyKnowledge, "")

	s.AppendKnowledge("Hypothesis: A. Conclusion: B.")
	s.AppendKnowledge("Hypothesis: C. Conclusion: D.")

	got := s.Knowledge()
	assert.Equal(t, "\n- Hypothesis: A. Conclusion: B.\n- Hypothesis: C. Conclusion: D.", got)
}

func TestStore_Hypothesis(t *testing.T) {
	s := New()

	_, ok := s.Hypothesis("H1")
	assert.False(t, ok)

	s.Set("H1", map[string]any{KeyHypothesis: "bubble sort is optimal for n<10"})
	h, ok := s.Hypothesis("H1")
	require.True(t, ok)
	assert.Equal(t, "bubble sort is optimal for n<10", h)

	s.Set("H2", map[string]any{KeyHypothesis: ""})
	_, ok = s.Hypothesis("H2")
	assert.False(t, ok)
}

func TestStore_Analysis(t *testing.T) {
	s := New()
	s.Set("A1", map[string]any{
		KeyConclusion:   "confirmed",
		KeyNoveltyScore: 0.9,
	})

	a, ok := s.Analysis("A1")
	require.True(t, ok)
	assert.Equal(t, "confirmed", a.Conclusion)
	assert.InDelta(t, 0.9, a.NoveltyScore, 1e-9)

	// Results decoded from JSON can carry numbers in other widths.
	s.Set("A2", map[string]any{KeyConclusion: "x", KeyNoveltyScore: 1})
	a, ok = s.Analysis("A2")
	require.True(t, ok)
	assert.InDelta(t, 1.0, a.NoveltyScore, 1e-9)

	s.Set("A3", map[string]any{KeyConclusion: "no score"})
	_, ok = s.Analysis("A3")
	assert.False(t, ok)
}

func TestStore_Validation(t *testing.T) {
	s := New()
	s.Set("V1", map[string]any{
		KeyIsDiscovery:   true,
		KeyJustification: "novel and significant",
	})

	v, ok := s.Validation("V1")
	require.True(t, ok)
	assert.True(t, v.IsDiscovery)
	assert.Equal(t, "novel and significant", v.Justification)

	_, ok = s.Validation("V2")
	assert.False(t, ok)
}
