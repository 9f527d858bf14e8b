package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
)

func TestNewSearch_RequiresClient(t *testing.T) {
	_, err := NewSearch(nil, nil)
	require.Error(t, err)
}

func TestSearch_Call_ReturnsAnswerAndSources(t *testing.T) {
	fake := reasoning.NewFake(`{
		"answer": "Timsort is the standard library default in several languages.",
		"sources": [{"uri": "https://example.org/timsort", "title": "Timsort"}]
	}`)
	s, err := NewSearch(fake, nil)
	require.NoError(t, err)

	res, err := s.Call(context.Background(), Input{Query: "state of the art sorting"}, Context{RunID: "run-1"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Data, "Timsort")
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "https://example.org/timsort", res.Sources[0].URI)

	prompts := fake.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "state of the art sorting")
}

func TestSearch_Call_TransportFailureIsNotOK(t *testing.T) {
	fake := reasoning.NewFake()
	fake.QueueError(errors.New("connection refused"))
	s, err := NewSearch(fake, nil)
	require.NoError(t, err)

	res, err := s.Call(context.Background(), Input{Query: "q"}, Context{RunID: "run-1"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Data)
}

func TestSearch_Call_MalformedResponseIsNotOK(t *testing.T) {
	fake := reasoning.NewFake(`{"sources": []}`) // empty answer fails validation
	s, err := NewSearch(fake, nil)
	require.NoError(t, err)

	res, err := s.Call(context.Background(), Input{Query: "q"}, Context{RunID: "run-1"})
	require.NoError(t, err)
	assert.False(t, res.OK)
}
