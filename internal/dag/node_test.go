package dag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/discoveryd/internal/events"
	"github.com/fyrsmithlabs/discoveryd/internal/runstate"
)

func testInput(id string) Input {
	return Input{
		TaskID: id,
		State:  runstate.New(),
		Graph:  NewGraph(),
		RunID:  "run-1",
		Events: events.NewLog(),
	}
}

func TestNode_Execute_Completes(t *testing.T) {
	n := NewNode("H1", "Hypothesize", "generate hypothesis", StrategyFunc(
		func(ctx context.Context, in Input) (Result, error) {
			return Result{"hypothesis": "h"}, nil
		}))

	res, err := n.Execute(context.Background(), testInput("H1"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, n.Status)
	assert.Equal(t, "h", res["hypothesis"])
	assert.Equal(t, "H1", res[ResultKeyTaskID])
	assert.Equal(t, "Hypothesize", res[ResultKeyRole])
	assert.Equal(t, string(StatusCompleted), res[ResultKeyStatus])
}

func TestNode_Execute_StrategyErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	n := NewNode("E1-T1", "DataCollection", "b", StrategyFunc(
		func(ctx context.Context, in Input) (Result, error) {
			return nil, boom
		}))

	_, err := n.Execute(context.Background(), testInput("E1-T1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusFailed, n.Status)
}

func TestNode_Execute_UnapprovedResultFails(t *testing.T) {
	cases := []struct {
		name   string
		result Result
		status Status
	}{
		{"approved false", Result{"approved": false}, StatusFailed},
		{"validation failed", Result{"validation": map[string]any{"passed": false}}, StatusFailed},
		{"flags absent default true", Result{}, StatusCompleted},
		{"approved true", Result{"approved": true}, StatusCompleted},
		{"validation passed", Result{"validation": map[string]any{"passed": true}}, StatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := NewNode("V1", "Validate", "b", StrategyFunc(
				func(ctx context.Context, in Input) (Result, error) {
					return tc.result, nil
				}))

			res, err := n.Execute(context.Background(), testInput("V1"))
			require.NoError(t, err)
			assert.Equal(t, tc.status, n.Status)
			assert.Equal(t, string(tc.status), res[ResultKeyStatus])
		})
	}
}

func TestNode_ReplaceStrategy_Once(t *testing.T) {
	n := NewNode("E1-T1", "DataCollection", "b", noop())

	require.NoError(t, n.ReplaceStrategy(noop()))
	assert.True(t, n.Patched())

	err := n.ReplaceStrategy(noop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStrategyReplaced)
}

func TestNode_Execute_RepairingTransitionsToRunning(t *testing.T) {
	observed := make([]Status, 0, 1)
	n := NewNode("E1-T1", "DataCollection", "b", nil)
	n.strategy = StrategyFunc(func(ctx context.Context, in Input) (Result, error) {
		observed = append(observed, n.Status)
		return Result{}, nil
	})
	n.Status = StatusRepairing

	_, err := n.Execute(context.Background(), testInput("E1-T1"))
	require.NoError(t, err)
	require.Len(t, observed, 1)
	assert.Equal(t, StatusRunning, observed[0])
	assert.Equal(t, StatusCompleted, n.Status)
}

func TestTasksFromResult(t *testing.T) {
	tasks := []TaskDef{{TaskID: "E1-T1", Role: "DataCollection", Brief: "b"}}
	assert.Equal(t, tasks, TasksFromResult(Result{ResultKeyTasks: tasks}))
	assert.Nil(t, TasksFromResult(Result{}))
	assert.Nil(t, TasksFromResult(Result{ResultKeyTasks: "not a plan"}))
}

func TestTasksFromResult_DecodedPlan(t *testing.T) {
	// A repaired result arrives JSON-decoded: generic maps, not TaskDefs.
	decoded := []any{
		map[string]any{"taskId": "E1-T1", "role": "Simulation", "brief": "simulate", "dependsOn": []any{}},
		map[string]any{"taskId": "E1-T2", "role": "Analyze", "brief": "analyze", "dependsOn": []any{"E1-T1"}},
	}
	got := TasksFromResult(Result{ResultKeyTasks: decoded})
	require.Len(t, got, 2)
	assert.Equal(t, TaskDef{TaskID: "E1-T1", Role: "Simulation", Brief: "simulate", DependsOn: []string{}}, got[0])
	assert.Equal(t, []string{"E1-T1"}, got[1].DependsOn)

	assert.Nil(t, TasksFromResult(Result{ResultKeyTasks: []any{"not a task"}}))
}
