// Package dag implements the in-memory task graph a discovery run is
// scheduled over: nodes wrapping pluggable strategies, keyed by identifier,
// with incremental insertion and a runnable query. Nodes may be added
// mid-run; they are never removed, so the full run history stays
// inspectable through the graph.
package dag

import (
	"context"
	"encoding/json"

	"github.com/fyrsmithlabs/discoveryd/internal/events"
	"github.com/fyrsmithlabs/discoveryd/internal/runstate"
)

// Status is a node's scheduling state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRepairing Status = "REPAIRING"
)

// Result is the open map a strategy produces. Two optional keys influence
// the node's final status: "approved" (bool) and "validation" (a map whose
// "passed" bool is consulted); both default to true when absent. Every
// other key is strategy-specific payload.
type Result map[string]any

// Keys merged into a result by Node.Execute.
const (
	ResultKeyTaskID   = "taskId"
	ResultKeyRole     = "role"
	ResultKeyStatus   = "status"
	ResultKeyRepaired = "repaired"
)

// Approved reports whether the result's approval flags allow the node to
// complete. Absent flags count as approval.
func (r Result) Approved() bool {
	if v, ok := r["approved"]; ok {
		if approved, ok := v.(bool); ok && !approved {
			return false
		}
	}
	if v, ok := r["validation"]; ok {
		if validation, ok := v.(map[string]any); ok {
			if passed, ok := validation["passed"].(bool); ok && !passed {
				return false
			}
		}
	}
	return true
}

// Input carries everything a strategy may consult: the node's identity and
// unresolved dependency identifiers, the shared run state, the graph, the
// run id and the event log for tool-call progress events.
type Input struct {
	TaskID    string
	DependsOn []string
	State     *runstate.Store
	Graph     *Graph
	RunID     string
	Events    *events.Log
}

// Strategy is a unit of domain logic bound to a node. Implementations must
// not mutate node status; that is the scheduler's job.
type Strategy interface {
	Execute(ctx context.Context, in Input) (Result, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context, in Input) (Result, error)

// Execute calls f(ctx, in).
func (f StrategyFunc) Execute(ctx context.Context, in Input) (Result, error) {
	return f(ctx, in)
}

// TaskDef describes one node of a dynamically planned sub-graph, as
// produced by an experiment-design strategy. DependsOn lists intra-plan
// task ids; the engine rewrites them to absolute dependencies on insertion.
type TaskDef struct {
	TaskID    string   `json:"taskId"`
	Role      string   `json:"role"`
	Brief     string   `json:"brief"`
	DependsOn []string `json:"dependsOn"`
}

// ResultKeyTasks is the result key an experiment-design strategy stores its
// plan under, as a []TaskDef.
const ResultKeyTasks = "tasks"

// TasksFromResult extracts the planned sub-graph from a design result.
// A missing, empty or unintelligible plan returns nil. The plan arrives
// either typed (a design strategy's own result) or as generic JSON-decoded
// maps (a repaired result), so both shapes are accepted.
func TasksFromResult(r Result) []TaskDef {
	v, ok := r[ResultKeyTasks]
	if !ok {
		return nil
	}
	switch tasks := v.(type) {
	case []TaskDef:
		return tasks
	case []any:
		raw, err := json.Marshal(tasks)
		if err != nil {
			return nil
		}
		var defs []TaskDef
		if err := json.Unmarshal(raw, &defs); err != nil {
			return nil
		}
		return defs
	}
	return nil
}
