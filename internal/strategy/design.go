package strategy

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/discoveryd/internal/dag"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
)

// Design plans a small experiment sub-graph to test the nearest ancestor
// hypothesis. The plan is data only; the engine inserts the tasks and binds
// strategies via the registry.
type Design struct {
	client reasoning.Client
}

// NewDesign creates the strategy.
func NewDesign(client reasoning.Client) (*Design, error) {
	if client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	return &Design{client: client}, nil
}

type experimentPlan struct {
	Tasks []dag.TaskDef `json:"tasks"`
}

// Validate checks the decoded plan. An empty plan is legal (the engine
// skips the cycle); a task without an id or role is not.
func (p experimentPlan) Validate() error {
	seen := make(map[string]bool, len(p.Tasks))
	for i, t := range p.Tasks {
		if t.TaskID == "" {
			return fmt.Errorf("task %d has no taskId", i)
		}
		if t.Role == "" {
			return fmt.Errorf("task %q has no role", t.TaskID)
		}
		if seen[t.TaskID] {
			return fmt.Errorf("duplicate taskId %q in plan", t.TaskID)
		}
		seen[t.TaskID] = true
	}
	return nil
}

// Execute implements dag.Strategy.
func (d *Design) Execute(ctx context.Context, in dag.Input) (dag.Result, error) {
	_, hypothesis, err := hypothesisFor(in)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		`You are an experimental designer in a perpetual discovery engine.
Your task is to design a simple, executable experiment to test a hypothesis.
The experiment will be a small plan of 1-3 tasks.
The available task roles are: 'DataCollection' (uses a search tool), 'Simulation' (uses pure reasoning to predict outcomes), 'CrossReference' (compares data from multiple sources).

Hypothesis to test: %q

Generate a JSON object containing a "tasks" array. Each task needs a unique taskId (e.g., E1-T1, E1-T2), role, a brief description, and its dependencies within this experiment. The first task should not have dependencies.
Example:
{
  "tasks": [
    { "taskId": "E1-T1", "role": "DataCollection", "brief": "Search for existing data on topic X.", "dependsOn": [] },
    { "taskId": "E1-T2", "role": "Simulation", "brief": "Simulate the effect of Y based on data from E1-T1.", "dependsOn": ["E1-T1"] }
  ]
}`, hypothesis)

	var plan experimentPlan
	if err := d.client.GenerateJSON(ctx, prompt, &plan); err != nil {
		return nil, fmt.Errorf("designing experiment: %w", err)
	}

	for i := range plan.Tasks {
		if plan.Tasks[i].DependsOn == nil {
			plan.Tasks[i].DependsOn = []string{}
		}
	}

	return dag.Result{dag.ResultKeyTasks: plan.Tasks}, nil
}
