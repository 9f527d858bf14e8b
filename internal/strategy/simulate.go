package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/discoveryd/internal/dag"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
)

// Simulation predicts an outcome by pure reasoning over the governing
// hypothesis, the node's brief, and whatever its dependencies produced. It
// also serves CrossReference and any unknown planned role.
type Simulation struct {
	client reasoning.Client
}

// NewSimulation creates the strategy.
func NewSimulation(client reasoning.Client) (*Simulation, error) {
	if client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	return &Simulation{client: client}, nil
}

// Execute implements dag.Strategy.
func (s *Simulation) Execute(ctx context.Context, in dag.Input) (dag.Result, error) {
	_, hypothesis, err := hypothesisFor(in)
	if err != nil {
		return nil, err
	}

	var data []string
	for _, depID := range in.DependsOn {
		res, ok := in.State.Result(depID)
		if !ok {
			continue
		}
		b, err := json.Marshal(res)
		if err != nil {
			continue
		}
		data = append(data, string(b))
	}

	prompt := fmt.Sprintf(
		`Run a pure-thinking simulation.
Hypothesis: %q
Task: %q
Available Data: %s

Based on the data, what is the logical conclusion or predicted outcome of this simulation?`,
		hypothesis, briefFor(in), strings.Join(data, "\n"))

	text, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("running simulation: %w", err)
	}

	return dag.Result{KeySimulationResult: strings.TrimSpace(text)}, nil
}
