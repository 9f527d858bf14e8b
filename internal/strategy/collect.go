package strategy

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/dag"
	"github.com/fyrsmithlabs/discoveryd/internal/events"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/tools"
)

// DataCollection derives a search query from the goal, the governing
// hypothesis and the node's brief, then invokes the search tool. Tool
// failures are strategy failures so the repair mechanism can intervene.
type DataCollection struct {
	client reasoning.Client
	tool   tools.Tool
	logger *zap.Logger
}

// NewDataCollection creates the strategy.
func NewDataCollection(client reasoning.Client, tool tools.Tool, logger *zap.Logger) (*DataCollection, error) {
	if client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	if tool == nil {
		return nil, fmt.Errorf("tool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataCollection{client: client, tool: tool, logger: logger}, nil
}

// Execute implements dag.Strategy.
func (c *DataCollection) Execute(ctx context.Context, in dag.Input) (dag.Result, error) {
	_, hypothesis, err := hypothesisFor(in)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"For the overall goal %q, under the hypothesis %q, and for the specific task %q, "+
			"what is the best search query to execute? Respond with the query only.",
		in.State.Domain(), hypothesis, briefFor(in))

	queryText, err := c.client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("deriving search query: %w", err)
	}
	query := strings.TrimSpace(queryText)

	return callTool(ctx, c.tool, query, in)
}

// callTool invokes a tool with progress events and folds a not-OK result
// into a strategy error.
func callTool(ctx context.Context, tool tools.Tool, query string, in dag.Input) (dag.Result, error) {
	in.Events.Emit(events.Event{
		NodeID: in.TaskID,
		Type:   events.TypeNodeToolStart,
		Data:   map[string]any{"name": tool.Name(), "input": query},
	}, in.RunID)

	res, err := tool.Call(ctx, tools.Input{Query: query}, tools.Context{RunID: in.RunID})
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", tool.Name(), err)
	}

	in.Events.Emit(events.Event{
		NodeID: in.TaskID,
		Type:   events.TypeNodeToolResult,
		Data:   map[string]any{"name": tool.Name(), "output": res},
	}, in.RunID)

	if !res.OK {
		return nil, fmt.Errorf("tool %s failed: %s", tool.Name(), res.Data)
	}

	sources := res.Sources
	if sources == nil {
		sources = []tools.Source{}
	}
	return dag.Result{KeyData: res.Data, KeySources: sources}, nil
}
