package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/discoveryd/internal/dag"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/repair"
	"github.com/fyrsmithlabs/discoveryd/internal/tools"
)

// Patch ids registered by RegisterPatches.
const (
	PatchRefinedSearch     = "refined-search"
	PatchReasoningFallback = "reasoning-fallback"
)

// RegisterPatches fills the repair catalog with the replacement strategies
// a code-patch proposal may select. The proposal's instructions are bound
// into the built strategy.
func RegisterPatches(c *repair.Catalog, client reasoning.Client, tool tools.Tool) {
	c.Register(PatchRefinedSearch,
		"re-run the data collection with a corrected search query derived from the repair instructions",
		func(instructions string) dag.Strategy {
			return &refinedSearch{client: client, tool: tool, instructions: instructions}
		})

	c.Register(PatchReasoningFallback,
		"answer the node's brief from the reasoning service directly, bypassing the failing tool",
		func(instructions string) dag.Strategy {
			return &reasoningFallback{client: client, instructions: instructions}
		})
}

// refinedSearch retries a failed data collection with a query rebuilt from
// the repair instructions instead of the original deliberation.
type refinedSearch struct {
	client       reasoning.Client
	tool         tools.Tool
	instructions string
}

func (s *refinedSearch) Execute(ctx context.Context, in dag.Input) (dag.Result, error) {
	prompt := fmt.Sprintf(
		"A previous search for the task %q failed. Repair instructions: %q. "+
			"Produce a corrected search query. Respond with the query only.",
		briefFor(in), s.instructions)

	queryText, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("deriving refined query: %w", err)
	}

	return callTool(ctx, s.tool, strings.TrimSpace(queryText), in)
}

// reasoningFallback serves the node's brief from the model alone, shaped
// like a data collection result so downstream strategies are unaffected.
type reasoningFallback struct {
	client       reasoning.Client
	instructions string
}

func (s *reasoningFallback) Execute(ctx context.Context, in dag.Input) (dag.Result, error) {
	prompt := fmt.Sprintf(
		"An external tool for the task %q is unavailable. Repair instructions: %q. "+
			"Answer the task from your own knowledge, concisely, and note any uncertainty.",
		briefFor(in), s.instructions)

	text, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("reasoning fallback: %w", err)
	}

	return dag.Result{KeyData: strings.TrimSpace(text), KeySources: []tools.Source{}}, nil
}
