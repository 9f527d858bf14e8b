package strategy

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/dag"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoner"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/runstate"
)

// Hypothesize generates a single novel, testable hypothesis from the run's
// domain and accumulated knowledge. With a deliberator configured it first
// commits to a research strategy and records the choice in the result for
// downstream vetting.
type Hypothesize struct {
	client      reasoning.Client
	deliberator *reasoner.Deliberator
	logger      *zap.Logger
}

// NewHypothesize creates the strategy. deliberator may be nil.
func NewHypothesize(client reasoning.Client, deliberator *reasoner.Deliberator, logger *zap.Logger) (*Hypothesize, error) {
	if client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hypothesize{client: client, deliberator: deliberator, logger: logger}, nil
}

// Execute implements dag.Strategy.
func (h *Hypothesize) Execute(ctx context.Context, in dag.Input) (dag.Result, error) {
	domain := in.State.Domain()
	knowledge := in.State.Knowledge()
	if knowledge == "" {
		knowledge = "No knowledge yet."
	}

	var decision *reasoner.Decision
	if h.deliberator != nil {
		d, err := h.deliberator.Decide(ctx, domain)
		if err != nil {
			return nil, fmt.Errorf("deliberation: %w", err)
		}
		decision = &d
		h.logger.Debug("hypothesis deliberation committed",
			zap.String("task_id", in.TaskID),
			zap.String("chosen", d.Chosen.ID))
	}

	var sb strings.Builder
	sb.WriteString("You are a creative researcher in a perpetual discovery engine. ")
	sb.WriteString("Your prime directive is to generate novel hypotheses.\n")
	fmt.Fprintf(&sb, "The discovery domain is: %q.\n", domain)
	fmt.Fprintf(&sb, "Current knowledge base: %q.\n", knowledge)
	if decision != nil {
		fmt.Fprintf(&sb, "Committed research strategy: %q.\n", decision.Chosen.Statement)
	}
	sb.WriteString("\nBased on the gaps or contradictions in the current knowledge, generate a single, ")
	sb.WriteString("novel, and testable hypothesis. The hypothesis should be a concise statement that ")
	sb.WriteString("can be investigated. Avoid repeating previous hypotheses.")

	text, err := h.client.Generate(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("generating hypothesis: %w", err)
	}
	hypothesis := strings.TrimSpace(text)
	if hypothesis == "" {
		return nil, fmt.Errorf("reasoning service returned an empty hypothesis")
	}

	result := dag.Result{runstate.KeyHypothesis: hypothesis}
	if decision != nil {
		result[KeyStrategyID] = decision.Chosen.ID
		result[KeyStrategyStatement] = decision.Chosen.Statement
	}
	return result, nil
}
