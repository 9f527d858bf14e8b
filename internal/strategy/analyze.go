package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/discoveryd/internal/dag"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/runstate"
)

// Analyze judges the experiment results against the governing hypothesis
// and scores how unexpected the outcome was. The novelty score is what
// decides whether the engine escalates to validation.
type Analyze struct {
	client reasoning.Client
}

// NewAnalyze creates the strategy.
func NewAnalyze(client reasoning.Client) (*Analyze, error) {
	if client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	return &Analyze{client: client}, nil
}

type analysisResponse struct {
	Conclusion   string  `json:"conclusion"`
	NoveltyScore float64 `json:"novelty_score"`
}

func (r analysisResponse) Validate() error {
	if r.Conclusion == "" {
		return fmt.Errorf("empty conclusion")
	}
	if r.NoveltyScore < 0 || r.NoveltyScore > 1 {
		return fmt.Errorf("novelty_score %v out of [0,1]", r.NoveltyScore)
	}
	return nil
}

// Execute implements dag.Strategy.
func (a *Analyze) Execute(ctx context.Context, in dag.Input) (dag.Result, error) {
	hypoID, hypothesis, err := hypothesisFor(in)
	if err != nil {
		return nil, err
	}

	var results []string
	for _, depID := range in.DependsOn {
		if depID == hypoID {
			continue
		}
		res, ok := in.State.Result(depID)
		if !ok {
			continue
		}
		b, err := json.Marshal(res)
		if err != nil {
			continue
		}
		results = append(results, fmt.Sprintf("Result from %s: %s", depID, b))
	}

	prompt := fmt.Sprintf(
		`Analyze the results of an experiment.
Hypothesis: %q
Experiment Results:
%s

1. Did the results confirm, refute, or are they inconclusive regarding the hypothesis?
2. Most importantly, calculate a 'novelty score' from 0.0 to 1.0, where 1.0 means the result was completely unexpected and surprising given general knowledge.

Return a JSON object with keys "conclusion" (string) and "novelty_score" (number).`,
		hypothesis, strings.Join(results, "\n"))

	var resp analysisResponse
	if err := a.client.GenerateJSON(ctx, prompt, &resp); err != nil {
		return nil, fmt.Errorf("analyzing results: %w", err)
	}

	return dag.Result{
		runstate.KeyConclusion:   resp.Conclusion,
		runstate.KeyNoveltyScore: resp.NoveltyScore,
	}, nil
}
