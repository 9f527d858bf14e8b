package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/dag"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/runstate"
	"github.com/fyrsmithlabs/discoveryd/internal/vetting"
)

// Validate is the final arbiter over a high-novelty conclusion: it asks the
// reasoning service whether the finding is a genuine discovery. When the
// hypothesis was produced under a deliberated strategy, the validation
// report is additionally vetted by the self-correction engine, and a
// rejected report downgrades the verdict.
type Validate struct {
	client reasoning.Client
	vetter *vetting.Engine
	logger *zap.Logger
}

// NewValidate creates the strategy. vetter may be nil to skip report
// self-correction.
func NewValidate(client reasoning.Client, vetter *vetting.Engine, logger *zap.Logger) (*Validate, error) {
	if client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validate{client: client, vetter: vetter, logger: logger}, nil
}

type validationResponse struct {
	IsDiscovery   bool   `json:"is_discovery"`
	Justification string `json:"justification"`
	Report        string `json:"report"`
}

func (r validationResponse) Validate() error {
	if r.Justification == "" {
		return fmt.Errorf("empty justification")
	}
	return nil
}

// Execute implements dag.Strategy.
func (v *Validate) Execute(ctx context.Context, in dag.Input) (dag.Result, error) {
	hypoID, hypothesis, err := hypothesisFor(in)
	if err != nil {
		return nil, err
	}

	analysisNode, ok := in.Graph.NearestAncestor(in.TaskID, RoleAnalyze)
	if !ok {
		return nil, fmt.Errorf("could not find parent analysis for node %s", in.TaskID)
	}
	analysis, ok := in.State.Analysis(analysisNode.ID)
	if !ok {
		return nil, fmt.Errorf("could not find parent analysis state for node %s", in.TaskID)
	}

	strategyID, strategyStatement := deliberationFor(in.State, hypoID)

	prompt := fmt.Sprintf(
		`A potential discovery has been made with a high novelty score. As the final arbiter, you must validate it.
Hypothesis: %q
Analysis Conclusion: %q
Novelty Score: %v

Does this constitute a "Eureka" moment? Is it truly novel and significant enough to be considered a discovery and halt the engine?`,
		hypothesis, analysis.Conclusion, analysis.NoveltyScore)

	if strategyStatement != "" {
		prompt += fmt.Sprintf(
			"\nAlso write a validation report that restates the research strategy %q and works through "+
				"its phases as numbered sections (\"Phase 1\", \"Phase 2\", ...).", strategyStatement)
		prompt += `
Return a JSON object with keys "is_discovery" (boolean), "justification" (string) and "report" (string).`
	} else {
		prompt += `
Return a JSON object with keys "is_discovery" (boolean) and "justification" (string).`
	}

	var resp validationResponse
	if err := v.client.GenerateJSON(ctx, prompt, &resp); err != nil {
		return nil, fmt.Errorf("validating discovery: %w", err)
	}

	result := dag.Result{
		runstate.KeyIsDiscovery:   resp.IsDiscovery,
		runstate.KeyJustification: resp.Justification,
	}
	if resp.Report != "" {
		result[KeyReport] = resp.Report
	}

	if v.vetter != nil && strategyStatement != "" {
		outcome := v.vetter.Run(resp.Report, strategyStatement, strategyID)
		if !outcome.Approved {
			v.logger.Warn("validation report failed self-correction",
				zap.String("task_id", in.TaskID),
				zap.String("comment", outcome.Comment))
			result[runstate.KeyIsDiscovery] = false
			result[runstate.KeyJustification] = fmt.Sprintf("%s (self-correction: %s)",
				resp.Justification, outcome.Comment)
		}
	}

	return result, nil
}

// deliberationFor reads the strategy choice recorded by a deliberated
// hypothesis node, if any.
func deliberationFor(state *runstate.Store, hypoID string) (id, statement string) {
	res, ok := state.Result(hypoID)
	if !ok {
		return "", ""
	}
	id, _ = res[KeyStrategyID].(string)
	statement, _ = res[KeyStrategyStatement].(string)
	return id, statement
}
