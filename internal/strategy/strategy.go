// Package strategy implements the per-role domain logic bound to discovery
// graph nodes, and the registry that resolves a planned task's role to a
// strategy at insertion time.
package strategy

import (
	"fmt"

	"github.com/fyrsmithlabs/discoveryd/internal/dag"
)

// Node roles understood by the engine. The planner may emit any role; the
// registry falls back to its default strategy for roles it does not know,
// so an inventive plan degrades to pure reasoning instead of failing.
const (
	RoleHypothesize    = "Hypothesize"
	RoleDesign         = "ExperimentDesign"
	RoleDataCollection = "DataCollection"
	RoleSimulation     = "Simulation"
	RoleCrossReference = "CrossReference"
	RoleAnalyze        = "Analyze"
	RoleValidate       = "Validate"
)

// Result keys shared across strategies beyond the runstate accessors.
const (
	KeyData              = "data"
	KeySources           = "sources"
	KeySimulationResult  = "simulation_result"
	KeyReport            = "report"
	KeyStrategyID        = "strategy_id"
	KeyStrategyStatement = "strategy_statement"
)

// Registry resolves roles to strategies. The default strategy serves any
// role without an explicit registration.
type Registry struct {
	strategies map[string]dag.Strategy
	def        dag.Strategy
}

// NewRegistry creates a registry with the given fallback strategy.
func NewRegistry(def dag.Strategy) (*Registry, error) {
	if def == nil {
		return nil, fmt.Errorf("default strategy is required")
	}
	return &Registry{strategies: make(map[string]dag.Strategy), def: def}, nil
}

// Register binds a role to a strategy, replacing any prior binding.
func (r *Registry) Register(role string, s dag.Strategy) {
	r.strategies[role] = s
}

// Resolve returns the strategy for role, or the default.
func (r *Registry) Resolve(role string) dag.Strategy {
	if s, ok := r.strategies[role]; ok {
		return s
	}
	return r.def
}

// hypothesisFor walks the dependency ancestry of the executing node to its
// nearest hypothesis and returns that node's id and statement.
func hypothesisFor(in dag.Input) (string, string, error) {
	node, ok := in.Graph.NearestAncestor(in.TaskID, RoleHypothesize)
	if !ok {
		return "", "", fmt.Errorf("could not find parent hypothesis for node %s", in.TaskID)
	}
	text, ok := in.State.Hypothesis(node.ID)
	if !ok {
		return "", "", fmt.Errorf("could not find parent hypothesis state for node %s", in.TaskID)
	}
	return node.ID, text, nil
}

// briefFor returns the executing node's brief.
func briefFor(in dag.Input) string {
	if node, ok := in.Graph.Get(in.TaskID); ok {
		return node.Brief
	}
	return ""
}
