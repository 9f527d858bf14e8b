// Package vetting implements the self-correction gate applied to final
// report artifacts: a report must restate the strategy that produced it
// and contain every section that strategy mandates.
package vetting

import (
	"fmt"
	"strings"
)

// Rules maps a strategy id to the sections its report must contain.
type Rules struct {
	RequiredSections map[string][]string
}

// DefaultRules returns the stock per-strategy section requirements.
func DefaultRules() Rules {
	return Rules{
		RequiredSections: map[string][]string{
			"h1": {"Phase 1"},
			"h2": {"Phase 1", "Phase 2", "Phase 3"},
			"h3": {"Phase 1"},
			"h4": {"Phase 1", "Phase 2"},
			"h5": {"Phase 1", "Phase 2", "Phase 3", "Phase 4"},
		},
	}
}

// Outcome is the result of a self-correction pass.
type Outcome struct {
	Approved bool
	Comment  string
}

// Engine checks artifacts against the rules.
type Engine struct {
	rules Rules
}

// NewEngine creates a self-correction engine. A nil-map Rules means no
// strategy mandates any section.
func NewEngine(rules Rules) *Engine {
	return &Engine{rules: rules}
}

// Check returns a non-empty problem description when the artifact fails
// vetting, or "" when it passes.
func (e *Engine) Check(artifact, planStatement, strategyID string) string {
	if artifact == "" {
		return "Artifact is missing or invalid, cannot be vetted."
	}
	if !strings.Contains(artifact, planStatement) {
		return "Strategy statement missing from artifact."
	}
	for _, section := range e.rules.RequiredSections[strategyID] {
		if !strings.Contains(artifact, section) {
			return fmt.Sprintf("Missing required section for strategy %s: %s.", strategyID, section)
		}
	}
	return ""
}

// Run vets a final artifact and reports the outcome.
func (e *Engine) Run(artifact, planStatement, strategyID string) Outcome {
	if problem := e.Check(artifact, planStatement, strategyID); problem != "" {
		return Outcome{Approved: false, Comment: problem}
	}
	return Outcome{
		Approved: true,
		Comment:  "Artifact passed self-correction. It is coherent with the chosen strategy and includes all required phases.",
	}
}
