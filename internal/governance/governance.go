// Package governance holds the run-level policy limits and the veto gate
// every repair proposal must pass before the engine applies it.
package governance

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/repair"
)

// Policy bounds a run. All limits are hard: the engine halts or vetoes
// when one is reached, it never stretches them.
type Policy struct {
	// MaxCycles caps the number of discovery cycles a run may execute.
	MaxCycles int `koanf:"max_cycles"`

	// NoveltyThreshold is the minimum novelty score an analysis must reach
	// before its conclusion is escalated to validation.
	NoveltyThreshold float64 `koanf:"novelty_threshold"`

	// MaxRepairAttempts caps self-repair attempts per node. Exceeding it
	// fails the node permanently.
	MaxRepairAttempts int `koanf:"max_repair_attempts"`

	// ClarificationConfidence is the minimum self-assessed confidence a
	// deliberated decision needs before it is used without escalation.
	ClarificationConfidence float64 `koanf:"clarification_confidence"`

	// MaxRecursionDepth caps how deep dynamically spawned work may nest.
	MaxRecursionDepth int `koanf:"max_recursion_depth"`
}

// DefaultPolicy returns the stock limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxCycles:               5,
		NoveltyThreshold:        0.75,
		MaxRepairAttempts:       1,
		ClarificationConfidence: 0.6,
		MaxRecursionDepth:       50,
	}
}

// Validate checks the policy is internally sane.
func (p Policy) Validate() error {
	if p.MaxCycles < 1 {
		return fmt.Errorf("max_cycles must be at least 1, got %d", p.MaxCycles)
	}
	if p.NoveltyThreshold < 0 || p.NoveltyThreshold > 1 {
		return fmt.Errorf("novelty_threshold must be in [0,1], got %v", p.NoveltyThreshold)
	}
	if p.MaxRepairAttempts < 0 {
		return fmt.Errorf("max_repair_attempts must not be negative, got %d", p.MaxRepairAttempts)
	}
	if p.ClarificationConfidence < 0 || p.ClarificationConfidence > 1 {
		return fmt.Errorf("clarification_confidence must be in [0,1], got %v", p.ClarificationConfidence)
	}
	if p.MaxRecursionDepth < 1 {
		return fmt.Errorf("max_recursion_depth must be at least 1, got %d", p.MaxRecursionDepth)
	}
	return nil
}

// Verdict is the outcome of vetting a proposal.
type Verdict struct {
	Approved bool
	Comment  string
}

// Governor vets repair proposals against the policy. Vetting is purely
// structural: it checks that the proposal is well-formed, justified and
// references only pre-registered patches, not that the repair will work.
type Governor struct {
	policy  Policy
	logger  *zap.Logger
	catalog *repair.Catalog
}

// NewGovernor creates a governor for the given policy.
func NewGovernor(policy Policy, logger *zap.Logger) (*Governor, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{policy: policy, logger: logger}, nil
}

// Policy returns the governing limits.
func (g *Governor) Policy() Policy { return g.policy }

// BindCatalog gives the governor visibility into the patch catalog, so a
// code patch naming an unregistered patch is vetoed rather than failing
// later at application. Without a bound catalog only the id's presence is
// checked.
func (g *Governor) BindCatalog(c *repair.Catalog) {
	g.catalog = c
}

// Vet inspects a proposal and approves or vetoes it. A vetoed proposal is
// never applied; the failing node stays failed.
func (g *Governor) Vet(p *repair.Proposal) Verdict {
	if p == nil {
		return g.veto("no proposal to vet")
	}
	if err := p.Validate(); err != nil {
		return g.veto(err.Error())
	}
	if len(p.Notes) == 0 {
		return g.veto("proposal carries no diagnosis notes")
	}

	switch p.ModificationType {
	case repair.ArtifactRepair:
		if len(p.RepairedArtifact) == 0 {
			return g.veto("artifact repair without a repaired artifact")
		}
	case repair.CodePatch:
		if p.Patch == nil || p.Patch.ID == "" {
			return g.veto("code patch without a catalog patch id")
		}
		if g.catalog != nil && !g.catalog.Has(p.Patch.ID) {
			return g.veto(fmt.Sprintf("code patch references unknown catalog patch %q", p.Patch.ID))
		}
	}

	return Verdict{Approved: true, Comment: "proposal is well-formed and justified"}
}

func (g *Governor) veto(reason string) Verdict {
	g.logger.Warn("repair proposal vetoed", zap.String("reason", reason))
	return Verdict{Approved: false, Comment: reason}
}
