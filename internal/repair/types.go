// Package repair implements the self-repair mechanism: given a failure
// context it consults the reasoning service for a repair proposal, which
// governance then vets before the engine applies it.
//
// Proposals are data, never executable text. A code-patch proposal selects
// a replacement strategy from a fixed, pre-registered catalog and carries
// free-text instructions for it; there is no dynamic code evaluation
// anywhere in the engine.
package repair

import (
	"fmt"

	"github.com/fyrsmithlabs/discoveryd/internal/dag"
)

// ModificationType distinguishes the two repair strategies.
type ModificationType string

const (
	// ArtifactRepair supplies a corrected result for the failing node
	// directly; the node is completed without re-execution.
	ArtifactRepair ModificationType = "artifact_repair"

	// CodePatch replaces the failing node's strategy with a catalog entry
	// and retries the node once.
	CodePatch ModificationType = "code_patch"
)

// Patch names a catalog strategy and carries instructions for it.
type Patch struct {
	ID           string `json:"id"`
	Instructions string `json:"instructions,omitempty"`
}

// Proposal is a reasoning-service-produced remedy for a failed node.
// Exactly one of RepairedArtifact/Patch is meaningful depending on
// ModificationType. Notes carry the diagnosis and justification and must
// never be empty; governance vetoes unjustified proposals.
type Proposal struct {
	ModificationType ModificationType `json:"modification_type"`
	RepairedArtifact map[string]any   `json:"repaired_artifact,omitempty"`
	Patch            *Patch           `json:"patch,omitempty"`
	Notes            []string         `json:"notes"`
}

// Validate checks schema conformance of a decoded proposal. Structural
// soundness beyond the schema (non-empty notes, patch id known to the
// catalog) is governance's job.
func (p *Proposal) Validate() error {
	switch p.ModificationType {
	case ArtifactRepair, CodePatch:
		return nil
	default:
		return fmt.Errorf("unknown modification_type %q", p.ModificationType)
	}
}

// Context is the failure context handed to the mechanism: the error, the
// failing node and the state of its dependencies.
type Context struct {
	Err             string
	Node            *dag.Node
	DependencyState map[string]any
}
