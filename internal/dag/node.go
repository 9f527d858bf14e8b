package dag

import (
	"context"
	"errors"
	"fmt"
)

// ErrStrategyReplaced indicates a node's strategy was already replaced
// once; a node accepts at most one approved patch over its lifetime.
var ErrStrategyReplaced = errors.New("node strategy already replaced")

// Node is one scheduling unit: identity, a role tag from an open
// vocabulary, a human-readable brief, dependency identifiers and the bound
// strategy. Status is mutated only by the scheduler's execution path.
type Node struct {
	ID        string
	Role      string
	Brief     string
	DependsOn []string

	// Status transitions: PENDING → RUNNING → {COMPLETED, FAILED};
	// FAILED → REPAIRING → PENDING → RUNNING is the only re-entrant path.
	Status Status

	strategy Strategy
	patched  bool
}

// NewNode creates a PENDING node bound to the given strategy.
func NewNode(id, role, brief string, strategy Strategy, dependsOn ...string) *Node {
	return &Node{
		ID:        id,
		Role:      role,
		Brief:     brief,
		DependsOn: dependsOn,
		Status:    StatusPending,
		strategy:  strategy,
	}
}

// ReplaceStrategy swaps the bound strategy for a repaired one. Allowed
// exactly once per node; the caller resets the node to PENDING afterwards.
func (n *Node) ReplaceStrategy(s Strategy) error {
	if n.patched {
		return fmt.Errorf("%w: node %s", ErrStrategyReplaced, n.ID)
	}
	if s == nil {
		return fmt.Errorf("replacement strategy for node %s is nil", n.ID)
	}
	n.strategy = s
	n.patched = true
	return nil
}

// Patched reports whether the node's strategy was replaced by a repair.
func (n *Node) Patched() bool { return n.patched }

// Execute transitions the node to RUNNING, invokes the bound strategy and
// maps the outcome to COMPLETED or FAILED. A strategy error marks the node
// FAILED and is propagated to the caller for repair handling, never
// swallowed. On success the returned result is the strategy's result merged
// with the node's taskId, role and final status; writing it to shared state
// is the caller's responsibility so that a failure never leaves a partial
// state entry.
func (n *Node) Execute(ctx context.Context, in Input) (Result, error) {
	n.Status = StatusRunning

	res, err := n.strategy.Execute(ctx, in)
	if err != nil {
		n.Status = StatusFailed
		return nil, fmt.Errorf("node %s (%s): %w", n.ID, n.Role, err)
	}

	if res.Approved() {
		n.Status = StatusCompleted
	} else {
		n.Status = StatusFailed
	}

	merged := make(Result, len(res)+3)
	for k, v := range res {
		merged[k] = v
	}
	merged[ResultKeyTaskID] = n.ID
	merged[ResultKeyRole] = n.Role
	merged[ResultKeyStatus] = string(n.Status)
	return merged, nil
}
