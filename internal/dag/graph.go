package dag

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateID indicates an insertion with an identifier already present
// in the graph.
var ErrDuplicateID = errors.New("duplicate node id")

// Graph owns all nodes of one run. Insertion is monotonic: nodes are added
// incrementally, including mid-run, and never removed. There is no cycle
// detection; a cycle simply never becomes runnable, so callers bound the
// drain loop with an iteration cap.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// Add inserts a node. Inserting an id that already exists is rejected.
func (g *Graph) Add(n *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

// Get returns the node with the given id.
func (g *Graph) Get(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Runnable returns, in insertion order, every PENDING node whose
// dependencies all resolve to COMPLETED nodes. A dependency id not yet in
// the graph blocks runnability but is never an error: dynamically planned
// sub-graphs may reference nodes inserted moments later, and callers insert
// all referenced nodes before draining.
func (g *Graph) Runnable() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var runnable []*Node
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Status != StatusPending {
			continue
		}
		satisfied := true
		for _, depID := range n.DependsOn {
			dep, ok := g.nodes[depID]
			if !ok || dep.Status != StatusCompleted {
				satisfied = false
				break
			}
		}
		if satisfied {
			runnable = append(runnable, n)
		}
	}
	return runnable
}

// NearestAncestor walks the dependency edges breadth-first from the node
// with the given id and returns the closest ancestor with the given role.
// It replaces identifier-prefix conventions for locating a node's
// hypothesis or analysis ancestor.
func (g *Graph) NearestAncestor(id, role string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.nodes[id]
	if !ok {
		return nil, false
	}

	visited := map[string]bool{id: true}
	frontier := append([]string(nil), start.DependsOn...)
	for len(frontier) > 0 {
		var next []string
		for _, depID := range frontier {
			if visited[depID] {
				continue
			}
			visited[depID] = true
			dep, ok := g.nodes[depID]
			if !ok {
				continue
			}
			if dep.Role == role {
				return dep, true
			}
			next = append(next, dep.DependsOn...)
		}
		frontier = next
	}
	return nil, false
}
