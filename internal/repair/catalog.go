package repair

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/discoveryd/internal/dag"
)

// ErrUnknownPatch indicates a proposal referenced a patch id that was
// never registered.
var ErrUnknownPatch = errors.New("unknown patch")

// StrategyFactory builds a replacement strategy from the proposal's
// free-text instructions.
type StrategyFactory func(instructions string) dag.Strategy

// Catalog is the fixed set of replacement strategies a code-patch proposal
// may choose from. Entries are registered at wiring time, before any run
// starts; the reasoning service is told the available ids and descriptions
// and picks one, rather than authoring executable code.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	description string
	factory     StrategyFactory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]entry)}
}

// Register adds a patch. Re-registering an id replaces the entry.
func (c *Catalog) Register(id, description string, factory StrategyFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = entry{description: description, factory: factory}
}

// Has reports whether id is registered.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// Build constructs the replacement strategy for a vetted patch.
func (c *Catalog) Build(p Patch) (dag.Strategy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[p.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPatch, p.ID)
	}
	return e.factory(p.Instructions), nil
}

// Describe returns "id: description" lines in id order, for inclusion in
// the repair prompt.
func (c *Catalog) Describe() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("%s: %s", id, c.entries[id].description)
	}
	return out
}
