// Package runstate holds the shared, mutable state of a single discovery
// run: every node's result keyed by node id, plus a few well-known keys
// written by the engine. The store is exclusively owned by one run; there
// is no cross-run sharing.
package runstate

import (
	"strings"
	"sync"
)

// Well-known keys written by the engine rather than by a node.
const (
	// KeyDomain is the run's goal as provided by the caller.
	KeyDomain = "domain"

	// KeyKnowledge is the rolling natural-language knowledge log appended
	// after every analysis, regardless of outcome.
	KeyKnowledge = "knowledge"
)

// Result keys with typed accessors. Strategies write an open map; these
// constants name the payload keys the engine itself consumes.
const (
	KeyHypothesis    = "hypothesis"
	KeyConclusion    = "conclusion"
	KeyNoveltyScore  = "novelty_score"
	KeyIsDiscovery   = "is_discovery"
	KeyJustification = "justification"
)

// Analysis is the typed view of an Analyze node's result.
type Analysis struct {
	Conclusion   string
	NoveltyScore float64
}

// Verdict is the typed view of a Validate node's result.
type Verdict struct {
	IsDiscovery   bool
	Justification string
}

// Store is a concurrency-safe key-value store for one run. A node's result
// is written at most once during normal completion, and exactly once more
// only if replaced by an artifact repair; that invariant is enforced by the
// engine's write path, not by the store.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[string]any)}
}

// Set writes a value under key, replacing any previous value.
func (s *Store) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Result returns the node result map stored under id.
func (s *Store) Result(id string) (map[string]any, bool) {
	v, ok := s.Get(id)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Snapshot returns a copy of the entries for the given ids, skipping ids
// that have no value yet. It is the "relevant dependency state" handed to
// strategies and the repair mechanism.
func (s *Store) Snapshot(ids []string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(ids))
	for _, id := range ids {
		if v, ok := s.values[id]; ok {
			out[id] = v
		}
	}
	return out
}

// Domain returns the run's goal.
func (s *Store) Domain() string {
	v, _ := s.Get(KeyDomain)
	str, _ := v.(string)
	return str
}

// Knowledge returns the accumulated knowledge log.
func (s *Store) Knowledge() string {
	v, _ := s.Get(KeyKnowledge)
	str, _ := v.(string)
	return str
}

// AppendKnowledge adds one entry to the knowledge log.
func (s *Store) AppendKnowledge(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, _ := s.values[KeyKnowledge].(string)
	s.values[KeyKnowledge] = current + "\n- " + strings.TrimSpace(entry)
}

// Hypothesis returns the hypothesis string from the result stored under id.
func (s *Store) Hypothesis(id string) (string, bool) {
	m, ok := s.Result(id)
	if !ok {
		return "", false
	}
	h, ok := m[KeyHypothesis].(string)
	return h, ok && h != ""
}

// Analysis returns the typed analysis result stored under id.
func (s *Store) Analysis(id string) (Analysis, bool) {
	m, ok := s.Result(id)
	if !ok {
		return Analysis{}, false
	}
	conclusion, _ := m[KeyConclusion].(string)
	score, ok := toFloat(m[KeyNoveltyScore])
	if !ok {
		return Analysis{}, false
	}
	return Analysis{Conclusion: conclusion, NoveltyScore: score}, true
}

// Validation returns the typed discovery verdict stored under id.
func (s *Store) Validation(id string) (Verdict, bool) {
	m, ok := s.Result(id)
	if !ok {
		return Verdict{}, false
	}
	isDiscovery, ok := m[KeyIsDiscovery].(bool)
	if !ok {
		return Verdict{}, false
	}
	justification, _ := m[KeyJustification].(string)
	return Verdict{IsDiscovery: isDiscovery, Justification: justification}, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
