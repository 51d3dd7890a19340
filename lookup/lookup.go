// Package lookup answers the questions a worker asks outside of an entity's
// own history: what a property is called, what an entity is, and whether one
// class descends from another.
package lookup

import (
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Relations whose transitive closure is cached. SubclassOf is the one
// followed when walking the class hierarchy.
const (
	SubclassOf = "P279"
	PartOf     = "P361"
	LocatedIn  = "P131"
)

// ErrUnavailable is returned when a lookup backend can't answer.
var ErrUnavailable = errors.New("lookup unavailable")

// EntityInfo is what is known about an entity outside of its history.
type EntityInfo struct {
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Types       []string `json:"types"`
}

// PropertyLabels maps property ids like "P31" to their English label.
type PropertyLabels interface {
	PropertyLabel(pid string) (string, error)
}

// Entities maps entity ids to their EntityInfo. Unknown ids give a zero
// EntityInfo and no error.
type Entities interface {
	Entity(id string) (EntityInfo, error)
}

// Closure answers reachability questions over a relation such as P279.
type Closure interface {
	// IsAncestor reports whether ancestor is reachable from child by
	// following relation one or more times.
	IsAncestor(child, ancestor, relation string) (bool, error)
}

// Lookups is everything a worker needs.
type Lookups interface {
	PropertyLabels
	Entities
	Closure
}

// Handle is a Lookups owned by a single worker.
type Handle interface {
	Lookups
	io.Closer
}

// Opener hands out Handles. Each worker opens its own.
type Opener interface {
	Open() (Handle, error)
}

// Static is an in-memory Lookups. It is safe for concurrent use once
// populated.
type Static struct {
	Properties map[string]string
	Infos      map[string]EntityInfo

	mu      sync.Mutex
	parents map[string]map[string][]string
	closure map[string]map[string]map[string]struct{}
}

// NewStatic returns an empty Static.
func NewStatic() *Static {
	return &Static{
		Properties: make(map[string]string),
		Infos:      make(map[string]EntityInfo),
		parents:    make(map[string]map[string][]string),
		closure:    make(map[string]map[string]map[string]struct{}),
	}
}

// AddEdge records that child points to parent through relation.
func (s *Static) AddEdge(relation, child, parent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.parents[relation]
	if !ok {
		rel = make(map[string][]string)
		s.parents[relation] = rel
	}
	rel[child] = append(rel[child], parent)
	delete(s.closure, relation)
}

// Ancestors returns every entity reachable from child through relation,
// sorted.
func (s *Static) Ancestors(child, relation string) []string {
	s.mu.Lock()
	set := s.ancestors(child, relation)
	s.mu.Unlock()
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// ancestors does a breadth first walk of the parent map. Cycles are
// tolerated. s.mu must be held.
func (s *Static) ancestors(child, relation string) map[string]struct{} {
	rc, ok := s.closure[relation]
	if !ok {
		rc = make(map[string]map[string]struct{})
		s.closure[relation] = rc
	}
	if set, ok := rc[child]; ok {
		return set
	}
	set := make(map[string]struct{})
	queue := append([]string(nil), s.parents[relation][child]...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := set[cur]; ok {
			continue
		}
		set[cur] = struct{}{}
		queue = append(queue, s.parents[relation][cur]...)
	}
	rc[child] = set
	return set
}

// Relations returns the relations that have edges.
func (s *Static) Relations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rels := make([]string, 0, len(s.parents))
	for r := range s.parents {
		rels = append(rels, r)
	}
	sort.Strings(rels)
	return rels
}

// Children returns every entity with at least one edge in relation.
func (s *Static) Children(relation string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.parents[relation]))
	for c := range s.parents[relation] {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// PropertyLabel implements PropertyLabels.
func (s *Static) PropertyLabel(pid string) (string, error) {
	return s.Properties[pid], nil
}

// Entity implements Entities.
func (s *Static) Entity(id string) (EntityInfo, error) {
	return s.Infos[id], nil
}

// IsAncestor implements Closure.
func (s *Static) IsAncestor(child, ancestor, relation string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ancestors(child, relation)[ancestor]
	return ok, nil
}

// Open implements Opener. Every worker shares s.
func (s *Static) Open() (Handle, error) { return s, nil }

// Close is a no-op.
func (s *Static) Close() error { return nil }
