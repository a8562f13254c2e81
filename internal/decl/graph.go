package decl

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicate = errors.New("duplicate resource")
	ErrDangling  = errors.New("reference to undeclared resource")
	ErrCycle     = errors.New("dependency cycle")
)

// Graph is an insertion-ordered set of declarations and the edges between
// them. An edge a -> b means a is declared after b.
type Graph struct {
	order     []Ref
	resources map[Ref]Resource
}

func NewGraph() *Graph {
	return &Graph{resources: make(map[Ref]Resource)}
}

// Add records r. Two resources with the same kind and name would collide in
// the engine and are rejected.
func (g *Graph) Add(rs ...Resource) error {
	for _, r := range rs {
		if r.Ref.IsZero() {
			return fmt.Errorf("resource without a name: %w", ErrDangling)
		}
		if _, ok := g.resources[r.Ref]; ok {
			return fmt.Errorf("%s: %w", r.Ref, ErrDuplicate)
		}
		g.resources[r.Ref] = r
		g.order = append(g.order, r.Ref)
	}
	return nil
}

func (g *Graph) Len() int {
	return len(g.order)
}

func (g *Graph) Has(ref Ref) bool {
	_, ok := g.resources[ref]
	return ok
}

func (g *Graph) Get(ref Ref) (Resource, bool) {
	r, ok := g.resources[ref]
	return r, ok
}

// Resources returns the declarations in insertion order.
func (g *Graph) Resources() []Resource {
	out := make([]Resource, 0, len(g.order))
	for _, ref := range g.order {
		out = append(out, g.resources[ref])
	}
	return out
}

// Dependencies returns the direct dependencies of ref.
func (g *Graph) Dependencies(ref Ref) []Ref {
	return g.resources[ref].Edges()
}

// Dependents returns the resources that directly depend on ref, in insertion
// order.
func (g *Graph) Dependents(ref Ref) []Ref {
	var out []Ref
	for _, from := range g.order {
		for _, to := range g.resources[from].Edges() {
			if to == ref {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

// Validate reports dangling references and cycles.
func (g *Graph) Validate() error {
	var dangling []string
	for _, ref := range g.order {
		for _, dep := range g.resources[ref].Edges() {
			if !g.Has(dep) {
				dangling = append(dangling, fmt.Sprintf("%s -> %s", ref, dep))
			}
		}
	}
	if len(dangling) > 0 {
		return fmt.Errorf("%w: %s", ErrDangling, strings.Join(dangling, ", "))
	}
	_, err := g.Order()
	return err
}

// Order returns a topological order of the graph: every resource appears
// after all of its dependencies. Ties are broken by insertion order so the
// result is the same for identical inputs.
func (g *Graph) Order() ([]Ref, error) {
	indegree := make(map[Ref]int, len(g.order))
	dependents := make(map[Ref][]Ref, len(g.order))
	for _, ref := range g.order {
		indegree[ref] += 0
		for _, dep := range g.resources[ref].Edges() {
			if !g.Has(dep) {
				return nil, fmt.Errorf("%s -> %s: %w", ref, dep, ErrDangling)
			}
			indegree[ref]++
			dependents[dep] = append(dependents[dep], ref)
		}
	}

	position := make(map[Ref]int, len(g.order))
	for i, ref := range g.order {
		position[ref] = i
	}

	var ready []Ref
	for _, ref := range g.order {
		if indegree[ref] == 0 {
			ready = append(ready, ref)
		}
	}

	out := make([]Ref, 0, len(g.order))
	for len(ready) > 0 {
		// pick the earliest declared ready resource
		best := 0
		for i := 1; i < len(ready); i++ {
			if position[ready[i]] < position[ready[best]] {
				best = i
			}
		}
		next := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		out = append(out, next)

		for _, d := range dependents[next] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(out) != len(g.order) {
		var stuck []string
		for _, ref := range g.order {
			if indegree[ref] > 0 {
				stuck = append(stuck, ref.String())
			}
		}
		return nil, fmt.Errorf("%w among %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return out, nil
}
