package lifetime

import (
	"golang.org/x/tools/container/intsets"

	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
)

// GraphID identifies one lifetime graph (one diagram scope).
type GraphID int

// NoGraph is the parent of a root graph.
const NoGraph GraphID = -1

type graph struct {
	id      GraphID
	parent  *graph
	depth   int
	diagram *Lifetime // outlasts every lifetime created bounded by the graph
}

// Tree is a forest of lifetime graphs. The outlasts relation is stored per
// bounded lifetime as the set of lifetime ids it directly outlasts.
type Tree struct {
	graphs    map[GraphID]*graph
	lifetimes []*Lifetime
	outlasts  []*intsets.Sparse
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{graphs: make(map[GraphID]*graph)}
}

// EstablishLifetimeGraph registers graph id nested in parent (NoGraph for a root).
func (t *Tree) EstablishLifetimeGraph(id, parent GraphID) {
	if _, ok := t.graphs[id]; ok {
		ice.Panicf("lifetime graph %d already established", id)
	}
	g := &graph{id: id}
	if parent != NoGraph {
		p, ok := t.graphs[parent]
		if !ok {
			ice.Panicf("lifetime graph %d: unknown parent graph %d", id, parent)
		}
		g.parent = p
		g.depth = p.depth + 1
	}
	t.graphs[id] = g
	g.diagram = t.newLifetime(g)
}

func (t *Tree) newLifetime(g *graph) *Lifetime {
	l := &Lifetime{kind: KindBounded, id: len(t.lifetimes), graph: g.id}
	t.lifetimes = append(t.lifetimes, l)
	t.outlasts = append(t.outlasts, new(intsets.Sparse))
	return l
}

func (t *Tree) graph(id GraphID) *graph {
	g, ok := t.graphs[id]
	if !ok {
		ice.Panicf("unknown lifetime graph %d", id)
	}
	return g
}

func (t *Tree) checkOwned(l *Lifetime) {
	if l.id < 0 || l.id >= len(t.lifetimes) || t.lifetimes[l.id] != l {
		ice.Panicf("lifetime %v does not belong to this tree", l)
	}
}

// HasLifetimeGraph reports whether id has been established.
func (t *Tree) HasLifetimeGraph(id GraphID) bool {
	_, ok := t.graphs[id]
	return ok
}

// ParentLifetimeGraph returns the lexical parent of graph id.
func (t *Tree) ParentLifetimeGraph(id GraphID) (GraphID, bool) {
	g := t.graph(id)
	if g.parent == nil {
		return NoGraph, false
	}
	return g.parent.id, true
}

// GetLifetimeGraphRootLifetime returns the diagram lifetime of graph id.
func (t *Tree) GetLifetimeGraphRootLifetime(id GraphID) *Lifetime {
	return t.graph(id).diagram
}

// CreateLifetimeThatIsBoundedByLifetimeGraph creates a lifetime that the
// diagram lifetime of graph id outlasts.
func (t *Tree) CreateLifetimeThatIsBoundedByLifetimeGraph(id GraphID) *Lifetime {
	g := t.graph(id)
	l := t.newLifetime(g)
	t.SetOutlastsRelationship(g.diagram, l)
	return l
}

// CreateLifetimeThatOutlastsLifetimeGraph creates a lifetime in graph id that
// outlasts its diagram lifetime, for values that enter the scope from outside.
func (t *Tree) CreateLifetimeThatOutlastsLifetimeGraph(id GraphID) *Lifetime {
	g := t.graph(id)
	l := t.newLifetime(g)
	t.SetOutlastsRelationship(l, g.diagram)
	return l
}

// SetOutlastsRelationship records that outlaster outlasts outlasted. It does
// nothing unless both are bounded. Creating a cycle is an internal error.
func (t *Tree) SetOutlastsRelationship(outlaster, outlasted *Lifetime) {
	if !outlaster.IsBounded() || !outlasted.IsBounded() {
		return
	}
	t.checkOwned(outlaster)
	t.checkOwned(outlasted)
	if outlaster.graph != outlasted.graph {
		ice.Panicf("outlasts relationship across graphs: %v, %v", outlaster, outlasted)
	}
	if outlaster == outlasted || t.reaches(outlasted.id, outlaster.id) {
		ice.Panicf("outlasted %v already outlasts outlaster %v", outlasted, outlaster)
	}
	t.outlasts[outlaster.id].Insert(outlasted.id)
}

// reaches reports whether lifetime from transitively outlasts lifetime to.
func (t *Tree) reaches(from, to int) bool {
	var seen intsets.Sparse
	stack := []int{from}
	var next []int
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		next = t.outlasts[n].AppendTo(next[:0])
		for _, m := range next {
			if m == to {
				return true
			}
			if seen.Insert(m) {
				stack = append(stack, m)
			}
		}
	}
	return false
}

func isStrictAncestor(anc, g *graph) bool {
	for p := g.parent; p != nil; p = p.parent {
		if p == anc {
			return true
		}
	}
	return false
}

// DoesOutlast reports whether a is valid for at least as long as b.
// Bounded lifetimes do not outlast themselves.
func (t *Tree) DoesOutlast(a, b *Lifetime) bool {
	switch {
	case a.IsEmpty() || b.IsEmpty():
		return a.IsEmpty() && b.IsEmpty()
	case !a.IsBounded():
		return true
	case !b.IsBounded():
		return false
	}
	t.checkOwned(a)
	t.checkOwned(b)
	if a.graph == b.graph {
		return t.reaches(a.id, b.id)
	}
	return isStrictAncestor(t.graph(a.graph), t.graph(b.graph))
}

// DoesLifetimeOutlastLifetimeGraph reports whether l stays valid for the
// whole of graph id.
func (t *Tree) DoesLifetimeOutlastLifetimeGraph(l *Lifetime, id GraphID) bool {
	if !l.IsBounded() {
		return !l.IsEmpty()
	}
	g := t.graph(id)
	if l.graph == id {
		return t.reaches(l.id, g.diagram.id)
	}
	return isStrictAncestor(t.graph(l.graph), g)
}

// GetBoundedLifetimeGraphIdentifier returns the graph of a bounded lifetime.
func (t *Tree) GetBoundedLifetimeGraphIdentifier(l *Lifetime) (GraphID, bool) {
	if !l.IsBounded() {
		return NoGraph, false
	}
	return l.graph, true
}

// IsDiagramLifetimeOfAnyLifetimeGraph reports whether l is some graph's
// diagram lifetime.
func (t *Tree) IsDiagramLifetimeOfAnyLifetimeGraph(l *Lifetime) bool {
	if !l.IsBounded() {
		return false
	}
	g, ok := t.graphs[l.graph]
	return ok && g.diagram == l
}

// CreateCommonSubLifetime returns a lifetime that both a and b outlast: the
// shorter of the two when they are ordered, otherwise a new lifetime in
// their shared graph. Lifetimes of unrelated graphs (siblings, cousins or
// separate roots) have no common sub-lifetime in the tree, and the result
// is Empty. The result does not depend on argument order.
func (t *Tree) CreateCommonSubLifetime(a, b *Lifetime) *Lifetime {
	switch {
	case a == b:
		return a
	case a.IsEmpty() || b.IsEmpty():
		return Empty
	case !a.IsBounded() && !b.IsBounded():
		// Unbounded and Static outlast each other.
		return Static
	case t.DoesOutlast(a, b):
		return b
	case t.DoesOutlast(b, a):
		return a
	case a.graph != b.graph:
		return Empty
	}
	l := t.CreateLifetimeThatIsBoundedByLifetimeGraph(a.graph)
	t.SetOutlastsRelationship(a, l)
	t.SetOutlastsRelationship(b, l)
	return l
}
