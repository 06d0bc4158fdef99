// Package lifetime models Rebar lifetimes: scope-validity tokens ordered by
// an "outlasts" relation within a tree of lexical scopes.
package lifetime

import "fmt"

// Kind classifies a Lifetime.
type Kind int

const (
	KindBounded Kind = iota
	KindUnbounded
	KindStatic
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindBounded:
		return "bounded"
	case KindUnbounded:
		return "unbounded"
	case KindStatic:
		return "static"
	case KindEmpty:
		return "empty"
	}
	return "???"
}

// Lifetime is compared by identity. Bounded lifetimes are created by a Tree
// and belong to exactly one of its graphs.
type Lifetime struct {
	kind  Kind
	id    int // index in the owning tree, bounded only
	graph GraphID
}

// The non-bounded lifetimes are singletons.
var (
	Unbounded = &Lifetime{kind: KindUnbounded, id: -1, graph: NoGraph}
	Static    = &Lifetime{kind: KindStatic, id: -1, graph: NoGraph}
	Empty     = &Lifetime{kind: KindEmpty, id: -1, graph: NoGraph}
)

// Kind returns the lifetime's kind.
func (l *Lifetime) Kind() Kind { return l.kind }

// IsBounded reports whether l belongs to a lifetime graph.
func (l *Lifetime) IsBounded() bool { return l.kind == KindBounded }

// IsEmpty reports whether l is the Empty lifetime.
func (l *Lifetime) IsEmpty() bool { return l.kind == KindEmpty }

// Graph returns the graph a bounded lifetime belongs to, or NoGraph.
func (l *Lifetime) Graph() GraphID { return l.graph }

func (l *Lifetime) String() string {
	if l == nil {
		return "'?"
	}
	if l.kind != KindBounded {
		return "'" + l.kind.String()
	}
	return fmt.Sprintf("'g%d.%d", l.graph, l.id)
}
