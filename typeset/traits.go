package typeset

import (
	"fmt"

	"github.com/NERVsystems/infernode/tools/rebar/lifetime"
)

// Trait names known to the language.
const (
	Copy     = "Copy"
	Clone    = "Clone"
	Display  = "Display"
	Drop     = "Drop"
	Iterator = "Iterator"
)

// Constraint restricts what a free type variable may be bound to.
type Constraint interface {
	// Validate checks t against the constraint. Unification failures
	// found on the way are reported to r.
	Validate(s *Set, t Ref, r Result) bool
	// Key identifies the constraint within a constraint set.
	Key() string
	// Describe renders the constraint for diagnostics.
	Describe(s *Set) string
}

// TraitConstraint requires an implementation of the named trait.
type TraitConstraint struct {
	Name string
}

func (c TraitConstraint) Validate(s *Set, t Ref, r Result) bool {
	l := s.lookupTrait(t, c.Name)
	if l.waiting {
		s.addConstraint(l.pending, TraitConstraint{Name: l.pendingTrait})
		return true
	}
	return l.found
}

func (c TraitConstraint) Key() string          { return c.Name }
func (c TraitConstraint) Describe(*Set) string { return c.Name }

// IteratorTraitConstraint requires Iterator<Item>.
type IteratorTraitConstraint struct {
	Item Ref
}

func (c IteratorTraitConstraint) Validate(s *Set, t Ref, r Result) bool {
	l := s.lookupTrait(t, Iterator)
	switch {
	case l.waiting:
		s.addConstraint(l.pending, c)
		return true
	case !l.found:
		return false
	}
	params := s.Params(l.trait)
	if len(params) != 1 {
		r.SetTypeMismatch()
		return false
	}
	return s.Unify(params[0], c.Item, r)
}

func (c IteratorTraitConstraint) Key() string { return fmt.Sprintf("Iterator<%d>", c.Item) }

func (c IteratorTraitConstraint) Describe(s *Set) string {
	return "Iterator<" + s.Render(c.Item) + ">"
}

// OutlastsLifetimeGraphConstraint requires the type's lifetime to outlast
// a lifetime graph.
type OutlastsLifetimeGraphConstraint struct {
	Graph lifetime.GraphID
}

func (c OutlastsLifetimeGraphConstraint) Validate(s *Set, t Ref, r Result) bool {
	return s.lifetimes.DoesLifetimeOutlastLifetimeGraph(s.Lifetime(t), c.Graph)
}

func (c OutlastsLifetimeGraphConstraint) Key() string {
	return fmt.Sprintf("outlasts g%d", c.Graph)
}

func (c OutlastsLifetimeGraphConstraint) Describe(*Set) string {
	return fmt.Sprintf("outlives diagram %d", c.Graph)
}

// TryGetImplementedTrait returns the trait type through which t implements
// the named trait.
func (s *Set) TryGetImplementedTrait(t Ref, name string) (Ref, bool) {
	l := s.lookupTrait(t, name)
	return l.trait, l.found
}

type traitLookup struct {
	trait Ref
	found bool

	// Set when the answer depends on a free variable.
	waiting      bool
	pending      Ref
	pendingTrait string
}

func (s *Set) lookupTrait(t Ref, name string) traitLookup {
	switch x := s.record(t).(type) {
	case *freeVar:
		return traitLookup{waiting: true, pending: t, pendingTrait: name}
	case *reference:
		if name == Copy || name == Clone {
			if mutable, known := s.resolveMutability(x.mut); known && !mutable {
				return traitLookup{trait: s.markerTrait(name), found: true}
			}
		}
	case *concrete:
		for _, tr := range x.traits {
			if s.record(tr).(*trait).name == name {
				return traitLookup{trait: tr, found: true}
			}
		}
		if d := x.deriver; d != nil && d.Trait == name && d.Param < len(x.params) {
			if l := s.lookupTrait(x.params[d.Param], name); l.found || l.waiting {
				return l
			}
		}
	}
	if name == Clone {
		if l := s.lookupTrait(t, Copy); l.waiting {
			return l
		} else if l.found {
			return traitLookup{trait: s.cloneTrait, found: true}
		}
	}
	return traitLookup{}
}

func (s *Set) markerTrait(name string) Ref {
	if name == Copy {
		return s.copyTrait
	}
	return s.cloneTrait
}
