// Package variable tracks the variables of a Rebar diagram: the storage
// locations that flow along wires, and which of them are live, interrupted
// or consumed with respect to each lifetime.
package variable

import (
	"fmt"

	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
	"github.com/NERVsystems/infernode/tools/rebar/typeset"
)

// Ref is a terminal's handle on a variable. Several refs may resolve to
// the same variable; merging variables retargets refs.
type Ref int

// NoRef is the Ref of a terminal that has no variable yet.
const NoRef Ref = -1

// Variable is a storage location.
type Variable struct {
	ID                  int
	FirstReferenceIndex Ref
	Mutable             bool
	Type                typeset.Ref
}

func (v *Variable) String() string {
	if v.Mutable {
		return fmt.Sprintf("mut v%d", v.ID)
	}
	return fmt.Sprintf("v%d", v.ID)
}

// Set holds the variables of one diagram. The sets of a graph share one
// type set.
type Set struct {
	types *typeset.Set
	vars  []*Variable // by ID; nil once merged away
	refs  []int       // Ref -> variable ID
}

// NewSet returns an empty set whose variable types live in types.
func NewSet(types *typeset.Set) *Set {
	return &Set{types: types}
}

// Types returns the type set variable types refer to.
func (s *Set) Types() *typeset.Set { return s.types }

// CreateNewVariable creates a variable of type t and returns its first
// reference.
func (s *Set) CreateNewVariable(mutable bool, t typeset.Ref) Ref {
	v := &Variable{
		ID:                  len(s.vars),
		FirstReferenceIndex: Ref(len(s.refs)),
		Mutable:             mutable,
		Type:                t,
	}
	s.vars = append(s.vars, v)
	s.refs = append(s.refs, v.ID)
	return v.FirstReferenceIndex
}

// NewReference returns another reference to the variable r refers to.
func (s *Set) NewReference(r Ref) Ref {
	id := s.id(r)
	s.refs = append(s.refs, id)
	return Ref(len(s.refs) - 1)
}

func (s *Set) id(r Ref) int {
	if r < 0 || int(r) >= len(s.refs) {
		ice.Panicf("invalid variable reference %d", r)
	}
	id := s.refs[r]
	if s.vars[id] == nil {
		ice.Panicf("variable reference %d resolves to removed variable %d", r, id)
	}
	return id
}

// Variable returns the variable r refers to.
func (s *Set) Variable(r Ref) *Variable { return s.vars[s.id(r)] }

// Type returns the type of the variable r refers to.
func (s *Set) Type(r Ref) typeset.Ref { return s.Variable(r).Type }

// ReferencesSame reports whether a and b refer to the same variable.
func (s *Set) ReferencesSame(a, b Ref) bool { return s.id(a) == s.id(b) }

// MergeVariables makes every reference to from's variable refer to into's
// variable and removes from's variable. The two types must be unifiable.
func (s *Set) MergeVariables(into, from Ref) {
	ti, fi := s.id(into), s.id(from)
	if ti == fi {
		return
	}
	target, source := s.vars[ti], s.vars[fi]
	s.types.Unify(target.Type, source.Type, typeset.RequireSuccess)
	target.Mutable = target.Mutable || source.Mutable
	for i, id := range s.refs {
		if id == fi {
			s.refs[i] = ti
		}
	}
	s.vars[fi] = nil
}

// Variables returns the live variables in creation order.
func (s *Set) Variables() []*Variable {
	var out []*Variable
	for _, v := range s.vars {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// GetUniqueVariableReferences returns one reference per variable.
func (s *Set) GetUniqueVariableReferences() []Ref {
	var out []Ref
	for _, v := range s.Variables() {
		out = append(out, v.FirstReferenceIndex)
	}
	return out
}
