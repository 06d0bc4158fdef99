// Package typeset implements the Rebar type variable set: an arena of type
// records addressed through a redirection table, merged by unification.
package typeset

import (
	"github.com/hashicorp/go-set/v3"

	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
	"github.com/NERVsystems/infernode/tools/rebar/lifetime"
)

// Ref refers to a type. Refs stay valid across merges: unification only
// rewrites the record a Ref is redirected to.
type Ref int

// Kind classifies the record a Ref currently resolves to.
type Kind int

const (
	KindFree Kind = iota
	KindConcrete
	KindTrait
	KindTuple
	KindFielded
	KindReference
	KindLifetime
	KindMutability
)

var kindNames = [...]string{
	KindFree:       "free",
	KindConcrete:   "concrete",
	KindTrait:      "trait",
	KindTuple:      "tuple",
	KindFielded:    "fielded",
	KindReference:  "reference",
	KindLifetime:   "lifetime",
	KindMutability: "mutability",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "???"
}

// Field is a named member of a concrete or fielded type.
type Field struct {
	Name string
	Type Ref
}

// TraitDeriver makes a generic concrete type implement Trait whenever its
// parameter at Param does.
type TraitDeriver struct {
	Trait string
	Param int
}

// Mutability is either fixed or a reference to a mutability variable.
type Mutability struct {
	variable bool
	mutable  bool
	ref      Ref
}

// Fixed mutabilities.
var (
	Mutable   = Mutability{mutable: true}
	Immutable = Mutability{}
)

// FixedMutability returns Mutable or Immutable.
func FixedMutability(mutable bool) Mutability {
	return Mutability{mutable: mutable}
}

// VariableMutability refers to a mutability variable created with
// CreateReferenceToMutabilityType.
func VariableMutability(r Ref) Mutability {
	return Mutability{variable: true, ref: r}
}

// IsVariable reports whether m is decided by a mutability variable.
func (m Mutability) IsVariable() bool { return m.variable }

type record interface {
	kind() Kind
}

type freeVar struct {
	id          int
	constraints *set.TreeSet[Constraint]
}

type concrete struct {
	name    string
	params  []Ref
	fields  []Field
	traits  []Ref
	deriver *TraitDeriver
}

type trait struct {
	name   string
	params []Ref
}

type tuple struct {
	elems []Ref
}

type fielded struct {
	fields []Field // sorted by name
}

type reference struct {
	mut        Mutability
	underlying Ref
	lifetime   Ref
}

type lifetimeContainer struct {
	value *lifetime.Lifetime
}

type mutabilityVar struct {
	value bool
	set   bool
}

func (*freeVar) kind() Kind           { return KindFree }
func (*concrete) kind() Kind          { return KindConcrete }
func (*trait) kind() Kind             { return KindTrait }
func (*tuple) kind() Kind             { return KindTuple }
func (*fielded) kind() Kind           { return KindFielded }
func (*reference) kind() Kind         { return KindReference }
func (*lifetimeContainer) kind() Kind { return KindLifetime }
func (*mutabilityVar) kind() Kind     { return KindMutability }

// Set owns every type record of one compilation.
type Set struct {
	records   []record
	refs      []int // Ref -> index in records
	nextVar   int
	lifetimes *lifetime.Tree

	// Shared answers for the Copy and Clone implementations that exist
	// without being declared.
	copyTrait, cloneTrait Ref
}

// New returns an empty set whose lifetime containers are reconciled in
// tree. A nil tree gets a private one.
func New(tree *lifetime.Tree) *Set {
	if tree == nil {
		tree = lifetime.NewTree()
	}
	s := &Set{lifetimes: tree}
	s.copyTrait = s.CreateReferenceToTraitType(Copy, nil)
	s.cloneTrait = s.CreateReferenceToTraitType(Clone, nil)
	return s
}

// Lifetimes returns the lifetime tree used by the set.
func (s *Set) Lifetimes() *lifetime.Tree { return s.lifetimes }

func (s *Set) add(r record) Ref {
	s.records = append(s.records, r)
	s.refs = append(s.refs, len(s.records)-1)
	return Ref(len(s.refs) - 1)
}

func (s *Set) record(r Ref) record {
	if r < 0 || int(r) >= len(s.refs) {
		ice.Panicf("invalid type reference %d", r)
	}
	return s.records[s.refs[r]]
}

// merge redirects every Ref that resolves to from's record to into's record.
func (s *Set) merge(from, into Ref) {
	fi, ti := s.refs[from], s.refs[into]
	if fi == ti {
		return
	}
	for i, x := range s.refs {
		if x == fi {
			s.refs[i] = ti
		}
	}
}

// Same reports whether a and b resolve to the same record.
func (s *Set) Same(a, b Ref) bool {
	s.record(a)
	s.record(b)
	return s.refs[a] == s.refs[b]
}

// Kind returns the kind of t's record.
func (s *Set) Kind(t Ref) Kind { return s.record(t).kind() }

func compareConstraints(a, b Constraint) int {
	switch ka, kb := a.Key(), b.Key(); {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	}
	return 0
}

func (s *Set) CreateReferenceToNewTypeVariable(constraints ...Constraint) Ref {
	s.nextVar++
	return s.add(&freeVar{
		id:          s.nextVar,
		constraints: set.TreeSetFrom[Constraint](constraints, compareConstraints),
	})
}

func (s *Set) CreateReferenceToConcreteType(name string, params []Ref, fields []Field, traits []Ref, deriver *TraitDeriver) Ref {
	return s.add(&concrete{
		name:    name,
		params:  append([]Ref(nil), params...),
		fields:  append([]Field(nil), fields...),
		traits:  append([]Ref(nil), traits...),
		deriver: deriver,
	})
}

func (s *Set) CreateReferenceToTraitType(name string, params []Ref) Ref {
	return s.add(&trait{name: name, params: append([]Ref(nil), params...)})
}

func (s *Set) CreateReferenceToTupleType(elems []Ref) Ref {
	return s.add(&tuple{elems: append([]Ref(nil), elems...)})
}

func (s *Set) CreateReferenceToIndefiniteFieldedType(fields []Field) Ref {
	return s.add(&fielded{fields: sortedFields(fields)})
}

func (s *Set) CreateReferenceToReferenceType(mut Mutability, underlying, lifetime Ref) Ref {
	if mut.variable && s.Kind(mut.ref) != KindMutability {
		ice.Panicf("reference mutability %d is a %v type", mut.ref, s.Kind(mut.ref))
	}
	if s.Kind(lifetime) != KindLifetime {
		ice.Panicf("reference lifetime %d is a %v type", lifetime, s.Kind(lifetime))
	}
	return s.add(&reference{mut: mut, underlying: underlying, lifetime: lifetime})
}

// CreateReferenceToLifetimeType wraps l in a container. A nil l is adopted
// from the first container it is unified with.
func (s *Set) CreateReferenceToLifetimeType(l *lifetime.Lifetime) Ref {
	return s.add(&lifetimeContainer{value: l})
}

func (s *Set) CreateReferenceToMutabilityType() Ref {
	return s.add(&mutabilityVar{})
}

// Lifetime returns the lifetime carried by t: a reference's lifetime (Empty
// when not yet known), the first bounded lifetime among a concrete or tuple
// type's parameters, and Unbounded for everything else.
func (s *Set) Lifetime(t Ref) *lifetime.Lifetime {
	switch x := s.record(t).(type) {
	case *reference:
		return s.Lifetime(x.lifetime)
	case *lifetimeContainer:
		if x.value == nil {
			return lifetime.Empty
		}
		return x.value
	case *concrete:
		return s.firstBounded(x.params)
	case *tuple:
		return s.firstBounded(x.elems)
	}
	return lifetime.Unbounded
}

func (s *Set) firstBounded(refs []Ref) *lifetime.Lifetime {
	for _, p := range refs {
		if l := s.Lifetime(p); l.IsBounded() {
			return l
		}
	}
	return lifetime.Unbounded
}

// IsReference reports whether t is a reference type.
func (s *Set) IsReference(t Ref) bool {
	_, ok := s.record(t).(*reference)
	return ok
}

// ReferenceMutability returns the mutability of reference t. known is false
// while a mutability variable is still unconstrained.
func (s *Set) ReferenceMutability(t Ref) (mutable, known bool) {
	x, ok := s.record(t).(*reference)
	if !ok {
		ice.Panicf("%s is not a reference", s.Render(t))
	}
	return s.resolveMutability(x.mut)
}

func (s *Set) resolveMutability(m Mutability) (mutable, known bool) {
	if !m.variable {
		return m.mutable, true
	}
	v := s.record(m.ref).(*mutabilityVar)
	return v.value, v.set
}

// IsMutableReference reports whether t is a reference known to be mutable.
func (s *Set) IsMutableReference(t Ref) bool {
	if !s.IsReference(t) {
		return false
	}
	mutable, known := s.ReferenceMutability(t)
	return mutable && known
}

// Underlying returns the referent type of reference t.
func (s *Set) Underlying(t Ref) Ref {
	x, ok := s.record(t).(*reference)
	if !ok {
		ice.Panicf("%s is not a reference", s.Render(t))
	}
	return x.underlying
}

// WithLifetime returns a reference type like t but with lifetime l. Other
// types are returned unchanged.
func (s *Set) WithLifetime(t Ref, l *lifetime.Lifetime) Ref {
	x, ok := s.record(t).(*reference)
	if !ok {
		return t
	}
	return s.CreateReferenceToReferenceType(x.mut, x.underlying, s.CreateReferenceToLifetimeType(l))
}

// ConcreteName returns the name of concrete type t.
func (s *Set) ConcreteName(t Ref) (string, bool) {
	x, ok := s.record(t).(*concrete)
	if !ok {
		return "", false
	}
	return x.name, true
}

// Params returns the parameters of a concrete or trait type, or the
// elements of a tuple.
func (s *Set) Params(t Ref) []Ref {
	switch x := s.record(t).(type) {
	case *concrete:
		return append([]Ref(nil), x.params...)
	case *trait:
		return append([]Ref(nil), x.params...)
	case *tuple:
		return append([]Ref(nil), x.elems...)
	}
	return nil
}

// Field looks up a field of a concrete or fielded type.
func (s *Set) Field(t Ref, name string) (Ref, bool) {
	switch x := s.record(t).(type) {
	case *concrete:
		return lookupField(x.fields, name)
	case *fielded:
		return lookupField(x.fields, name)
	}
	return 0, false
}

func lookupField(fields []Field, name string) (Ref, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return 0, false
}

// TryDestructureOption returns T when t is Option<T>.
func (s *Set) TryDestructureOption(t Ref) (Ref, bool) {
	x, ok := s.record(t).(*concrete)
	if !ok || x.name != OptionName || len(x.params) != 1 {
		return 0, false
	}
	return x.params[0], true
}

// Equal reports whether a and b denote structurally identical types.
// Lifetimes are ignored.
func (s *Set) Equal(a, b Ref) bool {
	if s.Same(a, b) {
		return true
	}
	switch x := s.record(a).(type) {
	case *concrete:
		y, ok := s.record(b).(*concrete)
		return ok && x.name == y.name && s.allEqual(x.params, y.params)
	case *trait:
		y, ok := s.record(b).(*trait)
		return ok && x.name == y.name && s.allEqual(x.params, y.params)
	case *tuple:
		y, ok := s.record(b).(*tuple)
		return ok && s.allEqual(x.elems, y.elems)
	case *reference:
		y, ok := s.record(b).(*reference)
		if !ok {
			return false
		}
		xm, xk := s.resolveMutability(x.mut)
		ym, yk := s.resolveMutability(y.mut)
		return xm == ym && xk == yk && s.Equal(x.underlying, y.underlying)
	}
	return false
}

func (s *Set) allEqual(a, b []Ref) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !s.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
