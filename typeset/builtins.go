package typeset

// Names of the built-in concrete types.
const (
	Int32Name         = "Int32"
	BooleanName       = "Boolean"
	StringName        = "String"
	VoidName          = "Void"
	OptionName        = "Option"
	VectorName        = "Vector"
	RangeIteratorName = "RangeIterator"
)

func (s *Set) traits(names ...string) []Ref {
	refs := make([]Ref, len(names))
	for i, name := range names {
		refs[i] = s.CreateReferenceToTraitType(name, nil)
	}
	return refs
}

func (s *Set) Int32() Ref {
	return s.CreateReferenceToConcreteType(Int32Name, nil, nil, s.traits(Display, Clone, Copy), nil)
}

func (s *Set) Boolean() Ref {
	return s.CreateReferenceToConcreteType(BooleanName, nil, nil, s.traits(Display, Clone, Copy), nil)
}

// StringType returns the String type.
func (s *Set) StringType() Ref {
	return s.CreateReferenceToConcreteType(StringName, nil, nil, s.traits(Display, Clone), nil)
}

func (s *Set) Void() Ref {
	return s.CreateReferenceToConcreteType(VoidName, nil, nil, nil, nil)
}

// Option is Copy whenever its value type is.
func (s *Set) Option(value Ref) Ref {
	return s.CreateReferenceToConcreteType(OptionName, []Ref{value}, nil, nil,
		&TraitDeriver{Trait: Copy, Param: 0})
}

// Vector owns heap storage: it must be dropped, and is Clone whenever its
// element type is.
func (s *Set) Vector(elem Ref) Ref {
	return s.CreateReferenceToConcreteType(VectorName, []Ref{elem}, nil, s.traits(Drop),
		&TraitDeriver{Trait: Clone, Param: 0})
}

// RangeIterator yields the Int32 values of a half-open range. Its fields
// mirror the two words the runtime keeps for it.
func (s *Set) RangeIterator() Ref {
	iter := s.CreateReferenceToTraitType(Iterator, []Ref{s.Int32()})
	fields := []Field{{Name: "current", Type: s.Int32()}, {Name: "max", Type: s.Int32()}}
	return s.CreateReferenceToConcreteType(RangeIteratorName, nil, fields, []Ref{iter}, nil)
}

// IsInt32 reports whether t is Int32.
func (s *Set) IsInt32(t Ref) bool { return s.isNamed(t, Int32Name) }

// IsBoolean reports whether t is Boolean.
func (s *Set) IsBoolean(t Ref) bool { return s.isNamed(t, BooleanName) }

func (s *Set) isNamed(t Ref, name string) bool {
	n, ok := s.ConcreteName(t)
	return ok && n == name
}
