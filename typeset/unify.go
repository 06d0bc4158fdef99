package typeset

import (
	"sort"

	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
)

// Unify makes a and b denote the same type, reporting every incompatibility
// to r. It returns false if anything failed. Unifying a type with itself
// reports nothing.
func (s *Set) Unify(a, b Ref, r Result) bool {
	if s.Same(a, b) {
		return true
	}
	ra, rb := s.record(a), s.record(b)
	switch x := ra.(type) {
	case *concrete:
		switch y := rb.(type) {
		case *concrete:
			return s.unifyConcrete(a, b, x, y, r)
		case *fielded:
			return s.unifyFielded(b, a, y, x, r)
		}
	case *fielded:
		switch y := rb.(type) {
		case *concrete:
			return s.unifyFielded(a, b, x, y, r)
		case *fielded:
			return s.unifyFieldedPair(a, b, x, y, r)
		}
	case *tuple:
		if y, ok := rb.(*tuple); ok {
			return s.unifyTuple(a, b, x, y, r)
		}
	case *reference:
		if y, ok := rb.(*reference); ok {
			return s.unifyReference(x, y, r)
		}
	case *lifetimeContainer:
		if y, ok := rb.(*lifetimeContainer); ok {
			s.unifyLifetime(a, b, x, y)
			return true
		}
	case *mutabilityVar:
		if y, ok := rb.(*mutabilityVar); ok {
			s.unifyMutabilityVars(a, b, x, y)
			return true
		}
	}

	fa, aFree := ra.(*freeVar)
	fb, bFree := rb.(*freeVar)
	switch {
	case aFree && bFree:
		// The older variable survives.
		if fa.id < fb.id {
			a, b, fa, fb = b, a, fb, fa
		}
		fb.constraints.InsertSet(fa.constraints)
		s.merge(a, b)
		return true
	case aFree:
		return s.unifyFree(a, b, fa, r)
	case bFree:
		return s.unifyFree(b, a, fb, r)
	}
	r.SetTypeMismatch()
	return false
}

func (s *Set) unifyConcrete(a, b Ref, x, y *concrete, r Result) bool {
	if x.name != y.name || len(x.params) != len(y.params) {
		r.SetTypeMismatch()
		return false
	}
	ok := true
	for i := range x.params {
		ok = s.Unify(x.params[i], y.params[i], r) && ok
	}
	s.merge(a, b)
	return ok
}

// unifyFielded checks that concrete type c has every field f asks for.
// The concrete record survives.
func (s *Set) unifyFielded(fr, cr Ref, f *fielded, c *concrete, r Result) bool {
	ok := true
	for _, want := range f.fields {
		have, found := lookupField(c.fields, want.Name)
		if !found {
			if fres, isField := r.(FieldResult); isField {
				fres.MissingField(want.Name)
			}
			ok = false
			continue
		}
		ok = s.Unify(want.Type, have, r) && ok
	}
	if ok {
		s.merge(fr, cr)
	}
	return ok
}

func (s *Set) unifyFieldedPair(a, b Ref, x, y *fielded, r Result) bool {
	ok := true
	fields := append([]Field(nil), x.fields...)
	for _, f := range y.fields {
		if have, found := lookupField(x.fields, f.Name); found {
			ok = s.Unify(have, f.Type, r) && ok
			continue
		}
		fields = append(fields, f)
	}
	y.fields = sortedFields(fields)
	s.merge(a, b)
	return ok
}

func sortedFields(fields []Field) []Field {
	out := append([]Field(nil), fields...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Set) unifyTuple(a, b Ref, x, y *tuple, r Result) bool {
	if len(x.elems) != len(y.elems) {
		r.SetTypeMismatch()
		return false
	}
	ok := true
	for i := range x.elems {
		ok = s.Unify(x.elems[i], y.elems[i], r) && ok
	}
	s.merge(a, b)
	return ok
}

// unifyReference unifies the components of two references. The reference
// records themselves stay distinct.
func (s *Set) unifyReference(x, y *reference, r Result) bool {
	ok := s.unifyMutability(x.mut, y.mut, r)
	ok = s.Unify(x.underlying, y.underlying, r) && ok
	return s.Unify(x.lifetime, y.lifetime, r) && ok
}

func (s *Set) unifyMutability(m, n Mutability, r Result) bool {
	switch {
	case !m.variable && !n.variable:
		if m.mutable != n.mutable {
			r.SetExpectedMutable()
			return false
		}
	case m.variable && n.variable:
		return s.Unify(m.ref, n.ref, r)
	case m.variable:
		s.constrainMutability(m.ref, n.mutable)
	default:
		s.constrainMutability(n.ref, m.mutable)
	}
	return true
}

func (s *Set) constrainMutability(ref Ref, mutable bool) {
	v, ok := s.record(ref).(*mutabilityVar)
	if !ok {
		ice.Panicf("mutability reference %d is a %v type", ref, s.Kind(ref))
	}
	if v.set {
		v.value = v.value && mutable
	} else {
		v.value, v.set = mutable, true
	}
}

func (s *Set) unifyMutabilityVars(a, b Ref, x, y *mutabilityVar) {
	switch {
	case !y.set:
		y.value, y.set = x.value, x.set
	case x.set:
		y.value = x.value && y.value
	}
	s.merge(a, b)
}

func (s *Set) unifyLifetime(a, b Ref, x, y *lifetimeContainer) {
	switch {
	case y.value == nil:
		y.value = x.value
	case x.value == nil || x.value == y.value:
	default:
		y.value = s.lifetimes.CreateCommonSubLifetime(x.value, y.value)
	}
	s.merge(a, b)
}

// unifyFree binds free variable v to t after checking v's constraints
// against t. The binding happens even if a constraint fails.
func (s *Set) unifyFree(v, t Ref, f *freeVar, r Result) bool {
	if s.occurs(v, t) {
		r.SetTypeMismatch()
		return false
	}
	ok := true
	for _, c := range f.constraints.Slice() {
		if !c.Validate(s, t, r) {
			r.AddFailedTypeConstraint(c)
			ok = false
		}
	}
	s.merge(v, t)
	return ok
}

// occurs reports whether v appears inside t.
func (s *Set) occurs(v, t Ref) bool {
	if s.Same(v, t) {
		return true
	}
	switch x := s.record(t).(type) {
	case *concrete:
		return s.occursAny(v, x.params) || s.occursFields(v, x.fields)
	case *trait:
		return s.occursAny(v, x.params)
	case *tuple:
		return s.occursAny(v, x.elems)
	case *fielded:
		return s.occursFields(v, x.fields)
	case *reference:
		return s.occurs(v, x.underlying)
	}
	return false
}

func (s *Set) occursAny(v Ref, refs []Ref) bool {
	for _, t := range refs {
		if s.occurs(v, t) {
			return true
		}
	}
	return false
}

func (s *Set) occursFields(v Ref, fields []Field) bool {
	for _, f := range fields {
		if s.occurs(v, f.Type) {
			return true
		}
	}
	return false
}

func (s *Set) addConstraint(v Ref, c Constraint) {
	f, ok := s.record(v).(*freeVar)
	if !ok {
		ice.Panicf("constraint %s added to %v type", c.Key(), s.Kind(v))
	}
	f.constraints.Insert(c)
}
