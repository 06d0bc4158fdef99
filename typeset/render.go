package typeset

import (
	"fmt"
	"strings"
)

// Render returns a readable form of t.
func (s *Set) Render(t Ref) string {
	var b strings.Builder
	s.render(&b, t, false)
	return b.String()
}

// RenderWithLifetimes is Render with reference lifetimes spelled out.
func (s *Set) RenderWithLifetimes(t Ref) string {
	var b strings.Builder
	s.render(&b, t, true)
	return b.String()
}

func (s *Set) render(b *strings.Builder, t Ref, lifetimes bool) {
	switch x := s.record(t).(type) {
	case *freeVar:
		fmt.Fprintf(b, "T%d", x.id)
	case *concrete:
		b.WriteString(x.name)
		s.renderList(b, "<", x.params, ">", lifetimes)
	case *trait:
		b.WriteString(x.name)
		s.renderList(b, "<", x.params, ">", lifetimes)
	case *tuple:
		if len(x.elems) == 0 {
			b.WriteString("()")
			return
		}
		s.renderList(b, "(", x.elems, ")", lifetimes)
	case *fielded:
		b.WriteByte('{')
		for i, f := range x.fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			s.render(b, f.Type, lifetimes)
		}
		b.WriteByte('}')
	case *reference:
		b.WriteByte('&')
		if lifetimes {
			s.render(b, x.lifetime, lifetimes)
			b.WriteByte(' ')
		}
		switch mutable, known := s.resolveMutability(x.mut); {
		case !known:
			b.WriteString("?mut ")
		case mutable:
			b.WriteString("mut ")
		}
		s.render(b, x.underlying, lifetimes)
	case *lifetimeContainer:
		b.WriteString(x.value.String())
	case *mutabilityVar:
		switch {
		case !x.set:
			b.WriteString("?mut")
		case x.value:
			b.WriteString("mut")
		default:
			b.WriteString("imm")
		}
	}
}

func (s *Set) renderList(b *strings.Builder, open string, refs []Ref, close string, lifetimes bool) {
	if len(refs) == 0 {
		return
	}
	b.WriteString(open)
	for i, r := range refs {
		if i > 0 {
			b.WriteString(", ")
		}
		s.render(b, r, lifetimes)
	}
	b.WriteString(close)
}
