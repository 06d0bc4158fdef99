package typeset

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/NERVsystems/infernode/tools/rebar/lifetime"
)

// constructorRegistry maps type names to the functions that build them.
var constructorRegistry = map[string]constructor{}

type constructor struct {
	arity int
	build func(s *Set, args []Ref) Ref
}

// RegisterConstructor makes name usable in type expressions.
func RegisterConstructor(name string, arity int, build func(s *Set, args []Ref) Ref) {
	constructorRegistry[name] = constructor{arity: arity, build: build}
}

func init() {
	RegisterConstructor(Int32Name, 0, func(s *Set, _ []Ref) Ref { return s.Int32() })
	RegisterConstructor(BooleanName, 0, func(s *Set, _ []Ref) Ref { return s.Boolean() })
	RegisterConstructor(StringName, 0, func(s *Set, _ []Ref) Ref { return s.StringType() })
	RegisterConstructor(VoidName, 0, func(s *Set, _ []Ref) Ref { return s.Void() })
	RegisterConstructor(RangeIteratorName, 0, func(s *Set, _ []Ref) Ref { return s.RangeIterator() })
	RegisterConstructor(OptionName, 1, func(s *Set, args []Ref) Ref { return s.Option(args[0]) })
	RegisterConstructor(VectorName, 1, func(s *Set, args []Ref) Ref { return s.Vector(args[0]) })
	RegisterConstructor(Iterator, 1, func(s *Set, args []Ref) Ref {
		return s.CreateReferenceToTraitType(Iterator, args)
	})
}

// Env binds the type, lifetime and mutability names a type expression may
// use. Lifetime and mutability names map to container and mutability
// variable refs.
type Env struct {
	Types        map[string]Ref
	Lifetimes    map[string]Ref
	Mutabilities map[string]Ref
}

// Parse builds the type denoted by expr:
//
//	Int32  Option<T>  (A, B)  {name: T}  &T  &mut T  &'a T  &'a ?m T  &'static T
//
// Names not bound in env resolve through the constructor registry. A
// reference without a lifetime gets a fresh unset lifetime container.
func (s *Set) Parse(expr string, env *Env) (Ref, error) {
	p := &parser{set: s, env: env, src: expr}
	p.next()
	t, err := p.parseType()
	if err != nil {
		return 0, errors.Wrapf(err, "type %q", expr)
	}
	if p.tok != "" {
		return 0, errors.Errorf("type %q: unexpected %q", expr, p.tok)
	}
	return t, nil
}

// MustParse is Parse for expressions known to be valid.
func (s *Set) MustParse(expr string, env *Env) Ref {
	t, err := s.Parse(expr, env)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	set *Set
	env *Env
	src string
	pos int
	tok string // "" at end of input
}

func (p *parser) next() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		p.tok = ""
		return
	}
	start := p.pos
	c := rune(p.src[p.pos])
	switch {
	case c == '\'' || c == '?' || isIdent(c):
		p.pos++
		for p.pos < len(p.src) && isIdent(rune(p.src[p.pos])) {
			p.pos++
		}
	default:
		p.pos++
	}
	p.tok = p.src[start:p.pos]
}

func isIdent(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

func (p *parser) expect(tok string) error {
	if p.tok != tok {
		return errors.Errorf("expected %q, found %q", tok, p.tok)
	}
	p.next()
	return nil
}

func (p *parser) parseType() (Ref, error) {
	switch {
	case p.tok == "&":
		p.next()
		return p.parseReference()
	case p.tok == "(":
		p.next()
		elems, err := p.parseList(")")
		if err != nil {
			return 0, err
		}
		if len(elems) == 1 {
			return elems[0], nil
		}
		return p.set.CreateReferenceToTupleType(elems), nil
	case p.tok == "{":
		p.next()
		return p.parseFielded()
	case p.tok != "" && isIdent(rune(p.tok[0])):
		return p.parseNamed()
	}
	return 0, errors.Errorf("unexpected %q", p.tok)
}

func (p *parser) parseReference() (Ref, error) {
	var lt Ref
	switch {
	case p.tok == "'static":
		lt = p.set.CreateReferenceToLifetimeType(lifetime.Static)
		p.next()
	case strings.HasPrefix(p.tok, "'"):
		ref, ok := p.lookup(p.envLifetimes(), p.tok[1:])
		if !ok {
			return 0, errors.Errorf("undefined lifetime %s", p.tok)
		}
		lt = ref
		p.next()
	default:
		lt = p.set.CreateReferenceToLifetimeType(nil)
	}

	mut := Immutable
	switch {
	case p.tok == "mut":
		mut = Mutable
		p.next()
	case strings.HasPrefix(p.tok, "?"):
		ref, ok := p.lookup(p.envMutabilities(), p.tok[1:])
		if !ok {
			return 0, errors.Errorf("undefined mutability %s", p.tok)
		}
		mut = VariableMutability(ref)
		p.next()
	}

	underlying, err := p.parseType()
	if err != nil {
		return 0, err
	}
	return p.set.CreateReferenceToReferenceType(mut, underlying, lt), nil
}

func (p *parser) parseFielded() (Ref, error) {
	var fields []Field
	for p.tok != "}" {
		if len(fields) > 0 {
			if err := p.expect(","); err != nil {
				return 0, err
			}
		}
		name := p.tok
		if name == "" || !isIdent(rune(name[0])) {
			return 0, errors.Errorf("expected field name, found %q", name)
		}
		p.next()
		if err := p.expect(":"); err != nil {
			return 0, err
		}
		t, err := p.parseType()
		if err != nil {
			return 0, err
		}
		fields = append(fields, Field{Name: name, Type: t})
	}
	p.next()
	return p.set.CreateReferenceToIndefiniteFieldedType(fields), nil
}

func (p *parser) parseNamed() (Ref, error) {
	name := p.tok
	p.next()
	var args []Ref
	if p.tok == "<" {
		p.next()
		var err error
		if args, err = p.parseList(">"); err != nil {
			return 0, err
		}
	}
	if len(args) == 0 {
		if t, ok := p.lookup(p.envTypes(), name); ok {
			return t, nil
		}
	}
	c, ok := constructorRegistry[name]
	if !ok {
		return 0, errors.Errorf("unknown type %s", name)
	}
	if len(args) != c.arity {
		return 0, errors.Errorf("%s takes %d type arguments, got %d", name, c.arity, len(args))
	}
	return c.build(p.set, args), nil
}

// parseList parses comma-separated types up to and including close.
func (p *parser) parseList(close string) ([]Ref, error) {
	var refs []Ref
	for p.tok != close {
		if len(refs) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		refs = append(refs, t)
	}
	p.next()
	return refs, nil
}

func (p *parser) lookup(m map[string]Ref, name string) (Ref, bool) {
	r, ok := m[name]
	return r, ok
}

func (p *parser) envTypes() map[string]Ref {
	if p.env == nil {
		return nil
	}
	return p.env.Types
}

func (p *parser) envLifetimes() map[string]Ref {
	if p.env == nil {
		return nil
	}
	return p.env.Lifetimes
}

func (p *parser) envMutabilities() map[string]Ref {
	if p.env == nil {
		return nil
	}
	return p.env.Mutabilities
}
