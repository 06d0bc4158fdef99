package dfir

import (
	"github.com/NERVsystems/infernode/tools/rebar/lifetime"
	"github.com/NERVsystems/infernode/tools/rebar/typeset"
	"github.com/NERVsystems/infernode/tools/rebar/variable"
)

// SetVariableTypes infers the type and lifetime of every variable,
// reporting type errors as messages, and tracks which variables are live.
// At the end of each diagram it inserts the terminate-lifetime and drop
// nodes needed to release what is still live.
func SetVariableTypes(g *Graph) {
	t := &typer{
		g:       g,
		types:   g.Types,
		tree:    g.Lifetimes,
		origins: make(map[*lifetime.Lifetime]*lifetime.Lifetime),
	}
	Walk(g.Root, t)
	t.finishDiagram(g.Root)
}

type typer struct {
	g     *Graph
	types *typeset.Set
	tree  *lifetime.Tree

	// origins maps the lifetime an input tunnel gives a reference inside
	// a structure to the lifetime it had outside.
	origins map[*lifetime.Lifetime]*lifetime.Lifetime
}

func (t *typer) VisitStructure(n *Node, at TraversalPoint) {
	if at == AfterRightBorderNodes {
		t.finishDiagram(n.Body)
	}
}

func (t *typer) VisitWire(w *Wire) {
	if len(w.Sinks) < 2 {
		return
	}
	src := w.Source.Type()
	// A source still free here comes from an input that is already in
	// error; its type says nothing about Copy.
	if t.types.Kind(src) != typeset.KindFree && !t.implements(src, typeset.Copy) {
		t.g.terminalMessage(WireCannotFork, w.Source, "wire cannot fork a value of non-Copy type %s", t.types.Render(src))
	}
	for _, sink := range w.Sinks[1:] {
		t.types.Unify(sink.Type(), src, typeset.RequireSuccess)
		w.Diagram.Association.MarkVariableLive(sink.Variable(), sink)
	}
}

func (t *typer) implements(typ typeset.Ref, trait string) bool {
	_, ok := t.types.TryGetImplementedTrait(typ, trait)
	return ok
}

func (t *typer) VisitNode(n *Node) {
	sig := SignatureOf(n)
	env := instantiate(t.types, sig)

	inputsOK := true
	for i, in := range n.Inputs() {
		st := sig.Inputs[i]
		if st.Type == "" {
			continue
		}
		expected := signatureType(t.types, env, st.Type)
		res := &terminalResult{g: t.g, term: in, types: t.types, actual: in.Type(), expected: expected, quiet: n.Inserted}
		if !t.types.Unify(in.Type(), expected, res) {
			inputsOK = false
		}
	}

	t.setComputedOutputs(n, env, sig, inputsOK)

	for i, in := range n.Inputs() {
		if t.consumes(n, sig.Inputs[i].Use, in) {
			in.Diagram.Association.MarkVariableConsumed(in.Variable())
		}
	}
	for _, out := range n.Outputs() {
		assoc := out.Diagram.Association
		if v := out.Variable(); assoc.Status(v) != variable.Interrupted {
			assoc.MarkVariableLive(v, out)
		}
	}
}

func (t *typer) consumes(n *Node, use Use, in *Terminal) bool {
	if use != Consume {
		return false
	}
	if n.Kind == TerminateLifetime || n.Kind == Drop {
		return true
	}
	return !t.implements(in.Type(), typeset.Copy)
}

func (t *typer) setOutput(out *Terminal, typ typeset.Ref) {
	t.types.Unify(out.Type(), typ, typeset.RequireSuccess)
}

// setComputedOutputs types the outputs that are neither passthroughs nor
// fully described by the signature.
func (t *typer) setComputedOutputs(n *Node, env *typeset.Env, sig Signature, inputsOK bool) {
	outs := n.Outputs()
	for i, st := range sig.Outputs {
		if st.Type == "" || st.Passthrough != "" {
			continue
		}
		typ := signatureType(t.types, env, st.Type)
		if (n.Kind == PureUnary || n.Kind == PureBinary) && !inputsOK {
			typ = t.types.Void()
		}
		t.setOutput(outs[i], typ)
	}

	switch n.Kind {
	case Constant:
		if n.ValueType == typeset.BooleanName {
			t.setOutput(outs[0], t.types.Boolean())
		} else {
			t.setOutput(outs[0], t.types.Int32())
		}
	case Borrow:
		t.typeBorrow(n)
	case SelectReference:
		t.typeSelectReference(n)
	case TerminateLifetime:
		t.typeTerminateLifetime(n)
	case StructConstructor:
		fields := make([]typeset.Field, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = typeset.Field{Name: f.Name, Type: signatureType(t.types, env, f.Type)}
		}
		t.setOutput(outs[0], t.types.CreateReferenceToConcreteType(n.Struct, nil, fields, nil, nil))
	case Tunnel:
		t.typeTunnel(n)
	case BorrowTunnel:
		t.typeBorrowTunnel(n)
	case LoopConditionTunnel:
		l := t.tree.CreateLifetimeThatOutlastsLifetimeGraph(lifetime.GraphID(n.Structure.Body.ID))
		t.setOutput(n.Inner(), t.reference(true, t.types.Boolean(), l))
	case IterateTunnel:
		t.typeIterateTunnel(n, env)
	case UnwrapOptionTunnel:
		t.typeUnwrapOptionTunnel(n)
	}
}

func (t *typer) reference(mutable bool, underlying typeset.Ref, l *lifetime.Lifetime) typeset.Ref {
	return t.types.CreateReferenceToReferenceType(typeset.FixedMutability(mutable), underlying,
		t.types.CreateReferenceToLifetimeType(l))
}

// retarget gives the reference in typ, possibly wrapped in an Option, the
// lifetime l.
func (t *typer) retarget(typ typeset.Ref, l *lifetime.Lifetime) typeset.Ref {
	if inner, ok := t.types.TryDestructureOption(typ); ok && t.types.IsReference(inner) {
		return t.types.Option(t.types.WithLifetime(inner, l))
	}
	return t.types.WithLifetime(typ, l)
}

func (t *typer) typeBorrow(n *Node) {
	in, out := n.Inputs()[0], n.Outputs()[0]
	v := in.Variable()
	d := n.Diagram
	if t.types.IsReference(v.Type) {
		if n.Mutable && !t.types.IsMutableReference(v.Type) {
			t.g.terminalMessage(TerminalDoesNotAcceptImmutableType, in, "cannot borrow an immutable reference mutably")
		}
		l := t.types.Lifetime(v.Type)
		if !l.IsBounded() {
			l = t.tree.CreateLifetimeThatIsBoundedByLifetimeGraph(lifetime.GraphID(d.ID))
		}
		t.setOutput(out, t.reference(n.Mutable, t.types.Underlying(v.Type), l))
		d.Association.MarkVariableConsumed(v)
		return
	}
	if n.Mutable && !v.Mutable {
		t.g.terminalMessage(TerminalDoesNotAcceptImmutableType, in, "cannot borrow immutable variable %v mutably", v)
	}
	l := t.tree.CreateLifetimeThatIsBoundedByLifetimeGraph(lifetime.GraphID(d.ID))
	t.setOutput(out, t.reference(n.Mutable, v.Type, l))
	d.Association.AddVariableInterruptedByLifetime(v, l)
}

func (t *typer) typeSelectReference(n *Node) {
	ins := n.Inputs()
	in1, in2 := ins[1].Variable(), ins[2].Variable()
	l1, l2 := t.types.Lifetime(in1.Type), t.types.Lifetime(in2.Type)
	if t.isImmutableReference(in1.Type) && t.isImmutableReference(in2.Type) && l1 == l2 && l1.IsBounded() {
		t.setOutput(n.Outputs()[3], in1.Type)
		return
	}
	d := n.Diagram
	l := t.tree.CreateLifetimeThatIsBoundedByLifetimeGraph(lifetime.GraphID(d.ID))
	t.setOutput(n.Outputs()[3], t.retarget(in1.Type, l))
	d.Association.AddVariableInterruptedByLifetime(in1, l)
	if in2 != in1 {
		d.Association.AddVariableInterruptedByLifetime(in2, l)
	}
}

func (t *typer) isImmutableReference(typ typeset.Ref) bool {
	if !t.types.IsReference(typ) {
		return false
	}
	mutable, known := t.types.ReferenceMutability(typ)
	return known && !mutable
}

func (t *typer) typeTunnel(n *Node) {
	in, out := n.Outer(), n.Inner()
	if n.Direction == Output {
		in, out = out, in
	}
	typ := in.Type()
	l := t.types.Lifetime(typ)
	body := lifetime.GraphID(n.Structure.Body.ID)
	switch {
	case !l.IsBounded():
	case n.Direction == Input:
		inner := t.tree.CreateLifetimeThatOutlastsLifetimeGraph(body)
		t.origins[inner] = l
		typ = t.retarget(typ, inner)
	default:
		origin, ok := t.origins[l]
		if t.leaves(in, typ, body, ok) {
			if ok {
				typ = t.retarget(typ, origin)
			}
		} else {
			typ = t.retarget(typ, lifetime.Empty)
		}
	}
	if n.Direction == Output && executesConditionally(n.Structure) {
		if _, isOption := t.types.TryDestructureOption(typ); !isOption {
			typ = t.types.Option(typ)
		}
	}
	t.setOutput(out, typ)
}

// leaves checks that typ, wired to the inner terminal in of an output
// tunnel, may leave body: its lifetime must outlast the body, and a
// lifetime the body made for its own border must map back to one from
// outside.
func (t *typer) leaves(in *Terminal, typ typeset.Ref, body lifetime.GraphID, known bool) bool {
	c := typeset.OutlastsLifetimeGraphConstraint{Graph: body}
	check := t.types.CreateReferenceToNewTypeVariable(c)
	res := &terminalResult{g: t.g, term: in, types: t.types, actual: typ, expected: check}
	if !t.types.Unify(check, typ, res) {
		return false
	}
	if g, _ := t.tree.GetBoundedLifetimeGraphIdentifier(t.types.Lifetime(typ)); g == body && !known {
		res.AddFailedTypeConstraint(c)
		return false
	}
	return true
}

// executesConditionally reports whether the body of frame s may be
// skipped: it unwraps an Option on entry.
func executesConditionally(s *Node) bool {
	if s.Kind != Frame {
		return false
	}
	for _, b := range s.Border {
		if b.Kind == UnwrapOptionTunnel {
			return true
		}
	}
	return false
}

func (t *typer) typeBorrowTunnel(n *Node) {
	v := n.Outer().Variable()
	if n.Mutable && !v.Mutable {
		t.g.terminalMessage(TerminalDoesNotAcceptImmutableType, n.Outer(), "cannot borrow immutable variable %v mutably", v)
	}
	l := t.tree.CreateLifetimeThatOutlastsLifetimeGraph(lifetime.GraphID(n.Structure.Body.ID))
	t.setOutput(n.Inner(), t.reference(n.Mutable, v.Type, l))
}

func (t *typer) typeIterateTunnel(n *Node, env *typeset.Env) {
	item := env.Types["Item"]
	if t.types.IsReference(item) {
		item = t.types.WithLifetime(item, t.tree.CreateLifetimeThatOutlastsLifetimeGraph(lifetime.GraphID(n.Structure.Body.ID)))
	}
	t.setOutput(n.Inner(), item)
}

func (t *typer) typeUnwrapOptionTunnel(n *Node) {
	outer := n.Outer()
	value, ok := t.types.TryDestructureOption(outer.Type())
	if !ok {
		t.g.terminalMessage(TypeMismatch, outer, "type mismatch: %s is not an Option", t.types.Render(outer.Type()))
		t.setOutput(n.Inner(), t.types.Void())
		return
	}
	if t.types.Lifetime(outer.Type()).IsBounded() {
		value = t.retarget(value, t.tree.CreateLifetimeThatOutlastsLifetimeGraph(lifetime.GraphID(n.Structure.Body.ID)))
	}
	t.setOutput(n.Inner(), value)
}
