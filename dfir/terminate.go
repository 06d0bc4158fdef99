package dfir

import (
	"github.com/NERVsystems/infernode/tools/rebar/lifetime"
	"github.com/NERVsystems/infernode/tools/rebar/typeset"
	"github.com/NERVsystems/infernode/tools/rebar/variable"
)

// typeTerminateLifetime checks that n ends exactly one lifetime of its
// diagram and receives every live variable of that lifetime. Its outputs
// become the variables the lifetime interrupted.
func (t *typer) typeTerminateLifetime(n *Node) {
	d := n.Diagram
	assoc := d.Association

	var lifetimes []*lifetime.Lifetime
	connected := 0
	for _, in := range n.Inputs() {
		if !in.IsConnected() && !n.Inserted {
			continue
		}
		connected++
		l := t.types.Lifetime(in.Type())
		if !containsLifetime(lifetimes, l) {
			lifetimes = append(lifetimes, l)
		}
	}

	var interrupted []*variable.Variable
	switch {
	case len(lifetimes) > 1:
		n.ErrorState = InputLifetimesNotUnique
	case len(lifetimes) == 0:
		// Unwired inputs are reported on their own.
		n.ErrorState = NoError
	case !lifetimes[0].IsBounded() || t.tree.DoesLifetimeOutlastLifetimeGraph(lifetimes[0], lifetime.GraphID(d.ID)):
		n.ErrorState = InputLifetimeCannotBeTerminated
	default:
		l := lifetimes[0]
		n.RequiredInputCount = len(assoc.LiveVariablesWithLifetime(l))
		interrupted = assoc.GetVariablesInterruptedByLifetime(l)
		n.RequiredOutputCount = len(interrupted)
		n.ErrorState = NoError
		if connected != n.RequiredInputCount {
			n.ErrorState = NotAllVariablesInLifetimeConnected
		}
		n.setTerminalCounts(0, len(interrupted))
	}
	t.reportTerminateLifetime(n, connected)

	for i, out := range n.Outputs() {
		if out.Var == variable.NoRef {
			out.Var = d.Variables.CreateNewVariable(false, t.types.CreateReferenceToNewTypeVariable())
		}
		if i >= len(interrupted) {
			t.setOutput(out, t.types.Void())
			continue
		}
		owner := interrupted[i]
		d.Variables.MergeVariables(owner.FirstReferenceIndex, out.Var)
		assoc.MarkVariableLive(owner, out)
	}
}

func containsLifetime(ls []*lifetime.Lifetime, l *lifetime.Lifetime) bool {
	for _, x := range ls {
		if x == l {
			return true
		}
	}
	return false
}

func (t *typer) reportTerminateLifetime(n *Node, connected int) {
	if n.Inserted {
		return
	}
	switch n.ErrorState {
	case InputLifetimesNotUnique:
		t.g.nodeMessage(TerminateLifetimeInputLifetimesNotUnique, n, "inputs do not share a single lifetime")
	case InputLifetimeCannotBeTerminated:
		t.g.nodeMessage(TerminateLifetimeInputLifetimeCannotBeTerminated, n, "input lifetime cannot be terminated here")
	case NotAllVariablesInLifetimeConnected:
		t.g.nodeMessage(TerminateLifetimeNotAllVariablesInLifetimeConnected, n,
			"%d variables share the input lifetime but %d are wired", n.RequiredInputCount, connected)
	}
}

// finishDiagram releases everything still live at the end of d. References
// from enclosing diagrams are simply let go; lifetimes of d that still have
// live references get a terminate-lifetime node, and owned values that
// need it get a drop node.
func (t *typer) finishDiagram(d *Diagram) {
	assoc := d.Association
	if d.Owner != nil {
		for _, v := range d.Variables.Variables() {
			if assoc.Status(v) != variable.Live {
				continue
			}
			if l := t.types.Lifetime(v.Type); l.IsBounded() && t.tree.DoesLifetimeOutlastLifetimeGraph(l, lifetime.GraphID(d.ID)) {
				assoc.MarkVariableConsumed(v)
			}
		}
	}

	for {
		_, live, ok := assoc.TryGetBoundedLifetimeWithLiveVariables()
		if !ok {
			break
		}
		n := d.AddTerminateLifetime("", len(live), 0)
		n.Inserted = true
		for i, in := range n.Inputs() {
			in.Var = d.Variables.NewReference(live[i].Variable.FirstReferenceIndex)
		}
		t.VisitNode(n)
	}

	for {
		lv, ok := assoc.TryGetLiveVariableWithUnboundedLifetime()
		if !ok {
			break
		}
		if t.implements(lv.Variable.Type, typeset.Drop) {
			n := d.AddNode(Drop, "")
			n.Inserted = true
			n.Inputs()[0].Var = d.Variables.NewReference(lv.Variable.FirstReferenceIndex)
			t.VisitNode(n)
			continue
		}
		assoc.MarkVariableConsumed(lv.Variable)
	}
}

// terminalResult turns unification failures at one input terminal into
// messages, at most one per kind and constraint.
type terminalResult struct {
	g        *Graph
	term     *Terminal
	types    *typeset.Set
	actual   typeset.Ref
	expected typeset.Ref
	quiet    bool
	seen     map[string]bool
}

func (r *terminalResult) once(key string) bool {
	if r.quiet || r.seen[key] {
		return false
	}
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	r.seen[key] = true
	return true
}

func (r *terminalResult) SetTypeMismatch() {
	if r.once("mismatch") {
		r.g.terminalMessage(TypeMismatch, r.term, "type mismatch: %s cannot be used as %s",
			r.types.Render(r.actual), r.types.Render(r.expected))
	}
}

func (r *terminalResult) SetExpectedMutable() {
	if !r.once("mutable") {
		return
	}
	if r.types.IsMutableReference(r.expected) {
		r.g.terminalMessage(TerminalDoesNotAcceptImmutableType, r.term, "terminal does not accept an immutable reference")
	} else {
		r.g.terminalMessage(TerminalDoesNotAcceptImmutableType, r.term, "terminal does not accept a mutable reference")
	}
}

func (r *terminalResult) AddFailedTypeConstraint(c typeset.Constraint) {
	if _, ok := c.(typeset.OutlastsLifetimeGraphConstraint); ok {
		if r.once("outlasts") {
			r.g.terminalMessage(WiredReferenceDoesNotLiveLongEnough, r.term, "reference does not live long enough to leave %v", r.term.Diagram)
		}
		return
	}
	if r.once("constraint " + c.Key()) {
		r.g.terminalMessage(FailedConstraint, r.term, "%s does not satisfy %s",
			r.types.Render(r.actual), c.Describe(r.types))
	}
}

func (r *terminalResult) MissingField(name string) {
	if r.once("field " + name) {
		r.g.terminalMessage(MissingField, r.term, "%s has no field %s", r.types.Render(r.actual), name)
	}
}
