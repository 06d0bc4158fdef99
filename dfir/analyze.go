package dfir

import (
	"github.com/NERVsystems/infernode/tools/rebar/lifetime"
	"github.com/NERVsystems/infernode/tools/rebar/variable"
)

// Analyze runs every pass over g: lifetime graphs, node order, variables,
// then types and lifetimes. Program errors end up in g.Messages; the
// returned error is only for graphs that cannot be analyzed at all.
func Analyze(g *Graph) error {
	EstablishLifetimeGraphs(g)
	if err := SortNodes(g); err != nil {
		return err
	}
	DetermineVariables(g)
	SetVariableTypes(g)
	return nil
}

// EstablishLifetimeGraphs registers one lifetime graph per diagram,
// parented like the diagrams.
func EstablishLifetimeGraphs(g *Graph) {
	for _, d := range g.Diagrams() {
		parent := lifetime.NoGraph
		if p := d.Parent(); p != nil {
			parent = lifetime.GraphID(p.ID)
		}
		g.Lifetimes.EstablishLifetimeGraph(lifetime.GraphID(d.ID), parent)
	}
}

// DetermineVariables gives every terminal a variable. Passthrough outputs
// reuse their input's variable, the first sink of a wire shares the
// source's variable and further sinks get variables of their own.
// Variable types start out as free type variables.
func DetermineVariables(g *Graph) {
	for _, d := range g.Diagrams() {
		d.Variables = variable.NewSet(g.Types)
		d.Association = variable.NewAssociation(g.Types)
	}
	Walk(g.Root, &variableDeterminer{g: g})
}

type variableDeterminer struct {
	g *Graph
}

func (v *variableDeterminer) newVariable(t *Terminal, mutable bool) variable.Ref {
	return t.Diagram.Variables.CreateNewVariable(mutable, v.g.Types.CreateReferenceToNewTypeVariable())
}

func (v *variableDeterminer) VisitNode(n *Node) {
	sig := SignatureOf(n)
	for _, t := range n.Inputs() {
		if t.Var != variable.NoRef {
			continue
		}
		t.Var = v.newVariable(t, false)
		if n.Kind != LoopConditionTunnel {
			v.g.terminalMessage(RequiredTerminalUnconnected, t, "required terminal is not wired")
		}
	}
	for i, t := range n.Outputs() {
		var pass string
		if i < len(sig.Outputs) {
			pass = sig.Outputs[i].Passthrough
		}
		switch {
		case pass != "":
			t.Var = t.Diagram.Variables.NewReference(n.Terminal(pass).Var)
		case n.Kind == TerminateLifetimeTunnel && n.Paired != nil:
			t.Var = t.Diagram.Variables.NewReference(n.Paired.Outer().Var)
		default:
			t.Var = v.newVariable(t, t.Wire != nil && t.Wire.Mutable)
		}
	}
}

func (v *variableDeterminer) VisitWire(w *Wire) {
	for i, sink := range w.Sinks {
		if i == 0 {
			sink.Var = w.Diagram.Variables.NewReference(w.Source.Var)
			continue
		}
		sink.Var = v.newVariable(sink, w.Mutable)
	}
}

func (v *variableDeterminer) VisitStructure(*Node, TraversalPoint) {}
