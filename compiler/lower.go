package compiler

import (
	"github.com/NERVsystems/infernode/tools/rebar/bytecode"
	"github.com/NERVsystems/infernode/tools/rebar/dfir"
	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
	"github.com/NERVsystems/infernode/tools/rebar/typeset"
)

// emitter lowers an analyzed, allocated graph to stack machine code.
type emitter struct {
	types *typeset.Set
	frame *Frame
	b     *bytecode.Builder
	log   Logger

	frames map[*dfir.Node]*frameLabels
	loops  map[*dfir.Node]*loopLabels
}

type frameLabels struct {
	unwrapFailed, end *bytecode.Label
}

type loopLabels struct {
	start, end *bytecode.Label
}

func newEmitter(g *dfir.Graph, frame *Frame, b *bytecode.Builder, log Logger) *emitter {
	return &emitter{
		types:  g.Types,
		frame:  frame,
		b:      b,
		log:    log,
		frames: make(map[*dfir.Node]*frameLabels),
		loops:  make(map[*dfir.Node]*loopLabels),
	}
}

// emit lowers the graph and ends the function with Ret.
func (e *emitter) emit(g *dfir.Graph) {
	dfir.Walk(g.Root, e)
	e.b.EmitReturn()
}

func (e *emitter) slot(t *dfir.Terminal) Allocation {
	a, ok := e.frame.Lookup(t.Variable())
	if !ok {
		ice.Panicf("%v: variable %v has no allocation", t, t.Variable())
	}
	return a
}

func (e *emitter) isReference(t *dfir.Terminal) bool { return e.types.IsReference(t.Type()) }

// loadLocalAddress pushes the address of t's slot.
func (e *emitter) loadLocalAddress(t *dfir.Terminal) {
	e.b.EmitLoadLocalAddress(e.slot(t).Index)
}

// loadValueAddress pushes the address of the value t designates: its slot,
// or for a reference the address the reference holds.
func (e *emitter) loadValueAddress(t *dfir.Terminal) {
	e.loadLocalAddress(t)
	if e.isReference(t) {
		e.b.EmitDerefPointer()
	}
}

// copyValue reads the word at the address on top of the stack and stores
// it to the address below.
func (e *emitter) copyValue(pointer bool) {
	if pointer {
		e.b.EmitDerefPointer()
		e.b.EmitStorePointer()
		return
	}
	e.b.EmitDerefInteger()
	e.b.EmitStoreInteger()
}

func (e *emitter) VisitNode(n *dfir.Node) {
	ins, outs := n.Inputs(), n.Outputs()
	switch n.Kind {
	case dfir.Constant:
		e.loadLocalAddress(outs[0])
		e.b.EmitLoadIntegerImmediate(n.Value)
		e.b.EmitStoreInteger()

	case dfir.Borrow:
		e.loadLocalAddress(outs[0])
		e.loadValueAddress(ins[0])
		e.b.EmitStorePointer()

	case dfir.ImmutablePassthrough, dfir.MutablePassthrough,
		dfir.TerminateLifetime, dfir.TerminateLifetimeTunnel, dfir.LoopConditionTunnel:

	case dfir.Assign:
		e.loadValueAddress(ins[0])
		e.loadLocalAddress(ins[1])
		e.b.EmitDerefInteger()
		e.b.EmitStoreInteger()

	case dfir.ExchangeValues:
		e.loadValueAddress(ins[1])
		e.loadValueAddress(ins[0])
		e.b.EmitDuplicate()
		e.b.EmitDerefInteger()
		e.b.EmitSwap()
		e.loadValueAddress(ins[1])
		e.b.EmitDerefInteger()
		e.b.EmitStoreInteger()
		e.b.EmitStoreInteger()

	case dfir.CreateCopy:
		e.loadLocalAddress(outs[1])
		e.loadValueAddress(ins[0])
		e.b.EmitDerefInteger()
		e.b.EmitStoreInteger()

	case dfir.PureUnary:
		e.loadLocalAddress(outs[1])
		e.unary(n.Op, ins[0])
		e.b.EmitStoreInteger()

	case dfir.MutatingUnary:
		e.loadValueAddress(ins[0])
		e.unary(n.Op, ins[0])
		e.b.EmitStoreInteger()

	case dfir.PureBinary:
		e.loadLocalAddress(outs[2])
		e.loadValueAddress(ins[0])
		e.b.EmitDerefInteger()
		e.loadValueAddress(ins[1])
		e.b.EmitDerefInteger()
		e.binary(n.Op)
		e.b.EmitStoreInteger()

	case dfir.MutatingBinary:
		e.loadValueAddress(ins[0])
		e.b.EmitDuplicate()
		e.b.EmitDerefInteger()
		e.loadValueAddress(ins[1])
		e.b.EmitDerefInteger()
		e.binary(n.Op)
		e.b.EmitStoreInteger()

	case dfir.Output:
		e.loadValueAddress(ins[0])
		e.b.EmitDerefInteger()
		e.b.EmitOutputTemp()

	case dfir.Range:
		// A range iterator is {current, max}; current starts one below
		// the low bound and is advanced before each read.
		e.loadLocalAddress(outs[0])
		e.b.EmitDuplicate()
		e.loadLocalAddress(ins[0])
		e.b.EmitDerefInteger()
		e.b.EmitLoadIntegerImmediate(1)
		e.b.EmitSubtract()
		e.b.EmitStoreInteger()
		e.b.EmitLoadIntegerImmediate(4)
		e.b.EmitAdd()
		e.loadLocalAddress(ins[1])
		e.b.EmitDerefInteger()
		e.b.EmitStoreInteger()

	case dfir.SelectReference:
		falseLabel, endLabel := e.b.CreateLabel(), e.b.CreateLabel()
		e.loadLocalAddress(outs[3])
		e.loadValueAddress(ins[0])
		e.b.EmitDerefInteger()
		e.b.EmitBranchIfFalse(falseLabel)
		e.loadValueAddress(ins[1])
		e.b.EmitBranch(endLabel)
		e.b.SetLabel(falseLabel)
		e.loadValueAddress(ins[2])
		e.b.SetLabel(endLabel)
		e.b.EmitStorePointer()

	case dfir.SomeConstructor:
		e.loadLocalAddress(outs[0])
		e.b.EmitDuplicate()
		e.b.EmitLoadIntegerImmediate(1)
		e.b.EmitStoreInteger()
		e.b.EmitLoadIntegerImmediate(4)
		e.b.EmitAdd()
		e.loadLocalAddress(ins[0])
		e.copyValue(e.isReference(ins[0]))

	case dfir.Tunnel:
		e.tunnel(n)

	case dfir.BorrowTunnel:
		e.loadLocalAddress(n.Inner())
		e.loadValueAddress(n.Outer())
		e.b.EmitStorePointer()

	case dfir.IterateTunnel:
		e.iterate(n)

	case dfir.UnwrapOptionTunnel:
		labels := e.frames[n.Structure]
		outer, inner := n.Outer(), n.Inner()
		e.loadLocalAddress(outer)
		e.b.EmitDerefInteger()
		e.b.EmitBranchIfFalse(labels.unwrapFailed)
		e.loadLocalAddress(inner)
		e.loadLocalAddress(outer)
		e.b.EmitLoadIntegerImmediate(4)
		e.b.EmitAdd()
		e.copyValue(e.isReference(inner))

	default:
		ice.Panicf("%v: no lowering for %v nodes", n, n.Kind)
	}
}

func (e *emitter) unary(op dfir.Op, in *dfir.Terminal) {
	e.b.EmitLoadIntegerImmediate(1)
	e.loadValueAddress(in)
	e.b.EmitDerefInteger()
	switch op {
	case dfir.OpIncrement:
		e.b.EmitAdd()
	case dfir.OpNot:
		e.b.EmitSubtract()
	default:
		ice.Panicf("no lowering for unary %v", op)
	}
}

var binaryOps = map[dfir.Op]bytecode.Op{
	dfir.OpAdd:      bytecode.Add,
	dfir.OpSubtract: bytecode.Subtract,
	dfir.OpMultiply: bytecode.Multiply,
	dfir.OpDivide:   bytecode.Divide,
	dfir.OpAnd:      bytecode.And,
	dfir.OpOr:       bytecode.Or,
	dfir.OpXor:      bytecode.Xor,
	dfir.OpGt:       bytecode.Gt,
	dfir.OpGte:      bytecode.Gte,
	dfir.OpLt:       bytecode.Lt,
	dfir.OpLte:      bytecode.Lte,
	dfir.OpEq:       bytecode.Eq,
	dfir.OpNeq:      bytecode.Neq,
}

func (e *emitter) binary(op dfir.Op) {
	code, ok := binaryOps[op]
	if !ok {
		ice.Panicf("no lowering for binary %v", op)
	}
	e.b.Emit(code, 0)
}

// tunnel copies a value across a structure border, wrapping it in Some
// when the outside type is the Option of the inside type.
func (e *emitter) tunnel(n *dfir.Node) {
	in, out := n.Outer(), n.Inner()
	if n.Direction == dfir.Output {
		in, out = out, in
	}
	if value, ok := e.types.TryDestructureOption(out.Type()); ok && e.types.Equal(value, in.Type()) {
		e.loadLocalAddress(out)
		e.b.EmitLoadIntegerImmediate(1)
		e.b.EmitStoreInteger()
		e.loadLocalAddress(out)
		e.b.EmitLoadIntegerImmediate(4)
		e.b.EmitAdd()
		e.loadLocalAddress(in)
		e.copyValue(e.isReference(in))
		return
	}
	if e.slot(in).Index == e.slot(out).Index {
		return
	}
	e.loadLocalAddress(out)
	e.loadLocalAddress(in)
	e.copyValue(e.isReference(in))
}

// iterate advances the range iterator behind the tunnel's outer reference,
// writes the new current value to the inner terminal and ANDs the loop
// condition with current < max.
func (e *emitter) iterate(n *dfir.Node) {
	cond := n.Structure.ConditionTunnel().Inner()
	e.loadValueAddress(cond)
	e.b.EmitDuplicate()
	e.b.EmitDerefInteger()
	e.loadValueAddress(n.Outer())
	e.b.EmitDuplicate()
	e.b.EmitLoadIntegerImmediate(4)
	e.b.EmitAdd()
	e.b.EmitDerefInteger()
	e.b.EmitSwap()
	e.b.EmitDuplicate()
	e.b.EmitDuplicate()
	e.b.EmitDerefInteger()
	e.b.EmitLoadIntegerImmediate(1)
	e.b.EmitAdd()
	e.b.EmitDuplicate()
	e.loadLocalAddress(n.Inner())
	e.b.EmitSwap()
	e.b.EmitStoreInteger()
	e.b.EmitStoreInteger()
	e.b.EmitDerefInteger()
	e.b.EmitGreaterThan()
	e.b.EmitAnd()
	e.b.EmitStoreInteger()
}

// VisitWire copies the source value to every sink after the first; the
// first sink shares the source's variable.
func (e *emitter) VisitWire(w *dfir.Wire) {
	if len(w.Sinks) < 2 {
		return
	}
	extra := w.Sinks[1:]
	src := w.Source
	if len(extra) == 1 {
		e.loadLocalAddress(extra[0])
		e.loadLocalAddress(src)
		e.copyValue(e.isReference(src))
		return
	}
	// Read the source once and keep a copy under each store.
	e.loadLocalAddress(src)
	if e.isReference(src) {
		e.b.EmitDerefPointer()
	} else {
		e.b.EmitDerefInteger()
	}
	for i, sink := range extra {
		if i < len(extra)-1 {
			e.b.EmitDuplicate()
		}
		e.loadLocalAddress(sink)
		e.b.EmitSwap()
		if e.isReference(sink) {
			e.b.EmitStorePointer()
		} else {
			e.b.EmitStoreInteger()
		}
	}
}

func (e *emitter) VisitStructure(n *dfir.Node, at dfir.TraversalPoint) {
	if at == dfir.BeforeLeftBorderNodes {
		e.log.Debugf("lower %v %v at %d", n.Kind, n, e.b.Len())
	}
	switch n.Kind {
	case dfir.Frame:
		e.visitFrame(n, at)
	case dfir.Loop:
		e.visitLoop(n, at)
	}
}

func unwraps(frame *dfir.Node) bool {
	for _, b := range frame.Border {
		if b.Kind == dfir.UnwrapOptionTunnel {
			return true
		}
	}
	return false
}

// visitFrame lowers a frame. A frame that unwraps options jumps to its
// unwrap-failed label when one is None, where every output tunnel is set
// to None.
func (e *emitter) visitFrame(n *dfir.Node, at dfir.TraversalPoint) {
	if !unwraps(n) {
		return
	}
	switch at {
	case dfir.BeforeLeftBorderNodes:
		e.frames[n] = &frameLabels{unwrapFailed: e.b.CreateLabel(), end: e.b.CreateLabel()}
	case dfir.AfterRightBorderNodes:
		labels := e.frames[n]
		e.b.EmitBranch(labels.end)
		e.b.SetLabel(labels.unwrapFailed)
		for _, t := range n.BorderNodes(dfir.Output) {
			if t.Kind != dfir.Tunnel {
				continue
			}
			e.loadLocalAddress(t.Outer())
			e.b.EmitLoadIntegerImmediate(0)
			e.b.EmitStoreInteger()
		}
		e.b.SetLabel(labels.end)
	}
}

// visitLoop lowers a loop. The condition tunnel's inner reference points
// at the outer condition variable, which is true when unwired. Each
// iteration starts with the left border nodes and leaves when the
// condition is false.
func (e *emitter) visitLoop(n *dfir.Node, at dfir.TraversalPoint) {
	cond := n.ConditionTunnel()
	if cond == nil {
		ice.Panicf("%v: loop without a condition tunnel", n)
	}
	switch at {
	case dfir.BeforeLeftBorderNodes:
		labels := &loopLabels{start: e.b.CreateLabel(), end: e.b.CreateLabel()}
		e.loops[n] = labels
		e.loadLocalAddress(cond.Inner())
		e.loadLocalAddress(cond.Outer())
		if !cond.Outer().IsConnected() {
			e.b.EmitDuplicate()
			e.b.EmitLoadIntegerImmediate(1)
			e.b.EmitStoreInteger()
		}
		e.b.EmitStorePointer()
		e.b.SetLabel(labels.start)
	case dfir.AfterLeftBorderNodesAndBeforeDiagram:
		e.loadValueAddress(cond.Inner())
		e.b.EmitDerefInteger()
		e.b.EmitBranchIfFalse(e.loops[n].end)
	case dfir.AfterRightBorderNodes:
		labels := e.loops[n]
		e.b.EmitBranch(labels.start)
		e.b.SetLabel(labels.end)
	}
}
