// Package dfir holds the dataflow intermediate representation of a Rebar
// function: diagrams of nodes joined by wires, structures with border
// nodes, and the analysis that types every terminal and checks lifetimes.
package dfir

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/NERVsystems/infernode/tools/rebar/lifetime"
	"github.com/NERVsystems/infernode/tools/rebar/typeset"
	"github.com/NERVsystems/infernode/tools/rebar/variable"
)

// Direction is the direction data flows through a terminal or border node.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Graph is one Rebar function.
type Graph struct {
	Name      string
	Root      *Diagram
	Types     *typeset.Set
	Lifetimes *lifetime.Tree
	Messages  []Message

	// Reporter, if set, sees every message as it is produced.
	Reporter func(Message)

	diagrams  []*Diagram
	nodes     []*Node
	terminals int
}

// NewGraph returns a graph with an empty root diagram.
func NewGraph(name string) *Graph {
	tree := lifetime.NewTree()
	g := &Graph{Name: name, Lifetimes: tree, Types: typeset.New(tree)}
	g.Root = g.newDiagram(nil)
	return g
}

func (g *Graph) newDiagram(owner *Node) *Diagram {
	d := &Diagram{ID: len(g.diagrams), Graph: g, Owner: owner}
	g.diagrams = append(g.diagrams, d)
	return d
}

// Diagrams returns every diagram, root first, in creation order.
func (g *Graph) Diagrams() []*Diagram { return g.diagrams }

// Node returns the node with the given ID.
func (g *Graph) Node(id int) *Node { return g.nodes[id] }

// Diagram is a scope holding nodes and wires. Its ID doubles as the ID of
// its lifetime graph.
type Diagram struct {
	ID          int
	Graph       *Graph
	Owner       *Node // structure owning the diagram; nil for the root
	Nodes       []*Node
	Wires       []*Wire
	Variables   *variable.Set
	Association *variable.Association
}

// Parent returns the diagram containing the owner structure.
func (d *Diagram) Parent() *Diagram {
	if d.Owner == nil {
		return nil
	}
	return d.Owner.Diagram
}

func (d *Diagram) String() string {
	if d.Owner == nil {
		return "root"
	}
	return d.Owner.String() + ".body"
}

// Node is an operation, a structure or a border node.
type Node struct {
	ID        int
	Label     string
	Kind      NodeKind
	Diagram   *Diagram // for border nodes, the diagram of the structure
	Terminals []*Terminal

	Value     int32  // Constant
	ValueType string // Constant: typeset.Int32Name or typeset.BooleanName
	Op        Op     // PureUnary, PureBinary, MutatingUnary, MutatingBinary
	Mutable   bool   // Borrow, BorrowTunnel
	Struct    string // StructConstructor: the type name
	Fields    []StructField

	Body      *Diagram // structures
	Border    []*Node  // structures
	Structure *Node    // border nodes
	Direction Direction
	Paired    *Node // BorrowTunnel <-> TerminateLifetimeTunnel

	ErrorState          TerminateLifetimeErrorState
	RequiredInputCount  int
	RequiredOutputCount int

	// Inserted is set on nodes added by lifetime analysis.
	Inserted bool
}

func (n *Node) String() string {
	if n.Label != "" {
		return n.Label
	}
	return fmt.Sprintf("%v#%d", n.Kind, n.ID)
}

// Terminal returns the terminal with the given name, or nil.
func (n *Node) Terminal(name string) *Terminal {
	for _, t := range n.Terminals {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Inputs returns the input terminals in order.
func (n *Node) Inputs() []*Terminal { return n.filter(Input) }

// Outputs returns the output terminals in order.
func (n *Node) Outputs() []*Terminal { return n.filter(Output) }

func (n *Node) filter(dir Direction) []*Terminal {
	var out []*Terminal
	for _, t := range n.Terminals {
		if t.Direction == dir {
			out = append(out, t)
		}
	}
	return out
}

// Outer returns a border node's terminal on the structure's diagram.
func (n *Node) Outer() *Terminal { return n.Terminal("outer") }

// Inner returns a border node's terminal on the body diagram, or nil.
func (n *Node) Inner() *Terminal { return n.Terminal("inner") }

// BorderNodes returns a structure's border nodes facing dir.
func (n *Node) BorderNodes(dir Direction) []*Node {
	var out []*Node
	for _, b := range n.Border {
		if b.Direction == dir {
			out = append(out, b)
		}
	}
	return out
}

// ConditionTunnel returns a loop's condition tunnel.
func (n *Node) ConditionTunnel() *Node {
	for _, b := range n.Border {
		if b.Kind == LoopConditionTunnel {
			return b
		}
	}
	return nil
}

// Terminal is a connection point of a node.
type Terminal struct {
	ID        int
	Name      string
	Node      *Node
	Direction Direction
	Diagram   *Diagram // the diagram the terminal faces
	Wire      *Wire
	Var       variable.Ref
}

func (t *Terminal) String() string { return t.Node.String() + "." + t.Name }

// IsConnected reports whether a wire is attached.
func (t *Terminal) IsConnected() bool { return t.Wire != nil }

// Variable returns the variable assigned to the terminal.
func (t *Terminal) Variable() *variable.Variable { return t.Diagram.Variables.Variable(t.Var) }

// Type returns the type of the terminal's variable.
func (t *Terminal) Type() typeset.Ref { return t.Variable().Type }

// Wire carries one source terminal's value to its sinks.
type Wire struct {
	ID      int
	Diagram *Diagram
	Source  *Terminal
	Sinks   []*Terminal
	Mutable bool // the variable declared by the wire is mutable
}

func (g *Graph) newNode(d *Diagram, kind NodeKind, label string) *Node {
	n := &Node{ID: len(g.nodes), Label: label, Kind: kind, Diagram: d}
	g.nodes = append(g.nodes, n)
	return n
}

func (n *Node) addTerminal(dir Direction, name string, d *Diagram) *Terminal {
	t := &Terminal{ID: n.Diagram.Graph.terminals, Name: name, Node: n, Direction: dir, Diagram: d, Var: variable.NoRef}
	n.Diagram.Graph.terminals++
	n.Terminals = append(n.Terminals, t)
	return t
}

// AddNode adds a node of the given kind with the terminals its signature
// declares. Structures get an empty body diagram.
func (d *Diagram) AddNode(kind NodeKind, label string) *Node {
	if kind.IsBorderNode() {
		panic(fmt.Sprintf("dfir: AddNode(%v): border nodes are added to structures", kind))
	}
	n := d.Graph.newNode(d, kind, label)
	if kind.IsStructure() {
		n.Body = d.Graph.newDiagram(n)
	}
	layout := terminalLayouts[kind]
	for i := 0; i < layout.inputs; i++ {
		n.addTerminal(Input, fmt.Sprintf("in%d", i), d)
	}
	for i := 0; i < layout.outputs; i++ {
		n.addTerminal(Output, fmt.Sprintf("out%d", i), d)
	}
	d.Nodes = append(d.Nodes, n)
	return n
}

// AddTerminateLifetime adds a terminate-lifetime node with the given
// number of inputs and outputs.
func (d *Diagram) AddTerminateLifetime(label string, inputs, outputs int) *Node {
	n := d.AddNode(TerminateLifetime, label)
	n.setTerminalCounts(inputs, outputs)
	return n
}

// StructField names a field of a struct-constructor or
// struct-field-accessor node. Type is a type expression and is only used
// by constructors.
type StructField struct {
	Name string
	Type string
}

// AddStructConstructor adds a node that builds a value of struct type name
// from one input per field. Inputs are named after the fields.
func (d *Diagram) AddStructConstructor(label, name string, fields []StructField) *Node {
	n := d.AddNode(StructConstructor, label)
	n.Struct, n.Fields = name, fields
	for _, f := range fields {
		n.addTerminal(Input, f.Name, d)
	}
	n.addTerminal(Output, "out0", d)
	return n
}

// AddStructFieldAccessor adds a node that takes a reference to a struct
// and gives a reference to each named field, on outputs named after the
// fields.
func (d *Diagram) AddStructFieldAccessor(label string, fields ...string) *Node {
	n := d.AddNode(StructFieldAccessor, label)
	n.addTerminal(Input, "in0", d)
	for _, f := range fields {
		n.Fields = append(n.Fields, StructField{Name: f})
		n.addTerminal(Output, f, d)
	}
	return n
}

// AddTuple adds a build-tuple node with elems inputs or a decompose-tuple
// node with elems outputs. A tuple has at least two elements.
func (d *Diagram) AddTuple(kind NodeKind, label string, elems int) *Node {
	if elems < 2 || (kind != BuildTuple && kind != DecomposeTuple) {
		panic(fmt.Sprintf("dfir: AddTuple(%v, %d)", kind, elems))
	}
	n := d.AddNode(kind, label)
	if kind == BuildTuple {
		n.setTerminalCounts(elems, 1)
	} else {
		n.setTerminalCounts(1, elems)
	}
	return n
}

func (n *Node) setTerminalCounts(inputs, outputs int) {
	for len(n.Inputs()) < inputs {
		n.addTerminal(Input, fmt.Sprintf("in%d", len(n.Inputs())), n.Diagram)
	}
	for len(n.Outputs()) < outputs {
		n.addTerminal(Output, fmt.Sprintf("out%d", len(n.Outputs())), n.Diagram)
	}
}

// AddBorderNode adds a border node to structure s. Only tunnels take dir;
// the other border node kinds have a fixed direction. A
// terminate-lifetime tunnel only has an outer terminal.
func (s *Node) AddBorderNode(kind NodeKind, dir Direction, label string) *Node {
	if !s.Kind.IsStructure() || !kind.IsBorderNode() {
		panic(fmt.Sprintf("dfir: cannot add %v to %v", kind, s.Kind))
	}
	switch kind {
	case TerminateLifetimeTunnel:
		dir = Output
	case BorrowTunnel, LoopConditionTunnel, IterateTunnel, UnwrapOptionTunnel:
		dir = Input
	}
	n := s.Diagram.Graph.newNode(s.Diagram, kind, label)
	n.Structure, n.Direction = s, dir
	outer, body := s.Diagram, s.Body
	switch {
	case kind == TerminateLifetimeTunnel:
		n.addTerminal(Output, "outer", outer)
	case dir == Input:
		n.addTerminal(Input, "outer", outer)
		n.addTerminal(Output, "inner", body)
	default:
		n.addTerminal(Input, "inner", body)
		n.addTerminal(Output, "outer", outer)
	}
	s.Border = append(s.Border, n)
	return n
}

// PairBorrowTunnel pairs a borrow tunnel with the terminate-lifetime tunnel
// that returns the borrowed value to the outer diagram.
func PairBorrowTunnel(borrow, terminate *Node) {
	borrow.Paired, terminate.Paired = terminate, borrow
}

// Connect wires src to sinks. All terminals must face d; src must be an
// output and the sinks unconnected inputs. Connecting an already wired
// source adds sinks to its wire.
func (d *Diagram) Connect(src *Terminal, sinks ...*Terminal) (*Wire, error) {
	if src.Direction != Output || src.Diagram != d {
		return nil, errors.Errorf("%v: not an output terminal in %v", src, d)
	}
	for _, t := range sinks {
		if t.Direction != Input || t.Diagram != d {
			return nil, errors.Errorf("%v: not an input terminal in %v", t, d)
		}
		if t.Wire != nil {
			return nil, errors.Errorf("%v: already connected", t)
		}
	}
	w := src.Wire
	if w == nil {
		w = &Wire{ID: len(d.Wires), Diagram: d, Source: src}
		src.Wire = w
		d.Wires = append(d.Wires, w)
	}
	for _, t := range sinks {
		t.Wire = w
		w.Sinks = append(w.Sinks, t)
	}
	return w, nil
}

type layout struct{ inputs, outputs int }

var terminalLayouts = map[NodeKind]layout{
	Constant:             {0, 1},
	Borrow:               {1, 1},
	ImmutablePassthrough: {1, 1},
	MutablePassthrough:   {1, 1},
	Assign:               {2, 1},
	ExchangeValues:       {2, 2},
	CreateCopy:           {1, 2},
	PureUnary:            {1, 2},
	PureBinary:           {2, 3},
	MutatingUnary:        {1, 1},
	MutatingBinary:       {2, 2},
	Output:               {1, 1},
	Range:                {2, 1},
	SelectReference:      {3, 4},
	SomeConstructor:      {1, 1},
	Drop:                 {1, 0},
	VectorCreate:         {0, 1},
}
