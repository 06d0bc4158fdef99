package dfir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func analyzeFile(t *testing.T, name string) *Graph {
	t.Helper()
	g, err := LoadFile("testdata/" + name + ".yaml")
	if err != nil {
		t.Fatalf("LoadFile(%s): %v", name, err)
	}
	if err := Analyze(g); err != nil {
		t.Fatalf("Analyze(%s): %v", name, err)
	}
	return g
}

// messages returns "Kind@location" for each message of g.
func messages(g *Graph) []string {
	var out []string
	for _, m := range g.Messages {
		at := m.Node.String()
		if m.Terminal != nil {
			at = m.Terminal.String()
		}
		out = append(out, m.Kind.String()+"@"+at)
	}
	return out
}

func findNode(g *Graph, label string) *Node {
	for _, n := range g.nodes {
		if n.Label == label {
			return n
		}
	}
	return nil
}

func inserted(d *Diagram) []NodeKind {
	var out []NodeKind
	for _, n := range d.Nodes {
		if n.Inserted {
			out = append(out, n.Kind)
		}
	}
	return out
}

func TestAnalyzeMessages(t *testing.T) {
	tests := []struct {
		file string
		want []string
	}{
		{"borrow", nil},
		{"borrow_fork", []string{"TerminateLifetimeNotAllVariablesInLifetimeConnected@tl"}},
		{"mismatch", []string{"TypeMismatch@inc.in0"}},
		{"fork", []string{"WireCannotFork@v.out0"}},
		{"fork_unwired", []string{"RequiredTerminalUnconnected@t.outer"}},
		{"unwired", []string{"RequiredTerminalUnconnected@o.in0"}},
		{"leak", nil},
		{"iterate", nil},
		{"borrow_tunnel", nil},
		{"immutable_borrow_tunnel", []string{"TerminalDoesNotAcceptImmutableType@bt.outer"}},
		{"unwrap", nil},
		{"unwrap_mismatch", []string{"TypeMismatch@u.outer"}},
		{"tl_two_inputs", nil},
		{"struct_fields", nil},
		{"missing_field", []string{"MissingField@a.in0"}},
		{"tuple", nil},
		{"tuple_mismatch", []string{"TypeMismatch@u.in0"}},
		{"escape", []string{"WiredReferenceDoesNotLiveLongEnough@t.inner"}},
		{"reference_tunnel", nil},
		{"tl_unwired", []string{
			"RequiredTerminalUnconnected@tl.in1",
			"TerminateLifetimeNotAllVariablesInLifetimeConnected@tl",
		}},
	}
	for _, tt := range tests {
		g := analyzeFile(t, tt.file)
		if diff := cmp.Diff(tt.want, messages(g)); diff != "" {
			t.Errorf("%s: messages mismatch (-want +got):\n%s", tt.file, diff)
		}
	}
}

func TestTerminateLifetime(t *testing.T) {
	g := analyzeFile(t, "borrow")
	tl := findNode(g, "tl")
	if tl.ErrorState != NoError {
		t.Errorf("ErrorState = %v, want NoError", tl.ErrorState)
	}
	if tl.RequiredInputCount != 1 || tl.RequiredOutputCount != 1 {
		t.Errorf("required = %d in, %d out; want 1, 1", tl.RequiredInputCount, tl.RequiredOutputCount)
	}
	c := findNode(g, "c")
	if !g.Root.Variables.ReferencesSame(tl.Outputs()[0].Var, c.Outputs()[0].Var) {
		t.Errorf("tl.out0 is not the borrowed variable")
	}
	if got := inserted(g.Root); len(got) != 0 {
		t.Errorf("inserted nodes = %v, want none", got)
	}

	g = analyzeFile(t, "borrow_fork")
	tl = findNode(g, "tl")
	if tl.ErrorState != NotAllVariablesInLifetimeConnected {
		t.Errorf("ErrorState = %v, want NotAllVariablesInLifetimeConnected", tl.ErrorState)
	}
	if tl.RequiredInputCount != 2 {
		t.Errorf("RequiredInputCount = %d, want 2", tl.RequiredInputCount)
	}
	if diff := cmp.Diff([]NodeKind{TerminateLifetime}, inserted(g.Root)); diff != "" {
		t.Errorf("inserted nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestTerminateLifetimeArity(t *testing.T) {
	tests := []struct {
		file    string
		state   TerminateLifetimeErrorState
		in, out int
	}{
		{"borrow", NoError, 1, 1},
		{"tl_two_inputs", NoError, 2, 1},
		{"borrow_fork", NotAllVariablesInLifetimeConnected, 2, 1},
		{"tl_unwired", NotAllVariablesInLifetimeConnected, 2, 1},
	}
	for _, tt := range tests {
		tl := findNode(analyzeFile(t, tt.file), "tl")
		if tl.ErrorState != tt.state {
			t.Errorf("%s: ErrorState = %v, want %v", tt.file, tl.ErrorState, tt.state)
		}
		if tl.RequiredInputCount != tt.in || tl.RequiredOutputCount != tt.out {
			t.Errorf("%s: required = %d in, %d out; want %d, %d",
				tt.file, tl.RequiredInputCount, tl.RequiredOutputCount, tt.in, tt.out)
		}
	}
}

func TestInsertedNodes(t *testing.T) {
	tests := []struct {
		file string
		want []NodeKind
	}{
		{"leak", []NodeKind{Drop}},
		{"fork", nil},
		{"mismatch", []NodeKind{TerminateLifetime}},
	}
	for _, tt := range tests {
		g := analyzeFile(t, tt.file)
		if diff := cmp.Diff(tt.want, inserted(g.Root)); diff != "" {
			t.Errorf("%s: inserted nodes mismatch (-want +got):\n%s", tt.file, diff)
		}
	}
}

func TestTerminalTypes(t *testing.T) {
	tests := []struct {
		file, terminal, want string
	}{
		{"borrow", "b.out0", "&Int32"},
		{"mismatch", "inc.out1", "Void"},
		{"iterate", "it.inner", "Int32"},
		{"iterate", "loop.cond.inner", "&mut Boolean"},
		{"iterate", "r.out0", "RangeIterator"},
		{"borrow_tunnel", "bt.inner", "&mut Int32"},
		{"borrow_tunnel", "bt.tl.outer", "Int32"},
		{"unwrap", "u.inner", "Int32"},
		{"unwrap", "t.outer", "Option<Int32>"},
		{"unwrap", "s.out0", "Option<Int32>"},
		{"struct_fields", "p.out0", "Point"},
		{"struct_fields", "a.x", "&Int32"},
		{"struct_fields", "a.y", "&Boolean"},
		{"tuple", "t.out0", "(Int32, Boolean)"},
		{"tuple", "u.out0", "Int32"},
		{"tuple", "b.out0", "&Boolean"},
		{"reference_tunnel", "tin.inner", "&Int32"},
		{"reference_tunnel", "tout.outer", "&Int32"},
	}
	for _, tt := range tests {
		g := analyzeFile(t, tt.file)
		i := strings.LastIndexByte(tt.terminal, '.')
		n := findNode(g, tt.terminal[:i])
		if n == nil {
			t.Errorf("%s: no node %s", tt.file, tt.terminal[:i])
			continue
		}
		term := n.Terminal(tt.terminal[i+1:])
		if got := g.Types.Render(term.Type()); got != tt.want {
			t.Errorf("%s: type of %s = %s, want %s", tt.file, tt.terminal, got, tt.want)
		}
	}
}

func TestBorrowTunnelReturnsVariable(t *testing.T) {
	g := analyzeFile(t, "borrow_tunnel")
	bt := findNode(g, "bt")
	if bt.Paired == nil || bt.Paired.Label != "bt.tl" {
		t.Fatalf("bt.Paired = %v, want bt.tl", bt.Paired)
	}
	if !g.Root.Variables.ReferencesSame(bt.Outer().Var, bt.Paired.Outer().Var) {
		t.Errorf("terminate-lifetime tunnel does not return the borrowed variable")
	}
}

func TestTunnelLifetimes(t *testing.T) {
	g := analyzeFile(t, "reference_tunnel")
	borrowed := g.Types.Lifetime(findNode(g, "b").Outputs()[0].Type())
	inner := g.Types.Lifetime(findNode(g, "tin").Inner().Type())
	if inner == borrowed {
		t.Errorf("tin.inner keeps the outer lifetime %v", borrowed)
	}
	if got := g.Types.Lifetime(findNode(g, "tout").Outer().Type()); got != borrowed {
		t.Errorf("tout.outer lifetime = %v, want %v", got, borrowed)
	}

	g = analyzeFile(t, "escape")
	if got := g.Types.Lifetime(findNode(g, "t").Outer().Type()); !got.IsEmpty() {
		t.Errorf("escaped reference lifetime = %v, want empty", got)
	}
}

func TestFieldAccessorTerminals(t *testing.T) {
	g := NewGraph("fields")
	a := g.Root.AddStructFieldAccessor("a", "x", "y")
	var got []string
	for _, term := range a.Terminals {
		got = append(got, term.Direction.String()+" "+term.Name)
	}
	want := []string{"input in0", "output x", "output y"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("terminals mismatch (-want +got):\n%s", diff)
	}
	sig := SignatureOf(a)
	if in := sig.Inputs[0].Type; in != "&'a ?m {x: F0, y: F1}" {
		t.Errorf("input type = %q", in)
	}
}

func TestSortNodes(t *testing.T) {
	g := NewGraph("order")
	o := g.Root.AddNode(Output, "o")
	b := g.Root.AddNode(Borrow, "b")
	c := g.Root.AddNode(Constant, "c")
	mustConnect(t, g.Root, c.Outputs()[0], b.Inputs()[0])
	mustConnect(t, g.Root, b.Outputs()[0], o.Inputs()[0])
	if err := SortNodes(g); err != nil {
		t.Fatalf("SortNodes: %v", err)
	}
	var got []string
	for _, n := range g.Root.Nodes {
		got = append(got, n.Label)
	}
	if diff := cmp.Diff([]string{"c", "b", "o"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSortNodesCycle(t *testing.T) {
	g := NewGraph("cycle")
	p1 := g.Root.AddNode(MutablePassthrough, "p1")
	p2 := g.Root.AddNode(MutablePassthrough, "p2")
	mustConnect(t, g.Root, p1.Outputs()[0], p2.Inputs()[0])
	mustConnect(t, g.Root, p2.Outputs()[0], p1.Inputs()[0])
	if err := Analyze(g); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("Analyze = %v, want cycle error", err)
	}
}

func mustConnect(t *testing.T, d *Diagram, src *Terminal, sinks ...*Terminal) {
	t.Helper()
	if _, err := d.Connect(src, sinks...); err != nil {
		t.Fatal(err)
	}
}

func TestConnectErrors(t *testing.T) {
	g := NewGraph("connect")
	c := g.Root.AddNode(Constant, "c")
	o := g.Root.AddNode(Output, "o")
	if _, err := g.Root.Connect(o.Inputs()[0], c.Outputs()[0]); err == nil {
		t.Errorf("Connect(input, output) succeeded")
	}
	mustConnect(t, g.Root, c.Outputs()[0], o.Inputs()[0])
	if _, err := g.Root.Connect(c.Outputs()[0], o.Inputs()[0]); err == nil {
		t.Errorf("connecting a wired input twice succeeded")
	}
	f := g.Root.AddNode(Frame, "f")
	inner := f.Body.AddNode(Output, "inner")
	if _, err := g.Root.Connect(c.Outputs()[0], inner.Inputs()[0]); err == nil {
		t.Errorf("Connect across diagrams succeeded")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"unknown kind", "nodes: [{id: a, kind: nope}]", "unknown kind"},
		{"duplicate id", "nodes: [{id: a, kind: output}, {id: a, kind: output}]", "duplicate node id"},
		{"unknown field", "nodes: [{id: a, kind: output, colour: red}]", "colour"},
		{"bad terminal", "nodes: [{id: a, kind: constant}]\nwires: [{from: a.out9, to: []}]", "no terminal"},
		{"bad value", "nodes: [{id: a, kind: constant, value: x}]", "Int32 value"},
		{"bad op", "nodes: [{id: a, kind: pure-binary, op: increment}]", "does not fit"},
		{"border outside structure", "nodes: [{id: a, kind: tunnel}]", "outside a structure"},
		{"bad pair", "nodes: [{id: f, kind: frame, border: [{id: t, kind: terminate-lifetime-tunnel, pair: x}]}]", "pair"},
		{"struct without name", "nodes: [{id: p, kind: struct-constructor, fields: [{name: x, type: Int32}]}]", "without a type name"},
		{"struct without fields", "nodes: [{id: p, kind: struct-constructor, type: P}]", "without fields"},
		{"duplicate field", "nodes: [{id: a, kind: struct-field-accessor, fields: [{name: x}, {name: x}]}]", "duplicate field"},
		{"bad field type", "nodes: [{id: p, kind: struct-constructor, type: P, fields: [{name: x, type: Nope}]}]", "field x"},
		{"short tuple", "nodes: [{id: t, kind: build-tuple, inputs: 1}]", "at least 2"},
	}
	for _, tt := range tests {
		_, err := Load(strings.NewReader(tt.src))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: Load = %v, want error containing %q", tt.name, err, tt.want)
		}
	}
}

func TestLoadStructure(t *testing.T) {
	g, err := LoadFile("testdata/iterate.yaml")
	if err != nil {
		t.Fatal(err)
	}
	loop := findNode(g, "loop")
	var kinds []NodeKind
	for _, b := range loop.Border {
		kinds = append(kinds, b.Kind)
	}
	if diff := cmp.Diff([]NodeKind{IterateTunnel, LoopConditionTunnel}, kinds); diff != "" {
		t.Errorf("border mismatch (-want +got):\n%s", diff)
	}
	if loop.ConditionTunnel().Outer().IsConnected() {
		t.Errorf("implicit loop condition is wired")
	}
	if n := len(g.Diagrams()); n != 2 {
		t.Errorf("len(Diagrams()) = %d, want 2", n)
	}
}

func TestFprint(t *testing.T) {
	g := analyzeFile(t, "mismatch")
	var buf bytes.Buffer
	if err := Fprint(&buf, g); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"func mismatch\n",
		"  c constant [Boolean 1]\n",
		"inc pure-unary [increment]",
		"terminate-lifetime#",
		"! TypeMismatch: inc.in0: type mismatch",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Fprint output lacks %q:\n%s", want, out)
		}
	}
}
