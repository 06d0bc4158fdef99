package dfir

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/NERVsystems/infernode/tools/rebar/typeset"
)

// The graph file format. Node IDs are unique across the whole graph.
// Terminals are addressed as "node.terminal": in0, out0, ... for plain
// nodes and outer/inner for border nodes.
type graphFile struct {
	Name  string     `yaml:"name"`
	Nodes []nodeFile `yaml:"nodes"`
	Wires []wireFile `yaml:"wires"`
}

type nodeFile struct {
	ID        string      `yaml:"id"`
	Kind      string      `yaml:"kind"`
	Type      string      `yaml:"type"`
	Value     yaml.Node   `yaml:"value"`
	Op        string      `yaml:"op"`
	Mutable   bool        `yaml:"mutable"`
	Direction string      `yaml:"direction"`
	Pair      string      `yaml:"pair"`
	Fields    []fieldFile `yaml:"fields"`
	Inputs    int         `yaml:"inputs"`
	Outputs   int         `yaml:"outputs"`
	Border    []nodeFile  `yaml:"border"`
	Body      *bodyFile   `yaml:"body"`
}

type fieldFile struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type bodyFile struct {
	Nodes []nodeFile `yaml:"nodes"`
	Wires []wireFile `yaml:"wires"`
}

type wireFile struct {
	From    string   `yaml:"from"`
	To      []string `yaml:"to"`
	Mutable bool     `yaml:"mutable"`
}

// LoadFile reads a graph file.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return g, nil
}

// Load decodes a graph from YAML.
func Load(r io.Reader) (*Graph, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var gf graphFile
	if err := dec.Decode(&gf); err != nil {
		return nil, errors.Wrap(err, "decode graph")
	}
	l := &loader{g: NewGraph(gf.Name), nodes: map[string]*Node{}}
	if err := l.diagram(l.g.Root, gf.Nodes, gf.Wires); err != nil {
		return nil, err
	}
	return l.g, nil
}

type loader struct {
	g     *Graph
	nodes map[string]*Node
}

func (l *loader) diagram(d *Diagram, nodes []nodeFile, wires []wireFile) error {
	for i := range nodes {
		if err := l.node(d, &nodes[i]); err != nil {
			return err
		}
	}
	for _, w := range wires {
		if err := l.wire(d, w); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) register(id string, n *Node) error {
	if id == "" {
		return errors.Errorf("%v node without id", n.Kind)
	}
	if _, dup := l.nodes[id]; dup {
		return errors.Errorf("duplicate node id %q", id)
	}
	l.nodes[id] = n
	return nil
}

func (l *loader) node(d *Diagram, nf *nodeFile) error {
	kind, ok := ParseNodeKind(nf.Kind)
	if !ok {
		return errors.Errorf("node %q: unknown kind %q", nf.ID, nf.Kind)
	}
	if kind.IsBorderNode() {
		return errors.Errorf("node %q: %v outside a structure border", nf.ID, kind)
	}

	var n *Node
	switch kind {
	case TerminateLifetime:
		n = d.AddTerminateLifetime(nf.ID, nf.Inputs, nf.Outputs)
	case StructConstructor, StructFieldAccessor:
		fields, err := l.fields(nf, kind == StructConstructor)
		if err != nil {
			return err
		}
		if kind == StructConstructor {
			if nf.Type == "" {
				return errors.Errorf("node %q: struct constructor without a type name", nf.ID)
			}
			n = d.AddStructConstructor(nf.ID, nf.Type, fields)
		} else {
			names := make([]string, len(fields))
			for i, f := range fields {
				names[i] = f.Name
			}
			n = d.AddStructFieldAccessor(nf.ID, names...)
		}
	case BuildTuple, DecomposeTuple:
		elems := nf.Inputs
		if kind == DecomposeTuple {
			elems = nf.Outputs
		}
		if elems < 2 {
			return errors.Errorf("node %q: %v needs at least 2 elements, got %d", nf.ID, kind, elems)
		}
		n = d.AddTuple(kind, nf.ID, elems)
	default:
		n = d.AddNode(kind, nf.ID)
	}
	if err := l.register(nf.ID, n); err != nil {
		return err
	}
	n.Mutable = nf.Mutable

	switch kind {
	case Constant:
		if err := setConstant(n, nf); err != nil {
			return err
		}
	case PureUnary, PureBinary, MutatingUnary, MutatingBinary:
		op, ok := ParseOp(nf.Op)
		if !ok {
			return errors.Errorf("node %q: unknown op %q", nf.ID, nf.Op)
		}
		if op.IsUnary() != (kind == PureUnary || kind == MutatingUnary) {
			return errors.Errorf("node %q: op %v does not fit %v", nf.ID, op, kind)
		}
		n.Op = op
	case Loop, Frame:
		return l.structure(n, nf)
	}
	return nil
}

// fields checks the field list of a struct node. Constructors need a
// closed type expression per field.
func (l *loader) fields(nf *nodeFile, typed bool) ([]StructField, error) {
	if len(nf.Fields) == 0 {
		return nil, errors.Errorf("node %q: %s without fields", nf.ID, nf.Kind)
	}
	seen := make(map[string]bool)
	out := make([]StructField, len(nf.Fields))
	for i, f := range nf.Fields {
		if f.Name == "" || seen[f.Name] {
			return nil, errors.Errorf("node %q: bad or duplicate field name %q", nf.ID, f.Name)
		}
		seen[f.Name] = true
		if typed {
			if _, err := l.g.Types.Parse(f.Type, nil); err != nil {
				return nil, errors.Wrapf(err, "node %q: field %s", nf.ID, f.Name)
			}
		}
		out[i] = StructField{Name: f.Name, Type: f.Type}
	}
	return out, nil
}

func setConstant(n *Node, nf *nodeFile) error {
	text := nf.Value.Value
	switch nf.Type {
	case "", typeset.Int32Name:
		if text == "" {
			text = "0"
		}
		v, err := strconv.ParseInt(text, 0, 32)
		if err != nil {
			return errors.Wrapf(err, "node %q: Int32 value", nf.ID)
		}
		n.ValueType, n.Value = typeset.Int32Name, int32(v)
	case typeset.BooleanName:
		if text == "" {
			text = "false"
		}
		v, err := strconv.ParseBool(text)
		if err != nil {
			return errors.Wrapf(err, "node %q: Boolean value", nf.ID)
		}
		n.ValueType = typeset.BooleanName
		if v {
			n.Value = 1
		}
	default:
		return errors.Errorf("node %q: constants of type %s are not supported", nf.ID, nf.Type)
	}
	return nil
}

func (l *loader) structure(s *Node, nf *nodeFile) error {
	var pairs []*nodeFile
	for i := range nf.Border {
		bf := &nf.Border[i]
		kind, ok := ParseNodeKind(bf.Kind)
		if !ok || !kind.IsBorderNode() {
			return errors.Errorf("node %q: %q is not a border node kind", bf.ID, bf.Kind)
		}
		if (kind == LoopConditionTunnel || kind == IterateTunnel) && s.Kind != Loop {
			return errors.Errorf("node %q: %v outside a loop", bf.ID, kind)
		}
		dir := Input
		if bf.Direction == "output" {
			dir = Output
		} else if bf.Direction != "" && bf.Direction != "input" {
			return errors.Errorf("node %q: bad direction %q", bf.ID, bf.Direction)
		}
		b := s.AddBorderNode(kind, dir, bf.ID)
		b.Mutable = bf.Mutable
		if err := l.register(bf.ID, b); err != nil {
			return err
		}
		if kind == TerminateLifetimeTunnel {
			pairs = append(pairs, bf)
		}
	}
	for _, bf := range pairs {
		borrow, ok := l.nodes[bf.Pair]
		if !ok || borrow.Kind != BorrowTunnel || borrow.Structure != s || borrow.Paired != nil {
			return errors.Errorf("node %q: pair %q is not an unpaired borrow tunnel of %v", bf.ID, bf.Pair, s)
		}
		PairBorrowTunnel(borrow, l.nodes[bf.ID])
	}
	for _, b := range s.Border {
		if b.Kind == BorrowTunnel && b.Paired == nil {
			tl := s.AddBorderNode(TerminateLifetimeTunnel, Output, b.Label+".tl")
			if err := l.register(tl.Label, tl); err != nil {
				return err
			}
			PairBorrowTunnel(b, tl)
		}
	}
	if s.Kind == Loop && s.ConditionTunnel() == nil {
		cond := s.AddBorderNode(LoopConditionTunnel, Input, s.Label+".cond")
		if err := l.register(cond.Label, cond); err != nil {
			return err
		}
	}
	if nf.Body != nil {
		return l.diagram(s.Body, nf.Body.Nodes, nf.Body.Wires)
	}
	return nil
}

func (l *loader) terminal(ref string) (*Terminal, error) {
	i := strings.LastIndexByte(ref, '.')
	if i < 0 {
		return nil, errors.Errorf("terminal %q: want node.terminal", ref)
	}
	n, ok := l.nodes[ref[:i]]
	if !ok {
		return nil, errors.Errorf("terminal %q: unknown node %q", ref, ref[:i])
	}
	t := n.Terminal(ref[i+1:])
	if t == nil {
		return nil, errors.Errorf("terminal %q: %v has no terminal %q", ref, n.Kind, ref[i+1:])
	}
	return t, nil
}

func (l *loader) wire(d *Diagram, wf wireFile) error {
	src, err := l.terminal(wf.From)
	if err != nil {
		return err
	}
	var sinks []*Terminal
	for _, to := range wf.To {
		t, err := l.terminal(to)
		if err != nil {
			return err
		}
		sinks = append(sinks, t)
	}
	w, err := d.Connect(src, sinks...)
	if err != nil {
		return errors.Wrapf(err, "wire from %s", wf.From)
	}
	w.Mutable = w.Mutable || wf.Mutable
	return nil
}
