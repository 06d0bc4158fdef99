package dfir

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes an analyzed graph: every diagram with its nodes, the
// variable and type of each terminal, then the messages.
func Fprint(w io.Writer, g *Graph) error {
	p := &printer{w: w, g: g}
	p.printf("func %s\n", g.Name)
	p.diagram(g.Root, 1)
	for _, m := range g.Messages {
		p.printf("! %v: %v\n", m.Kind, m)
	}
	return p.err
}

type printer struct {
	w   io.Writer
	g   *Graph
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}

func (p *printer) diagram(d *Diagram, depth int) {
	for _, n := range d.Nodes {
		p.node(n, depth)
		if !n.Kind.IsStructure() {
			continue
		}
		for _, b := range n.Border {
			p.node(b, depth+1)
		}
		p.printf("%sbody:\n", indent(depth+1))
		p.diagram(n.Body, depth+2)
	}
}

func (p *printer) node(n *Node, depth int) {
	var extra []string
	switch n.Kind {
	case Constant:
		extra = append(extra, fmt.Sprintf("%s %d", n.ValueType, n.Value))
	case PureUnary, PureBinary, MutatingUnary, MutatingBinary:
		extra = append(extra, n.Op.String())
	case TerminateLifetime:
		extra = append(extra, n.ErrorState.String())
	case StructConstructor:
		extra = append(extra, n.Struct)
	}
	if n.Inserted {
		extra = append(extra, "inserted")
	}
	head := fmt.Sprintf("%s%v %v", indent(depth), n, n.Kind)
	if len(extra) > 0 {
		head += " [" + strings.Join(extra, ", ") + "]"
	}
	p.printf("%s\n", head)
	for _, t := range n.Terminals {
		p.printf("%s%s %s\n", indent(depth+1), t.Name, p.terminal(t))
	}
}

func (p *printer) terminal(t *Terminal) string {
	if t.Diagram.Variables == nil || t.Var < 0 {
		return "-"
	}
	v := t.Variable()
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%v: %s", v, p.g.Types.RenderWithLifetimes(v.Type))
}

func indent(depth int) string { return strings.Repeat("  ", depth) }
