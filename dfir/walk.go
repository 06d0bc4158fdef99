package dfir

// TraversalPoint marks where Walk is within a structure.
type TraversalPoint int

const (
	BeforeLeftBorderNodes TraversalPoint = iota
	AfterLeftBorderNodesAndBeforeDiagram
	AfterDiagram
	AfterRightBorderNodes
)

func (p TraversalPoint) String() string {
	switch p {
	case BeforeLeftBorderNodes:
		return "BeforeLeftBorderNodes"
	case AfterLeftBorderNodesAndBeforeDiagram:
		return "AfterLeftBorderNodesAndBeforeDiagram"
	case AfterDiagram:
		return "AfterDiagram"
	case AfterRightBorderNodes:
		return "AfterRightBorderNodes"
	}
	return "???"
}

// Visitor receives the parts of a diagram in execution order.
type Visitor interface {
	// VisitNode is called for plain nodes and border nodes.
	VisitNode(n *Node)
	// VisitWire is called after the wire's source node.
	VisitWire(w *Wire)
	// VisitStructure is called at each traversal point of a structure.
	VisitStructure(n *Node, at TraversalPoint)
}

// Walk visits d's nodes in order. A structure is visited as its left
// border nodes, its body, then its right border nodes. Nodes appended to a
// diagram during the walk are visited too.
func Walk(d *Diagram, v Visitor) {
	for i := 0; i < len(d.Nodes); i++ {
		n := d.Nodes[i]
		if !n.Kind.IsStructure() {
			v.VisitNode(n)
			visitOutputWires(n, v)
			continue
		}
		v.VisitStructure(n, BeforeLeftBorderNodes)
		for _, b := range n.BorderNodes(Input) {
			v.VisitNode(b)
			visitOutputWires(b, v)
		}
		v.VisitStructure(n, AfterLeftBorderNodesAndBeforeDiagram)
		Walk(n.Body, v)
		v.VisitStructure(n, AfterDiagram)
		for _, b := range n.BorderNodes(Output) {
			v.VisitNode(b)
			visitOutputWires(b, v)
		}
		v.VisitStructure(n, AfterRightBorderNodes)
	}
}

func visitOutputWires(n *Node, v Visitor) {
	for _, t := range n.Outputs() {
		if t.Wire != nil {
			v.VisitWire(t.Wire)
		}
	}
}
