package dfir

import (
	"sort"

	"github.com/pkg/errors"
)

// SortNodes orders the nodes of every diagram so that each node comes
// after the nodes it receives values from. Ties keep the existing order.
func SortNodes(g *Graph) error {
	for _, d := range g.Diagrams() {
		if err := sortDiagram(d); err != nil {
			return err
		}
	}
	return nil
}

// owner returns the node of d a terminal's value comes from, or nil when
// it comes from the border of d's own structure.
func owner(d *Diagram, t *Terminal) *Node {
	n := t.Node
	if n.Kind.IsBorderNode() {
		if n.Structure.Diagram != d {
			return nil
		}
		return n.Structure
	}
	return n
}

// inputTerminals returns the terminals of n that face d and receive values.
func inputTerminals(n *Node) []*Terminal {
	if !n.Kind.IsStructure() {
		return n.Inputs()
	}
	var ts []*Terminal
	for _, b := range n.Border {
		if o := b.Outer(); o != nil && o.Direction == Input {
			ts = append(ts, o)
		}
	}
	return ts
}

func sortDiagram(d *Diagram) error {
	pos := make(map[*Node]int, len(d.Nodes))
	for i, n := range d.Nodes {
		pos[n] = i
	}
	deps := make([]int, len(d.Nodes))
	users := make([][]int, len(d.Nodes))
	for i, n := range d.Nodes {
		for _, t := range inputTerminals(n) {
			if t.Wire == nil {
				continue
			}
			src := owner(d, t.Wire.Source)
			if src == nil {
				continue
			}
			j, ok := pos[src]
			if !ok {
				return errors.Errorf("%v: wire from %v crosses diagrams", t, t.Wire.Source)
			}
			deps[i]++
			users[j] = append(users[j], i)
		}
	}

	var ready []int
	for i := range d.Nodes {
		if deps[i] == 0 {
			ready = append(ready, i)
		}
	}
	sorted := make([]*Node, 0, len(d.Nodes))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		sorted = append(sorted, d.Nodes[i])
		for _, u := range users[i] {
			if deps[u]--; deps[u] == 0 {
				ready = append(ready, u)
				sort.Ints(ready)
			}
		}
	}
	if len(sorted) != len(d.Nodes) {
		for i, n := range d.Nodes {
			if deps[i] > 0 {
				return errors.Errorf("%v: cycle through %v", d, n)
			}
		}
	}
	d.Nodes = sorted
	return nil
}
