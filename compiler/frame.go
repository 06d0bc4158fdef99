package compiler

import (
	"github.com/pkg/errors"

	"github.com/NERVsystems/infernode/tools/rebar/dfir"
	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
	"github.com/NERVsystems/infernode/tools/rebar/typeset"
	"github.com/NERVsystems/infernode/tools/rebar/variable"
)

// Allocation is the frame slot of one variable.
type Allocation struct {
	Index    int // local index, as used by LoadLocalAddress
	Offset   int // byte offset in the frame
	Size     int
	Pointers []int // byte offsets within the slot that hold pointers
	Variable *variable.Variable
	Diagram  *dfir.Diagram
}

// Frame is the stack frame of a compiled function: one slot per variable,
// never shared.
type Frame struct {
	Slots []Allocation
	size  int
	index map[*variable.Variable]int
}

// Size returns the frame size in bytes.
func (f *Frame) Size() int { return f.size }

// Lookup returns the slot of v.
func (f *Frame) Lookup(v *variable.Variable) (Allocation, bool) {
	i, ok := f.index[v]
	if !ok {
		return Allocation{}, false
	}
	return f.Slots[i], true
}

// Sizes returns the slot sizes in index order.
func (f *Frame) Sizes() []int {
	sizes := make([]int, len(f.Slots))
	for i, s := range f.Slots {
		sizes[i] = s.Size
	}
	return sizes
}

// PointerOffsets returns the frame offsets of every pointer.
func (f *Frame) PointerOffsets() []int {
	var out []int
	for _, s := range f.Slots {
		for _, p := range s.Pointers {
			out = append(out, s.Offset+p)
		}
	}
	return out
}

// Allocate gives every variable of g a slot. Diagrams are visited after
// the bodies of their structures, so a body's variables come before those
// of the diagram containing it. A variable whose type has no layout is an
// internal compiler error.
func Allocate(g *dfir.Graph, pointerSize int) (_ *Frame, err error) {
	defer ice.Recover(&err)
	a := &allocator{
		types:       g.Types,
		pointerSize: pointerSize,
		frame:       &Frame{index: make(map[*variable.Variable]int)},
	}
	if err := a.diagram(g.Root); err != nil {
		return nil, err
	}
	return a.frame, nil
}

type allocator struct {
	types       *typeset.Set
	pointerSize int
	frame       *Frame
}

func (a *allocator) diagram(d *dfir.Diagram) error {
	for _, n := range d.Nodes {
		if n.Kind.IsStructure() {
			if err := a.diagram(n.Body); err != nil {
				return err
			}
		}
	}
	if d.Variables == nil {
		return errors.Errorf("%v: variables have not been determined", d)
	}
	for _, v := range d.Variables.Variables() {
		l, err := TypeLayout(a.types, v.Type, a.pointerSize)
		if err != nil {
			ice.Panicf("%v %v: %v", d, v, err)
		}
		f := a.frame
		f.index[v] = len(f.Slots)
		f.Slots = append(f.Slots, Allocation{
			Index:    len(f.Slots),
			Offset:   f.size,
			Size:     l.Size,
			Pointers: l.Pointers,
			Variable: v,
			Diagram:  d,
		})
		f.size += l.Size
	}
	return nil
}
