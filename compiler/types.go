package compiler

import (
	"github.com/pkg/errors"

	"github.com/NERVsystems/infernode/tools/rebar/typeset"
)

// Layout describes how a value of some type sits in the frame.
type Layout struct {
	Size     int   // bytes
	Pointers []int // byte offsets within the value that hold pointers
}

// TypeLayout returns the frame layout of t. Every type a Rebar variable can
// have must be listed here; anything else is an error naming the type.
func TypeLayout(types *typeset.Set, t typeset.Ref, pointerSize int) (Layout, error) {
	if types.IsReference(t) {
		return Layout{Size: pointerSize, Pointers: []int{0}}, nil
	}
	if value, ok := types.TryDestructureOption(t); ok {
		inner, err := TypeLayout(types, value, pointerSize)
		if err != nil {
			return Layout{}, err
		}
		l := Layout{Size: 4 + inner.Size}
		for _, p := range inner.Pointers {
			l.Pointers = append(l.Pointers, 4+p)
		}
		return l, nil
	}
	name, _ := types.ConcreteName(t)
	switch name {
	case typeset.Int32Name, typeset.BooleanName:
		return Layout{Size: 4}, nil
	case typeset.RangeIteratorName:
		return Layout{Size: 8}, nil
	}
	return Layout{}, errors.Errorf("cannot allocate a value of type %s", types.Render(t))
}

// TypeSize returns the size in bytes of a value of type t.
func TypeSize(types *typeset.Set, t typeset.Ref, pointerSize int) (int, error) {
	l, err := TypeLayout(types, t, pointerSize)
	return l.Size, err
}
