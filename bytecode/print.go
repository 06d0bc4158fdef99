package bytecode

import (
	"fmt"
	"io"
)

// Fprint writes a listing of f: frame layout, static data and the
// disassembled code with branch targets marked.
func Fprint(w io.Writer, f *Function) error {
	insts, err := f.Instructions()
	if err != nil {
		return err
	}
	targets := make(map[int32]bool)
	for _, inst := range insts {
		if inst.Op.IsBranch() {
			targets[inst.Arg] = true
		}
	}

	p := &printer{w: w}
	p.printf("function %s\n", f.Name)
	p.printf("frame %d bytes\n", f.LocalSize)
	for i, off := range f.LocalOffsets {
		ptr := ""
		if f.PointerMap.HasPointer(off) {
			ptr = " ptr"
		}
		p.printf("\tlocal %d @%d%s\n", i, off, ptr)
	}
	for _, sd := range f.StaticData {
		p.printf("static %q %d bytes, loaded at %v\n", sd.Identifier, len(sd.Data), sd.LoadOffsets)
	}
	for _, inst := range insts {
		if targets[int32(inst.Pos)] {
			p.printf("%d:\n", inst.Pos)
		}
		p.printf("\t%4d  %v\n", inst.Pos, inst)
	}
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}
