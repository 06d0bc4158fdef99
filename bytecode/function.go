package bytecode

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// StaticDataInfo is static data referenced by a function, with the byte
// positions of the LoadStaticAddress instructions that load it.
type StaticDataInfo struct {
	Identifier  string
	Data        []byte
	LoadOffsets []int
}

// Function is a compiled function.
type Function struct {
	Name         string
	LocalOffsets []int // byte offset of each local in the frame
	LocalSize    int   // frame size in bytes
	Code         []byte
	StaticData   []StaticDataInfo
	PointerMap   PointerMap
}

// PatchStaticDataOffsets rewrites every static data load with the address
// the loader assigned to that data, keyed by identifier.
func (f *Function) PatchStaticDataOffsets(addresses map[string]int32) error {
	for _, sd := range f.StaticData {
		addr, ok := addresses[sd.Identifier]
		if !ok {
			return errors.Errorf("%s: no address for static data %q", f.Name, sd.Identifier)
		}
		for _, off := range sd.LoadOffsets {
			if off+5 > len(f.Code) || Op(f.Code[off]) != LoadStaticAddress {
				return errors.Errorf("%s: no static load at %d", f.Name, off)
			}
			binary.LittleEndian.PutUint32(f.Code[off+1:], uint32(addr))
		}
	}
	return nil
}

// Instructions disassembles the function's code.
func (f *Function) Instructions() ([]Inst, error) {
	insts, err := Disassemble(f.Code)
	if err != nil {
		return nil, errors.Wrap(err, f.Name)
	}
	return insts, nil
}
