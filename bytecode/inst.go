package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Inst is one decoded instruction. Pos is its byte position in the code.
type Inst struct {
	Pos int
	Op  Op
	Arg int32
}

func (inst Inst) String() string {
	switch {
	case inst.Op.IsBranch():
		return fmt.Sprintf("%s @%d", inst.Op, inst.Arg)
	case inst.Op.HasArg():
		return fmt.Sprintf("%s %d", inst.Op, inst.Arg)
	}
	return inst.Op.String()
}

// encode appends the encoded instruction to code.
func (inst Inst) encode(code []byte) []byte {
	code = append(code, byte(inst.Op))
	switch inst.Op.Size() {
	case 2:
		code = append(code, byte(inst.Arg))
	case 5:
		code = binary.LittleEndian.AppendUint32(code, uint32(inst.Arg))
	}
	return code
}

// Disassemble decodes a code stream into instructions.
func Disassemble(code []byte) ([]Inst, error) {
	var insts []Inst
	for pos := 0; pos < len(code); {
		op := Op(code[pos])
		if !op.Valid() {
			return insts, errors.Errorf("invalid opcode 0x%02x at %d", byte(op), pos)
		}
		size := op.Size()
		if pos+size > len(code) {
			return insts, errors.Errorf("%s at %d: truncated instruction", op, pos)
		}
		inst := Inst{Pos: pos, Op: op}
		switch size {
		case 2:
			inst.Arg = int32(code[pos+1])
		case 5:
			inst.Arg = int32(binary.LittleEndian.Uint32(code[pos+1:]))
		}
		insts = append(insts, inst)
		pos += size
	}
	return insts, nil
}
