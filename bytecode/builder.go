package bytecode

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
)

// Label is a code position that branches can target before it is known.
type Label struct {
	id   int
	inst int // instruction index once set; -1 before
}

// StaticData is a block of constant bytes a function loads the address of.
type StaticData struct {
	Identifier string
	Data       []byte
	index      int
}

type fixup struct {
	inst  int
	label *Label
}

type staticLoad struct {
	inst int
	data *StaticData
}

// Builder accumulates the instructions of one function. Branch targets are
// patched with final byte positions by CreateFunction.
type Builder struct {
	Name       string
	LocalSizes []int
	Pointers   []int // byte offsets of locals holding pointers

	code       [][]byte
	labels     []*Label
	fixups     []fixup
	staticData []*StaticData
	loads      []staticLoad
	err        error
}

// NewBuilder returns a builder for the function name.
func NewBuilder(name string) *Builder {
	return &Builder{Name: name}
}

// Len returns the number of instructions emitted so far.
func (b *Builder) Len() int { return len(b.code) }

func (b *Builder) emit(inst Inst) {
	b.code = append(b.code, inst.encode(nil))
}

// CreateLabel returns a new, unset label.
func (b *Builder) CreateLabel() *Label {
	l := &Label{id: len(b.labels), inst: -1}
	b.labels = append(b.labels, l)
	return l
}

// SetLabel binds l to the next instruction. A label can only be set once.
func (b *Builder) SetLabel(l *Label) {
	if l.inst >= 0 {
		ice.Panicf("label L%d has already been set", l.id)
	}
	l.inst = len(b.code)
}

// DefineStaticData registers data to be placed in the static area.
func (b *Builder) DefineStaticData(identifier string, data []byte) *StaticData {
	sd := &StaticData{Identifier: identifier, Data: data, index: len(b.staticData)}
	b.staticData = append(b.staticData, sd)
	return sd
}

// EmitLoadStaticDataAddress loads the address of sd. The address is the
// index of sd until the function's static data offsets are patched.
func (b *Builder) EmitLoadStaticDataAddress(sd *StaticData) {
	b.loads = append(b.loads, staticLoad{inst: len(b.code), data: sd})
	b.emit(Inst{Op: LoadStaticAddress, Arg: int32(sd.index)})
}

func (b *Builder) emitBranch(op Op, target *Label) {
	b.fixups = append(b.fixups, fixup{inst: len(b.code), label: target})
	b.emit(Inst{Op: op})
}

func (b *Builder) EmitBranch(target *Label)        { b.emitBranch(Branch, target) }
func (b *Builder) EmitBranchIfFalse(target *Label) { b.emitBranch(BranchIfFalse, target) }

func (b *Builder) EmitLoadIntegerImmediate(v int32) {
	b.emit(Inst{Op: LoadIntegerImmediate, Arg: v})
}

// EmitLoadLocalAddress loads the address of a local. Local indexes are
// encoded in one byte; a larger index fails CreateFunction.
func (b *Builder) EmitLoadLocalAddress(index int) {
	if (index < 0 || index > 0xFF) && b.err == nil {
		b.err = errors.Errorf("%s: local index %d does not fit in a byte", b.Name, index)
	}
	b.emit(Inst{Op: LoadLocalAddress, Arg: int32(index)})
}

func (b *Builder) EmitReturn()            { b.emit(Inst{Op: Ret}) }
func (b *Builder) EmitStoreInteger()      { b.emit(Inst{Op: StoreInteger}) }
func (b *Builder) EmitStorePointer()      { b.emit(Inst{Op: StorePointer}) }
func (b *Builder) EmitDerefInteger()      { b.emit(Inst{Op: DerefInteger}) }
func (b *Builder) EmitDerefPointer()      { b.emit(Inst{Op: DerefPointer}) }
func (b *Builder) EmitAdd()               { b.emit(Inst{Op: Add}) }
func (b *Builder) EmitSubtract()          { b.emit(Inst{Op: Subtract}) }
func (b *Builder) EmitMultiply()          { b.emit(Inst{Op: Multiply}) }
func (b *Builder) EmitDivide()            { b.emit(Inst{Op: Divide}) }
func (b *Builder) EmitAnd()               { b.emit(Inst{Op: And}) }
func (b *Builder) EmitOr()                { b.emit(Inst{Op: Or}) }
func (b *Builder) EmitXor()               { b.emit(Inst{Op: Xor}) }
func (b *Builder) EmitGreaterThan()       { b.emit(Inst{Op: Gt}) }
func (b *Builder) EmitGreaterThanOrEq()   { b.emit(Inst{Op: Gte}) }
func (b *Builder) EmitLessThan()          { b.emit(Inst{Op: Lt}) }
func (b *Builder) EmitLessThanOrEq()      { b.emit(Inst{Op: Lte}) }
func (b *Builder) EmitEquals()            { b.emit(Inst{Op: Eq}) }
func (b *Builder) EmitNotEquals()         { b.emit(Inst{Op: Neq}) }
func (b *Builder) EmitDuplicate()         { b.emit(Inst{Op: Dup}) }
func (b *Builder) EmitSwap()              { b.emit(Inst{Op: Swap}) }
func (b *Builder) EmitExchangeBytesTemp() { b.emit(Inst{Op: ExchangeBytesTemp}) }
func (b *Builder) EmitCopyBytesTemp()     { b.emit(Inst{Op: CopyBytesTemp}) }
func (b *Builder) EmitOutputTemp()        { b.emit(Inst{Op: OutputTemp}) }

// Emit appends an instruction by opcode. Branches and static loads have
// their own methods.
func (b *Builder) Emit(op Op, arg int32) {
	switch {
	case op.IsBranch() || op == LoadStaticAddress:
		ice.Panicf("Emit(%s): use the dedicated method", op)
	case op == LoadLocalAddress:
		b.EmitLoadLocalAddress(int(arg))
	default:
		b.emit(Inst{Op: op, Arg: arg})
	}
}

// CreateFunction lays out the code, resolves branch targets and computes
// local offsets as prefix sums of LocalSizes.
func (b *Builder) CreateFunction() (*Function, error) {
	if b.err != nil {
		return nil, b.err
	}
	positions := make([]int, len(b.code)+1)
	for i, inst := range b.code {
		positions[i+1] = positions[i] + len(inst)
	}
	for _, f := range b.fixups {
		if f.label.inst < 0 {
			return nil, errors.Errorf("%s: branch at instruction %d targets unset label L%d", b.Name, f.inst, f.label.id)
		}
		binary.LittleEndian.PutUint32(b.code[f.inst][1:], uint32(positions[f.label.inst]))
	}

	fn := &Function{Name: b.Name}
	fn.LocalOffsets = make([]int, len(b.LocalSizes))
	for i, size := range b.LocalSizes {
		fn.LocalOffsets[i] = fn.LocalSize
		fn.LocalSize += size
	}
	fn.PointerMap = NewPointerMap(fn.LocalSize)
	for _, off := range b.Pointers {
		fn.PointerMap.SetPointer(off)
	}
	fn.PointerMap.Trim()

	fn.Code = make([]byte, 0, positions[len(b.code)])
	for _, inst := range b.code {
		fn.Code = append(fn.Code, inst...)
	}
	for _, sd := range b.staticData {
		info := StaticDataInfo{Identifier: sd.Identifier, Data: sd.Data}
		for _, ld := range b.loads {
			if ld.data == sd {
				info.LoadOffsets = append(info.LoadOffsets, positions[ld.inst])
			}
		}
		fn.StaticData = append(fn.StaticData, info)
	}
	return fn, nil
}
