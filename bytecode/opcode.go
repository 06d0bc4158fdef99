// Package bytecode defines the instruction set of the Rebar stack machine
// and builds, encodes and decodes compiled functions.
package bytecode

// Op is a stack machine opcode.
type Op byte

const (
	Ret           Op = 0x00
	Branch        Op = 0x01
	BranchIfFalse Op = 0x02

	LoadIntegerImmediate Op = 0x10
	LoadLocalAddress     Op = 0x11
	LoadStaticAddress    Op = 0x12

	StoreInteger Op = 0x20
	StorePointer Op = 0x21

	DerefInteger Op = 0x30
	DerefPointer Op = 0x31

	Add      Op = 0x40
	Subtract Op = 0x41
	Multiply Op = 0x42
	Divide   Op = 0x43
	And      Op = 0x44
	Or       Op = 0x45
	Xor      Op = 0x46
	Gt       Op = 0x48
	Gte      Op = 0x49
	Lt       Op = 0x4A
	Lte      Op = 0x4B
	Eq       Op = 0x4C
	Neq      Op = 0x4D

	Dup  Op = 0x50
	Swap Op = 0x51

	// Temporary opcodes used until the runtime grows real calls.
	ExchangeBytesTemp Op = 0xFA
	CopyBytesTemp     Op = 0xFD
	OutputTemp        Op = 0xFF
)

var opNames = [256]string{
	Ret:                  "ret",
	Branch:               "br",
	BranchIfFalse:        "brfalse",
	LoadIntegerImmediate: "ldimm",
	LoadLocalAddress:     "ldloca",
	LoadStaticAddress:    "ldstatica",
	StoreInteger:         "stint",
	StorePointer:         "stptr",
	DerefInteger:         "derefint",
	DerefPointer:         "derefptr",
	Add:                  "add",
	Subtract:             "sub",
	Multiply:             "mul",
	Divide:               "div",
	And:                  "and",
	Or:                   "or",
	Xor:                  "xor",
	Gt:                   "gt",
	Gte:                  "gte",
	Lt:                   "lt",
	Lte:                  "lte",
	Eq:                   "eq",
	Neq:                  "neq",
	Dup:                  "dup",
	Swap:                 "swap",
	ExchangeBytesTemp:    "xchgbytes_temp",
	CopyBytesTemp:        "copybytes_temp",
	OutputTemp:           "output_temp",
}

func (op Op) String() string {
	if s := opNames[op]; s != "" {
		return s
	}
	return "???"
}

// Valid reports whether op is a defined opcode.
func (op Op) Valid() bool { return opNames[op] != "" }

// Size returns the encoded size in bytes of an instruction with opcode op:
// branches, immediates and static addresses carry a little-endian int32,
// LoadLocalAddress carries a one-byte local index.
func (op Op) Size() int {
	switch op {
	case Branch, BranchIfFalse, LoadIntegerImmediate, LoadStaticAddress:
		return 5
	case LoadLocalAddress:
		return 2
	}
	return 1
}

// IsBranch reports whether op transfers control to a code position.
func (op Op) IsBranch() bool { return op == Branch || op == BranchIfFalse }

// HasArg reports whether op carries an argument.
func (op Op) HasArg() bool { return op.Size() > 1 }
