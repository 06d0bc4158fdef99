package dfir

// NodeKind identifies what a node does.
type NodeKind int

const (
	Constant NodeKind = iota
	Borrow
	ImmutablePassthrough
	MutablePassthrough
	Assign
	ExchangeValues
	CreateCopy
	PureUnary
	PureBinary
	MutatingUnary
	MutatingBinary
	Output
	Range
	SelectReference
	SomeConstructor
	TerminateLifetime
	Drop
	VectorCreate
	StructConstructor
	StructFieldAccessor
	BuildTuple
	DecomposeTuple

	// Structures.
	Loop
	Frame

	// Border nodes.
	Tunnel
	BorrowTunnel
	TerminateLifetimeTunnel
	LoopConditionTunnel
	IterateTunnel
	UnwrapOptionTunnel

	numKinds
)

var kindNames = [numKinds]string{
	Constant:                "constant",
	Borrow:                  "borrow",
	ImmutablePassthrough:    "immutable-passthrough",
	MutablePassthrough:      "mutable-passthrough",
	Assign:                  "assign",
	ExchangeValues:          "exchange-values",
	CreateCopy:              "create-copy",
	PureUnary:               "pure-unary",
	PureBinary:              "pure-binary",
	MutatingUnary:           "mutating-unary",
	MutatingBinary:          "mutating-binary",
	Output:                  "output",
	Range:                   "range",
	SelectReference:         "select-reference",
	SomeConstructor:         "some-constructor",
	TerminateLifetime:       "terminate-lifetime",
	Drop:                    "drop",
	VectorCreate:            "vector-create",
	StructConstructor:       "struct-constructor",
	StructFieldAccessor:     "struct-field-accessor",
	BuildTuple:              "build-tuple",
	DecomposeTuple:          "decompose-tuple",
	Loop:                    "loop",
	Frame:                   "frame",
	Tunnel:                  "tunnel",
	BorrowTunnel:            "borrow-tunnel",
	TerminateLifetimeTunnel: "terminate-lifetime-tunnel",
	LoopConditionTunnel:     "loop-condition-tunnel",
	IterateTunnel:           "iterate-tunnel",
	UnwrapOptionTunnel:      "unwrap-option-tunnel",
}

func (k NodeKind) String() string {
	if k >= 0 && k < numKinds {
		return kindNames[k]
	}
	return "???"
}

// ParseNodeKind is the inverse of NodeKind.String.
func ParseNodeKind(s string) (NodeKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return NodeKind(k), true
		}
	}
	return 0, false
}

// IsStructure reports whether nodes of kind k own a body diagram.
func (k NodeKind) IsStructure() bool { return k == Loop || k == Frame }

// IsBorderNode reports whether nodes of kind k sit on a structure's border.
func (k NodeKind) IsBorderNode() bool { return k >= Tunnel && k < numKinds }

// Op is a primitive operation of the pure and mutating operation nodes.
type Op int

const (
	OpAdd Op = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpModulus
	OpAnd
	OpOr
	OpXor
	OpIncrement
	OpNot
	OpGt
	OpGte
	OpLt
	OpLte
	OpEq
	OpNeq

	numOps
)

type opInfo struct {
	name    string
	unary   bool
	operand string // type expression of the operands
	result  string
}

var ops = [numOps]opInfo{
	OpAdd:       {"add", false, "Int32", "Int32"},
	OpSubtract:  {"subtract", false, "Int32", "Int32"},
	OpMultiply:  {"multiply", false, "Int32", "Int32"},
	OpDivide:    {"divide", false, "Int32", "Int32"},
	OpModulus:   {"modulus", false, "Int32", "Int32"},
	OpAnd:       {"and", false, "Boolean", "Boolean"},
	OpOr:        {"or", false, "Boolean", "Boolean"},
	OpXor:       {"xor", false, "Boolean", "Boolean"},
	OpIncrement: {"increment", true, "Int32", "Int32"},
	OpNot:       {"not", true, "Boolean", "Boolean"},
	OpGt:        {"gt", false, "Int32", "Boolean"},
	OpGte:       {"gte", false, "Int32", "Boolean"},
	OpLt:        {"lt", false, "Int32", "Boolean"},
	OpLte:       {"lte", false, "Int32", "Boolean"},
	OpEq:        {"eq", false, "Int32", "Boolean"},
	OpNeq:       {"neq", false, "Int32", "Boolean"},
}

func (o Op) String() string {
	if o >= 0 && o < numOps {
		return ops[o].name
	}
	return "???"
}

// IsUnary reports whether o takes one operand.
func (o Op) IsUnary() bool { return ops[o].unary }

// ParseOp is the inverse of Op.String.
func ParseOp(s string) (Op, bool) {
	for o, info := range ops {
		if info.name == s {
			return Op(o), true
		}
	}
	return 0, false
}
