package dfir

import (
	"fmt"
	"strings"

	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
	"github.com/NERVsystems/infernode/tools/rebar/typeset"
)

// Use describes what a node does with the variable wired to an input.
type Use int

const (
	Consume     Use = iota // the value moves into the node
	Passthrough            // the variable comes back out of an output
	Interrupt              // the variable is borrowed by the node's output
)

// SignatureTerminal describes one terminal of a node kind. An empty Type
// means the node computes the type itself.
type SignatureTerminal struct {
	Name        string
	Type        string
	Use         Use    // inputs
	Passthrough string // outputs: the input whose variable is passed on
}

// Signature gives the terminal types of a node kind. Generic names are
// written as in type expressions: T, 'a for lifetimes, ?m for
// mutabilities. A type parameter may list trait constraints, including
// Iterator<Item> where Item is a previously declared parameter.
type Signature struct {
	Generics []Generic
	Inputs   []SignatureTerminal
	Outputs  []SignatureTerminal
}

// Generic is a signature's generic parameter.
type Generic struct {
	Name        string
	Constraints []string
}

func in(name, typ string, use Use) SignatureTerminal {
	return SignatureTerminal{Name: name, Type: typ, Use: use}
}

func out(name, typ string) SignatureTerminal {
	return SignatureTerminal{Name: name, Type: typ}
}

func passthrough(name, input string) SignatureTerminal {
	return SignatureTerminal{Name: name, Passthrough: input}
}

func generics(names ...string) []Generic {
	gs := make([]Generic, len(names))
	for i, name := range names {
		parts := strings.Split(name, ":")
		gs[i].Name = strings.TrimSpace(parts[0])
		if len(parts) > 1 {
			for _, c := range strings.Split(parts[1], "+") {
				gs[i].Constraints = append(gs[i].Constraints, strings.TrimSpace(c))
			}
		}
	}
	return gs
}

// signatures holds the fixed signatures. Primitive operations depend on
// the node's Op and are built by SignatureOf.
var signatures = map[NodeKind]Signature{
	Constant: {
		Outputs: []SignatureTerminal{out("out0", "")},
	},
	Borrow: {
		Generics: generics("T"),
		Inputs:   []SignatureTerminal{in("in0", "T", Interrupt)},
		Outputs:  []SignatureTerminal{out("out0", "")},
	},
	ImmutablePassthrough: {
		Generics: generics("T", "'a"),
		Inputs:   []SignatureTerminal{in("in0", "&'a T", Passthrough)},
		Outputs:  []SignatureTerminal{passthrough("out0", "in0")},
	},
	MutablePassthrough: {
		Generics: generics("T", "'a"),
		Inputs:   []SignatureTerminal{in("in0", "&'a mut T", Passthrough)},
		Outputs:  []SignatureTerminal{passthrough("out0", "in0")},
	},
	Assign: {
		Generics: generics("T", "'a"),
		Inputs:   []SignatureTerminal{in("in0", "&'a mut T", Passthrough), in("in1", "T", Consume)},
		Outputs:  []SignatureTerminal{passthrough("out0", "in0")},
	},
	ExchangeValues: {
		Generics: generics("T", "'a", "'b"),
		Inputs:   []SignatureTerminal{in("in0", "&'a mut T", Passthrough), in("in1", "&'b mut T", Passthrough)},
		Outputs:  []SignatureTerminal{passthrough("out0", "in0"), passthrough("out1", "in1")},
	},
	CreateCopy: {
		Generics: generics("T: Clone", "'a", "?m"),
		Inputs:   []SignatureTerminal{in("in0", "&'a ?m T", Passthrough)},
		Outputs:  []SignatureTerminal{passthrough("out0", "in0"), out("out1", "T")},
	},
	Output: {
		Generics: generics("T: Display", "'a", "?m"),
		Inputs:   []SignatureTerminal{in("in0", "&'a ?m T", Passthrough)},
		Outputs:  []SignatureTerminal{passthrough("out0", "in0")},
	},
	Range: {
		Inputs:  []SignatureTerminal{in("in0", "Int32", Consume), in("in1", "Int32", Consume)},
		Outputs: []SignatureTerminal{out("out0", "RangeIterator")},
	},
	SelectReference: {
		Generics: generics("T", "'s", "'a", "'b", "?s", "?m"),
		Inputs: []SignatureTerminal{
			in("in0", "&'s ?s Boolean", Passthrough),
			in("in1", "&'a ?m T", Passthrough),
			in("in2", "&'b ?m T", Passthrough),
		},
		Outputs: []SignatureTerminal{
			passthrough("out0", "in0"),
			passthrough("out1", "in1"),
			passthrough("out2", "in2"),
			out("out3", ""),
		},
	},
	SomeConstructor: {
		Generics: generics("T"),
		Inputs:   []SignatureTerminal{in("in0", "T", Consume)},
		Outputs:  []SignatureTerminal{out("out0", "Option<T>")},
	},
	Drop: {
		Generics: generics("T"),
		Inputs:   []SignatureTerminal{in("in0", "T", Consume)},
	},
	VectorCreate: {
		Outputs: []SignatureTerminal{out("out0", "Vector<Int32>")},
	},
}

// SignatureOf returns the signature of n. Terminate-lifetime nodes and
// border nodes have computed terminal types; their signatures only name
// the terminals.
func SignatureOf(n *Node) Signature {
	if sig, ok := signatures[n.Kind]; ok {
		return sig
	}
	switch n.Kind {
	case PureUnary:
		info := ops[n.Op]
		return Signature{
			Generics: generics("'a", "?m"),
			Inputs:   []SignatureTerminal{in("in0", "&'a ?m "+info.operand, Passthrough)},
			Outputs:  []SignatureTerminal{passthrough("out0", "in0"), out("out1", info.result)},
		}
	case PureBinary:
		info := ops[n.Op]
		return Signature{
			Generics: generics("'a", "'b", "?m", "?n"),
			Inputs: []SignatureTerminal{
				in("in0", "&'a ?m "+info.operand, Passthrough),
				in("in1", "&'b ?n "+info.operand, Passthrough),
			},
			Outputs: []SignatureTerminal{passthrough("out0", "in0"), passthrough("out1", "in1"), out("out2", info.result)},
		}
	case MutatingUnary:
		info := ops[n.Op]
		return Signature{
			Generics: generics("'a"),
			Inputs:   []SignatureTerminal{in("in0", "&'a mut "+info.operand, Passthrough)},
			Outputs:  []SignatureTerminal{passthrough("out0", "in0")},
		}
	case MutatingBinary:
		info := ops[n.Op]
		return Signature{
			Generics: generics("'a", "'b", "?m"),
			Inputs: []SignatureTerminal{
				in("in0", "&'a mut "+info.operand, Passthrough),
				in("in1", "&'b ?m "+info.operand, Passthrough),
			},
			Outputs: []SignatureTerminal{passthrough("out0", "in0"), passthrough("out1", "in1")},
		}
	case TerminateLifetime:
		var sig Signature
		for _, t := range n.Inputs() {
			sig.Inputs = append(sig.Inputs, in(t.Name, "", Consume))
		}
		for _, t := range n.Outputs() {
			sig.Outputs = append(sig.Outputs, out(t.Name, ""))
		}
		return sig
	case StructConstructor:
		var sig Signature
		for _, f := range n.Fields {
			sig.Inputs = append(sig.Inputs, in(f.Name, f.Type, Consume))
		}
		sig.Outputs = []SignatureTerminal{out("out0", "")}
		return sig
	case StructFieldAccessor:
		sig := Signature{Generics: generics("'a", "?m")}
		fields := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			param := fmt.Sprintf("F%d", i)
			sig.Generics = append(sig.Generics, Generic{Name: param})
			fields[i] = f.Name + ": " + param
			sig.Outputs = append(sig.Outputs, out(f.Name, "&'a ?m "+param))
		}
		sig.Inputs = []SignatureTerminal{in("in0", "&'a ?m {"+strings.Join(fields, ", ")+"}", Consume)}
		return sig
	case BuildTuple:
		elems := tupleParams(len(n.Inputs()))
		sig := Signature{Generics: generics(elems...)}
		for i, e := range elems {
			sig.Inputs = append(sig.Inputs, in(fmt.Sprintf("in%d", i), e, Consume))
		}
		sig.Outputs = []SignatureTerminal{out("out0", "("+strings.Join(elems, ", ")+")")}
		return sig
	case DecomposeTuple:
		elems := tupleParams(len(n.Outputs()))
		sig := Signature{Generics: generics(elems...)}
		sig.Inputs = []SignatureTerminal{in("in0", "("+strings.Join(elems, ", ")+")", Consume)}
		for i, e := range elems {
			sig.Outputs = append(sig.Outputs, out(fmt.Sprintf("out%d", i), e))
		}
		return sig
	case Loop, Frame:
		return Signature{}
	}
	return borderSignature(n)
}

func tupleParams(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("T%d", i)
	}
	return names
}

func borderSignature(n *Node) Signature {
	var sig Signature
	switch n.Kind {
	case TerminateLifetimeTunnel:
		sig.Outputs = []SignatureTerminal{out("outer", "")}
		return sig
	case BorrowTunnel:
		sig.Inputs = []SignatureTerminal{in("outer", "", Interrupt)}
	case IterateTunnel:
		sig.Generics = generics("Item", "I: Iterator<Item>", "'a")
		sig.Inputs = []SignatureTerminal{in("outer", "&'a mut I", Consume)}
	case LoopConditionTunnel:
		sig.Inputs = []SignatureTerminal{in("outer", "Boolean", Consume)}
	default:
		if n.Direction == Input {
			sig.Inputs = []SignatureTerminal{in("outer", "", Consume)}
		} else {
			sig.Inputs = []SignatureTerminal{in("inner", "", Consume)}
		}
	}
	if n.Direction == Input {
		sig.Outputs = []SignatureTerminal{out("inner", "")}
	} else {
		sig.Outputs = []SignatureTerminal{out("outer", "")}
	}
	return sig
}

// instantiate creates fresh type variables for the generic parameters of
// sig.
func instantiate(types *typeset.Set, sig Signature) *typeset.Env {
	env := &typeset.Env{
		Types:        map[string]typeset.Ref{},
		Lifetimes:    map[string]typeset.Ref{},
		Mutabilities: map[string]typeset.Ref{},
	}
	for _, g := range sig.Generics {
		switch g.Name[0] {
		case '\'':
			env.Lifetimes[g.Name[1:]] = types.CreateReferenceToLifetimeType(nil)
		case '?':
			env.Mutabilities[g.Name[1:]] = types.CreateReferenceToMutabilityType()
		default:
			var cs []typeset.Constraint
			for _, c := range g.Constraints {
				cs = append(cs, parseConstraint(types, env, c))
			}
			env.Types[g.Name] = types.CreateReferenceToNewTypeVariable(cs...)
		}
	}
	return env
}

func parseConstraint(types *typeset.Set, env *typeset.Env, c string) typeset.Constraint {
	if item, ok := strings.CutPrefix(c, typeset.Iterator+"<"); ok {
		ref, found := env.Types[strings.TrimSuffix(item, ">")]
		if !found {
			ice.Panicf("constraint %s names an undeclared parameter", c)
		}
		return typeset.IteratorTraitConstraint{Item: ref}
	}
	return typeset.TraitConstraint{Name: c}
}

// signatureType parses a signature type expression. Signatures are fixed
// at build time, so a bad expression is an internal error.
func signatureType(types *typeset.Set, env *typeset.Env, expr string) typeset.Ref {
	t, err := types.Parse(expr, env)
	if err != nil {
		ice.Panicf("signature: %v", err)
	}
	return t
}
