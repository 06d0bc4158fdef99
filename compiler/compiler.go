// Package compiler allocates frame slots for an analyzed Rebar graph and
// lowers it to stack machine bytecode.
package compiler

import (
	"github.com/pkg/errors"

	"github.com/NERVsystems/infernode/tools/rebar/bytecode"
	"github.com/NERVsystems/infernode/tools/rebar/dfir"
	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
)

// ErrDiagnostics is returned, wrapped, when the program has messages and
// Options.DiagnosticsFatal is set.
var ErrDiagnostics = errors.New("program has errors")

// Compiler compiles Rebar graphs.
type Compiler struct {
	opts Options
	log  Logger
}

// New returns a compiler. A nil log discards logging.
func New(opts Options, log Logger) *Compiler {
	if log == nil {
		log = NopLogger()
	}
	return &Compiler{opts: opts, log: log}
}

// Result is the outcome of a compilation. Frame and Function are nil when
// the program has messages.
type Result struct {
	Graph    *dfir.Graph
	Messages []dfir.Message
	Frame    *Frame
	Function *bytecode.Function
}

// CompileFile loads a YAML graph and compiles it.
func (c *Compiler) CompileFile(path string) (*Result, error) {
	g, err := dfir.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return c.Compile(g)
}

// Compile analyzes g, then allocates and lowers it if it has no messages.
// Internal compiler errors are returned as errors satisfying ice.Is.
func (c *Compiler) Compile(g *dfir.Graph) (res *Result, err error) {
	defer ice.Recover(&err)

	name := g.Name
	if name == "" {
		name = c.opts.FunctionName
	}
	log := c.log.With(map[string]any{"func": name})
	res = &Result{Graph: g}

	log.Debugf("analyze")
	if err := dfir.Analyze(g); err != nil {
		return res, errors.Wrapf(err, "analyze %s", name)
	}
	res.Messages = g.Messages
	if n := len(g.Messages); n > 0 {
		for _, m := range g.Messages {
			log.Infof("%v", m)
		}
		if c.opts.DiagnosticsFatal {
			return res, errors.Wrapf(ErrDiagnostics, "%s: %d messages", name, n)
		}
		return res, nil
	}

	log.Debugf("allocate")
	frame, err := Allocate(g, c.opts.PointerSize)
	if err != nil {
		return res, errors.Wrapf(err, "allocate %s", name)
	}
	res.Frame = frame
	log.Debugf("frame has %d slots, %d bytes", len(frame.Slots), frame.Size())

	log.Debugf("emit")
	b := bytecode.NewBuilder(name)
	b.LocalSizes = frame.Sizes()
	b.Pointers = frame.PointerOffsets()
	newEmitter(g, frame, b, log).emit(g)
	fn, err := b.CreateFunction()
	if err != nil {
		return res, errors.Wrapf(err, "emit %s", name)
	}
	res.Function = fn
	log.Debugf("emitted %d bytes", len(fn.Code))
	return res, nil
}
