// rebarc compiles a Rebar dataflow graph, written as YAML, to bytecode for
// the Rebar stack machine.
//
// Usage:
//
//	rebarc [-o output.rbc] [-config rebar.yaml] [-log-level warn] graph.yaml
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/NERVsystems/infernode/tools/rebar/compiler"
	"github.com/NERVsystems/infernode/tools/rebar/dfir"
)

func main() {
	output := flag.String("o", "", "output bytecode file (default: input basename + .rbc)")
	config := flag.String("config", "", "YAML compiler options")
	logLevel := flag.String("log-level", "", "error, warn, info or debug (overrides the config)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: rebarc [-o output.rbc] [-config rebar.yaml] [-log-level level] graph.yaml\n")
		os.Exit(2)
	}
	input := flag.Arg(0)

	opts := compiler.DefaultOptions()
	if *config != "" {
		var err error
		if opts, err = compiler.LoadOptions(*config); err != nil {
			fatalf("%v", err)
		}
	}
	if *logLevel != "" {
		opts.LogLevel = *logLevel
	}
	if *output == "" {
		base := filepath.Base(input)
		*output = strings.TrimSuffix(base, filepath.Ext(base)) + ".rbc"
	}

	log := compiler.NewLogger(compiler.ParseLogLevel(opts.LogLevel), os.Stderr)
	res, err := compiler.New(opts, log).CompileFile(input)
	if res != nil && len(res.Messages) > 0 {
		printMessages(os.Stderr, input, res.Messages)
	}
	if err != nil {
		fatalf("%v", err)
	}
	if res.Function == nil {
		os.Exit(1)
	}

	f, err := os.Create(*output)
	if err != nil {
		fatalf("%v", err)
	}
	if err := res.Function.Encode(f); err != nil {
		f.Close()
		fatalf("encode: %v", err)
	}
	if err := f.Close(); err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("rebarc: %s → %s (%d bytes of code, %d-byte frame)\n",
		input, *output, len(res.Function.Code), res.Function.LocalSize)
}

// printMessages writes one line per diagnostic, coloring the kind when w
// is a terminal.
func printMessages(w io.Writer, file string, msgs []dfir.Message) {
	color := isTerminal(w) && os.Getenv("NO_COLOR") == ""
	for _, m := range msgs {
		kind := m.Kind.String()
		if color {
			kind = "\x1b[1;31m" + kind + "\x1b[0m"
		}
		fmt.Fprintf(w, "%s: %s: %v\n", file, kind, m)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "rebarc: "+format+"\n", args...)
	os.Exit(1)
}
