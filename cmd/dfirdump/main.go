// dfirdump analyzes a Rebar graph and prints its typed terminals, its
// messages and, when it has none, the frame allocation.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/NERVsystems/infernode/tools/rebar/bytecode"
	"github.com/NERVsystems/infernode/tools/rebar/compiler"
	"github.com/NERVsystems/infernode/tools/rebar/dfir"
)

func main() {
	pointerSize := flag.Int("pointer-size", 4, "reference slot size in bytes")
	code := flag.Bool("code", false, "also print the emitted bytecode")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dfirdump [-pointer-size n] [-code] graph.yaml")
		os.Exit(2)
	}

	g, err := dfir.LoadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	opts := compiler.DefaultOptions()
	opts.PointerSize = *pointerSize
	opts.DiagnosticsFatal = false
	res, err := compiler.New(opts, nil).Compile(g)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	if err := dfir.Fprint(os.Stdout, g); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if res == nil || res.Frame == nil {
		return
	}
	fmt.Println()
	printFrame(os.Stdout, g, res.Frame)
	if *code && res.Function != nil {
		fmt.Println()
		if err := bytecode.Fprint(os.Stdout, res.Function); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

// printFrame writes the allocation table with columns padded to their
// widest cell.
func printFrame(w io.Writer, g *dfir.Graph, f *compiler.Frame) {
	rows := [][]string{{"slot", "offset", "size", "diagram", "variable", "type"}}
	for _, s := range f.Slots {
		rows = append(rows, []string{
			fmt.Sprint(s.Index),
			fmt.Sprint(s.Offset),
			fmt.Sprint(s.Size),
			s.Diagram.String(),
			s.Variable.String(),
			g.Types.RenderWithLifetimes(s.Variable.Type),
		})
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell)+2))
			}
		}
		fmt.Fprintln(w, b.String())
	}
	fmt.Fprintf(w, "frame: %d bytes\n", f.Size())
}
