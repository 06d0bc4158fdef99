// rebardump prints a compiled Rebar bytecode file.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/NERVsystems/infernode/tools/rebar/bytecode"
)

func main() {
	header := flag.Bool("header", false, "print only the function header")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: rebardump [-header] file.rbc\n")
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
		os.Exit(1)
	}
	f, err := bytecode.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode: %v\n", err)
		os.Exit(1)
	}

	printField("name", fmt.Sprintf("%q", f.Name))
	printField("locals", fmt.Sprintf("%d", len(f.LocalOffsets)))
	printField("frame size", fmt.Sprintf("%d bytes", f.LocalSize))
	printField("code size", fmt.Sprintf("%d bytes", len(f.Code)))
	printField("pointer words", fmt.Sprintf("%v", f.PointerMap.Map))
	printField("static data", fmt.Sprintf("%d items", len(f.StaticData)))
	printField("file size", fmt.Sprintf("%d bytes", len(data)))
	if re := f.EncodeToBytes(); len(re) != len(data) {
		printField("re-encoded", fmt.Sprintf("%d bytes (differs)", len(re)))
	}
	if *header {
		return
	}
	fmt.Println()
	if err := bytecode.Fprint(os.Stdout, f); err != nil {
		fmt.Fprintf(os.Stderr, "print: %v\n", err)
		os.Exit(1)
	}
}

const labelWidth = 14

func printField(label, value string) {
	pad := labelWidth - runewidth.StringWidth(label)
	if pad < 1 {
		pad = 1
	}
	fmt.Printf("%s:%s%s\n", label, strings.Repeat(" ", pad), value)
}
