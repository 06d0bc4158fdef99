package compiler

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/NERVsystems/infernode/tools/rebar/bytecode"
	"github.com/NERVsystems/infernode/tools/rebar/dfir"
	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
	"github.com/NERVsystems/infernode/tools/rebar/lifetime"
	"github.com/NERVsystems/infernode/tools/rebar/typeset"
)

func compileFile(t *testing.T, name string) *Result {
	t.Helper()
	res, err := New(DefaultOptions(), nil).CompileFile(filepath.Join("testdata", name+".yaml"))
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	if res.Function == nil {
		t.Fatalf("compile %s: no function, messages %v", name, res.Messages)
	}
	return res
}

func instructions(t *testing.T, fn *bytecode.Function) []bytecode.Inst {
	t.Helper()
	insts, err := fn.Instructions()
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	return insts
}

// listing renders the instructions without positions.
func listing(insts []bytecode.Inst) []string {
	out := make([]string, len(insts))
	for i, in := range insts {
		out[i] = in.String()
	}
	return out
}

func findLabel(d *dfir.Diagram, label string) *dfir.Node {
	for _, n := range d.Nodes {
		if n.Label == label {
			return n
		}
		if n.Kind.IsStructure() {
			for _, b := range n.Border {
				if b.Label == label {
					return b
				}
			}
			if found := findLabel(n.Body, label); found != nil {
				return found
			}
		}
	}
	return nil
}

func slotIndex(t *testing.T, res *Result, term *dfir.Terminal) int {
	t.Helper()
	a, ok := res.Frame.Lookup(term.Variable())
	if !ok {
		t.Fatalf("%v has no slot", term)
	}
	return a.Index
}

func TestTypeLayout(t *testing.T) {
	tests := []struct {
		typ         string
		pointerSize int
		want        Layout
	}{
		{"Int32", 4, Layout{Size: 4}},
		{"Boolean", 4, Layout{Size: 4}},
		{"&Int32", 4, Layout{Size: 4, Pointers: []int{0}}},
		{"&mut Boolean", 8, Layout{Size: 8, Pointers: []int{0}}},
		{"Option<Int32>", 4, Layout{Size: 8}},
		{"Option<&Int32>", 4, Layout{Size: 8, Pointers: []int{4}}},
		{"Option<Option<Int32>>", 4, Layout{Size: 12}},
		{"RangeIterator", 4, Layout{Size: 8}},
	}
	for _, tt := range tests {
		s := typeset.New(lifetime.NewTree())
		got, err := TypeLayout(s, s.MustParse(tt.typ, nil), tt.pointerSize)
		if err != nil {
			t.Errorf("TypeLayout(%s): %v", tt.typ, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("TypeLayout(%s, %d) mismatch (-want +got):\n%s", tt.typ, tt.pointerSize, diff)
		}
	}
}

func TestTypeLayoutErrors(t *testing.T) {
	for _, typ := range []string{"Vector<Int32>", "String", "Void", "Option<String>"} {
		s := typeset.New(lifetime.NewTree())
		_, err := TypeSize(s, s.MustParse(typ, nil), 4)
		if err == nil || !strings.Contains(err.Error(), "cannot allocate") {
			t.Errorf("TypeSize(%s) error = %v, want cannot allocate", typ, err)
		}
	}
	s := typeset.New(lifetime.NewTree())
	if _, err := TypeSize(s, s.CreateReferenceToNewTypeVariable(), 4); err == nil {
		t.Errorf("TypeSize(free variable) succeeded")
	}
}

func TestAllocate(t *testing.T) {
	res := compileFile(t, "borrow")
	f := res.Frame
	if got, want := f.Sizes(), []int{4, 4}; !cmp.Equal(got, want) {
		t.Errorf("Sizes() = %v, want %v", got, want)
	}
	if got := f.Size(); got != 8 {
		t.Errorf("Size() = %d, want 8", got)
	}
	if got, want := f.PointerOffsets(), []int{4}; !cmp.Equal(got, want) {
		t.Errorf("PointerOffsets() = %v, want %v", got, want)
	}
	for i, s := range f.Slots {
		if s.Index != i {
			t.Errorf("slot %d has index %d", i, s.Index)
		}
		if got, ok := f.Lookup(s.Variable); !ok || got.Index != i {
			t.Errorf("Lookup(slot %d variable) = %d, %v", i, got.Index, ok)
		}
	}
}

func TestAllocateBodiesFirst(t *testing.T) {
	res := compileFile(t, "iterate")
	loop := findLabel(res.Graph.Root, "loop")
	var seenRoot bool
	for _, s := range res.Frame.Slots {
		switch s.Diagram {
		case loop.Body:
			if seenRoot {
				t.Errorf("body slot %d allocated after a root slot", s.Index)
			}
		case res.Graph.Root:
			seenRoot = true
		}
	}
	if !seenRoot {
		t.Errorf("no root slots")
	}
	offset := 0
	for _, s := range res.Frame.Slots {
		if s.Offset != offset {
			t.Errorf("slot %d offset = %d, want %d", s.Index, s.Offset, offset)
		}
		offset += s.Size
	}
}

func TestCompileBorrow(t *testing.T) {
	res := compileFile(t, "borrow")
	want := []string{
		"ldloca 0", "ldimm 5", "stint",
		"ldloca 1", "ldloca 0", "stptr",
		"ldloca 1", "derefptr", "derefint", "output_temp",
		"ret",
	}
	if diff := cmp.Diff(want, listing(instructions(t, res.Function))); diff != "" {
		t.Errorf("borrow mismatch (-want +got):\n%s", diff)
	}
	if res.Function.Name != "borrow" {
		t.Errorf("Name = %q, want borrow", res.Function.Name)
	}
}

func TestCompileFanOut(t *testing.T) {
	res := compileFile(t, "fanout")
	want := []string{
		"ldloca 0", "ldimm 9", "stint",
		// one read of the source, stored to each extra sink
		"ldloca 0", "derefint",
		"dup", "ldloca 1", "swap", "stint",
		"ldloca 2", "swap", "stint",
		// range
		"ldloca 3", "dup", "ldloca 0", "derefint", "ldimm 1", "sub", "stint",
		"ldimm 4", "add", "ldloca 1", "derefint", "stint",
		// some
		"ldloca 4", "dup", "ldimm 1", "stint",
		"ldimm 4", "add", "ldloca 2", "derefint", "stint",
		"ret",
	}
	if diff := cmp.Diff(want, listing(instructions(t, res.Function))); diff != "" {
		t.Errorf("fanout mismatch (-want +got):\n%s", diff)
	}
	if got := res.Frame.Size(); got != 28 {
		t.Errorf("frame size = %d, want 28", got)
	}
}

func TestCompileUnwrapFrame(t *testing.T) {
	res := compileFile(t, "unwrap")
	want := []string{
		"ldloca 1", "ldimm 3", "stint",
		"ldloca 2", "dup", "ldimm 1", "stint", "ldimm 4", "add", "ldloca 1", "derefint", "stint",
		"ldloca 2", "derefint", "brfalse @72",
		"ldloca 0", "ldloca 2", "ldimm 4", "add", "derefint", "stint",
		"ldloca 3", "ldimm 1", "stint", "ldloca 3", "ldimm 4", "add", "ldloca 0", "derefint", "stint",
		"br @80",
		"ldloca 3", "ldimm 0", "stint",
		"ret",
	}
	insts := instructions(t, res.Function)
	if diff := cmp.Diff(want, listing(insts)); diff != "" {
		t.Errorf("unwrap mismatch (-want +got):\n%s", diff)
	}
	if last := insts[len(insts)-1]; last.Pos != 80 {
		t.Errorf("ret at %d, want 80", last.Pos)
	}
}

func TestCompileUnwiredLoopCondition(t *testing.T) {
	res := compileFile(t, "iterate")
	cond := findLabel(res.Graph.Root, "loop").ConditionTunnel()
	inner, outer := slotIndex(t, res, cond.Inner()), slotIndex(t, res, cond.Outer())
	insts := instructions(t, res.Function)

	init := -1
	for i := 2; i+3 < len(insts); i++ {
		if insts[i].Op == bytecode.Dup && insts[i+1].Op == bytecode.LoadIntegerImmediate &&
			insts[i+1].Arg == 1 && insts[i+2].Op == bytecode.StoreInteger && insts[i+3].Op == bytecode.StorePointer {
			init = i
			break
		}
	}
	if init < 0 {
		t.Fatalf("no condition initialization in\n%s", strings.Join(listing(insts), "\n"))
	}
	if got := insts[init-2]; got.Op != bytecode.LoadLocalAddress || int(got.Arg) != inner {
		t.Errorf("before init: %v, want ldloca %d", got, inner)
	}
	if got := insts[init-1]; got.Op != bytecode.LoadLocalAddress || int(got.Arg) != outer {
		t.Errorf("before init: %v, want ldloca %d", got, outer)
	}

	start := insts[init+4].Pos
	back := insts[len(insts)-2]
	if back.Op != bytecode.Branch || int(back.Arg) != start {
		t.Errorf("loop back edge = %v, want br @%d", back, start)
	}
	end := insts[len(insts)-1]
	var exits int
	for _, in := range insts {
		if in.Op == bytecode.BranchIfFalse && int(in.Arg) == end.Pos {
			exits++
		}
	}
	if exits != 1 {
		t.Errorf("%d branches leave the loop, want 1", exits)
	}
}

func TestCompileStructures(t *testing.T) {
	for _, name := range []string{"borrow", "iterate", "borrow_tunnel", "unwrap", "fanout"} {
		res := compileFile(t, name)
		insts := instructions(t, res.Function)
		if last := insts[len(insts)-1]; last.Op != bytecode.Ret {
			t.Errorf("%s: last instruction %v, want ret", name, last)
		}
		if got, want := res.Function.LocalSize, res.Frame.Size(); got != want {
			t.Errorf("%s: LocalSize = %d, want %d", name, got, want)
		}
	}
}

func TestCompileDiagnostics(t *testing.T) {
	path := filepath.Join("testdata", "mismatch.yaml")
	res, err := New(DefaultOptions(), nil).CompileFile(path)
	if !errors.Is(err, ErrDiagnostics) {
		t.Errorf("fatal: err = %v, want ErrDiagnostics", err)
	}
	if res == nil || len(res.Messages) != 1 || res.Messages[0].Kind != dfir.TypeMismatch {
		t.Fatalf("fatal: result = %+v, want one TypeMismatch", res)
	}
	if res.Function != nil || res.Frame != nil {
		t.Errorf("fatal: compiled a program with messages")
	}

	opts := DefaultOptions()
	opts.DiagnosticsFatal = false
	res, err = New(opts, nil).CompileFile(path)
	if err != nil {
		t.Errorf("non-fatal: err = %v", err)
	}
	if len(res.Messages) != 1 || res.Function != nil {
		t.Errorf("non-fatal: messages %v, function %v", res.Messages, res.Function)
	}
}

func TestCompileUnallocatable(t *testing.T) {
	_, err := New(DefaultOptions(), nil).CompileFile(filepath.Join("testdata", "vector.yaml"))
	if err == nil || !strings.Contains(err.Error(), "cannot allocate a value of type Vector<Int32>") {
		t.Errorf("err = %v, want cannot allocate Vector<Int32>", err)
	}
	if !ice.Is(err) {
		t.Errorf("allocation failure not reported as internal error: %v", err)
	}
}

func TestCompileInternalError(t *testing.T) {
	tests := []struct {
		file, want string
	}{
		{"modulus", "modulus"},
		{"struct", "Point"},
	}
	for _, tt := range tests {
		_, err := New(DefaultOptions(), nil).CompileFile(filepath.Join("testdata", tt.file+".yaml"))
		if !ice.Is(err) {
			t.Errorf("%s: err = %v, want internal compiler error", tt.file, err)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: err = %v, want mention of %s", tt.file, err, tt.want)
		}
	}
}

func TestCompileLogs(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.DiagnosticsFatal = false
	log := newTextLogger(LevelInfo, &buf, false)
	if _, err := New(opts, log).CompileFile(filepath.Join("testdata", "mismatch.yaml")); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	if !strings.HasPrefix(got, "[INFO] ") || !strings.HasSuffix(got, " func=mismatch\n") {
		t.Errorf("log = %q", got)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newTextLogger(LevelInfo, &buf, false).With(map[string]any{"func": "f", "a": "x y"})
	log.Debugf("hidden")
	log.Infof("visible %d", 1)
	log.Errorf("bad")
	want := "[INFO] visible 1 a=\"x y\" func=f\n[ERROR] bad a=\"x y\" func=f\n"
	if got := buf.String(); got != want {
		t.Errorf("log = %q, want %q", got, want)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"loud", LevelWarn},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rebar.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOptions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Options
		wantErr string
	}{
		{name: "empty", content: "", want: DefaultOptions()},
		{
			name:    "override",
			content: "pointer_size: 8\nfunction_name: entry\ndiagnostics_fatal: false\n",
			want:    Options{PointerSize: 8, FunctionName: "entry", LogLevel: "warn"},
		},
		{name: "unknown", content: "pointer_width: 8\n", wantErr: "pointer_width"},
		{name: "bad pointer size", content: "pointer_size: 2\n", wantErr: "pointer_size"},
		{name: "empty name", content: "function_name: \"\"\n", wantErr: "function_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadOptions(writeFile(t, tt.content))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPointerSize8(t *testing.T) {
	opts := DefaultOptions()
	opts.PointerSize = 8
	res, err := New(opts, nil).CompileFile(filepath.Join("testdata", "borrow.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := res.Frame.Sizes(), []int{4, 8}; !cmp.Equal(got, want) {
		t.Errorf("Sizes() = %v, want %v", got, want)
	}
}
