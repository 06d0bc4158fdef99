package bytecode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
)

func TestEncodeOperand(t *testing.T) {
	tests := []struct {
		val    int32
		nbytes int
	}{
		{0, 1},
		{63, 1},
		{-1, 1},
		{-64, 1},
		{64, 2},
		{-65, 2},
		{8191, 2},
		{-8192, 2},
		{8192, 4},
		{-8193, 4},
		{Magic, 4},
		{0x1FFFFFFF, 4},
		{-0x20000000, 4},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		encodeOperand(&buf, tt.val)
		if buf.Len() != tt.nbytes {
			t.Errorf("encodeOperand(%d): got %d bytes, want %d", tt.val, buf.Len(), tt.nbytes)
			continue
		}
		r := &reader{data: buf.Bytes()}
		got, err := r.operand()
		if err != nil {
			t.Errorf("operand(%d): %v", tt.val, err)
			continue
		}
		if got != tt.val {
			t.Errorf("round-trip operand %d: got %d", tt.val, got)
		}
	}
}

func TestOpSize(t *testing.T) {
	tests := []struct {
		op   Op
		size int
	}{
		{Ret, 1},
		{Branch, 5},
		{BranchIfFalse, 5},
		{LoadIntegerImmediate, 5},
		{LoadLocalAddress, 2},
		{LoadStaticAddress, 5},
		{StorePointer, 1},
		{Neq, 1},
		{OutputTemp, 1},
	}
	for _, tt := range tests {
		if got := tt.op.Size(); got != tt.size {
			t.Errorf("%v.Size() = %d, want %d", tt.op, got, tt.size)
		}
		if got := len(Inst{Op: tt.op}.encode(nil)); got != tt.size {
			t.Errorf("len(encode(%v)) = %d, want %d", tt.op, got, tt.size)
		}
	}
	if Op(0x47).Valid() {
		t.Errorf("Op(0x47).Valid() = true")
	}
}

func mustFunction(t *testing.T, b *Builder) *Function {
	t.Helper()
	f, err := b.CreateFunction()
	if err != nil {
		t.Fatalf("CreateFunction: %v", err)
	}
	return f
}

func mustInsts(t *testing.T, f *Function) []Inst {
	t.Helper()
	insts, err := f.Instructions()
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	return insts
}

func TestBranchPatching(t *testing.T) {
	b := NewBuilder("f")
	start, end := b.CreateLabel(), b.CreateLabel()
	b.SetLabel(start)
	b.EmitLoadIntegerImmediate(1)
	b.EmitBranchIfFalse(end)
	b.EmitLoadLocalAddress(3)
	b.EmitDerefInteger()
	b.EmitBranch(start)
	b.SetLabel(end)
	b.EmitReturn()

	want := []Inst{
		{Pos: 0, Op: LoadIntegerImmediate, Arg: 1},
		{Pos: 5, Op: BranchIfFalse, Arg: 18},
		{Pos: 10, Op: LoadLocalAddress, Arg: 3},
		{Pos: 12, Op: DerefInteger},
		{Pos: 13, Op: Branch, Arg: 0},
		{Pos: 18, Op: Ret},
	}
	if diff := cmp.Diff(want, mustInsts(t, mustFunction(t, b))); diff != "" {
		t.Errorf("instructions mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderErrors(t *testing.T) {
	b := NewBuilder("unset")
	b.EmitBranch(b.CreateLabel())
	if _, err := b.CreateFunction(); err == nil || !strings.Contains(err.Error(), "unset label") {
		t.Errorf("CreateFunction = %v, want unset label error", err)
	}

	b = NewBuilder("wide")
	b.EmitLoadLocalAddress(256)
	if _, err := b.CreateFunction(); err == nil {
		t.Errorf("CreateFunction with local 256 succeeded")
	}

	err := func() (err error) {
		defer ice.Recover(&err)
		b := NewBuilder("twice")
		l := b.CreateLabel()
		b.SetLabel(l)
		b.SetLabel(l)
		return nil
	}()
	if !ice.Is(err) {
		t.Errorf("setting a label twice: err = %v, want internal compiler error", err)
	}
}

func TestLocals(t *testing.T) {
	b := NewBuilder("f")
	b.LocalSizes = []int{4, 8, 4, 4}
	b.Pointers = []int{12}
	b.EmitReturn()
	f := mustFunction(t, b)
	if diff := cmp.Diff([]int{0, 4, 12, 16}, f.LocalOffsets); diff != "" {
		t.Errorf("LocalOffsets mismatch (-want +got):\n%s", diff)
	}
	if f.LocalSize != 20 {
		t.Errorf("LocalSize = %d, want 20", f.LocalSize)
	}
	for _, off := range f.LocalOffsets {
		if got, want := f.PointerMap.HasPointer(off), off == 12; got != want {
			t.Errorf("HasPointer(%d) = %v, want %v", off, got, want)
		}
	}
}

func TestStaticData(t *testing.T) {
	b := NewBuilder("f")
	hello := b.DefineStaticData("hello", []byte("hello"))
	world := b.DefineStaticData("world", []byte("world"))
	b.EmitLoadStaticDataAddress(world)
	b.EmitOutputTemp()
	b.EmitLoadStaticDataAddress(hello)
	b.EmitLoadStaticDataAddress(world)
	b.EmitReturn()
	f := mustFunction(t, b)

	want := []StaticDataInfo{
		{Identifier: "hello", Data: []byte("hello"), LoadOffsets: []int{6}},
		{Identifier: "world", Data: []byte("world"), LoadOffsets: []int{0, 11}},
	}
	if diff := cmp.Diff(want, f.StaticData); diff != "" {
		t.Errorf("StaticData mismatch (-want +got):\n%s", diff)
	}

	if err := f.PatchStaticDataOffsets(map[string]int32{"hello": 100, "world": 200}); err != nil {
		t.Fatal(err)
	}
	var args []int32
	for _, inst := range mustInsts(t, f) {
		if inst.Op == LoadStaticAddress {
			args = append(args, inst.Arg)
		}
	}
	if diff := cmp.Diff([]int32{200, 100, 200}, args); diff != "" {
		t.Errorf("patched addresses mismatch (-want +got):\n%s", diff)
	}
	if err := f.PatchStaticDataOffsets(map[string]int32{"hello": 1}); err == nil {
		t.Errorf("PatchStaticDataOffsets without world succeeded")
	}
}

func TestEncodeDecode(t *testing.T) {
	b := NewBuilder("roundtrip")
	b.LocalSizes = []int{4, 4, 8}
	b.Pointers = []int{4}
	sd := b.DefineStaticData("s", []byte{1, 2, 3})
	l := b.CreateLabel()
	b.EmitLoadLocalAddress(0)
	b.EmitLoadIntegerImmediate(-100000)
	b.EmitStoreInteger()
	b.EmitLoadStaticDataAddress(sd)
	b.EmitBranch(l)
	b.SetLabel(l)
	b.EmitReturn()
	f := mustFunction(t, b)

	got, err := Decode(f.EncodeToBytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(f, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	f := &Function{Name: "f", Code: []byte{byte(Ret)}}
	data := f.EncodeToBytes()
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte{0x01}},
		{"truncated", data[:len(data)-2]},
		{"trailing", append(append([]byte(nil), data...), 0)},
	}
	for _, tt := range tests {
		if _, err := Decode(tt.data); err == nil {
			t.Errorf("%s: Decode succeeded", tt.name)
		}
	}
}

func TestDisassembleErrors(t *testing.T) {
	if _, err := Disassemble([]byte{0x47}); err == nil {
		t.Errorf("Disassemble(invalid opcode) succeeded")
	}
	if _, err := Disassemble([]byte{byte(Branch), 0, 0}); err == nil {
		t.Errorf("Disassemble(truncated branch) succeeded")
	}
}

func TestPointerMap(t *testing.T) {
	pm := NewPointerMap(40)
	if len(pm.Map) != 2 {
		t.Errorf("len(Map) = %d, want 2", len(pm.Map))
	}
	pm.SetPointer(0)
	pm.SetPointer(36)
	if pm.Map[0] != 0x80 || pm.Map[1] != 0x40 {
		t.Errorf("Map = %x, want 8040", pm.Map)
	}
	pm.SetPointer(100)
	if !pm.HasPointer(100) || pm.HasPointer(96) {
		t.Errorf("HasPointer after growth is wrong: %x", pm.Map)
	}

	empty := NewPointerMap(16)
	empty.Trim()
	if len(empty.Map) != 0 {
		t.Errorf("trimmed empty map = %x", empty.Map)
	}
}

func TestFprint(t *testing.T) {
	b := NewBuilder("loop")
	b.LocalSizes = []int{4}
	l := b.CreateLabel()
	b.SetLabel(l)
	b.EmitLoadLocalAddress(0)
	b.EmitBranch(l)
	var buf bytes.Buffer
	if err := Fprint(&buf, mustFunction(t, b)); err != nil {
		t.Fatal(err)
	}
	want := "function loop\nframe 4 bytes\n\tlocal 0 @0\n0:\n\t   0  ldloca 0\n\t   2  br @0\n"
	if got := buf.String(); got != want {
		t.Errorf("Fprint = %q, want %q", got, want)
	}
}
