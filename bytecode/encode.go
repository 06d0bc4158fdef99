package bytecode

import (
	"bytes"
	"io"
)

// Magic starts every encoded function.
const Magic = 0x0EBA7001

// Encode writes f to w. Integers are written in the variable-length
// operand encoding; code, static data and the pointer map as raw bytes.
//
//	magic name\0
//	nlocals offset... localsize
//	ncode code
//	framesize nmap map
//	nstatic { identifier\0 ndata data nloads load... }
func (f *Function) Encode(w io.Writer) error {
	var buf bytes.Buffer
	encodeOperand(&buf, Magic)
	encodeString(&buf, f.Name)

	encodeOperand(&buf, int32(len(f.LocalOffsets)))
	for _, off := range f.LocalOffsets {
		encodeOperand(&buf, int32(off))
	}
	encodeOperand(&buf, int32(f.LocalSize))

	encodeOperand(&buf, int32(len(f.Code)))
	buf.Write(f.Code)

	encodeOperand(&buf, int32(f.PointerMap.Size))
	encodeOperand(&buf, int32(len(f.PointerMap.Map)))
	buf.Write(f.PointerMap.Map)

	encodeOperand(&buf, int32(len(f.StaticData)))
	for _, sd := range f.StaticData {
		encodeString(&buf, sd.Identifier)
		encodeOperand(&buf, int32(len(sd.Data)))
		buf.Write(sd.Data)
		encodeOperand(&buf, int32(len(sd.LoadOffsets)))
		for _, off := range sd.LoadOffsets {
			encodeOperand(&buf, int32(off))
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// EncodeToBytes encodes f to a byte slice.
func (f *Function) EncodeToBytes() []byte {
	var buf bytes.Buffer
	f.Encode(&buf) // writes to a bytes.Buffer do not fail
	return buf.Bytes()
}

// encodeOperand writes a variable-length signed integer.
//
//	[-64, 63]         → 1 byte  (bits 7-6 = 00 or 01)
//	[-8192, 8191]     → 2 bytes (bits 7-6 = 10)
//	[-2^29, 2^29 - 1] → 4 bytes (bits 7-6 = 11)
func encodeOperand(buf *bytes.Buffer, val int32) {
	if val >= -64 && val <= 63 {
		buf.WriteByte(byte(val) &^ 0x80)
		return
	}
	if val >= -8192 && val <= 8191 {
		buf.WriteByte(byte(val>>8)&^0xC0 | 0x80)
		buf.WriteByte(byte(val))
		return
	}
	buf.WriteByte(byte(val>>24) | 0xC0)
	buf.WriteByte(byte(val >> 16))
	buf.WriteByte(byte(val >> 8))
	buf.WriteByte(byte(val))
}

func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}
