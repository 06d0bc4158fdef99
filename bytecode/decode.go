package bytecode

import (
	"github.com/pkg/errors"
)

// Decode parses a function written by Encode.
func Decode(data []byte) (*Function, error) {
	r := &reader{data: data}
	magic, err := r.operand()
	if err != nil {
		return nil, errors.Wrap(err, "magic")
	}
	if magic != Magic {
		return nil, errors.Errorf("bad magic: 0x%x", magic)
	}
	f := &Function{}
	if f.Name, err = r.readString(); err != nil {
		return nil, errors.Wrap(err, "name")
	}

	nlocals, err := r.count()
	if err != nil {
		return nil, errors.Wrap(err, "locals")
	}
	f.LocalOffsets = make([]int, nlocals)
	for i := range f.LocalOffsets {
		if f.LocalOffsets[i], err = r.int(); err != nil {
			return nil, errors.Wrapf(err, "local %d", i)
		}
	}
	if f.LocalSize, err = r.int(); err != nil {
		return nil, errors.Wrap(err, "local size")
	}

	if f.Code, err = r.block(); err != nil {
		return nil, errors.Wrap(err, "code")
	}

	if f.PointerMap.Size, err = r.int(); err != nil {
		return nil, errors.Wrap(err, "frame size")
	}
	if f.PointerMap.Map, err = r.block(); err != nil {
		return nil, errors.Wrap(err, "pointer map")
	}

	nstatic, err := r.count()
	if err != nil {
		return nil, errors.Wrap(err, "static data")
	}
	for i := 0; i < nstatic; i++ {
		sd, err := r.readStaticData()
		if err != nil {
			return nil, errors.Wrapf(err, "static data %d", i)
		}
		f.StaticData = append(f.StaticData, sd)
	}
	if r.remaining() != 0 {
		return nil, errors.Errorf("%d trailing bytes", r.remaining())
	}
	return f, nil
}

func (r *reader) readStaticData() (StaticDataInfo, error) {
	var sd StaticDataInfo
	var err error
	if sd.Identifier, err = r.readString(); err != nil {
		return sd, err
	}
	if sd.Data, err = r.block(); err != nil {
		return sd, err
	}
	n, err := r.count()
	if err != nil {
		return sd, err
	}
	for j := 0; j < n; j++ {
		off, err := r.int()
		if err != nil {
			return sd, err
		}
		sd.LoadOffsets = append(sd.LoadOffsets, off)
	}
	return sd, nil
}

// reader wraps a byte slice with a position cursor.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errors.Errorf("unexpected EOF at offset %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, errors.Errorf("unexpected EOF: need %d bytes at offset %d", n, r.pos)
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+n])
	r.pos += n
	return b, nil
}

// operand decodes a variable-length signed integer.
func (r *reader) operand() (int32, error) {
	c, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch c & 0xC0 {
	case 0x00:
		return int32(c), nil
	case 0x40:
		return int32(c) | ^int32(0x7F), nil
	case 0x80:
		c2, err := r.readByte()
		if err != nil {
			return 0, err
		}
		v := int32(c)
		if c&0x20 != 0 {
			v |= ^int32(0x3F)
		} else {
			v &= 0x3F
		}
		return v<<8 | int32(c2), nil
	}
	rest, err := r.readBytes(3)
	if err != nil {
		return 0, err
	}
	v := int32(c)
	if c&0x20 != 0 {
		v |= ^int32(0x3F)
	} else {
		v &= 0x3F
	}
	return v<<24 | int32(rest[0])<<16 | int32(rest[1])<<8 | int32(rest[2]), nil
}

func (r *reader) int() (int, error) {
	v, err := r.operand()
	return int(v), err
}

// count reads a non-negative length.
func (r *reader) count() (int, error) {
	n, err := r.int()
	if err == nil && n < 0 {
		err = errors.Errorf("negative count %d", n)
	}
	return n, err
}

// block reads a length-prefixed byte block.
func (r *reader) block() ([]byte, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	return r.readBytes(n)
}

// readString reads a null-terminated string.
func (r *reader) readString() (string, error) {
	start := r.pos
	for r.pos < len(r.data) {
		if r.data[r.pos] == 0 {
			s := string(r.data[start:r.pos])
			r.pos++
			return s, nil
		}
		r.pos++
	}
	return "", errors.Errorf("unterminated string at offset %d", start)
}
