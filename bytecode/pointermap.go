package bytecode

// WordSize is the size of a frame word, the granularity of the pointer map.
const WordSize = 4

// PointerMap records which words of a frame hold pointers, one bit per
// word, high bit first.
type PointerMap struct {
	Size int // frame size in bytes
	Map  []byte
}

// NewPointerMap returns a map without pointers for a frame of size bytes.
func NewPointerMap(size int) PointerMap {
	nwords := (size + WordSize - 1) / WordSize
	return PointerMap{Size: size, Map: make([]byte, (nwords+7)/8)}
}

// SetPointer marks the word at byteOffset, which must be word-aligned.
func (pm *PointerMap) SetPointer(byteOffset int) {
	word := byteOffset / WordSize
	i := word / 8
	if i >= len(pm.Map) {
		m := make([]byte, i+1)
		copy(m, pm.Map)
		pm.Map = m
	}
	pm.Map[i] |= 1 << uint(7-word%8)
}

// HasPointer reports whether the word at byteOffset holds a pointer.
func (pm *PointerMap) HasPointer(byteOffset int) bool {
	word := byteOffset / WordSize
	i := word / 8
	if i >= len(pm.Map) {
		return false
	}
	return pm.Map[i]&(1<<uint(7-word%8)) != 0
}

// Trim drops trailing zero bytes.
func (pm *PointerMap) Trim() {
	n := len(pm.Map)
	for n > 0 && pm.Map[n-1] == 0 {
		n--
	}
	pm.Map = pm.Map[:n]
}
