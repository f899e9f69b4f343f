package chunk

import "fmt"

// BitReader extracts fixed-width unsigned integers from a packed buffer.
//
// The buffer is a sequence of storage words of wordSize bytes, each stored
// big-endian. Stream bit k is bit k%(8*wordSize) of word k/(8*wordSize),
// counted from the word's least significant bit. A value of width n takes its
// bit j from stream bit cursor+j, so Read(a) followed by Read(b) yields the low
// and high parts of a single Read(a+b).
//
// With wordSize 8 this is the protocol's long array layout; with wordSize 1 it
// is the nibble array layout (even index in the low nibble).
type BitReader struct {
	buf      []byte
	wordSize int
	cursor   int
	length   int
}

// NewBitReader returns a reader over buf. A trailing partial word is not
// addressable and does not count towards the readable length.
func NewBitReader(buf []byte, wordSize int) *BitReader {
	if wordSize < 1 {
		wordSize = 1
	}
	words := len(buf) / wordSize
	return &BitReader{
		buf:      buf[:words*wordSize],
		wordSize: wordSize,
		length:   words * wordSize * 8,
	}
}

// Read returns the next n bits, 1 <= n <= 64.
func (r *BitReader) Read(n int) (uint64, error) {
	if n < 1 || n > 64 {
		return 0, fmt.Errorf("chunk: read width %d out of range [1,64]", n)
	}
	if r.length-r.cursor < n {
		return 0, fmt.Errorf("%w: need %d bits, %d remain", ErrBitUnderflow, n, r.length-r.cursor)
	}

	var v uint64
	wordBits := r.wordSize * 8
	for shift := 0; shift < n; {
		k := r.cursor
		inWord := k % wordBits
		idx := (k/wordBits)*r.wordSize + (r.wordSize - 1 - inWord/8)
		off := inWord % 8

		take := min(8-off, n-shift)
		part := uint64(r.buf[idx]>>off) & (1<<take - 1)
		v |= part << shift

		shift += take
		r.cursor += take
	}
	return v, nil
}

// Skip advances the cursor by n bits without decoding them.
func (r *BitReader) Skip(n int) error {
	if n < 0 {
		return fmt.Errorf("chunk: negative skip %d", n)
	}
	if r.length-r.cursor < n {
		return fmt.Errorf("%w: skip %d bits, %d remain", ErrBitUnderflow, n, r.length-r.cursor)
	}
	r.cursor += n
	return nil
}

// Remaining reports the number of unread bits.
func (r *BitReader) Remaining() int { return r.length - r.cursor }

// Cursor reports the number of bits consumed so far.
func (r *BitReader) Cursor() int { return r.cursor }
