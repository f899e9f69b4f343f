package chunk

import (
	"fmt"
	"math"
)

// Mode is how a container's entries map to global ids.
type Mode uint8

const (
	// ModeSingle containers hold one id for every cell and carry no data words.
	ModeSingle Mode = iota + 1
	// ModeIndirect entries index into the container's palette.
	ModeIndirect
	// ModeDirect entries are global ids.
	ModeDirect
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeIndirect:
		return "indirect"
	case ModeDirect:
		return "direct"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Container is a decoded cube of global ids.
type Container struct {
	Size int
	Mode Mode
	// Bits is the entry width the data was decoded with; zero for ModeSingle.
	Bits int
	// Palette is the table entries were resolved through. It is nil in direct
	// mode and holds the single id in single mode.
	Palette []int32
	// Values holds Size³ ids indexed by (y*Size+z)*Size+x.
	Values []int32
}

// Index returns the position of (x, y, z) in Values.
func (c *Container) Index(x, y, z int) int {
	return (y*c.Size+z)*c.Size + x
}

// At returns the id at local coordinates (x, y, z).
func (c *Container) At(x, y, z int) int32 {
	return c.Values[c.Index(x, y, z)]
}

// With returns a copy of c with (x, y, z) set to id. The copy is in direct
// mode since the original palette no longer describes its values.
func (c *Container) With(x, y, z int, id int32) *Container {
	values := make([]int32, len(c.Values))
	copy(values, c.Values)
	values[c.Index(x, y, z)] = id
	return &Container{Size: c.Size, Mode: ModeDirect, Values: values}
}

// NewUniformContainer returns a single-mode container holding id in every cell.
func NewUniformContainer(size int, id int32) *Container {
	values := make([]int32, size*size*size)
	if id != 0 {
		for i := range values {
			values[i] = id
		}
	}
	return &Container{Size: size, Mode: ModeSingle, Palette: []int32{id}, Values: values}
}

// readContainer decodes one paletted container from p.
func readContainer(p *payload, f ContainerFormat) (*Container, error) {
	declared, err := p.u8("bits per entry")
	if err != nil {
		return nil, err
	}
	bits := int(declared)

	if bits == 0 {
		if !f.SingleValue {
			return nil, malformed("bits per entry 0")
		}
		return readSingle(p, f)
	}
	if bits > MaxEntryBits {
		return nil, malformed("bits per entry %d exceeds %d", bits, MaxEntryBits)
	}

	c := &Container{Size: f.Size}
	if bits >= f.IndirectThreshold {
		c.Mode = ModeDirect
		if f.DirectBits > 0 {
			bits = f.DirectBits
		}
		if f.DirectPaletteLength {
			n, err := p.varInt("direct palette length")
			if err != nil {
				return nil, err
			}
			if n != 0 {
				return nil, malformed("direct palette length %d, want 0", n)
			}
		}
	} else {
		c.Mode = ModeIndirect
		bits = max(bits, f.MinBits)
		if c.Palette, err = readPalette(p, f.cells()); err != nil {
			return nil, err
		}
	}
	c.Bits = bits

	words, err := readWords(p)
	if err != nil {
		return nil, err
	}
	if c.Values, err = unpack(NewBitReader(words, 8), c, f.Packing); err != nil {
		return nil, err
	}
	return c, nil
}

func readSingle(p *payload, f ContainerFormat) (*Container, error) {
	id, err := p.varInt("single value")
	if err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, malformed("single value %d", id)
	}
	if _, err := readWords(p); err != nil {
		return nil, err
	}
	return NewUniformContainer(f.Size, id), nil
}

func readPalette(p *payload, cells int) ([]int32, error) {
	n, err := p.varInt("palette length")
	if err != nil {
		return nil, err
	}
	if n <= 0 || int(n) > cells {
		return nil, malformed("palette length %d", n)
	}
	palette := make([]int32, n)
	for i := range palette {
		id, err := p.varInt("palette entry")
		if err != nil {
			return nil, err
		}
		if id < 0 {
			return nil, malformed("palette entry %d is %d", i, id)
		}
		palette[i] = id
	}
	return palette, nil
}

// readWords consumes the declared number of 64-bit data words.
func readWords(p *payload) ([]byte, error) {
	n, err := p.varInt("data length")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, malformed("data length %d", n)
	}
	return p.bytes("data words", int(n)*8)
}

// unpack reads one entry per cell in y, z, x order and resolves it.
func unpack(r *BitReader, c *Container, packing Packing) ([]int32, error) {
	cells := c.Size * c.Size * c.Size
	values := make([]int32, cells)
	perWord := 64 / c.Bits
	pad := 64 - perWord*c.Bits

	for i := range values {
		if packing == PackingAligned && i > 0 && i%perWord == 0 && pad > 0 {
			if err := r.Skip(pad); err != nil {
				return nil, fmt.Errorf("cell %d: %w", i, err)
			}
		}
		entry, err := r.Read(c.Bits)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		if c.Mode == ModeDirect {
			if entry > math.MaxInt32 {
				return nil, malformed("cell %d: global id %d exceeds int32", i, entry)
			}
			values[i] = int32(entry)
			continue
		}
		if entry >= uint64(len(c.Palette)) {
			return nil, malformed("cell %d: palette index %d, palette length %d", i, entry, len(c.Palette))
		}
		values[i] = c.Palette[entry]
	}
	return values, nil
}
