package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// Air is the state id of an absent section's blocks.
const Air int32 = 0

// Chunk is a decoded column of sections. A Chunk is never modified after it is
// returned; updates produce new values that may share sections with old ones.
type Chunk struct {
	X, Z int32
	// MinY is the world Y of the bottom of section 0. Local accessors take y
	// relative to it.
	MinY int
	// Mask has bit i set when Sections[i] is present.
	Mask     uint32
	Sections []*Section
	// Light is indexed like Sections and only populated for legacy sections.
	Light []*Light
	// Biomes is the raw ground-up biome trailer, nil when none was sent.
	Biomes []byte

	biomeEntry int
}

// Decode assembles a chunk from payload. For each set bit of mask, low to
// high, one section is decoded into that slot. When groundUp is set and the
// format has a biome trailer, the trailer is read after the sections.
//
// Bytes left over after assembly are reported as a *TrailingDataError together
// with the complete chunk; any other error means no chunk.
func Decode(data []byte, x, z int32, mask uint32, groundUp bool, f Format) (*Chunk, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if mask>>uint(f.Height) != 0 {
		return nil, fmt.Errorf("chunk (%d,%d): %w", x, z, malformed("section mask %#x exceeds height %d", mask, f.Height))
	}

	c := &Chunk{
		X:        x,
		Z:        z,
		MinY:     f.MinY,
		Mask:     mask,
		Sections: make([]*Section, f.Height),
		Light:    make([]*Light, f.Height),
	}
	p := newPayload(data)

	for i := 0; i < f.Height; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		s, l, err := decodeSection(p, f, i)
		if err != nil {
			return nil, fmt.Errorf("chunk (%d,%d): %w", x, z, err)
		}
		c.Sections[i] = s
		c.Light[i] = l
	}

	if groundUp && f.BiomeTrailerEntry > 0 {
		raw, err := p.bytes("biome trailer", columnArea*f.BiomeTrailerEntry)
		if err != nil {
			return nil, fmt.Errorf("chunk (%d,%d): %w", x, z, err)
		}
		c.Biomes = append([]byte(nil), raw...)
		c.biomeEntry = f.BiomeTrailerEntry
	}

	if n := p.remaining(); n > 0 {
		return c, &TrailingDataError{X: x, Z: z, Bytes: n}
	}
	return c, nil
}

// IsTrailing reports whether err only signals trailing bytes after a
// successful decode.
func IsTrailing(err error) bool {
	var te *TrailingDataError
	return errors.As(err, &te)
}

// Count returns the number of present sections.
func (c *Chunk) Count() int { return bits.OnesCount32(c.Mask) }

// Height returns the column height in blocks.
func (c *Chunk) Height() int { return len(c.Sections) * SectionSize }

// BlockCount sums the non-air counts sent with the sections.
func (c *Chunk) BlockCount() int {
	n := 0
	for _, s := range c.Sections {
		if s != nil {
			n += int(s.BlockCount)
		}
	}
	return n
}

// Block returns the state id at chunk-local coordinates. Y must be within
// [0, Height()); blocks of absent sections are Air.
func (c *Chunk) Block(x, y, z int) int32 {
	s := c.Sections[y/SectionSize]
	if s == nil {
		return Air
	}
	return s.Block(x, y%SectionSize, z)
}

// BlockLight returns the block light at chunk-local coordinates, or false if
// no light was sent for that section.
func (c *Chunk) BlockLight(x, y, z int) (uint8, bool) {
	l := c.Light[y/SectionSize]
	if l == nil {
		return 0, false
	}
	return l.Block[nibbleIndex(x, y%SectionSize, z)], true
}

// SkyLight returns the sky light at chunk-local coordinates, or false if no
// sky light was sent for that section.
func (c *Chunk) SkyLight(x, y, z int) (uint8, bool) {
	l := c.Light[y/SectionSize]
	if l == nil || l.Sky == nil {
		return 0, false
	}
	return l.Sky[nibbleIndex(x, y%SectionSize, z)], true
}

// Biome returns the biome id at chunk-local coordinates, from the section
// biome grid when present and from the column trailer otherwise.
func (c *Chunk) Biome(x, y, z int) (int32, bool) {
	if s := c.Sections[y/SectionSize]; s != nil {
		if id, ok := s.Biome(x, y%SectionSize, z); ok {
			return id, true
		}
	}
	if c.Biomes == nil {
		return 0, false
	}
	i := (z*SectionSize + x) * c.biomeEntry
	switch c.biomeEntry {
	case 1:
		return int32(c.Biomes[i]), true
	case 2:
		return int32(binary.BigEndian.Uint16(c.Biomes[i:])), true
	case 4:
		return int32(binary.BigEndian.Uint32(c.Biomes[i:])), true
	default:
		return 0, false
	}
}

// WithPosition returns a chunk at (x, z) sharing c's sections.
func (c *Chunk) WithPosition(x, z int32) *Chunk {
	cp := *c
	cp.X, cp.Z = x, z
	return &cp
}

// WithSection returns a copy of c with slot s.Index replaced by s.
func (c *Chunk) WithSection(s *Section) *Chunk {
	cp := *c
	cp.Sections = append([]*Section(nil), c.Sections...)
	cp.Light = append([]*Light(nil), c.Light...)
	cp.Sections[s.Index] = s
	cp.Mask |= 1 << uint(s.Index)
	return &cp
}

// Overlay returns a new chunk with the sections present in update laid over
// base. It is used for updates that were not sent ground-up: those carry only
// the changed sections and no biome trailer.
func Overlay(base, update *Chunk) *Chunk {
	if base == nil || len(base.Sections) != len(update.Sections) {
		return update
	}
	out := &Chunk{
		X:          update.X,
		Z:          update.Z,
		MinY:       update.MinY,
		Mask:       base.Mask | update.Mask,
		Sections:   append([]*Section(nil), base.Sections...),
		Light:      append([]*Light(nil), base.Light...),
		Biomes:     base.Biomes,
		biomeEntry: base.biomeEntry,
	}
	for i, s := range update.Sections {
		if s != nil {
			out.Sections[i] = s
			out.Light[i] = update.Light[i]
		}
	}
	if update.Biomes != nil {
		out.Biomes, out.biomeEntry = update.Biomes, update.biomeEntry
	}
	return out
}

func nibbleIndex(x, y, z int) int {
	return (y*SectionSize+z)*SectionSize + x
}
