package chunk

import "fmt"

// Section is one decoded 16×16×16 slice of a chunk.
type Section struct {
	// Index is the vertical slot; the section covers Y [16*Index, 16*Index+16)
	// above the chunk's MinY.
	Index int
	// BlockCount is the non-air count sent with palette-biome sections.
	BlockCount int16
	States     *Container
	// Biomes is the per-section biome grid of palette-biome sections.
	Biomes *Container
}

// Block returns the state id at section-local coordinates.
func (s *Section) Block(x, y, z int) int32 {
	return s.States.At(x, y, z)
}

// Biome returns the biome id covering section-local block coordinates, or
// false if the section carries no biome grid.
func (s *Section) Biome(x, y, z int) (int32, bool) {
	if s.Biomes == nil {
		return 0, false
	}
	scale := SectionSize / s.Biomes.Size
	return s.Biomes.At(x/scale, y/scale, z/scale), true
}

// Light holds the nibble light levels of one legacy section, indexed like
// Container.Values.
type Light struct {
	Block []uint8
	// Sky is nil in dimensions without sky light.
	Sky []uint8
}

// decodeSection reads one section at slot index. Light is only returned for
// VariantLegacyLighting.
func decodeSection(p *payload, f Format, index int) (*Section, *Light, error) {
	switch f.Variant {
	case VariantLegacyLighting:
		return decodeLegacySection(p, f, index)
	case VariantPaletteBiomes:
		s, err := decodeBiomeSection(p, f, index)
		return s, nil, err
	default:
		return nil, nil, fmt.Errorf("section %d: unknown %s", index, f.Variant)
	}
}

func decodeLegacySection(p *payload, f Format, index int) (*Section, *Light, error) {
	states, err := readContainer(p, f.States)
	if err != nil {
		return nil, nil, fmt.Errorf("section %d: block states: %w", index, err)
	}

	light := &Light{}
	if light.Block, err = readNibbles(p, "block light"); err != nil {
		return nil, nil, fmt.Errorf("section %d: %w", index, err)
	}
	if f.HasSkyLight {
		if light.Sky, err = readNibbles(p, "sky light"); err != nil {
			return nil, nil, fmt.Errorf("section %d: %w", index, err)
		}
	}
	return &Section{Index: index, States: states}, light, nil
}

func decodeBiomeSection(p *payload, f Format, index int) (*Section, error) {
	count, err := p.i16("block count")
	if err != nil {
		return nil, fmt.Errorf("section %d: %w", index, err)
	}
	if count < 0 || int(count) > f.States.cells() {
		return nil, fmt.Errorf("section %d: %w", index, malformed("block count %d", count))
	}

	states, err := readContainer(p, f.States)
	if err != nil {
		return nil, fmt.Errorf("section %d: block states: %w", index, err)
	}
	biomes, err := readContainer(p, f.Biomes)
	if err != nil {
		return nil, fmt.Errorf("section %d: biomes: %w", index, err)
	}
	return &Section{Index: index, BlockCount: count, States: states, Biomes: biomes}, nil
}

// readNibbles decodes a 2048-byte array of 4-bit values.
func readNibbles(p *payload, what string) ([]uint8, error) {
	raw, err := p.bytes(what, nibbleArrayBytes)
	if err != nil {
		return nil, err
	}
	r := NewBitReader(raw, 1)
	out := make([]uint8, nibbleArrayBytes*2)
	for i := range out {
		v, err := r.Read(4)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", what, err)
		}
		out[i] = uint8(v)
	}
	return out, nil
}
