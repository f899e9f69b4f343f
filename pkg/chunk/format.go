package chunk

import "fmt"

// Variant selects which data accompanies the block-state container of a section.
type Variant uint8

const (
	// VariantLegacyLighting sections carry nibble block light and, in dimensions
	// with a sky, nibble sky light after the block states.
	VariantLegacyLighting Variant = iota + 1
	// VariantPaletteBiomes sections start with a non-air count and carry a
	// paletted biome container after the block states.
	VariantPaletteBiomes
)

func (v Variant) String() string {
	switch v {
	case VariantLegacyLighting:
		return "legacy-lighting"
	case VariantPaletteBiomes:
		return "palette-biomes"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// Packing selects how entries are laid out across 64-bit storage words.
type Packing uint8

const (
	// PackingAligned never splits an entry across words; the high 64%bits
	// bits of every word are padding.
	PackingAligned Packing = iota
	// PackingSpanning packs entries back to back across word boundaries.
	PackingSpanning
)

const (
	// SectionSize is the edge length of a section in blocks.
	SectionSize = 16
	// MaxEntryBits is the widest bits-per-entry a container may declare.
	MaxEntryBits = 32

	nibbleArrayBytes = SectionSize * SectionSize * SectionSize / 2
	columnArea       = SectionSize * SectionSize
)

// ContainerFormat parameterises one paletted container.
type ContainerFormat struct {
	// Size is the edge length of the decoded cube.
	Size int
	// MinBits is the smallest width used in indirect mode; narrower declared
	// widths are raised to it.
	MinBits int
	// IndirectThreshold is the first declared width decoded in direct mode.
	IndirectThreshold int
	// DirectBits is the width of global ids in direct mode. Zero keeps the
	// declared width.
	DirectBits int
	Packing    Packing
	// SingleValue accepts a zero width as a single-id container.
	SingleValue bool
	// DirectPaletteLength expects an empty palette length before direct data.
	DirectPaletteLength bool
}

func (f ContainerFormat) cells() int { return f.Size * f.Size * f.Size }

func (f ContainerFormat) validate() error {
	switch {
	case f.Size <= 0:
		return fmt.Errorf("size %d", f.Size)
	case f.MinBits < 1 || f.MinBits > MaxEntryBits:
		return fmt.Errorf("min bits %d", f.MinBits)
	case f.IndirectThreshold <= f.MinBits:
		return fmt.Errorf("indirect threshold %d not above min bits %d", f.IndirectThreshold, f.MinBits)
	case f.DirectBits < 0 || f.DirectBits > MaxEntryBits:
		return fmt.Errorf("direct bits %d", f.DirectBits)
	case f.Packing != PackingAligned && f.Packing != PackingSpanning:
		return fmt.Errorf("packing %d", f.Packing)
	}
	return nil
}

// Format is the decode context for one chunk payload. The caller derives it
// from its own version negotiation; the decoder never looks at version numbers.
type Format struct {
	Variant Variant
	// HasSkyLight reports whether legacy sections carry a sky light array.
	HasSkyLight bool
	// Height is the number of section slots in a column.
	Height int
	// MinY is the world Y of the bottom of section 0.
	MinY   int
	States ContainerFormat
	// Biomes is only used by VariantPaletteBiomes.
	Biomes ContainerFormat
	// BiomeTrailerEntry is the width in bytes of one column biome entry in the
	// ground-up trailer. Zero means no trailer.
	BiomeTrailerEntry int
}

// Validate reports whether f is usable for decoding.
func (f Format) Validate() error {
	if f.Height < 1 || f.Height > 32 {
		return fmt.Errorf("chunk format: height %d out of range [1,32]", f.Height)
	}
	if f.MinY%SectionSize != 0 {
		return fmt.Errorf("chunk format: min y %d is not section aligned", f.MinY)
	}
	if err := f.States.validate(); err != nil {
		return fmt.Errorf("chunk format: states: %s", err)
	}
	if f.States.Size != SectionSize {
		return fmt.Errorf("chunk format: states size %d, want %d", f.States.Size, SectionSize)
	}
	switch f.Variant {
	case VariantLegacyLighting:
	case VariantPaletteBiomes:
		if err := f.Biomes.validate(); err != nil {
			return fmt.Errorf("chunk format: biomes: %s", err)
		}
		if SectionSize%f.Biomes.Size != 0 {
			return fmt.Errorf("chunk format: biome size %d does not divide %d", f.Biomes.Size, SectionSize)
		}
	default:
		return fmt.Errorf("chunk format: unknown %s", f.Variant)
	}
	if f.BiomeTrailerEntry < 0 || f.BiomeTrailerEntry > 4 {
		return fmt.Errorf("chunk format: biome trailer entry %d", f.BiomeTrailerEntry)
	}
	return nil
}
