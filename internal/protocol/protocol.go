package protocol

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	mcnet "github.com/OCharnyshevich/minecraft-chunks/internal/net"
	"github.com/OCharnyshevich/minecraft-chunks/pkg/chunk"
)

// ErrUnsupported is returned for protocol numbers without a known chunk layout.
var ErrUnsupported = errors.New("protocol: unsupported version")

// Dimension selects the column height and whether sky light is sent.
type Dimension uint8

const (
	Overworld Dimension = iota
	Nether
	End
)

func (d Dimension) String() string {
	switch d {
	case Overworld:
		return "overworld"
	case Nether:
		return "the_nether"
	case End:
		return "the_end"
	default:
		return fmt.Sprintf("dimension(%d)", uint8(d))
	}
}

// ParseDimension accepts the names printed by Dimension.String, with or
// without the minecraft: namespace.
func ParseDimension(name string) (Dimension, error) {
	switch strings.TrimPrefix(strings.ToLower(name), "minecraft:") {
	case "overworld", "":
		return Overworld, nil
	case "the_nether", "nether":
		return Nether, nil
	case "the_end", "end":
		return End, nil
	default:
		return 0, fmt.Errorf("unknown dimension %q", name)
	}
}

// Version describes the chunk wire layout shared by a range of protocol numbers.
type Version struct {
	// Name is the first release of the range.
	Name     string
	Min, Max int32
	Position mcnet.PositionLayout
	// SectionUpdates is set when multi block changes are sent per section
	// with packed varlong records.
	SectionUpdates bool
	// TrustEdges is set when section updates carry a trust-edges flag.
	TrustEdges bool

	format chunk.Format
	// tall is the overworld column from 1.18 on: 24 sections starting at -64.
	tall bool
}

var versions []Version

func register(v Version) {
	versions = append(versions, v)
	slices.SortFunc(versions, func(a, b Version) int { return int(a.Min - b.Min) })
}

func init() {
	legacyStates := chunk.ContainerFormat{
		Size:              chunk.SectionSize,
		MinBits:           4,
		IndirectThreshold: 9,
		Packing:           chunk.PackingSpanning,
	}

	v19 := legacyStates
	v19.DirectBits = 13
	v19.DirectPaletteLength = true
	register(Version{
		Name:     "1.9",
		Min:      107,
		Max:      340,
		Position: mcnet.PositionXYZ,
		format: chunk.Format{
			Variant:           chunk.VariantLegacyLighting,
			Height:            16,
			States:            v19,
			BiomeTrailerEntry: 1,
		},
	})

	v113 := legacyStates
	v113.DirectBits = 14
	register(Version{
		Name:     "1.13",
		Min:      393,
		Max:      404,
		Position: mcnet.PositionXYZ,
		format: chunk.Format{
			Variant:           chunk.VariantLegacyLighting,
			Height:            16,
			States:            v113,
			BiomeTrailerEntry: 4,
		},
	})

	paletted := chunk.Format{
		Variant: chunk.VariantPaletteBiomes,
		Height:  16,
		States: chunk.ContainerFormat{
			Size:              chunk.SectionSize,
			MinBits:           4,
			IndirectThreshold: 9,
			DirectBits:        15,
			Packing:           chunk.PackingAligned,
			SingleValue:       true,
		},
		Biomes: chunk.ContainerFormat{
			Size:              4,
			MinBits:           1,
			IndirectThreshold: 4,
			DirectBits:        6,
			Packing:           chunk.PackingAligned,
			SingleValue:       true,
		},
	}
	register(Version{
		Name:           "1.18",
		Min:            757,
		Max:            762,
		Position:       mcnet.PositionXZY,
		SectionUpdates: true,
		TrustEdges:     true,
		format:         paletted,
		tall:           true,
	})
	register(Version{
		Name:           "1.20",
		Min:            763,
		Max:            769,
		Position:       mcnet.PositionXZY,
		SectionUpdates: true,
		format:         paletted,
		tall:           true,
	})
}

// Lookup returns the version range containing protocol.
func Lookup(protocol int32) (Version, error) {
	for _, v := range versions {
		if protocol >= v.Min && protocol <= v.Max {
			return v, nil
		}
	}
	return Version{}, fmt.Errorf("%w: %d", ErrUnsupported, protocol)
}

// Versions returns the supported ranges in ascending order.
func Versions() []Version {
	return slices.Clone(versions)
}

// Format returns the chunk decode context for protocol in dimension d.
func Format(protocol int32, d Dimension) (chunk.Format, error) {
	v, err := Lookup(protocol)
	if err != nil {
		return chunk.Format{}, err
	}
	return v.Format(d), nil
}

// Format returns the chunk decode context for dimension d.
func (v Version) Format(d Dimension) chunk.Format {
	f := v.format
	switch f.Variant {
	case chunk.VariantLegacyLighting:
		f.HasSkyLight = d == Overworld
	case chunk.VariantPaletteBiomes:
		if v.tall && d == Overworld {
			f.Height, f.MinY = 24, -64
		}
	}
	return f
}

// FullColumns reports whether every chunk packet carries all sections, with
// no bitmask and no partial updates.
func (v Version) FullColumns() bool {
	return v.format.Variant == chunk.VariantPaletteBiomes
}

// SectionMask returns the mask of sections present in a chunk packet.
func (v Version) SectionMask(bitmask int32, f chunk.Format) uint32 {
	if v.FullColumns() {
		return uint32(1)<<uint(f.Height) - 1
	}
	return uint32(bitmask)
}

func (v Version) String() string {
	return fmt.Sprintf("%s (%d-%d)", v.Name, v.Min, v.Max)
}
