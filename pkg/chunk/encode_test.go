package chunk

import (
	"bytes"
	"testing"

	mcnet "github.com/OCharnyshevich/minecraft-chunks/internal/net"
)

// Reference encoder used to build payloads for the decoder tests.

func legacyFormat(skyLight bool) Format {
	return Format{
		Variant:     VariantLegacyLighting,
		HasSkyLight: skyLight,
		Height:      16,
		States: ContainerFormat{
			Size:              16,
			MinBits:           4,
			IndirectThreshold: 9,
			DirectBits:        13,
			Packing:           PackingSpanning,
		},
		BiomeTrailerEntry: 1,
	}
}

func biomeFormat() Format {
	return Format{
		Variant: VariantPaletteBiomes,
		Height:  16,
		States: ContainerFormat{
			Size:              16,
			MinBits:           4,
			IndirectThreshold: 9,
			DirectBits:        15,
			Packing:           PackingAligned,
			SingleValue:       true,
		},
		Biomes: ContainerFormat{
			Size:              4,
			MinBits:           1,
			IndirectThreshold: 4,
			DirectBits:        6,
			Packing:           PackingAligned,
			SingleValue:       true,
		},
	}
}

// packWords lays entries out at the given width.
func packWords(entries []uint64, bits int, packing Packing) []uint64 {
	if packing == PackingAligned {
		perWord := 64 / bits
		words := make([]uint64, (len(entries)+perWord-1)/perWord)
		for i, e := range entries {
			words[i/perWord] |= e << uint((i%perWord)*bits)
		}
		return words
	}

	words := make([]uint64, (len(entries)*bits+63)/64)
	for i, e := range entries {
		k := i * bits
		w, off := k/64, k%64
		words[w] |= e << uint(off)
		if off+bits > 64 {
			words[w+1] |= e >> uint(64-off)
		}
	}
	return words
}

func writeVarInt(t testing.TB, buf *bytes.Buffer, v int32) {
	t.Helper()
	if _, err := mcnet.WriteVarInt(buf, v); err != nil {
		t.Fatalf("WriteVarInt: %v", err)
	}
}

func writeWords(t testing.TB, buf *bytes.Buffer, words []uint64) {
	t.Helper()
	writeVarInt(t, buf, int32(len(words)))
	if err := mcnet.WriteU64s(buf, words); err != nil {
		t.Fatalf("WriteU64s: %v", err)
	}
}

// encodeContainer writes values with the declared width. A nil palette
// selects direct mode; a declared width of 0 writes a single-value container
// holding palette[0].
func encodeContainer(t testing.TB, buf *bytes.Buffer, f ContainerFormat, declared int, palette, values []int32) {
	t.Helper()
	buf.WriteByte(byte(declared))

	if declared == 0 {
		writeVarInt(t, buf, palette[0])
		writeVarInt(t, buf, 0)
		return
	}

	entries := make([]uint64, len(values))
	width := declared
	if palette == nil {
		if f.DirectBits > 0 {
			width = f.DirectBits
		}
		if f.DirectPaletteLength {
			writeVarInt(t, buf, 0)
		}
		for i, v := range values {
			entries[i] = uint64(v)
		}
	} else {
		width = max(declared, f.MinBits)
		writeVarInt(t, buf, int32(len(palette)))
		index := make(map[int32]uint64, len(palette))
		for i, id := range palette {
			writeVarInt(t, buf, id)
			index[id] = uint64(i)
		}
		for i, v := range values {
			e, ok := index[v]
			if !ok {
				t.Fatalf("value %d not in palette %v", v, palette)
			}
			entries[i] = e
		}
	}
	writeWords(t, buf, packWords(entries, width, f.Packing))
}

func encodeNibbles(buf *bytes.Buffer, vals []uint8) {
	for i := 0; i < len(vals); i += 2 {
		buf.WriteByte(vals[i]&0xF | vals[i+1]<<4)
	}
}

// patterned fills size³ cells cycling through palette.
func patterned(size int, palette []int32) []int32 {
	values := make([]int32, size*size*size)
	for i := range values {
		values[i] = palette[(i*7+i/size)%len(palette)]
	}
	return values
}

func uniform(size int, id int32) []int32 {
	values := make([]int32, size*size*size)
	for i := range values {
		values[i] = id
	}
	return values
}

func nibblePattern(seed int) []uint8 {
	vals := make([]uint8, 4096)
	for i := range vals {
		vals[i] = uint8((i + seed) % 16)
	}
	return vals
}

// encodeLegacySection writes a legacy section with the given states and light.
func encodeLegacySection(t testing.TB, buf *bytes.Buffer, f Format, declared int, palette, values []int32, block, sky []uint8) {
	t.Helper()
	encodeContainer(t, buf, f.States, declared, palette, values)
	encodeNibbles(buf, block)
	if sky != nil {
		encodeNibbles(buf, sky)
	}
}

func encodeBiomeSection(t testing.TB, buf *bytes.Buffer, f Format, count int16, palette, values, biomePalette, biomes []int32) {
	t.Helper()
	if err := mcnet.WriteI16(buf, count); err != nil {
		t.Fatalf("WriteI16: %v", err)
	}
	encodeContainer(t, buf, f.States, 4, palette, values)
	encodeContainer(t, buf, f.Biomes, 2, biomePalette, biomes)
}
