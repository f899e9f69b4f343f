package protocol

import (
	"bytes"
	"fmt"

	mcnet "github.com/OCharnyshevich/minecraft-chunks/internal/net"
)

// MapChunk is a chunk data packet. The tagged layout is the 1.9-1.13 body;
// later versions are captured field by field.
type MapChunk struct {
	X        int32  `mc:"i32"`
	Z        int32  `mc:"i32"`
	GroundUp bool   `mc:"bool"`
	BitMask  int32  `mc:"varint"`
	Data     []byte `mc:"bytearray"`
	// BlockEntities is the undecoded NBT list following the chunk data.
	BlockEntities []byte `mc:"rest"`
}

func (MapChunk) PacketID() int32 { return 0x20 }

// BlockChange sets a single block.
type BlockChange struct {
	Location int64 `mc:"position"`
	State    int32 `mc:"varint"`
}

func (BlockChange) PacketID() int32 { return 0x0B }

// BlockRecord is one block change in world coordinates.
type BlockRecord struct {
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Z     int   `json:"z"`
	State int32 `json:"state"`
}

// MultiBlockChange is a batch of block changes within one chunk column.
type MultiBlockChange struct {
	ChunkX, ChunkZ int32
	Records        []BlockRecord
}

// DecodeMapChunk parses a chunk data packet body.
func (v Version) DecodeMapChunk(body []byte) (MapChunk, error) {
	if v.FullColumns() {
		return MapChunk{}, fmt.Errorf("%w: map chunk body for %s", ErrUnsupported, v.Name)
	}
	var p MapChunk
	if err := mcnet.Unmarshal(body, &p); err != nil {
		return MapChunk{}, fmt.Errorf("map chunk: %w", err)
	}
	return p, nil
}

// BlockRecord resolves a block change to world coordinates.
func (v Version) BlockRecord(p BlockChange) BlockRecord {
	x, y, z := mcnet.DecodePosition(v.Position, p.Location)
	return BlockRecord{X: x, Y: y, Z: z, State: p.State}
}

// DecodeMultiBlockChange parses a multi block change body in the layout of v.
func (v Version) DecodeMultiBlockChange(body []byte) (MultiBlockChange, error) {
	r := bytes.NewReader(body)
	var (
		m   MultiBlockChange
		err error
	)
	if v.SectionUpdates {
		m, err = v.readSectionUpdate(r)
	} else {
		m, err = readLegacyMultiBlock(r)
	}
	if err != nil {
		return MultiBlockChange{}, fmt.Errorf("multi block change: %w", err)
	}
	if r.Len() > 0 {
		return MultiBlockChange{}, fmt.Errorf("multi block change: %d trailing bytes", r.Len())
	}
	return m, nil
}

func readCount(r *bytes.Reader) (int, error) {
	n, _, err := mcnet.ReadVarInt(r)
	if err != nil {
		return 0, fmt.Errorf("read record count: %w", err)
	}
	// Every record takes at least one byte.
	if n < 0 || int(n) > r.Len() {
		return 0, fmt.Errorf("record count %d", n)
	}
	return int(n), nil
}

// readLegacyMultiBlock reads chunk x, chunk z and records of
// (x<<4|z, y, state).
func readLegacyMultiBlock(r *bytes.Reader) (MultiBlockChange, error) {
	var m MultiBlockChange
	var err error
	if m.ChunkX, err = mcnet.ReadI32(r); err != nil {
		return m, fmt.Errorf("read chunk x: %w", err)
	}
	if m.ChunkZ, err = mcnet.ReadI32(r); err != nil {
		return m, fmt.Errorf("read chunk z: %w", err)
	}
	n, err := readCount(r)
	if err != nil {
		return m, err
	}
	m.Records = make([]BlockRecord, n)
	for i := range m.Records {
		xz, err := mcnet.ReadU8(r)
		if err != nil {
			return m, fmt.Errorf("record %d: %w", i, err)
		}
		y, err := mcnet.ReadU8(r)
		if err != nil {
			return m, fmt.Errorf("record %d: %w", i, err)
		}
		state, _, err := mcnet.ReadVarInt(r)
		if err != nil {
			return m, fmt.Errorf("record %d: %w", i, err)
		}
		m.Records[i] = BlockRecord{
			X:     int(m.ChunkX)<<4 | int(xz>>4),
			Y:     int(y),
			Z:     int(m.ChunkZ)<<4 | int(xz&0xF),
			State: state,
		}
	}
	return m, nil
}

// readSectionUpdate reads a packed section position, the optional trust-edges
// flag and varlong records of state<<12 | x<<8 | z<<4 | y.
func (v Version) readSectionUpdate(r *bytes.Reader) (MultiBlockChange, error) {
	var m MultiBlockChange
	pos, err := mcnet.ReadI64(r)
	if err != nil {
		return m, fmt.Errorf("read section position: %w", err)
	}
	sx, sy, sz := DecodeSectionPos(pos)
	m.ChunkX, m.ChunkZ = int32(sx), int32(sz)

	if v.TrustEdges {
		if _, err := mcnet.ReadBool(r); err != nil {
			return m, fmt.Errorf("read trust edges: %w", err)
		}
	}
	n, err := readCount(r)
	if err != nil {
		return m, err
	}
	m.Records = make([]BlockRecord, n)
	for i := range m.Records {
		packed, _, err := mcnet.ReadVarLong(r)
		if err != nil {
			return m, fmt.Errorf("record %d: %w", i, err)
		}
		m.Records[i] = BlockRecord{
			X:     sx<<4 | int(packed>>8&0xF),
			Y:     sy<<4 | int(packed&0xF),
			Z:     sz<<4 | int(packed>>4&0xF),
			State: int32(packed >> 12),
		}
	}
	return m, nil
}

// EncodeSectionPos packs section coordinates as x(22) | z(22) | y(20).
func EncodeSectionPos(x, y, z int) int64 {
	return (int64(x)&0x3FFFFF)<<42 | (int64(z)&0x3FFFFF)<<20 | int64(y)&0xFFFFF
}

// DecodeSectionPos is the inverse of EncodeSectionPos.
func DecodeSectionPos(pos int64) (x, y, z int) {
	return int(pos >> 42), int(pos << 44 >> 44), int(pos << 22 >> 42)
}
