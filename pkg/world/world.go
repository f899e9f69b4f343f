package world

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/OCharnyshevich/minecraft-chunks/pkg/chunk"
)

var (
	// ErrNotLoaded is returned for positions in chunks that are not in the index.
	ErrNotLoaded = errors.New("world: chunk not loaded")
	// ErrOutOfRange is returned for Y coordinates outside the chunk column.
	ErrOutOfRange = errors.New("world: y out of range")
)

// ChunkPos identifies a chunk column.
type ChunkPos struct {
	X, Z int32
}

// ChunkPosOf returns the column containing block (x, z). ok is false when the
// column lies outside the int32 chunk coordinate range.
func ChunkPosOf(x, z int) (pos ChunkPos, ok bool) {
	cx, cz := x>>4, z>>4
	if cx < math.MinInt32 || cx > math.MaxInt32 || cz < math.MinInt32 || cz > math.MaxInt32 {
		return ChunkPos{}, false
	}
	return ChunkPos{X: int32(cx), Z: int32(cz)}, true
}

func notLoaded(x, y, z int, pos ChunkPos) error {
	return fmt.Errorf("block (%d,%d,%d) in chunk (%d,%d): %w", x, y, z, pos.X, pos.Z, ErrNotLoaded)
}

// Index maps chunk positions to the latest decoded chunk. Stored chunks are
// never modified; every update swaps in a new *chunk.Chunk.
type Index struct {
	mu     sync.RWMutex
	chunks *orderedmap.OrderedMap[ChunkPos, *chunk.Chunk]
	limit  int
}

// NewIndex creates an empty index. With limit > 0 the index holds at most
// limit chunks and evicts the least recently stored one first.
func NewIndex(limit int) *Index {
	return &Index{
		chunks: orderedmap.NewOrderedMap[ChunkPos, *chunk.Chunk](),
		limit:  limit,
	}
}

// Put stores c at its position, replacing any previous chunk there. It
// returns the positions evicted to stay within the limit.
func (i *Index) Put(c *chunk.Chunk) []ChunkPos {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.put(c)
}

// Update replaces the chunk at (cx, cz) with fn(prev), where prev is the
// stored chunk or nil. fn runs under the index lock and must not call back
// into the index. A nil result leaves the index unchanged.
func (i *Index) Update(cx, cz int32, fn func(prev *chunk.Chunk) *chunk.Chunk) []ChunkPos {
	i.mu.Lock()
	defer i.mu.Unlock()

	prev, _ := i.chunks.Get(ChunkPos{X: cx, Z: cz})
	c := fn(prev)
	if c == nil {
		return nil
	}
	return i.put(c)
}

func (i *Index) put(c *chunk.Chunk) []ChunkPos {
	pos := ChunkPos{X: c.X, Z: c.Z}

	// Re-inserting moves the entry to the back of the eviction order.
	i.chunks.Delete(pos)
	i.chunks.Set(pos, c)

	var evicted []ChunkPos
	for i.limit > 0 && i.chunks.Len() > i.limit {
		oldest := i.chunks.Front()
		i.chunks.Delete(oldest.Key)
		evicted = append(evicted, oldest.Key)
	}
	return evicted
}

// Chunk returns the chunk stored at (cx, cz).
func (i *Index) Chunk(cx, cz int32) (*chunk.Chunk, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.chunks.Get(ChunkPos{X: cx, Z: cz})
}

// Unload removes the chunk at (cx, cz) and reports whether it was present.
func (i *Index) Unload(cx, cz int32) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.chunks.Delete(ChunkPos{X: cx, Z: cz})
}

// Len returns the number of stored chunks.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.chunks.Len()
}

// locate resolves a world position to its chunk and chunk-local coordinates.
func (i *Index) locate(x, y, z int) (*chunk.Chunk, int, int, int, error) {
	pos, ok := ChunkPosOf(x, z)
	if !ok {
		return nil, 0, 0, 0, fmt.Errorf("block (%d,%d,%d): %w", x, y, z, ErrNotLoaded)
	}
	c, ok := i.Chunk(pos.X, pos.Z)
	if !ok {
		return nil, 0, 0, 0, notLoaded(x, y, z, pos)
	}
	ly, err := localY(c, x, y, z)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	return c, x & 0xF, ly, z & 0xF, nil
}

func localY(c *chunk.Chunk, x, y, z int) (int, error) {
	ly := y - c.MinY
	if ly < 0 || ly >= c.Height() {
		return 0, fmt.Errorf("block (%d,%d,%d): %w [%d,%d)", x, y, z, ErrOutOfRange, c.MinY, c.MinY+c.Height())
	}
	return ly, nil
}

// Get returns the state id at world position (x, y, z). Blocks of sections
// absent from the chunk read as chunk.Air.
func (i *Index) Get(x, y, z int) (int32, error) {
	c, lx, ly, lz, err := i.locate(x, y, z)
	if err != nil {
		return 0, err
	}
	return c.Block(lx, ly, lz), nil
}

// BlockAt returns the state id of the block containing pos.
func (i *Index) BlockAt(pos mgl64.Vec3) (int32, error) {
	return i.Get(int(math.Floor(pos[0])), int(math.Floor(pos[1])), int(math.Floor(pos[2])))
}

// Light returns the block and sky light at (x, y, z). ok is false when the
// section carried no light; sky is 0 in dimensions without sky light.
func (i *Index) Light(x, y, z int) (block, sky uint8, ok bool, err error) {
	c, lx, ly, lz, err := i.locate(x, y, z)
	if err != nil {
		return 0, 0, false, err
	}
	block, ok = c.BlockLight(lx, ly, lz)
	sky, _ = c.SkyLight(lx, ly, lz)
	return block, sky, ok, nil
}

// Biome returns the biome id at (x, y, z), or false if none was sent.
func (i *Index) Biome(x, y, z int) (int32, bool, error) {
	c, lx, ly, lz, err := i.locate(x, y, z)
	if err != nil {
		return 0, false, err
	}
	id, ok := c.Biome(lx, ly, lz)
	return id, ok, nil
}

// SetBlock applies a single block change. The affected section is copied and
// the chunk is replaced; chunks handed out earlier keep their old contents.
func (i *Index) SetBlock(x, y, z int, id int32) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	pos, ok := ChunkPosOf(x, z)
	if !ok {
		return fmt.Errorf("block (%d,%d,%d): %w", x, y, z, ErrNotLoaded)
	}
	c, ok := i.chunks.Get(pos)
	if !ok {
		return notLoaded(x, y, z, pos)
	}
	cy, err := localY(c, x, y, z)
	if err != nil {
		return err
	}

	idx := cy / chunk.SectionSize
	lx, ly, lz := x&0xF, cy%chunk.SectionSize, z&0xF

	var section chunk.Section
	if old := c.Sections[idx]; old != nil {
		section = *old
		section.States = old.States.With(lx, ly, lz, id)
	} else {
		if id == chunk.Air {
			return nil
		}
		section = chunk.Section{
			Index:  idx,
			States: chunk.NewUniformContainer(chunk.SectionSize, chunk.Air).With(lx, ly, lz, id),
		}
	}

	// Set keeps the entry's position in the eviction order.
	i.chunks.Set(pos, c.WithSection(&section))
	return nil
}
