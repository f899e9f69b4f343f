package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	mcnet "github.com/OCharnyshevich/minecraft-chunks/internal/net"
	"github.com/OCharnyshevich/minecraft-chunks/internal/protocol"
	"github.com/OCharnyshevich/minecraft-chunks/pkg/chunk"
	"github.com/OCharnyshevich/minecraft-chunks/pkg/world"
)

// legacySection is a uniform 1.9-1.13 section: 4 bits, palette [id], 256
// zero words, dark block light and, with sky, full sky light.
func legacySection(id byte, sky bool) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{4, 1, id, 0x80, 0x02})
	buf.Write(make([]byte, 256*8))
	buf.Write(make([]byte, 2048))
	if sky {
		buf.Write(bytes.Repeat([]byte{0xFF}, 2048))
	}
	return buf.Bytes()
}

func legacyPayload(sky, groundUp bool, ids ...byte) []byte {
	var buf bytes.Buffer
	for _, id := range ids {
		buf.Write(legacySection(id, sky))
	}
	if groundUp {
		buf.Write(bytes.Repeat([]byte{1}, 256))
	}
	return buf.Bytes()
}

// modernColumn is a 1.18 column of single-value sections with biome 1.
func modernColumn(sections int, id byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < sections; i++ {
		buf.Write([]byte{0x10, 0x00}) // 4096 non-air
		buf.Write([]byte{0, id, 0})  // states
		buf.Write([]byte{0, 1, 0})   // biomes
	}
	return buf.Bytes()
}

func newTestHandler(t *testing.T, proto int32, opts Options) (*Handler, *world.Index, *bytes.Buffer) {
	t.Helper()
	v, err := protocol.Lookup(proto)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	idx := world.NewIndex(0)
	return New(v, idx, log, opts), idx, &logs
}

func mustGet(t *testing.T, idx *world.Index, x, y, z int) int32 {
	t.Helper()
	id, err := idx.Get(x, y, z)
	if err != nil {
		t.Fatalf("Get(%d,%d,%d): %v", x, y, z, err)
	}
	return id
}

func TestHandleMapChunk(t *testing.T) {
	h, idx, _ := newTestHandler(t, 340, Options{Workers: 2, Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	p := protocol.MapChunk{X: 0, Z: 0, GroundUp: true, BitMask: 0x0001, Data: legacyPayload(true, true, 7)}
	if err := h.HandleMapChunk(ctx, p); err != nil {
		t.Fatalf("HandleMapChunk: %v", err)
	}
	if got := mustGet(t, idx, 3, 5, 9); got != 7 {
		t.Errorf("Get(3,5,9) = %d, want 7", got)
	}
	if got := mustGet(t, idx, 3, 20, 9); got != chunk.Air {
		t.Errorf("Get(3,20,9) = %d, want air", got)
	}
	if s := h.Stats(); s.Decoded != 1 || s.Failed != 0 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestHandleMapChunkFailureKeepsIndex(t *testing.T) {
	h, idx, _ := newTestHandler(t, 340, Options{Workers: 1})
	ctx := context.Background()

	good := protocol.MapChunk{GroundUp: true, BitMask: 0x0001, Data: legacyPayload(true, true, 7)}
	if err := h.HandleMapChunk(ctx, good); err != nil {
		t.Fatalf("HandleMapChunk: %v", err)
	}
	before, _ := idx.Chunk(0, 0)

	bad := good
	bad.Data = good.Data[:3000]
	if err := h.HandleMapChunk(ctx, bad); !errors.Is(err, chunk.ErrBitUnderflow) {
		t.Fatalf("error = %v, want ErrBitUnderflow", err)
	}
	if after, _ := idx.Chunk(0, 0); after != before {
		t.Error("failed update replaced the stored chunk")
	}
	if s := h.Stats(); s.Failed != 1 {
		t.Errorf("Failed = %d, want 1", s.Failed)
	}
}

func TestHandleMapChunkTrailingData(t *testing.T) {
	h, idx, logs := newTestHandler(t, 340, Options{Workers: 1, CacheEntries: 4})
	p := protocol.MapChunk{X: 2, Z: -1, GroundUp: true, BitMask: 0x0001, Data: append(legacyPayload(true, true, 7), 0, 0, 0)}

	for i := 0; i < 2; i++ {
		if err := h.HandleMapChunk(context.Background(), p); err != nil {
			t.Fatalf("HandleMapChunk #%d: %v", i, err)
		}
	}
	if got := mustGet(t, idx, 32, 0, -16); got != 7 {
		t.Errorf("Get = %d, want 7", got)
	}
	if s := h.Stats(); s.Trailing != 2 || s.CacheHits != 1 {
		t.Errorf("Stats = %+v, want 2 trailing, 1 cache hit", s)
	}
	if !strings.Contains(logs.String(), "trailing data after chunk") || !strings.Contains(logs.String(), "bytes=3") {
		t.Errorf("trailing data not logged:\n%s", logs.String())
	}
}

func TestHandleMapChunkCacheSharesSections(t *testing.T) {
	h, idx, _ := newTestHandler(t, 340, Options{CacheEntries: 1})
	data := legacyPayload(true, true, 7, 8)
	ctx := context.Background()

	for _, pos := range [][2]int32{{0, 0}, {5, -5}} {
		p := protocol.MapChunk{X: pos[0], Z: pos[1], GroundUp: true, BitMask: 0x0003, Data: data}
		if err := h.HandleMapChunk(ctx, p); err != nil {
			t.Fatalf("HandleMapChunk: %v", err)
		}
	}

	a, _ := idx.Chunk(0, 0)
	b, _ := idx.Chunk(5, -5)
	if a == nil || b == nil {
		t.Fatal("chunks not stored")
	}
	if a.Sections[1] != b.Sections[1] {
		t.Error("identical payloads did not share sections")
	}
	if b.X != 5 || b.Z != -5 {
		t.Errorf("cached chunk at (%d,%d), want (5,-5)", b.X, b.Z)
	}
	if s := h.Stats(); s.Decoded != 1 || s.CacheHits != 1 {
		t.Errorf("Stats = %+v, want 1 decode, 1 hit", s)
	}

	// A different mask is a different decode.
	p := protocol.MapChunk{X: 1, GroundUp: true, BitMask: 0x0001, Data: legacyPayload(true, true, 7)}
	if err := h.HandleMapChunk(ctx, p); err != nil {
		t.Fatalf("HandleMapChunk: %v", err)
	}
	if h.cache.len() != 1 {
		t.Errorf("cache holds %d entries, limit 1", h.cache.len())
	}
}

func TestHandleMapChunkOverlaysPartialUpdate(t *testing.T) {
	h, idx, _ := newTestHandler(t, 340, Options{})
	ctx := context.Background()

	full := protocol.MapChunk{GroundUp: true, BitMask: 0x0001, Data: legacyPayload(true, true, 7)}
	partial := protocol.MapChunk{GroundUp: false, BitMask: 0x0002, Data: legacyPayload(true, false, 9)}
	for _, p := range []protocol.MapChunk{full, partial} {
		if err := h.HandleMapChunk(ctx, p); err != nil {
			t.Fatalf("HandleMapChunk: %v", err)
		}
	}

	if got := mustGet(t, idx, 0, 5, 0); got != 7 {
		t.Errorf("section 0 = %d, want 7", got)
	}
	if got := mustGet(t, idx, 0, 20, 0); got != 9 {
		t.Errorf("section 1 = %d, want 9", got)
	}
	if id, ok, err := idx.Biome(0, 20, 0); err != nil || !ok || id != 1 {
		t.Errorf("Biome = %d, %v, %v; want base trailer kept", id, ok, err)
	}
}

func TestHandleMapChunkTimeout(t *testing.T) {
	h, idx, logs := newTestHandler(t, 340, Options{Workers: 1, Timeout: 20 * time.Millisecond})
	release := make(chan struct{})
	h.decode = func(data []byte, x, z int32, mask uint32, groundUp bool, f chunk.Format) (*chunk.Chunk, error) {
		<-release
		return chunk.Decode(data, x, z, mask, groundUp, f)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	p := protocol.MapChunk{GroundUp: true, BitMask: 0x0001, Data: legacyPayload(true, true, 7)}
	err := h.HandleMapChunk(ctx, p)
	close(release)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
	if idx.Len() != 0 {
		t.Error("timed out update reached the index")
	}
	if s := h.Stats(); s.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", s.Dropped)
	}
	if !strings.Contains(logs.String(), "chunk update dropped") {
		t.Errorf("drop not logged:\n%s", logs.String())
	}
}

func TestHandleMapChunkAfterStop(t *testing.T) {
	h, _, _ := newTestHandler(t, 340, Options{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	cancel()
	h.Wait()

	p := protocol.MapChunk{GroundUp: true, BitMask: 0x0001, Data: legacyPayload(true, true, 7)}
	if err := h.HandleMapChunk(context.Background(), p); !errors.Is(err, ErrStopped) {
		t.Fatalf("error = %v, want ErrStopped", err)
	}
}

func TestHandleMapChunkCancelledContext(t *testing.T) {
	h, idx, _ := newTestHandler(t, 340, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := protocol.MapChunk{GroundUp: true, BitMask: 0x0001, Data: legacyPayload(true, true, 7)}
	if err := h.HandleMapChunk(ctx, p); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want Canceled", err)
	}
	if idx.Len() != 0 {
		t.Error("cancelled update reached the index")
	}
}

func TestSetDimension(t *testing.T) {
	h, idx, _ := newTestHandler(t, 340, Options{CacheEntries: 8})
	ctx := context.Background()
	nether := protocol.MapChunk{GroundUp: true, BitMask: 0x0001, Data: legacyPayload(false, true, 87)}

	if err := h.HandleMapChunk(ctx, nether); !errors.Is(err, chunk.ErrBitUnderflow) {
		t.Fatalf("overworld decode of nether payload: %v, want ErrBitUnderflow", err)
	}

	h.SetDimension(protocol.Nether)
	if h.Dimension() != protocol.Nether || h.Format().HasSkyLight {
		t.Fatalf("dimension = %s, sky = %v", h.Dimension(), h.Format().HasSkyLight)
	}
	if err := h.HandleMapChunk(ctx, nether); err != nil {
		t.Fatalf("HandleMapChunk: %v", err)
	}
	if got := mustGet(t, idx, 1, 1, 1); got != 87 {
		t.Errorf("Get = %d, want 87", got)
	}
	if _, sky, ok, _ := idx.Light(1, 1, 1); !ok || sky != 0 {
		t.Errorf("nether sky light = %d, %v", sky, ok)
	}
}

func TestHandleMapChunkFullColumns(t *testing.T) {
	tests := []struct {
		name     string
		dim      protocol.Dimension
		sections int
		minY     int
	}{
		{"overworld", protocol.Overworld, 24, -64},
		{"nether", protocol.Nether, 16, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, idx, _ := newTestHandler(t, 757, Options{Dimension: tt.dim})
			// 1.18 packets carry no mask and are always complete.
			p := protocol.MapChunk{X: 1, Z: 1, Data: modernColumn(tt.sections, 5)}
			if err := h.HandleMapChunk(context.Background(), p); err != nil {
				t.Fatalf("HandleMapChunk: %v", err)
			}
			c, _ := idx.Chunk(1, 1)
			if c.Count() != tt.sections || c.MinY != tt.minY {
				t.Errorf("Count = %d, MinY = %d", c.Count(), c.MinY)
			}
			if got := mustGet(t, idx, 16, tt.minY, 31); got != 5 {
				t.Errorf("bottom block = %d, want 5", got)
			}
			if id, ok, _ := idx.Biome(16, tt.minY+100, 31); !ok || id != 1 {
				t.Errorf("Biome = %d, %v; want 1", id, ok)
			}
		})
	}
}

func TestHandleBlockChanges(t *testing.T) {
	h, idx, _ := newTestHandler(t, 340, Options{})
	p := protocol.MapChunk{GroundUp: true, BitMask: 0x0001, Data: legacyPayload(true, true, 7)}
	if err := h.HandleMapChunk(context.Background(), p); err != nil {
		t.Fatalf("HandleMapChunk: %v", err)
	}
	before, _ := idx.Chunk(0, 0)

	change := protocol.BlockChange{Location: mcnet.EncodePosition(mcnet.PositionXYZ, 1, 2, 3), State: 42}
	if err := h.HandleBlockChange(change); err != nil {
		t.Fatalf("HandleBlockChange: %v", err)
	}
	if got := mustGet(t, idx, 1, 2, 3); got != 42 {
		t.Errorf("Get = %d, want 42", got)
	}
	if before.Block(1, 2, 3) != 7 {
		t.Error("block change modified an earlier chunk")
	}

	multi := protocol.MultiBlockChange{Records: []protocol.BlockRecord{
		{X: 4, Y: 40, Z: 4, State: 3},
		{X: 100, Y: 1, Z: 1, State: 3},
		{X: 5, Y: 1, Z: 5, State: 0},
	}}
	err := h.HandleMultiBlockChange(multi)
	if !errors.Is(err, world.ErrNotLoaded) {
		t.Errorf("error = %v, want ErrNotLoaded for the unloaded record", err)
	}
	if got := mustGet(t, idx, 4, 40, 4); got != 3 {
		t.Errorf("Get(4,40,4) = %d, want 3", got)
	}
	if got := mustGet(t, idx, 5, 1, 5); got != chunk.Air {
		t.Errorf("Get(5,1,5) = %d, want air", got)
	}

	h.HandleUnloadChunk(0, 0)
	if err := h.HandleBlockChange(change); !errors.Is(err, world.ErrNotLoaded) {
		t.Errorf("change after unload: %v, want ErrNotLoaded", err)
	}
}

func TestHandleMapChunkConcurrent(t *testing.T) {
	h, idx, _ := newTestHandler(t, 340, Options{Workers: 4, CacheEntries: 16, Timeout: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := protocol.MapChunk{X: int32(i), Z: int32(-i), GroundUp: true, BitMask: 0x0001, Data: legacyPayload(true, true, byte(i%4+1))}
			if err := h.HandleMapChunk(ctx, p); err != nil {
				errs <- fmt.Errorf("chunk %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if idx.Len() != 32 {
		t.Fatalf("Len = %d, want 32", idx.Len())
	}
	for i := 0; i < 32; i++ {
		if got := mustGet(t, idx, i*16, 0, -i*16); got != int32(i%4+1) {
			t.Errorf("chunk %d = %d, want %d", i, got, i%4+1)
		}
	}
	if s := h.Stats(); s.Decoded+s.CacheHits != 32 {
		t.Errorf("Stats = %+v, want 32 handled", s)
	}
}

func TestPartialUpdatesKeepConcurrentChanges(t *testing.T) {
	h, idx, _ := newTestHandler(t, 340, Options{Workers: 4, Timeout: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	full := protocol.MapChunk{GroundUp: true, BitMask: 0x0001, Data: legacyPayload(true, true, 7)}
	if err := h.HandleMapChunk(ctx, full); err != nil {
		t.Fatalf("HandleMapChunk: %v", err)
	}

	// Partial updates fill sections 1..15 while block changes land in
	// section 0; each one must survive the others.
	var wg sync.WaitGroup
	errs := make(chan error, 31)
	for s := 1; s < 16; s++ {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := protocol.MapChunk{BitMask: 1 << s, Data: legacyPayload(true, false, byte(s+10))}
			if err := h.HandleMapChunk(ctx, p); err != nil {
				errs <- fmt.Errorf("section %d: %w", s, err)
			}
		}()
	}
	for n := 0; n < 16; n++ {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			change := protocol.BlockChange{Location: mcnet.EncodePosition(mcnet.PositionXYZ, n, 1, 0), State: int32(100 + n)}
			if err := h.HandleBlockChange(change); err != nil {
				errs <- fmt.Errorf("block %d: %w", n, err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	for s := 1; s < 16; s++ {
		if got := mustGet(t, idx, 0, s*16, 0); got != int32(s+10) {
			t.Errorf("section %d = %d, want %d", s, got, s+10)
		}
	}
	for n := 0; n < 16; n++ {
		if got := mustGet(t, idx, n, 1, 0); got != int32(100+n) {
			t.Errorf("block (%d,1,0) = %d, want %d", n, got, 100+n)
		}
	}
}
