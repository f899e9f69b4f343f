package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCharnyshevich/minecraft-chunks/internal/protocol"
	"github.com/OCharnyshevich/minecraft-chunks/pkg/chunk"
	"github.com/OCharnyshevich/minecraft-chunks/pkg/world"
)

// ErrStopped is returned for updates submitted after the workers shut down.
var ErrStopped = errors.New("session: stopped")

// Options tunes a Handler.
type Options struct {
	Workers int
	// Timeout bounds the wait for one chunk update; zero waits for the
	// caller's context only.
	Timeout      time.Duration
	CacheEntries int
	Dimension    protocol.Dimension
}

// Stats counts handled chunk updates.
type Stats struct {
	Decoded   uint64
	CacheHits uint64
	Trailing  uint64
	Failed    uint64
	Dropped   uint64
}

type decodeFunc func(data []byte, x, z int32, mask uint32, groundUp bool, f chunk.Format) (*chunk.Chunk, error)

// Handler applies chunk and block updates of one connection to an index.
// Chunk payloads are decoded on a worker pool; everything else is applied
// on the calling goroutine.
type Handler struct {
	log     *slog.Logger
	index   *world.Index
	version protocol.Version
	timeout time.Duration
	workers int
	cache   *decodeCache
	decode  decodeFunc

	mu     sync.RWMutex
	dim    protocol.Dimension
	format chunk.Format

	jobs    chan job
	started atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup

	decoded, hits, trailing, failed, dropped atomic.Uint64
}

type job struct {
	ctx      context.Context
	data     []byte
	x, z     int32
	mask     uint32
	groundUp bool
	dim      protocol.Dimension
	format   chunk.Format
	result   chan<- result
}

type result struct {
	c   *chunk.Chunk
	err error
}

// New creates a Handler for version v writing into index.
func New(v protocol.Version, index *world.Index, log *slog.Logger, opts Options) *Handler {
	workers := max(opts.Workers, 1)
	h := &Handler{
		log:     log,
		index:   index,
		version: v,
		timeout: opts.Timeout,
		workers: workers,
		decode:  chunk.Decode,
		dim:     opts.Dimension,
		format:  v.Format(opts.Dimension),
		jobs:    make(chan job, workers*4),
		stop:    make(chan struct{}),
	}
	if opts.CacheEntries > 0 {
		h.cache = newDecodeCache(opts.CacheEntries)
	}
	return h
}

// Start launches the decode workers. They run until ctx is cancelled. Before
// Start, chunk updates are decoded on the calling goroutine.
func (h *Handler) Start(ctx context.Context) {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < h.workers; i++ {
		h.wg.Add(1)
		go h.worker(ctx)
	}
	go func() {
		<-ctx.Done()
		close(h.stop)
	}()
	h.log.Debug("session workers started", "workers", h.workers, "version", h.version.String())
}

// Wait blocks until all workers have exited.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) worker(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-h.jobs:
			j.result <- h.run(j)
		}
	}
}

// run decodes one job. A panic in the decoder fails the job, not the worker.
func (h *Handler) run(j job) (res result) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("chunk decode panicked", "x", j.x, "z", j.z, "panic", r)
			res = result{err: fmt.Errorf("chunk (%d,%d): decode panic: %v", j.x, j.z, r)}
		}
	}()
	if err := j.ctx.Err(); err != nil {
		return result{err: err}
	}
	return h.decodeCached(j)
}

func (h *Handler) decodeCached(j job) result {
	var key cacheKey
	if h.cache != nil {
		key = newCacheKey(j.data, j.mask, j.groundUp, j.dim)
		if e, ok := h.cache.get(key); ok {
			h.hits.Add(1)
			c := e.c.WithPosition(j.x, j.z)
			if e.trailing > 0 {
				return result{c: c, err: &chunk.TrailingDataError{X: j.x, Z: j.z, Bytes: e.trailing}}
			}
			return result{c: c}
		}
	}

	c, err := h.decode(j.data, j.x, j.z, j.mask, j.groundUp, j.format)
	if err != nil && !chunk.IsTrailing(err) {
		return result{err: err}
	}
	h.decoded.Add(1)
	if h.cache != nil {
		e := &cacheEntry{c: c}
		var te *chunk.TrailingDataError
		if errors.As(err, &te) {
			e.trailing = te.Bytes
		}
		h.cache.put(key, e)
	}
	return result{c: c, err: err}
}

// Format returns the decode context for the current dimension.
func (h *Handler) Format() chunk.Format {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.format
}

// Dimension returns the current dimension.
func (h *Handler) Dimension() protocol.Dimension {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dim
}

// SetDimension switches the decode context, as on a respawn into another
// dimension. Cached decodes of the old context are discarded.
func (h *Handler) SetDimension(d protocol.Dimension) {
	h.mu.Lock()
	h.dim = d
	h.format = h.version.Format(d)
	h.mu.Unlock()
	if h.cache != nil {
		h.cache.clear()
	}
}

// HandleMapChunk decodes a chunk packet and stores the result. A chunk that
// is not ground-up is laid over the chunk already stored at its position. On
// error the index is left untouched; trailing bytes are logged and the chunk
// is kept.
func (h *Handler) HandleMapChunk(ctx context.Context, p protocol.MapChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	f, dim := h.format, h.dim
	h.mu.RUnlock()
	mask := h.version.SectionMask(p.BitMask, f)
	groundUp := p.GroundUp || h.version.FullColumns()

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.submit(ctx, job{
		ctx:      ctx,
		data:     p.Data,
		x:        p.X,
		z:        p.Z,
		mask:     mask,
		groundUp: groundUp,
		dim:      dim,
		format:   f,
	})
	if err != nil {
		h.dropped.Add(1)
		h.log.Warn("chunk update dropped", "x", p.X, "z", p.Z, "error", err)
		return fmt.Errorf("chunk (%d,%d): %w", p.X, p.Z, err)
	}

	if res.err != nil {
		var te *chunk.TrailingDataError
		if !errors.As(res.err, &te) {
			h.failed.Add(1)
			return res.err
		}
		h.trailing.Add(1)
		h.log.Warn("trailing data after chunk", "x", te.X, "z", te.Z, "bytes", te.Bytes)
	}

	var evicted []world.ChunkPos
	if groundUp {
		evicted = h.index.Put(res.c)
	} else {
		evicted = h.index.Update(p.X, p.Z, func(prev *chunk.Chunk) *chunk.Chunk {
			return chunk.Overlay(prev, res.c)
		})
	}
	if len(evicted) > 0 {
		h.log.Debug("chunks evicted", "count", len(evicted))
	}
	return nil
}

// submit hands j to the workers and waits for its result. Without running
// workers, or with a full queue, j is decoded on the calling goroutine.
func (h *Handler) submit(ctx context.Context, j job) (result, error) {
	if !h.started.Load() {
		return h.run(j), nil
	}

	out := make(chan result, 1)
	j.result = out
	select {
	case h.jobs <- j:
	case <-h.stop:
		return result{}, ErrStopped
	case <-ctx.Done():
		return result{}, ctx.Err()
	default:
		return h.run(j), nil
	}

	select {
	case r := <-out:
		return r, nil
	case <-h.stop:
		return result{}, ErrStopped
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// HandleUnloadChunk removes a chunk column.
func (h *Handler) HandleUnloadChunk(x, z int32) {
	h.index.Unload(x, z)
}

// HandleBlockChange applies a single block change.
func (h *Handler) HandleBlockChange(p protocol.BlockChange) error {
	r := h.version.BlockRecord(p)
	return h.index.SetBlock(r.X, r.Y, r.Z, r.State)
}

// HandleMultiBlockChange applies every record of m. Records that cannot be
// applied are reported together; the others still take effect.
func (h *Handler) HandleMultiBlockChange(m protocol.MultiBlockChange) error {
	var errs []error
	for _, r := range m.Records {
		if err := h.index.SetBlock(r.X, r.Y, r.Z, r.State); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the update counters.
func (h *Handler) Stats() Stats {
	return Stats{
		Decoded:   h.decoded.Load(),
		CacheHits: h.hits.Load(),
		Trailing:  h.trailing.Load(),
		Failed:    h.failed.Load(),
		Dropped:   h.dropped.Load(),
	}
}
