package capture

import (
	"context"
	"errors"
	"fmt"

	mcnet "github.com/OCharnyshevich/minecraft-chunks/internal/net"
	"github.com/OCharnyshevich/minecraft-chunks/internal/protocol"
)

// Sink receives replayed updates. *session.Handler implements it.
type Sink interface {
	HandleMapChunk(ctx context.Context, p protocol.MapChunk) error
	HandleUnloadChunk(x, z int32)
	HandleBlockChange(p protocol.BlockChange) error
	HandleMultiBlockChange(m protocol.MultiBlockChange) error
	SetDimension(d protocol.Dimension)
}

// Summary counts replayed records.
type Summary struct {
	Records int
	Applied int
	Failed  int
}

// Replay feeds every record of c to sink in order. A record that fails does
// not stop the replay; all failures are returned joined. Replay stops early
// only when ctx is done.
func Replay(ctx context.Context, c *Capture, sink Sink) (Summary, error) {
	v, err := protocol.Lookup(c.Protocol)
	if err != nil {
		return Summary{}, err
	}
	if c.Dimension != "" {
		d, err := protocol.ParseDimension(c.Dimension)
		if err != nil {
			return Summary{}, err
		}
		sink.SetDimension(d)
	}

	var (
		s    Summary
		errs []error
	)
	for i, r := range c.Records {
		if err := ctx.Err(); err != nil {
			return s, errors.Join(append(errs, err)...)
		}
		s.Records++
		if err := apply(ctx, v, r, sink); err != nil {
			s.Failed++
			errs = append(errs, fmt.Errorf("record %d (%s): %w", i, r.Kind, err))
			continue
		}
		s.Applied++
	}
	return s, errors.Join(errs...)
}

func apply(ctx context.Context, v protocol.Version, r Record, sink Sink) error {
	switch r.Kind {
	case KindMapChunk:
		p := protocol.MapChunk{X: r.X, Z: r.Z, GroundUp: r.GroundUp, BitMask: r.BitMask, Data: r.Data}
		if r.Packet != nil {
			var err error
			if p, err = v.DecodeMapChunk(r.Packet); err != nil {
				return err
			}
		}
		return sink.HandleMapChunk(ctx, p)

	case KindUnloadChunk:
		sink.HandleUnloadChunk(r.X, r.Z)
		return nil

	case KindBlockChange:
		p := protocol.BlockChange{Location: r.Location, State: r.State}
		if r.Packet != nil {
			if err := mcnet.Unmarshal(r.Packet, &p); err != nil {
				return fmt.Errorf("block change: %w", err)
			}
		}
		return sink.HandleBlockChange(p)

	case KindMultiBlockChange:
		m := protocol.MultiBlockChange{ChunkX: r.X, ChunkZ: r.Z, Records: r.Changes}
		if r.Packet != nil {
			var err error
			if m, err = v.DecodeMultiBlockChange(r.Packet); err != nil {
				return err
			}
		}
		return sink.HandleMultiBlockChange(m)

	case KindRespawn:
		d, err := protocol.ParseDimension(r.Dimension)
		if err != nil {
			return err
		}
		sink.SetDimension(d)
		return nil

	default:
		return fmt.Errorf("unknown record kind %q", r.Kind)
	}
}
