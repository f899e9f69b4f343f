package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OCharnyshevich/minecraft-chunks/internal/protocol"
)

// Kind names the packet a record was captured from.
type Kind string

const (
	KindMapChunk         Kind = "map_chunk"
	KindUnloadChunk      Kind = "unload_chunk"
	KindBlockChange      Kind = "block_change"
	KindMultiBlockChange Kind = "multi_block_change"
	// KindRespawn switches the dimension for the records that follow.
	KindRespawn Kind = "respawn"
)

// Capture is a recorded sequence of chunk updates of one connection.
type Capture struct {
	Protocol  int32    `json:"protocol"`
	Dimension string   `json:"dimension,omitempty"`
	Records   []Record `json:"records"`
}

// Record is one captured update. Either Packet holds the raw packet body, or
// the fields relevant to Kind are set.
type Record struct {
	Kind Kind  `json:"kind"`
	X    int32 `json:"x,omitempty"`
	Z    int32 `json:"z,omitempty"`

	BitMask  int32  `json:"bitmask,omitempty"`
	GroundUp bool   `json:"ground_up,omitempty"`
	Data     []byte `json:"data,omitempty"`

	Location int64                  `json:"location,omitempty"`
	State    int32                  `json:"state,omitempty"`
	Changes  []protocol.BlockRecord `json:"changes,omitempty"`

	Dimension string `json:"dimension,omitempty"`
	Packet    []byte `json:"packet,omitempty"`
}

// Load reads a capture file.
func Load(path string) (*Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse capture %s: %w", path, err)
	}
	return &c, nil
}

// Save writes c to path atomically, creating parent directories.
func Save(path string, c *Capture) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return atomicWriteJSON(path, c)
}

// atomicWriteJSON marshals v to JSON and writes it atomically using a temp file + rename.
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
