package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	mcnet "github.com/OCharnyshevich/minecraft-chunks/internal/net"
)

// payload is the byte-level cursor over one chunk payload. Running out of
// bytes is the same condition as a bit reader running dry and is reported as
// ErrBitUnderflow.
type payload struct {
	data []byte
	r    *bytes.Reader
}

func newPayload(data []byte) *payload {
	return &payload{data: data, r: bytes.NewReader(data)}
}

func (p *payload) remaining() int { return p.r.Len() }

func (p *payload) u8(what string) (uint8, error) {
	v, err := mcnet.ReadU8(p.r)
	if err != nil {
		return 0, underflow(what, 8, err)
	}
	return v, nil
}

func (p *payload) i16(what string) (int16, error) {
	v, err := mcnet.ReadI16(p.r)
	if err != nil {
		return 0, underflow(what, 16, err)
	}
	return v, nil
}

func (p *payload) varInt(what string) (int32, error) {
	v, _, err := mcnet.ReadVarInt(p.r)
	if err != nil {
		return 0, underflow(what, 8, err)
	}
	return v, nil
}

// bytes returns the next n bytes without copying.
func (p *payload) bytes(what string, n int) ([]byte, error) {
	if n < 0 {
		return nil, malformed("%s: negative length %d", what, n)
	}
	if p.r.Len() < n {
		return nil, fmt.Errorf("%w: %s: need %d bits, %d remain", ErrBitUnderflow, what, n*8, p.r.Len()*8)
	}
	start := len(p.data) - p.r.Len()
	if _, err := p.r.Seek(int64(n), io.SeekCurrent); err != nil {
		return nil, err
	}
	return p.data[start : start+n], nil
}

func underflow(what string, bits int, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: need %d bits", ErrBitUnderflow, what, bits)
	}
	return malformed("%s: %v", what, err)
}
