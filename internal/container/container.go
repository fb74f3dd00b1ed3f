// Package container implements the data container's optional
// embedded-header framing (spec.md §3, §4.7). Frames are
// { size: u64 BE, type: u32 BE, flags: u32 BE, bytes[size] }.
//
// The wire format is a fixed byte layout mandated by spec.md, not a
// schemaless document — encoding/binary is the right tool here, not
// the msgpack library this module otherwise carries for the
// metabalancer transport (see DESIGN.md).
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

// Frame types recognized on unpack; unknown types are skipped for
// forward compatibility (spec.md §4.7).
const (
	FrameData      uint32 = 1
	FrameTimestamp uint32 = 2
)

const frameHeaderSize = 8 + 4 + 4 // size(u64) + type(u32) + flags(u32)

// Timestamp is the TIMESTAMP frame's two 64-bit fields.
type Timestamp struct {
	Sec  int64
	Nsec int64
}

func TimestampFrom(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Container is an opaque payload with an optional embedded timestamp.
// When Embed is false, Pack emits Payload verbatim with no frame
// header at all (spec.md §4.7 "used as a plain payload").
type Container struct {
	Payload   []byte
	Timestamp *Timestamp
	Embed     bool
}

func Plain(payload []byte) Container {
	return Container{Payload: payload}
}

func Embedded(payload []byte, ts Timestamp) Container {
	return Container{Payload: payload, Timestamp: &ts, Embed: true}
}

// Pack serializes the container. Frame order is fixed: TIMESTAMP (if
// present) precedes DATA.
func Pack(c Container) []byte {
	if !c.Embed {
		return c.Payload
	}
	buf := new(bytes.Buffer)
	if c.Timestamp != nil {
		body := make([]byte, 16)
		binary.BigEndian.PutUint64(body[0:8], uint64(c.Timestamp.Sec))
		binary.BigEndian.PutUint64(body[8:16], uint64(c.Timestamp.Nsec))
		writeFrame(buf, FrameTimestamp, 0, body)
	}
	writeFrame(buf, FrameData, 0, c.Payload)
	return buf.Bytes()
}

func writeFrame(buf *bytes.Buffer, typ, flags uint32, body []byte) {
	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(len(body)))
	binary.BigEndian.PutUint32(hdr[8:12], typ)
	binary.BigEndian.PutUint32(hdr[12:16], flags)
	buf.Write(hdr[:])
	buf.Write(body)
}

// Unpack parses embedded frames out of data. If embed is false, data is
// treated as a verbatim payload with no framing. Unknown frame types
// are recorded neither as payload nor timestamp and are otherwise
// ignored, per spec.md §4.7. A frame whose declared size exceeds the
// remaining bytes fails with common.ErrCorrupt.
func Unpack(data []byte, embed bool) (Container, error) {
	if !embed {
		return Plain(data), nil
	}
	c := Container{Embed: true}
	rest := data
	for len(rest) > 0 {
		if len(rest) < frameHeaderSize {
			return Container{}, fmt.Errorf("%w: truncated frame header", common.ErrCorrupt)
		}
		size := binary.BigEndian.Uint64(rest[0:8])
		typ := binary.BigEndian.Uint32(rest[8:12])
		rest = rest[frameHeaderSize:]
		if size > uint64(len(rest)) {
			return Container{}, fmt.Errorf("%w: frame size %d exceeds remaining %d bytes", common.ErrCorrupt, size, len(rest))
		}
		body := rest[:size]
		rest = rest[size:]

		switch typ {
		case FrameData:
			c.Payload = append([]byte(nil), body...)
		case FrameTimestamp:
			if len(body) != 16 {
				return Container{}, fmt.Errorf("%w: timestamp frame has %d bytes, want 16", common.ErrCorrupt, len(body))
			}
			ts := Timestamp{
				Sec:  int64(binary.BigEndian.Uint64(body[0:8])),
				Nsec: int64(binary.BigEndian.Uint64(body[8:16])),
			}
			c.Timestamp = &ts
		default:
			// unknown type: skip, forward compatibility.
		}
	}
	return c, nil
}
