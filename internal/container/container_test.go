package container

import (
	"bytes"
	"errors"
	"testing"

	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	ts := Timestamp{Sec: 1700000000, Nsec: 500}
	c := Embedded([]byte("hi"), ts)

	packed := Pack(c)

	wantData := append(append([]byte{}, u64be(16)...), append(u32be(FrameTimestamp), append(u32be(0), tsBody(ts)...)...)...)
	wantData = append(wantData, u64be(2)...)
	wantData = append(wantData, append(u32be(FrameData), append(u32be(0), []byte("hi")...)...)...)
	if !bytes.Equal(packed, wantData) {
		t.Fatalf("unexpected wire bytes:\n got  %x\n want %x", packed, wantData)
	}

	got, err := Unpack(packed, true)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if string(got.Payload) != "hi" {
		t.Fatalf("payload = %q, want %q", got.Payload, "hi")
	}
	if got.Timestamp == nil || *got.Timestamp != ts {
		t.Fatalf("timestamp = %+v, want %+v", got.Timestamp, ts)
	}
}

func TestUnpackCorruptOversizedFrame(t *testing.T) {
	// declare a DATA frame of size 100 but only supply 2 bytes.
	data := append(u64be(100), append(u32be(FrameData), u32be(0)...)...)
	data = append(data, []byte("hi")...)

	_, err := Unpack(data, true)
	if !errors.Is(err, common.ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestUnpackSkipsUnknownFrameType(t *testing.T) {
	buf := new(bytes.Buffer)
	writeFrame(buf, 999, 0, []byte("ignore-me"))
	writeFrame(buf, FrameData, 0, []byte("payload"))

	got, err := Unpack(buf.Bytes(), true)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if string(got.Payload) != "payload" {
		t.Fatalf("payload = %q, want %q", got.Payload, "payload")
	}
}

func TestPlainPayloadHasNoFraming(t *testing.T) {
	payload := []byte("raw bytes, no header")
	packed := Pack(Plain(payload))
	if !bytes.Equal(packed, payload) {
		t.Fatalf("plain pack should be verbatim: got %q", packed)
	}
	got, err := Unpack(packed, false)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatalf("payload = %q, want %q", got.Payload, payload)
	}
}

func u64be(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func u32be(v uint32) []byte {
	b := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func tsBody(ts Timestamp) []byte {
	return append(u64be(uint64(ts.Sec)), u64be(uint64(ts.Nsec))...)
}
