// Package codec registers a msgpack wire codec for rpcx so that
// requests/replies exchanged with the metadata balancer ("mastermind")
// service are msgpack-encoded on the wire, per SPEC_FULL's transport
// section.
package codec

import (
	"bytes"
	"fmt"

	"github.com/Allen1211/msgp/msgp"
)

// MastermindCodec implements rpcx's share.Codec using the msgp library's
// hand-written Writer/Reader primitives rather than generated
// MarshalMsg/UnmarshalMsg pairs, since the mastermind wire messages are
// ad hoc maps (see internal/metabalancer/wire.go) and not generated
// struct types.
type MastermindCodec struct{}

func (c *MastermindCodec) Decode(data []byte, i interface{}) error {
	d, ok := i.(msgp.Decodable)
	if !ok {
		return fmt.Errorf("codec: %T does not implement msgp.Decodable", i)
	}
	return msgp.Decode(bytes.NewReader(data), d)
}

func (c *MastermindCodec) Encode(i interface{}) ([]byte, error) {
	e, ok := i.(msgp.Encodable)
	if !ok {
		return nil, fmt.Errorf("codec: %T does not implement msgp.Encodable", i)
	}
	buf := new(bytes.Buffer)
	if err := msgp.Encode(buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
