package hhchan

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Codec gives a channel a deterministic byte encoding for payloads of
// type V: Decode(Encode(v)) must equal v. The channel never inspects the
// bytes itself.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(b []byte) (V, error)
}

// BytesCodec is the identity codec for []byte payloads.
type BytesCodec struct{}

// Encode returns v unchanged.
func (BytesCodec) Encode(v []byte) ([]byte, error) { return v, nil }

// Decode returns b unchanged.
func (BytesCodec) Decode(b []byte) ([]byte, error) { return b, nil }

// GobCodec encodes payloads with encoding/gob. It is the convenience
// default for arbitrary struct payloads: none of the corpus's
// serialization libraries (protobuf, CBOR, the teacher's own wire
// framing) are a good fit for an arbitrary caller-supplied Go type with
// no schema, so this uses the stdlib serializer built for exactly that
// job (see DESIGN.md).
type GobCodec[V any] struct{}

// Encode gob-encodes v.
func (GobCodec[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode gob-decodes b into a V.
func (GobCodec[V]) Decode(b []byte) (V, error) {
	var v V
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return v, fmt.Errorf("gob decode: %w", err)
	}
	return v, nil
}
