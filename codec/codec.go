// Package codec centralizes encoding of traits metadata, datasets and store
// records.
//
// Persisted streams record the codec name next to the encoded bytes, so a
// stream written with one codec is always decoded with the same codec.
package codec

import (
	"errors"
	"fmt"
)

// ErrUnknownCodec is returned by Lookup for names without a built-in codec.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Lookup is ByName with an error for unknown names.
func Lookup(name string) (Codec, error) {
	c, ok := ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Envelope frames an encoded payload with the name of the codec that
// produced it.
type Envelope struct {
	Codec string `json:"codec"`
	Kind  string `json:"kind"`
	Data  []byte `json:"data"`
}

// Seal encodes v with c and wraps it into an envelope of the given kind.
// The envelope itself is always encoded with JSON so it can be opened
// without knowing c.
func Seal(c Codec, kind string, v any) ([]byte, error) {
	if c == nil {
		c = Default
	}
	data, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec %s: marshal %s: %w", c.Name(), kind, err)
	}
	return JSON{}.Marshal(Envelope{Codec: c.Name(), Kind: kind, Data: data})
}

// Open decodes an envelope written by Seal into v. It fails if the envelope
// holds a different kind.
func Open(data []byte, kind string, v any) error {
	var env Envelope
	if err := (JSON{}).Unmarshal(data, &env); err != nil {
		return fmt.Errorf("codec: open envelope: %w", err)
	}
	if env.Kind != kind {
		return fmt.Errorf("codec: envelope kind %q, want %q", env.Kind, kind)
	}
	c, err := Lookup(env.Codec)
	if err != nil {
		return err
	}
	return c.Unmarshal(env.Data, v)
}
