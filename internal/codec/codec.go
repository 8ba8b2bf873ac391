// Package codec implements the two payload encodings that cross into network
// form: self-describing JSON and compact CBOR.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/valyala/bytebufferpool"
)

// Format selects a payload encoding.
type Format uint8

const (
	// JSON is the structured text encoding.
	JSON Format = iota

	// Binary is the compact encoding (deterministic CBOR).
	Binary
)

// Errors returned by the codec.
var (
	// ErrUnknownFormat is returned for a Format outside the defined set.
	ErrUnknownFormat = errors.New("unknown message format")

	// ErrNotEnvelope is returned when data is not a JSON envelope.
	ErrNotEnvelope = errors.New("not a message envelope")
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParseFormat parses a format name. "cbor" is accepted for Binary.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return JSON, nil
	case "binary", "cbor":
		return Binary, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrUnknownFormat)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	if f != JSON && f != Binary {
		return nil, fmt.Errorf("%d: %w", uint8(f), ErrUnknownFormat)
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(b []byte) error {
	parsed, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// encMode encodes with the core deterministic rules, so equal values always
// produce identical bytes.
var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor enc mode: %v", err))
	}
	return mode
}()

// Marshal encodes v in the given format.
func Marshal(v any, format Format) ([]byte, error) {
	switch format {
	case JSON:
		return marshalJSON(v)
	case Binary:
		data, err := encMode.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode binary: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("encode: %w", ErrUnknownFormat)
	}
}

func marshalJSON(v any) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}

	// The pooled buffer is reused; hand back a copy without the encoder's newline.
	out := bytes.TrimSuffix(buf.B, []byte{'\n'})
	return append([]byte(nil), out...), nil
}

// Unmarshal decodes data in the given format into v.
func Unmarshal(data []byte, format Format, v any) error {
	switch format {
	case JSON:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
		return nil
	case Binary:
		if err := cbor.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode binary: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("decode: %w", ErrUnknownFormat)
	}
}
