package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/tidwall/gjson"
)

// Envelope field names of an inbound client message:
//
//	{"event": "plugin.chat::say", "payload": {...}}
const (
	EnvelopeEventField   = "event"
	EnvelopePayloadField = "payload"
)

// EventName returns the routing field of a JSON envelope without decoding
// the payload.
func EventName(data []byte) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("invalid json: %w", ErrNotEnvelope)
	}
	name := gjson.GetBytes(data, EnvelopeEventField)
	if name.Type != gjson.String || name.Str == "" {
		return "", fmt.Errorf("missing %q field: %w", EnvelopeEventField, ErrNotEnvelope)
	}
	return name.Str, nil
}

// SplitEnvelope returns the routing field and the raw payload of a JSON
// envelope. A missing payload yields nil.
func SplitEnvelope(data []byte) (string, []byte, error) {
	name, err := EventName(data)
	if err != nil {
		return "", nil, err
	}
	payload := gjson.GetBytes(data, EnvelopePayloadField)
	if !payload.Exists() {
		return name, nil, nil
	}
	return name, []byte(payload.Raw), nil
}

// decMode decodes untyped CBOR maps with string keys so payloads can be
// re-encoded as JSON.
var decMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor dec mode: %v", err))
	}
	return mode
}()

type binaryEnvelope struct {
	Event   string `cbor:"event"`
	Payload any    `cbor:"payload"`
}

// DecodeEnvelope splits an envelope in either format. The payload is always
// returned as JSON so consumers see one representation regardless of the
// wire format.
func DecodeEnvelope(data []byte, format Format) (string, json.RawMessage, error) {
	switch format {
	case JSON:
		name, payload, err := SplitEnvelope(data)
		if err != nil {
			return "", nil, err
		}
		return name, json.RawMessage(payload), nil
	case Binary:
		var env binaryEnvelope
		if err := decMode.Unmarshal(data, &env); err != nil {
			return "", nil, fmt.Errorf("decode binary envelope: %w: %w", ErrNotEnvelope, err)
		}
		if env.Event == "" {
			return "", nil, fmt.Errorf("missing %q field: %w", EnvelopeEventField, ErrNotEnvelope)
		}
		if env.Payload == nil {
			return env.Event, nil, nil
		}
		payload, err := marshalJSON(env.Payload)
		if err != nil {
			return "", nil, err
		}
		return env.Event, payload, nil
	default:
		return "", nil, fmt.Errorf("decode envelope: %w", ErrUnknownFormat)
	}
}
