package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct {
	X, Y, Z int32
}

type chatMessage struct {
	From    string            `json:"from" cbor:"from"`
	Text    string            `json:"text" cbor:"text"`
	Tags    []string          `json:"tags" cbor:"tags"`
	Meta    map[string]string `json:"meta" cbor:"meta"`
	At      position          `json:"at" cbor:"at"`
	Urgent  bool              `json:"urgent" cbor:"urgent"`
	Score   float64           `json:"score" cbor:"score"`
	Counter uint64            `json:"counter" cbor:"counter"`
}

func sampleMessage() chatMessage {
	return chatMessage{
		From:    "alice",
		Text:    "hi <there> & welcome",
		Tags:    []string{"greeting", "global"},
		Meta:    map[string]string{"b": "2", "a": "1"},
		At:      position{X: -3, Y: 0, Z: 12},
		Urgent:  true,
		Score:   0.25,
		Counter: 1 << 40,
	}
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{JSON, Binary} {
		t.Run(format.String(), func(t *testing.T) {
			in := sampleMessage()

			data, err := Marshal(in, format)
			require.NoError(t, err)

			var out chatMessage
			require.NoError(t, Unmarshal(data, format, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	for _, format := range []Format{JSON, Binary} {
		t.Run(format.String(), func(t *testing.T) {
			first, err := Marshal(sampleMessage(), format)
			require.NoError(t, err)
			for i := 0; i < 10; i++ {
				again, err := Marshal(sampleMessage(), format)
				require.NoError(t, err)
				assert.Equal(t, first, again)
			}
		})
	}
}

func TestMarshal_JSONNoTrailingNewline(t *testing.T) {
	data, err := Marshal(map[string]int{"a": 1}, JSON)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestMarshal_JSONCopiesPooledBuffer(t *testing.T) {
	first, err := Marshal("first", JSON)
	require.NoError(t, err)
	_, err = Marshal("second value", JSON)
	require.NoError(t, err)
	assert.Equal(t, `"first"`, string(first))
}

func TestMarshal_Errors(t *testing.T) {
	_, err := Marshal(make(chan int), JSON)
	assert.Error(t, err)

	_, err = Marshal(1, Format(9))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	assert.ErrorIs(t, Unmarshal([]byte("1"), Format(9), new(int)), ErrUnknownFormat)
	assert.Error(t, Unmarshal([]byte("{"), JSON, new(chatMessage)))
	assert.Error(t, Unmarshal([]byte{0xff}, Binary, new(chatMessage)))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"json", JSON, false},
		{"JSON", JSON, false},
		{"", JSON, false},
		{"binary", Binary, false},
		{"cbor", Binary, false},
		{"xml", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.err {
			assert.ErrorIs(t, err, ErrUnknownFormat, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFormat_Text(t *testing.T) {
	text, err := Binary.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "binary", string(text))

	var f Format
	require.NoError(t, f.UnmarshalText([]byte("cbor")))
	assert.Equal(t, Binary, f)

	_, err = Format(7).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Equal(t, "format(7)", Format(7).String())
}

func TestEventName(t *testing.T) {
	name, err := EventName([]byte(`{"event":"plugin.chat::say","payload":{"text":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, "plugin.chat::say", name)

	_, err = EventName([]byte(`{"payload":1}`))
	assert.ErrorIs(t, err, ErrNotEnvelope)

	_, err = EventName([]byte(`{"event":12}`))
	assert.ErrorIs(t, err, ErrNotEnvelope)

	_, err = EventName([]byte(`not json`))
	assert.ErrorIs(t, err, ErrNotEnvelope)
}

func TestSplitEnvelope(t *testing.T) {
	name, payload, err := SplitEnvelope([]byte(`{"event":"server::message","payload":{"text":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, "server::message", name)
	assert.JSONEq(t, `{"text":"hi"}`, string(payload))

	name, payload, err = SplitEnvelope([]byte(`{"event":"server::ping"}`))
	require.NoError(t, err)
	assert.Equal(t, "server::ping", name)
	assert.Nil(t, payload)
}

func TestDecodeEnvelope(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		name, payload, err := DecodeEnvelope([]byte(`{"event":"plugin.chat::say","payload":{"text":"hi"}}`), JSON)
		require.NoError(t, err)
		assert.Equal(t, "plugin.chat::say", name)
		assert.JSONEq(t, `{"text":"hi"}`, string(payload))
	})

	t.Run("binary", func(t *testing.T) {
		data, err := Marshal(map[string]any{
			"event":   "plugin.chat::say",
			"payload": map[string]any{"text": "hi", "n": 3},
		}, Binary)
		require.NoError(t, err)

		name, payload, err := DecodeEnvelope(data, Binary)
		require.NoError(t, err)
		assert.Equal(t, "plugin.chat::say", name)
		assert.JSONEq(t, `{"text":"hi","n":3}`, string(payload))
	})

	t.Run("binary without payload", func(t *testing.T) {
		data, err := Marshal(map[string]any{"event": "server::ping"}, Binary)
		require.NoError(t, err)

		name, payload, err := DecodeEnvelope(data, Binary)
		require.NoError(t, err)
		assert.Equal(t, "server::ping", name)
		assert.Nil(t, payload)
	})

	t.Run("binary missing event", func(t *testing.T) {
		data, err := Marshal(map[string]any{"payload": 1}, Binary)
		require.NoError(t, err)

		_, _, err = DecodeEnvelope(data, Binary)
		assert.ErrorIs(t, err, ErrNotEnvelope)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := DecodeEnvelope([]byte{0xff, 0x00}, Binary)
		assert.ErrorIs(t, err, ErrNotEnvelope)

		_, _, err = DecodeEnvelope([]byte("nope"), JSON)
		assert.ErrorIs(t, err, ErrNotEnvelope)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, err := DecodeEnvelope(nil, Format(9))
		assert.ErrorIs(t, err, ErrUnknownFormat)
	})
}
