package event

import (
	"errors"
	"testing"
)

func TestNamespace_IsValid(t *testing.T) {
	tests := []struct {
		ns    Namespace
		valid bool
	}{
		{"plugin.chat", true},
		{"server", true},
		{"a.b.c", true},
		{"", false},
		{"plugin..chat", false},
		{".plugin", false},
		{"plugin.", false},
		{"plugin::chat", false},
		{"plugin chat", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.ns), func(t *testing.T) {
			if got := tt.ns.IsValid(); got != tt.valid {
				t.Errorf("IsValid(%q) = %v, want %v", tt.ns, got, tt.valid)
			}
		})
	}
}

func TestPluginNamespace(t *testing.T) {
	if got := PluginNamespace("A"); got != "plugin.A" {
		t.Errorf("PluginNamespace = %q, want %q", got, "plugin.A")
	}
}

func TestEventID_String(t *testing.T) {
	id := MustEventID(PluginNamespace("A"), "greet")
	if got := id.String(); got != "plugin.A::greet" {
		t.Errorf("String() = %q, want %q", got, "plugin.A::greet")
	}
}

func TestParseEventID(t *testing.T) {
	tests := []struct {
		in      string
		want    EventID
		wantErr error
	}{
		{"plugin.A::greet", EventID{Namespace: "plugin.A", Name: "greet"}, nil},
		{"server::message", EventID{Namespace: "server", Name: "message"}, nil},
		{"greet", EventID{}, ErrInvalidEventID},
		{"::greet", EventID{}, ErrInvalidNamespace},
		{"plugin.A::", EventID{}, ErrInvalidEventID},
		{"plugin.A::a::b", EventID{}, ErrInvalidEventID},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEventID(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseEventID(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEventID(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseEventID(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEventID_TextRoundTrip(t *testing.T) {
	id := MustEventID("plugin.chat", "say")

	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var back EventID
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if back != id {
		t.Errorf("round trip = %+v, want %+v", back, id)
	}
}

func TestMustEventID_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid id")
		}
	}()
	MustEventID("", "x")
}
