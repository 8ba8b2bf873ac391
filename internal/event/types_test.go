package event

import (
	"testing"
)

func TestTypeIDOf_Deterministic(t *testing.T) {
	// Pinned XXH64 values; a change here means ids differ across builds.
	tests := []struct {
		name string
		want TypeID
	}{
		{"", 0xef46db3751d8e999},
		{"a", 0xd24ec4f1a98c6e5b},
		{"plugin.A::greet", 0x7a893f01bfec23c2},
	}

	for _, tt := range tests {
		if got := TypeIDOf(tt.name); got != tt.want {
			t.Errorf("TypeIDOf(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestTypeIDOf_Distinct(t *testing.T) {
	a := MustEventID(PluginNamespace("A"), "greet").TypeID()
	b := MustEventID(PluginNamespace("B"), "greet").TypeID()
	if a == b {
		t.Errorf("same short name in different namespaces produced equal ids %s", a)
	}
	if again := MustEventID(PluginNamespace("A"), "greet").TypeID(); again != a {
		t.Errorf("TypeID not stable: %s vs %s", a, again)
	}
}

func TestTypeID_String(t *testing.T) {
	if got := TypeID(0xff).String(); got != "0x00000000000000ff" {
		t.Errorf("String() = %q", got)
	}
}

func TestPluginID(t *testing.T) {
	a := NewPluginID()
	b := NewPluginID()

	if a.IsZero() {
		t.Error("new plugin id should not be zero")
	}
	if a == b {
		t.Error("plugin ids should be unique")
	}
	if !(PluginID{}).IsZero() {
		t.Error("zero value should report IsZero")
	}

	parsed, err := ParsePluginID(a.String())
	if err != nil {
		t.Fatalf("ParsePluginID: %v", err)
	}
	if parsed != a {
		t.Errorf("ParsePluginID = %s, want %s", parsed, a)
	}

	if _, err := ParsePluginID("not-a-uuid"); err == nil {
		t.Error("expected error for malformed id")
	}
}
