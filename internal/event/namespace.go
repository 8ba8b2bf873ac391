package event

import (
	"fmt"
	"strings"
)

// Separators used by namespaces and event ids.
const (
	// SegmentSeparator separates the segments of a namespace.
	SegmentSeparator = "."

	// IDSeparator joins a namespace and an event name.
	IDSeparator = "::"

	// PluginNamespacePrefix is the first segment of every default plugin namespace.
	PluginNamespacePrefix = "plugin"
)

// Namespace scopes event names so that unrelated plugins picking the same
// short name do not collide.
// Examples: "plugin.chat", "server".
type Namespace string

// PluginNamespace returns the default namespace for a plugin name.
func PluginNamespace(pluginName string) Namespace {
	return Namespace(PluginNamespacePrefix + SegmentSeparator + pluginName)
}

// String returns the namespace as a string.
func (n Namespace) String() string {
	return string(n)
}

// Segments returns the namespace split by the separator.
func (n Namespace) Segments() []string {
	if n == "" {
		return nil
	}
	return strings.Split(string(n), SegmentSeparator)
}

// IsValid returns true if the namespace is valid.
// A valid namespace:
//   - Is not empty
//   - Does not contain empty segments
//   - Does not contain the id separator or whitespace
func (n Namespace) IsValid() bool {
	s := string(n)
	if s == "" || strings.Contains(s, IDSeparator) || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	for _, seg := range n.Segments() {
		if seg == "" {
			return false
		}
	}
	return true
}

// EventID is the externally addressable identity of an event kind:
// a namespace plus a short event name, written "namespace::name".
type EventID struct {
	Namespace Namespace
	Name      string
}

// NewEventID builds an EventID, validating both parts.
func NewEventID(ns Namespace, name string) (EventID, error) {
	id := EventID{Namespace: ns, Name: name}
	if err := id.Validate(); err != nil {
		return EventID{}, err
	}
	return id, nil
}

// MustEventID is like NewEventID but panics on invalid input.
// Intended for package-level declarations.
func MustEventID(ns Namespace, name string) EventID {
	id, err := NewEventID(ns, name)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseEventID parses "namespace::name".
func ParseEventID(s string) (EventID, error) {
	ns, name, ok := strings.Cut(s, IDSeparator)
	if !ok {
		return EventID{}, fmt.Errorf("%q: %w", s, ErrInvalidEventID)
	}
	return NewEventID(Namespace(ns), name)
}

// Validate checks the namespace and name.
func (id EventID) Validate() error {
	if !id.Namespace.IsValid() {
		return fmt.Errorf("%q: %w", id.Namespace, ErrInvalidNamespace)
	}
	if id.Name == "" || strings.Contains(id.Name, IDSeparator) || strings.ContainsAny(id.Name, " \t\r\n") {
		return fmt.Errorf("%q: %w", id.Name, ErrInvalidEventID)
	}
	return nil
}

// String returns "namespace::name".
func (id EventID) String() string {
	return string(id.Namespace) + IDSeparator + id.Name
}

// TypeID returns the dispatch key for this event id.
func (id EventID) TypeID() TypeID {
	return TypeIDOf(id.String())
}

// IsZero reports whether the id is unset.
func (id EventID) IsZero() bool {
	return id.Namespace == "" && id.Name == ""
}

// MarshalText implements encoding.TextMarshaler.
func (id EventID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := ParseEventID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
