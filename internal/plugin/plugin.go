package plugin

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/dshills/regioncore/internal/event"
)

// Plugin is the unit of extension. The manager drives every plugin through
// PreInitialize, Initialize, Tick and Stop, and calls HandleEvent for events
// on the types the plugin subscribed to. Callbacks on one plugin are never
// run concurrently.
//
// Returning an error (or panicking) from any callback crashes the plugin.
type Plugin interface {
	// Name returns the unique plugin name. It becomes the last segment of
	// the default namespace, so it may not contain dots.
	Name() string

	// Version returns the plugin version.
	Version() Version

	// Subscriptions lists the events the plugin wants delivered. The manager
	// subscribes them after every plugin has pre-initialized.
	Subscriptions() []event.EventID

	// PreInitialize runs before any plugin initializes.
	PreInitialize(ctx context.Context, pc *Context) error

	// Initialize sets up resources. Other plugins' subscriptions are in
	// place, so setup events emitted here reach them.
	Initialize(ctx context.Context, pc *Context) error

	// Tick is called once per server tick while the plugin is active.
	Tick(ctx context.Context, pc *Context, dt time.Duration) error

	// Stop releases resources. It is the last callback the plugin receives.
	Stop(ctx context.Context, pc *Context) error

	// HandleEvent receives one event from a subscription.
	HandleEvent(ctx context.Context, pc *Context, ev event.Event) error
}

// Provider is implemented by plugins that produce events. The listed names
// are registered in the plugin's namespace before PreInitialize.
type Provider interface {
	Events() []string
}

// Namespacer is implemented by plugins that want a namespace other than
// "plugin.<name>".
type Namespacer interface {
	Namespace() event.Namespace
}

// Base provides no-op lifecycle callbacks for embedding.
type Base struct{}

// Subscriptions implements Plugin.
func (Base) Subscriptions() []event.EventID { return nil }

// PreInitialize implements Plugin.
func (Base) PreInitialize(context.Context, *Context) error { return nil }

// Initialize implements Plugin.
func (Base) Initialize(context.Context, *Context) error { return nil }

// Tick implements Plugin.
func (Base) Tick(context.Context, *Context, time.Duration) error { return nil }

// Stop implements Plugin.
func (Base) Stop(context.Context, *Context) error { return nil }

// HandleEvent implements Plugin.
func (Base) HandleEvent(context.Context, *Context, event.Event) error { return nil }

// Version is a plugin version, "major.minor.hotfix".
type Version struct {
	Major  uint32
	Minor  uint32
	Hotfix uint32
}

var versionPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)$`)

// ParseVersion parses "major.minor.hotfix", with an optional leading "v".
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	var parts [3]uint32
	for i := range parts {
		n, err := strconv.ParseUint(m[i+1], 10, 32)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		parts[i] = uint32(n)
	}
	return Version{Major: parts[0], Minor: parts[1], Hotfix: parts[2]}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns "major.minor.hotfix".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Hotfix)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpUint(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpUint(v.Minor, o.Minor)
	default:
		return cmpUint(v.Hotfix, o.Hotfix)
	}
}

func cmpUint(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// namePattern validates plugin names.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ValidateName checks that a plugin name can be used as a namespace segment.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPlugin)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: name %q", ErrInvalidPlugin, name)
	}
	return nil
}

// namespaceOf returns the namespace a plugin's events live in.
func namespaceOf(p Plugin) (event.Namespace, error) {
	if n, ok := p.(Namespacer); ok {
		ns := n.Namespace()
		if !ns.IsValid() {
			return "", fmt.Errorf("%w: namespace %q", ErrInvalidPlugin, ns)
		}
		return ns, nil
	}
	return event.PluginNamespace(p.Name()), nil
}
