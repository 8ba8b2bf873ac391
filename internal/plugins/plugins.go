// Package plugins resolves the names of built-in plugins.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dshills/regioncore/internal/plugin"
	"github.com/dshills/regioncore/internal/plugin/lua"
	"github.com/dshills/regioncore/internal/plugins/echo"
	"github.com/dshills/regioncore/internal/plugins/heartbeat"
)

// ErrUnknownBuiltin is returned for a name with no built-in plugin.
var ErrUnknownBuiltin = errors.New("unknown built-in plugin")

// Options tune the built-in plugins.
type Options struct {
	Logger         *slog.Logger
	HeartbeatEvery int
	ScriptTimeout  time.Duration
}

type factory func(ctx context.Context, opts Options) (plugin.Plugin, error)

var builtins = map[string]factory{
	heartbeat.Name: func(_ context.Context, opts Options) (plugin.Plugin, error) {
		return heartbeat.New(opts.HeartbeatEvery), nil
	},
	echo.Name: func(ctx context.Context, opts Options) (plugin.Plugin, error) {
		luaOpts := []lua.Option{lua.WithExecutionTimeout(opts.ScriptTimeout)}
		if opts.Logger != nil {
			luaOpts = append(luaOpts, lua.WithLogger(opts.Logger))
		}
		return echo.New(ctx, luaOpts...)
	},
}

// Names returns the built-in plugin names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named built-in plugins in the given order.
func New(ctx context.Context, names []string, opts Options) ([]plugin.Plugin, error) {
	out := make([]plugin.Plugin, 0, len(names))
	for _, name := range names {
		build, ok := builtins[name]
		if !ok {
			closeAll(out)
			return nil, fmt.Errorf("%q: %w", name, ErrUnknownBuiltin)
		}
		p, err := build(ctx, opts)
		if err != nil {
			closeAll(out)
			return nil, fmt.Errorf("building %s: %w", name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func closeAll(list []plugin.Plugin) {
	for _, p := range list {
		if c, ok := p.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}
