// Package echo is a built-in scripted plugin: it answers client messages
// with event "echo" by sending the payload back to the same connection.
package echo

import (
	"context"
	_ "embed"

	"github.com/dshills/regioncore/internal/plugin/lua"
)

// Name is the plugin name declared by the script.
const Name = "echo"

//go:embed echo.lua
var source string

// Source returns the embedded script.
func Source() string { return source }

// New loads the embedded script.
func New(ctx context.Context, opts ...lua.Option) (*lua.Script, error) {
	opts = append(opts, lua.WithChunkName("echo.lua"))
	return lua.Load(ctx, source, opts...)
}
