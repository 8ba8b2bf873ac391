// Package lua runs server plugins written in Lua.
//
// A Script wraps a sandboxed gopher-lua state and implements plugin.Plugin,
// so scripted plugins are registered with the manager like Go ones:
//
//	script, err := lua.LoadFile(ctx, "plugins/echo.lua", lua.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if _, err := mgr.Register(ctx, script); err != nil {
//	    return err
//	}
//
// # Sandbox
//
// Only the base, table, string and math libraries are opened. Functions that
// load code (dofile, loadfile, load, require) are removed and print writes to
// the plugin logger. Every call runs under a context deadline that the VM
// checks between instructions, so a runaway loop fails the callback instead
// of stalling the tick.
//
// # Context
//
// Callbacks receive the plugin context as their first argument, a table with:
//
//	ctx.register(name)              -> "ns::name"
//	ctx.subscribe(id)
//	ctx.emit(name_or_id, payload)
//	ctx.send(conn, payload [, "json"|"binary"])
//	ctx.local_node()                -> { id, address, load, region = {x, y, z} }
//	ctx.node_for(x, y, z)           -> node or nil
//	ctx.neighbors(x, y, z, distance) -> { node, ... }
//	ctx.update_load(load)
//	ctx.log(level, message [, fields])
//
// Errors from these functions are raised as Lua errors; a script may catch
// them with pcall, otherwise the callback fails and the plugin crashes.
//
// # Bridge
//
// Values cross between Go and Lua through Bridge: integral numbers become
// int64, sequences []any and other tables map[string]any. Go structs reach
// Lua as tables keyed by their json tags.
package lua
