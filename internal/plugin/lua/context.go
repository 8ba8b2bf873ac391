package lua

import (
	"context"
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/regioncore/internal/cluster"
	"github.com/dshills/regioncore/internal/codec"
	"github.com/dshills/regioncore/internal/network"
	"github.com/dshills/regioncore/internal/plugin"
)

// contextTable returns the Lua view of pc, building it on first use.
// Functions may be called as ctx.f(...) or ctx:f(...).
func (s *Script) contextTable(L *lua.LState, pc *plugin.Context) *lua.LTable {
	if s.table != nil && s.pc == pc {
		return s.table
	}

	t := L.CreateTable(0, 12)
	t.RawSetString("name", lua.LString(pc.Name()))
	t.RawSetString("namespace", lua.LString(pc.Namespace().String()))
	t.RawSetString("id", lua.LString(pc.ID().String()))

	funcs := map[string]lua.LGFunction{
		"register":    s.luaRegister,
		"subscribe":   s.luaSubscribe,
		"emit":        s.luaEmit,
		"send":        s.luaSend,
		"local_node":  s.luaLocalNode,
		"node_for":    s.luaNodeFor,
		"neighbors":   s.luaNeighbors,
		"update_load": s.luaUpdateLoad,
		"log":         s.luaLog,
	}
	for name, fn := range funcs {
		t.RawSetString(name, L.NewFunction(fn))
	}

	s.pc = pc
	s.table = t
	return t
}

// arg returns the n-th user argument, skipping the ctx table of a colon call.
func (s *Script) arg(L *lua.LState, n int) int {
	if L.Get(1) == s.table {
		return n + 1
	}
	return n
}

func callContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (s *Script) luaRegister(L *lua.LState) int {
	name := L.CheckString(s.arg(L, 1))
	id, err := s.pc.Register(name)
	if err != nil {
		L.RaiseError("register %s: %s", name, err.Error())
		return 0
	}
	L.Push(lua.LString(id.String()))
	return 1
}

func (s *Script) luaSubscribe(L *lua.LState) int {
	raw := L.CheckString(s.arg(L, 1))
	id, err := resolveEventID(s.pc, raw)
	if err == nil {
		err = s.pc.Subscribe(id)
	}
	if err != nil {
		L.RaiseError("subscribe %s: %s", raw, err.Error())
	}
	return 0
}

func (s *Script) luaEmit(L *lua.LState) int {
	raw := L.CheckString(s.arg(L, 1))
	payload := s.bridge.ToGoValue(L.Get(s.arg(L, 2)))

	id, err := resolveEventID(s.pc, raw)
	if err == nil {
		err = s.pc.Emit(id, payload)
	}
	if err != nil {
		L.RaiseError("emit %s: %s", raw, err.Error())
	}
	return 0
}

// luaSend is ctx.send(conn, payload [, format]). Format defaults to json.
func (s *Script) luaSend(L *lua.LState) int {
	conn := network.ConnectionID(L.CheckNumber(s.arg(L, 1)))
	payload := s.bridge.ToGoValue(L.Get(s.arg(L, 2)))

	format, err := codec.ParseFormat(L.OptString(s.arg(L, 3), codec.JSON.String()))
	if err != nil {
		L.RaiseError("send: %s", err.Error())
		return 0
	}
	if err := s.pc.SendToConnection(callContext(L), conn, payload, format); err != nil {
		L.RaiseError("send: %s", err.Error())
	}
	return 0
}

func (s *Script) luaLocalNode(L *lua.LState) int {
	node, err := s.pc.LocalNode(callContext(L))
	if err != nil {
		L.RaiseError("local_node: %s", err.Error())
		return 0
	}
	L.Push(s.nodeTable(L, node))
	return 1
}

// luaNodeFor is ctx.node_for(x, y, z); it returns nil if no node serves
// the region.
func (s *Script) luaNodeFor(L *lua.LState) int {
	region := s.checkRegion(L, 1)
	node, ok, err := s.pc.NodeForRegion(callContext(L), region)
	if err != nil {
		L.RaiseError("node_for: %s", err.Error())
		return 0
	}
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(s.nodeTable(L, node))
	return 1
}

// luaNeighbors is ctx.neighbors(x, y, z, distance).
func (s *Script) luaNeighbors(L *lua.LState) int {
	region := s.checkRegion(L, 1)
	distance := int32(L.CheckInt(s.arg(L, 4)))

	nodes, err := s.pc.NeighboringRegions(callContext(L), region, distance)
	if err != nil {
		L.RaiseError("neighbors: %s", err.Error())
		return 0
	}
	list := L.CreateTable(len(nodes), 0)
	for i, n := range nodes {
		list.RawSetInt(i+1, s.nodeTable(L, n))
	}
	L.Push(list)
	return 1
}

func (s *Script) luaUpdateLoad(L *lua.LState) int {
	load := float32(L.CheckNumber(s.arg(L, 1)))
	if err := s.pc.UpdateLoad(callContext(L), load); err != nil {
		L.RaiseError("update_load: %s", err.Error())
	}
	return 0
}

// luaLog is ctx.log(level, message [, fields]).
func (s *Script) luaLog(L *lua.LState) int {
	level := parseLevel(L.CheckString(s.arg(L, 1)))
	msg := L.CheckString(s.arg(L, 2))

	var attrs []any
	if fields, ok := L.Get(s.arg(L, 3)).(*lua.LTable); ok {
		fields.ForEach(func(k, v lua.LValue) {
			attrs = append(attrs, k.String(), s.bridge.ToGoValue(v))
		})
	}
	s.pc.Logger().Log(callContext(L), level, msg, attrs...)
	return 0
}

func (s *Script) checkRegion(L *lua.LState, first int) cluster.Region {
	return cluster.Region{
		X: int32(L.CheckInt(s.arg(L, first))),
		Y: int32(L.CheckInt(s.arg(L, first+1))),
		Z: int32(L.CheckInt(s.arg(L, first+2))),
	}
}

func (s *Script) nodeTable(L *lua.LState, n cluster.Node) *lua.LTable {
	region := L.CreateTable(0, 3)
	region.RawSetString("x", lua.LNumber(n.Region.X))
	region.RawSetString("y", lua.LNumber(n.Region.Y))
	region.RawSetString("z", lua.LNumber(n.Region.Z))

	t := L.CreateTable(0, 4)
	t.RawSetString("id", lua.LString(n.ID))
	t.RawSetString("address", lua.LString(n.Address))
	t.RawSetString("load", lua.LNumber(n.Load))
	t.RawSetString("region", region)
	return t
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
