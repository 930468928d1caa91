package lua_debugger

import (
	"bytes"
	"testing"

	e "github.com/fansqz/lua-inspector/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func TestLuaContext_Run(t *testing.T) {
	output := &bytes.Buffer{}
	ctx := NewLuaContext(WithOutput(output))
	defer ctx.Close()
	assert.Equal(t, 0, ctx.L.GetTop())

	err := ctx.Run("main.lua", "x = 1 + 1\nprint('x =', x)")
	require.NoError(t, err)
	assert.Equal(t, "x =\t2\n", output.String())
	require.Len(t, ctx.Scripts(), 1)
	assert.Equal(t, "1", ctx.Scripts()[0].ID)
	assert.Equal(t, "main.lua", ctx.Scripts()[0].URL)
	assert.Equal(t, 1, ctx.Scripts()[0].EndLine)
}

func TestLuaContext_RunSyntaxError(t *testing.T) {
	ctx := NewLuaContext()
	defer ctx.Close()

	err := ctx.Run("broken.lua", "invalid lua code !!!")
	assert.Error(t, err)
	assert.Empty(t, ctx.Scripts())
}

func TestLuaContext_Evaluate(t *testing.T) {
	ctx := NewLuaContext()
	defer ctx.Close()
	require.NoError(t, ctx.Run("main.lua", "x = 40"))
	top := ctx.L.GetTop()

	values, err := ctx.Evaluate("x + 2")
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, lua.LNumber(42), values[0])

	// 语句没有返回值
	values, err = ctx.Evaluate("y = x * 2")
	require.NoError(t, err)
	assert.Empty(t, values)
	values, err = ctx.Evaluate("y")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(80), values[0])

	_, err = ctx.Evaluate("error('boom')")
	assert.Error(t, err)
	assert.Equal(t, top, ctx.L.GetTop())
	assert.Equal(t, 0, top)
}

func TestLuaContext_FrameVariables(t *testing.T) {
	ctx := NewLuaContext()
	defer ctx.Close()

	var locals, upvalues []*Variable
	var frameErr error
	var evaluated []lua.LValue
	ctx.L.SetGlobal("inspect", ctx.L.NewFunction(func(L *lua.LState) int {
		// 层级 0 是 inspect 自身，层级 1 是调用它的 Lua 函数
		locals, frameErr = ctx.Locals(1)
		if frameErr == nil {
			upvalues, frameErr = ctx.Upvalues(1)
		}
		if frameErr == nil {
			evaluated, frameErr = ctx.EvaluateOnFrame(1, "n * scale")
		}
		return 0
	}))
	require.NoError(t, ctx.Run("main.lua", `
local scale = 3
local function f(n)
  local n = n + 1
  inspect()
end
f(1)
`))
	require.NoError(t, frameErr)
	require.Len(t, locals, 1)
	assert.Equal(t, "n", locals[0].Name)
	assert.Equal(t, lua.LNumber(2), locals[0].Value)
	require.Len(t, upvalues, 1)
	assert.Equal(t, "scale", upvalues[0].Name)
	assert.Equal(t, []lua.LValue{lua.LNumber(6)}, evaluated)

	_, err := ctx.Locals(0)
	assert.ErrorIs(t, err, e.ErrCallFrameNotFound)
	_, err = ctx.EvaluateOnFrame(-1, "1")
	assert.ErrorIs(t, err, e.ErrCallFrameNotFound)
}

func TestLuaContext_Microtasks(t *testing.T) {
	ctx := NewLuaContext()
	defer ctx.Close()

	// Run 结束时会执行所有微任务，任务中追加的任务也在同一轮执行
	err := ctx.Run("main.lua", `
order = {}
queueMicrotask(function()
  table.insert(order, "a")
  queueMicrotask(function() table.insert(order, "c") end)
end)
queueMicrotask(function() table.insert(order, "b") end)
table.insert(order, "sync")
`)
	require.NoError(t, err)
	values, err := ctx.Evaluate("table.concat(order, ',')")
	require.NoError(t, err)
	assert.Equal(t, lua.LString("sync,a,b,c"), values[0])
	assert.Equal(t, 0, ctx.PendingMicrotasks())
}

func TestLuaContext_MicrotaskError(t *testing.T) {
	ctx := NewLuaContext()
	defer ctx.Close()

	err := ctx.Run("main.lua", `
queueMicrotask(function() error("boom") end)
queueMicrotask(function() after = true end)
`)
	require.NoError(t, err)
	values, err := ctx.Evaluate("after")
	require.NoError(t, err)
	assert.Equal(t, lua.LTrue, values[0])
}

func TestLuaContext_Closed(t *testing.T) {
	ctx := NewLuaContext()
	ctx.Close()
	ctx.Close()

	assert.ErrorIs(t, ctx.Run("main.lua", "x = 1"), e.ErrContextClosed)
	_, err := ctx.Evaluate("1")
	assert.ErrorIs(t, err, e.ErrContextClosed)
}

func TestLuaContext_DebuggerWithoutAgent(t *testing.T) {
	ctx := NewLuaContext()
	defer ctx.Close()

	checkpoints := 0
	ctx.SetCheckpoint(func() { checkpoints++ })
	require.NoError(t, ctx.Run("main.lua", "debugger()\nprint('done')"))
	assert.Equal(t, 2, checkpoints)
	assert.Empty(t, ctx.CallFrames())
}
