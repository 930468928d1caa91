package lua_debugger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/fansqz/lua-inspector/constants"
	e "github.com/fansqz/lua-inspector/error"
	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"
)

const (
	maxCallFrames     = 64
	maxFrameVariables = 200
)

// contextHooks 调试代理挂在上下文上的回调
type contextHooks interface {
	breakProgram(reason constants.PausedReasonType)
	checkpoint()
	consoleAPICalled(kind constants.ConsoleAPIType, args []lua.LValue)
	scriptParsed(script *Script)
}

// Script 加载到上下文中的一段脚本
type Script struct {
	ID      string
	URL     string
	Source  string
	EndLine int
}

// Frame Lua调用栈中的一帧，行号从1开始
// Level 是该帧在 LState 调用栈中的层级，用于读取局部变量
type Frame struct {
	Level        int
	FunctionName string
	Source       string
	Line         int
}

// Variable 栈帧中的一个变量
type Variable struct {
	Name  string
	Value lua.LValue
}

// LuaContext 基于 gopher-lua 的脚本执行上下文
//
// LState 不是并发安全的，所有方法都必须在同一个协程（解释器线程）调用
type LuaContext struct {
	L *lua.LState

	output io.Writer

	microtasks *linkedlistqueue.Queue
	draining   bool

	scripts      []*Script
	nextScriptID int

	hooks contextHooks
	// hostCheckpoint 每次脚本调用宿主函数时执行，宿主用它处理投递的消息
	hostCheckpoint func()

	closed bool
}

// LuaContextOption 上下文配置
type LuaContextOption func(*LuaContext)

// WithOutput print 输出的位置，默认标准输出
func WithOutput(w io.Writer) LuaContextOption {
	return func(c *LuaContext) {
		if w != nil {
			c.output = w
		}
	}
}

func NewLuaContext(opts ...LuaContextOption) *LuaContext {
	c := &LuaContext{
		output:     os.Stdout,
		microtasks: linkedlistqueue.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	// OpenXxx 会把库表留在栈上
	L.Pop(L.GetTop())
	c.L = L
	c.installGlobals()
	return c
}

func (c *LuaContext) installGlobals() {
	c.L.SetGlobal("debugger", c.L.NewFunction(c.luaDebugger))
	c.L.SetGlobal("queueMicrotask", c.L.NewFunction(c.luaQueueMicrotask))
	c.L.SetGlobal("print", c.L.NewFunction(c.consoleFunc(constants.ConsoleLog)))
	console := c.L.SetFuncs(c.L.NewTable(), map[string]lua.LGFunction{
		"log":   c.consoleFunc(constants.ConsoleLog),
		"info":  c.consoleFunc(constants.ConsoleInfo),
		"warn":  c.consoleFunc(constants.ConsoleWarning),
		"error": c.consoleFunc(constants.ConsoleError),
	})
	c.L.SetGlobal("console", console)
}

// SetCheckpoint 设置宿主检查点
func (c *LuaContext) SetCheckpoint(fn func()) {
	c.hostCheckpoint = fn
}

// Run 加载并执行一段脚本，执行完成后清空微任务
func (c *LuaContext) Run(name string, source string) error {
	if c.closed {
		return e.ErrContextClosed
	}
	c.nextScriptID++
	script := &Script{
		ID:      strconv.Itoa(c.nextScriptID),
		URL:     name,
		Source:  source,
		EndLine: strings.Count(source, "\n"),
	}
	fn, err := c.L.Load(strings.NewReader(source), name)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	c.scripts = append(c.scripts, script)
	if c.hooks != nil {
		c.hooks.scriptParsed(script)
	}

	err = c.doWithRecovery(func() error {
		c.L.Push(fn)
		return c.L.PCall(0, 0, nil)
	})
	c.RunMicrotasks()
	if err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

// Evaluate 在全局作用域对表达式求值，先按 "return 表达式" 编译，失败再按语句执行
func (c *LuaContext) Evaluate(expression string) ([]lua.LValue, error) {
	if c.closed {
		return nil, e.ErrContextClosed
	}
	return c.evaluate(expression, nil)
}

// EvaluateOnFrame 在某一层栈帧的作用域内求值
// 栈帧的局部变量和上值可以直接读取，赋值和未知名称落到全局表
func (c *LuaContext) EvaluateOnFrame(level int, expression string) ([]lua.LValue, error) {
	if c.closed {
		return nil, e.ErrContextClosed
	}
	upvalues, err := c.Upvalues(level)
	if err != nil {
		return nil, err
	}
	locals, err := c.Locals(level)
	if err != nil {
		return nil, err
	}

	env := c.L.NewTable()
	for _, variable := range upvalues {
		env.RawSetString(variable.Name, variable.Value)
	}
	for _, variable := range locals {
		env.RawSetString(variable.Name, variable.Value)
	}
	meta := c.L.NewTable()
	meta.RawSetString("__index", c.L.G.Global)
	meta.RawSetString("__newindex", c.L.G.Global)
	c.L.SetMetatable(env, meta)
	return c.evaluate(expression, env)
}

func (c *LuaContext) evaluate(expression string, env *lua.LTable) ([]lua.LValue, error) {
	fn, err := c.L.LoadString("return " + expression)
	if err != nil {
		fn, err = c.L.LoadString(expression)
		if err != nil {
			return nil, err
		}
	}
	if env != nil {
		c.L.SetFEnv(fn, env)
	}

	top := c.L.GetTop()
	err = c.doWithRecovery(func() error {
		c.L.Push(fn)
		return c.L.PCall(0, lua.MultRet, nil)
	})
	if err != nil {
		c.L.SetTop(top)
		return nil, err
	}
	n := c.L.GetTop() - top
	results := make([]lua.LValue, 0, n)
	for i := 1; i <= n; i++ {
		results = append(results, c.L.Get(top+i))
	}
	c.L.SetTop(top)
	return results, nil
}

// Locals 栈帧中当前可见的局部变量，按声明顺序，同名变量只保留最内层
func (c *LuaContext) Locals(level int) ([]*Variable, error) {
	dbg, _, err := c.luaFrame(level)
	if err != nil {
		return nil, err
	}
	var variables []*Variable
	index := map[string]int{}
	for no := 1; no <= maxFrameVariables; no++ {
		name, value := c.L.GetLocal(dbg, no)
		if name == "" {
			break
		}
		if strings.HasPrefix(name, "(") {
			continue
		}
		if i, ok := index[name]; ok {
			variables[i].Value = value
			continue
		}
		index[name] = len(variables)
		variables = append(variables, &Variable{Name: name, Value: value})
	}
	return variables, nil
}

// Upvalues 栈帧所属函数捕获的外层变量
func (c *LuaContext) Upvalues(level int) ([]*Variable, error) {
	_, fn, err := c.luaFrame(level)
	if err != nil {
		return nil, err
	}
	var variables []*Variable
	for no := 1; no <= maxFrameVariables; no++ {
		name, value := c.L.GetUpvalue(fn, no)
		if name == "" {
			break
		}
		variables = append(variables, &Variable{Name: name, Value: value})
	}
	return variables, nil
}

// luaFrame 查找某一层的 Lua 函数栈帧，宿主函数的栈帧没有变量
func (c *LuaContext) luaFrame(level int) (*lua.Debug, *lua.LFunction, error) {
	if level < 0 || level >= maxCallFrames {
		return nil, nil, e.ErrCallFrameNotFound
	}
	dbg, ok := c.L.GetStack(level)
	if !ok {
		return nil, nil, e.ErrCallFrameNotFound
	}
	value, err := c.L.GetInfo("f", dbg, lua.LNil)
	if err != nil {
		return nil, nil, e.ErrCallFrameNotFound
	}
	fn, ok := value.(*lua.LFunction)
	if !ok || fn.IsG {
		return nil, nil, e.ErrCallFrameNotFound
	}
	return dbg, fn, nil
}

// RunMicrotasks 执行积压的微任务，执行期间新加入的任务也会在本轮执行
// 正在执行时再次调用直接返回
func (c *LuaContext) RunMicrotasks() {
	if c.draining || c.closed {
		return
	}
	c.draining = true
	defer func() { c.draining = false }()
	for {
		value, ok := c.microtasks.Dequeue()
		if !ok {
			return
		}
		fn := value.(*lua.LFunction)
		err := c.doWithRecovery(func() error {
			return c.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
		})
		if err != nil {
			logrus.Warnf("[LuaContext] microtask fail, err = %v", err)
		}
	}
}

// PendingMicrotasks 积压的微任务数量
func (c *LuaContext) PendingMicrotasks() int {
	return c.microtasks.Size()
}

// Scripts 已加载的脚本
func (c *LuaContext) Scripts() []*Script {
	return c.scripts
}

// CallFrames 当前的Lua调用栈，最内层在前，跳过宿主函数
func (c *LuaContext) CallFrames() []*Frame {
	var frames []*Frame
	for level := 0; level < maxCallFrames; level++ {
		dbg, ok := c.L.GetStack(level)
		if !ok {
			break
		}
		if _, err := c.L.GetInfo("nSl", dbg, lua.LNil); err != nil {
			continue
		}
		if dbg.What == "G" {
			continue
		}
		name := dbg.Name
		if name == "" {
			name = dbg.What
		}
		frames = append(frames, &Frame{
			Level:        level,
			FunctionName: name,
			Source:       dbg.Source,
			Line:         dbg.CurrentLine,
		})
	}
	return frames
}

// ScriptByURL 根据名称查找脚本
func (c *LuaContext) ScriptByURL(url string) *Script {
	for _, script := range c.scripts {
		if script.URL == url {
			return script
		}
	}
	return nil
}

func (c *LuaContext) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.microtasks.Clear()
	c.L.Close()
}

func (c *LuaContext) attach(hooks contextHooks) {
	c.hooks = hooks
}

func (c *LuaContext) detach() {
	c.hooks = nil
}

// enterHost 脚本进入宿主函数
func (c *LuaContext) enterHost(pausable bool) {
	if c.hostCheckpoint != nil {
		c.hostCheckpoint()
	}
	if pausable && c.hooks != nil {
		c.hooks.checkpoint()
	}
}

// luaDebugger 脚本中的 debugger()，调试器启用时在此暂停
func (c *LuaContext) luaDebugger(L *lua.LState) int {
	c.enterHost(false)
	if c.hooks != nil {
		c.hooks.breakProgram(constants.DebugCommandPaused)
	}
	return 0
}

func (c *LuaContext) luaQueueMicrotask(L *lua.LState) int {
	fn := L.CheckFunction(1)
	c.enterHost(true)
	c.microtasks.Enqueue(fn)
	return 0
}

func (c *LuaContext) consoleFunc(kind constants.ConsoleAPIType) lua.LGFunction {
	return func(L *lua.LState) int {
		c.enterHost(true)
		n := L.GetTop()
		args := make([]lua.LValue, 0, n)
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			value := L.Get(i)
			args = append(args, value)
			parts = append(parts, L.ToStringMeta(value).String())
		}
		fmt.Fprintln(c.output, strings.Join(parts, "\t"))
		if c.hooks != nil {
			c.hooks.consoleAPICalled(kind, args)
		}
		return 0
	}
}

// doWithRecovery executes a function with panic recovery.
func (c *LuaContext) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
