package lua_debugger

import (
	"strconv"
	"sync"
	"time"

	"github.com/fansqz/lua-inspector/constants"
	"github.com/fansqz/lua-inspector/debugger"
	"github.com/fansqz/lua-inspector/protocol"
	"github.com/fansqz/lua-inspector/utils"
	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"
)

// Agent Lua上下文的调试代理，实现 Debugger、Runtime、Console 三个域的最小子集
// 除会话列表外，所有状态只在解释器线程访问
type Agent struct {
	client debugger.Client

	lock     sync.Mutex
	sessions []*AgentSession

	contexts      map[int]*contextEntry
	nextContextID int

	// pausePending 下一个检查点需要暂停
	pausePending  bool
	pendingReason constants.PausedReasonType
	paused        bool
}

// contextEntry 一个分组内的执行上下文
type contextEntry struct {
	agent    *Agent
	groupID  int
	id       int
	uniqueID string
	name     string
	ctx      *LuaContext
}

// NewAgentFactory 返回创建 Lua 调试代理的工厂，交给 debugger.NewController
func NewAgentFactory() debugger.AgentFactory {
	return func(client debugger.Client) debugger.Agent {
		return NewAgent(client)
	}
}

func NewAgent(client debugger.Client) *Agent {
	return &Agent{
		client:   client,
		contexts: make(map[int]*contextEntry),
	}
}

func (a *Agent) ContextCreated(ctx debugger.ExecutionContext, contextGroupID int, name string) {
	luaContext, ok := ctx.(*LuaContext)
	if !ok {
		logrus.Warnf("[Agent] unsupported execution context %T", ctx)
		return
	}
	a.nextContextID++
	entry := &contextEntry{
		agent:    a,
		groupID:  contextGroupID,
		id:       a.nextContextID,
		uniqueID: utils.GetUUID(),
		name:     name,
		ctx:      luaContext,
	}
	a.contexts[contextGroupID] = entry
	luaContext.attach(entry)
	for _, session := range a.sessionsWith(contextGroupID, constants.DomainRuntime) {
		session.reportContextCreated(entry)
	}
}

func (a *Agent) ContextDestroyed(ctx debugger.ExecutionContext) {
	for groupID, entry := range a.contexts {
		if debugger.ExecutionContext(entry.ctx) != ctx {
			continue
		}
		for _, session := range a.sessionsWith(groupID, constants.DomainRuntime) {
			session.sendEvent(constants.RuntimeExecutionContextDestroyedEvent,
				&protocol.ExecutionContextDestroyedEvent{ExecutionContextID: entry.id})
		}
		entry.ctx.detach()
		delete(a.contexts, groupID)
	}
}

func (a *Agent) Connect(contextGroupID int, channel debugger.Channel) debugger.AgentSession {
	session := newAgentSession(a, contextGroupID, channel)
	a.lock.Lock()
	a.sessions = append(a.sessions, session)
	a.lock.Unlock()
	logrus.Infof("[Agent] session connected, group = %d", contextGroupID)
	return session
}

// Paused 脚本是否停在检查点
func (a *Agent) Paused() bool {
	return a.paused
}

func (a *Agent) removeSession(session *AgentSession) {
	a.lock.Lock()
	defer a.lock.Unlock()
	for i, s := range a.sessions {
		if s == session {
			a.sessions = append(a.sessions[:i], a.sessions[i+1:]...)
			return
		}
	}
}

// sessionsWith 返回该分组中启用了某个域的会话
func (a *Agent) sessionsWith(groupID int, domain constants.Domain) []*AgentSession {
	a.lock.Lock()
	defer a.lock.Unlock()
	var sessions []*AgentSession
	for _, session := range a.sessions {
		if session.groupID == groupID && session.enabled(domain) {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

func (a *Agent) requestPause(reason constants.PausedReasonType) {
	a.pausePending = true
	a.pendingReason = reason
}

func (a *Agent) resume() {
	a.client.QuitMessageLoopOnPause()
}

func (a *Agent) breakProgram(entry *contextEntry, reason constants.PausedReasonType) {
	if a.paused {
		return
	}
	if a.pausePending && a.pendingReason == constants.StepPaused {
		reason = constants.StepPaused
	}
	a.pausePending = false
	sessions := a.sessionsWith(entry.groupID, constants.DomainDebugger)
	if len(sessions) == 0 {
		return
	}

	event := &protocol.PausedEvent{
		CallFrames:     entry.callFrames(),
		Reason:         reason,
		HitBreakpoints: []string{},
	}
	for _, session := range sessions {
		session.sendEvent(constants.DebuggerPausedEvent, event)
	}

	a.paused = true
	a.client.RunMessageLoopOnPause(entry.groupID)
	a.paused = false

	for _, session := range a.sessionsWith(entry.groupID, constants.DomainDebugger) {
		session.sendEvent(constants.DebuggerResumedEvent, nil)
	}
}

func (entry *contextEntry) breakProgram(reason constants.PausedReasonType) {
	entry.agent.breakProgram(entry, reason)
}

func (entry *contextEntry) checkpoint() {
	if entry.agent.pausePending {
		entry.agent.breakProgram(entry, entry.agent.pendingReason)
	}
}

func (entry *contextEntry) consoleAPICalled(kind constants.ConsoleAPIType, args []lua.LValue) {
	sessions := entry.agent.sessionsWith(entry.groupID, constants.DomainRuntime)
	if len(sessions) == 0 {
		return
	}
	objects := make([]*protocol.RemoteObject, len(args))
	for i, arg := range args {
		objects[i] = toRemoteObject(arg)
	}
	event := &protocol.ConsoleAPICalledEvent{
		Type:               kind,
		Args:               objects,
		ExecutionContextID: entry.id,
		Timestamp:          float64(time.Now().UnixNano()) / float64(time.Millisecond),
	}
	for _, session := range sessions {
		session.sendEvent(constants.RuntimeConsoleAPICalledEvent, event)
	}
}

func (entry *contextEntry) scriptParsed(script *Script) {
	for _, session := range entry.agent.sessionsWith(entry.groupID, constants.DomainDebugger) {
		session.reportScriptParsed(entry, script)
	}
}

func (entry *contextEntry) description() protocol.ExecutionContextDescription {
	return protocol.ExecutionContextDescription{
		ID:       entry.id,
		Origin:   "",
		Name:     entry.name,
		UniqueID: entry.uniqueID,
	}
}

// callFrames 把Lua调用栈转换为协议栈帧，行号转换为从0开始
// callFrameId 是栈帧在 LState 中的层级，只在本次暂停期间有效
func (entry *contextEntry) callFrames() []*protocol.CallFrame {
	frames := entry.ctx.CallFrames()
	callFrames := make([]*protocol.CallFrame, 0, len(frames))
	for _, frame := range frames {
		scriptID := ""
		if script := entry.ctx.ScriptByURL(frame.Source); script != nil {
			scriptID = script.ID
		}
		line := frame.Line - 1
		if line < 0 {
			line = 0
		}
		callFrames = append(callFrames, &protocol.CallFrame{
			CallFrameID:  strconv.Itoa(frame.Level),
			FunctionName: frame.FunctionName,
			Location: protocol.Location{
				ScriptID:   scriptID,
				LineNumber: line,
			},
			URL:        frame.Source,
			ScopeChain: scopeChain(frame.Level),
			This:       &protocol.RemoteObject{Type: "undefined"},
		})
	}
	return callFrames
}

func scopeChain(level int) []*protocol.Scope {
	return []*protocol.Scope{
		newScope(constants.LocalScope, scopeObjectID(constants.LocalScope, level)),
		newScope(constants.ClosureScope, scopeObjectID(constants.ClosureScope, level)),
		newScope(constants.GlobalScope, globalObjectID),
	}
}

func newScope(scopeType constants.ScopeType, objectID string) *protocol.Scope {
	return &protocol.Scope{
		Type: string(scopeType),
		Object: &protocol.RemoteObject{
			Type:        "object",
			ClassName:   "Object",
			Description: "Object",
			ObjectID:    objectID,
		},
	}
}

// toRemoteObject Lua值转换为协议对象
func toRemoteObject(value lua.LValue) *protocol.RemoteObject {
	switch v := value.(type) {
	case lua.LNumber:
		return &protocol.RemoteObject{Type: "number", Value: float64(v), Description: v.String()}
	case lua.LString:
		return &protocol.RemoteObject{Type: "string", Value: string(v)}
	case lua.LBool:
		return &protocol.RemoteObject{Type: "boolean", Value: bool(v)}
	case *lua.LTable:
		return &protocol.RemoteObject{Type: "object", ClassName: "table", Description: v.String()}
	case *lua.LFunction:
		return &protocol.RemoteObject{Type: "function", ClassName: "function", Description: v.String()}
	case *lua.LNilType:
		return &protocol.RemoteObject{Type: "undefined"}
	}
	if value == nil {
		return &protocol.RemoteObject{Type: "undefined"}
	}
	return &protocol.RemoteObject{Type: "object", ClassName: value.Type().String(), Description: value.String()}
}
