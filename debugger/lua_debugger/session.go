package lua_debugger

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/emirpasic/gods/sets"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/fansqz/lua-inspector/constants"
	"github.com/fansqz/lua-inspector/debugger"
	e "github.com/fansqz/lua-inspector/error"
	"github.com/fansqz/lua-inspector/protocol"
	"github.com/fansqz/lua-inspector/utils"
	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"
)

// AgentSession 代理侧的调试会话，记录客户端启用的域
type AgentSession struct {
	agent   *Agent
	groupID int
	channel debugger.Channel
	domains sets.Set
	closed  bool
}

func newAgentSession(agent *Agent, groupID int, channel debugger.Channel) *AgentSession {
	return &AgentSession{
		agent:   agent,
		groupID: groupID,
		channel: channel,
		domains: hashset.New(),
	}
}

// DispatchProtocolMessage 处理一条协议命令，结果通过 channel 返回
func (s *AgentSession) DispatchProtocolMessage(message string) {
	if s.closed {
		return
	}
	command, err := protocol.ParseCommand(message)
	if err != nil {
		code := constants.InvalidRequestCode
		id := 0
		if command == nil {
			code = constants.ParseErrorCode
		} else {
			id = command.ID
		}
		s.sendError(id, code, err.Error())
		return
	}

	switch constants.ProtocolMethod(command.Method) {
	case constants.DebuggerEnable:
		s.onDebuggerEnable(command)
	case constants.DebuggerDisable:
		s.domains.Remove(constants.DomainDebugger)
		s.sendResult(command.ID, nil)
	case constants.DebuggerPause:
		s.agent.requestPause(constants.OtherPaused)
		s.sendResult(command.ID, nil)
	case constants.DebuggerResume:
		s.onResume(command, false)
	case constants.DebuggerStepOver, constants.DebuggerStepInto, constants.DebuggerStepOut:
		s.onResume(command, true)
	case constants.DebuggerEvaluateOnCallFrame:
		if !s.agent.paused {
			s.sendError(command.ID, constants.ServerErrorCode, e.ErrNotPaused.Error())
			return
		}
		s.onEvaluateOnCallFrame(command)
	case constants.RuntimeEnable:
		s.onRuntimeEnable(command)
	case constants.RuntimeDisable:
		s.domains.Remove(constants.DomainRuntime)
		s.sendResult(command.ID, nil)
	case constants.RuntimeEvaluate:
		s.onEvaluate(command)
	case constants.RuntimeGetProperties:
		s.onGetProperties(command)
	case constants.RuntimeRunIfWaiting:
		s.sendResult(command.ID, nil)
		s.agent.client.RunIfWaitingForDebugger(s.groupID)
	case constants.ConsoleEnable:
		s.domains.Add(constants.DomainConsole)
		s.sendResult(command.ID, nil)
	case constants.ConsoleDisable:
		s.domains.Remove(constants.DomainConsole)
		s.sendResult(command.ID, nil)
	default:
		s.sendError(command.ID, constants.MethodNotFoundCode,
			fmt.Sprintf("'%s' wasn't found", command.Method))
	}
}

// Close 断开会话，正在进行的暂停不会因此结束
func (s *AgentSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.agent.removeSession(s)
	logrus.Infof("[Agent] session closed, group = %d", s.groupID)
}

func (s *AgentSession) enabled(domain constants.Domain) bool {
	return !s.closed && s.domains.Contains(domain)
}

func (s *AgentSession) onDebuggerEnable(command *protocol.Command) {
	first := !s.domains.Contains(constants.DomainDebugger)
	s.domains.Add(constants.DomainDebugger)
	if entry, ok := s.agent.contexts[s.groupID]; ok && first {
		for _, script := range entry.ctx.Scripts() {
			s.reportScriptParsed(entry, script)
		}
	}
	s.sendResult(command.ID, map[string]interface{}{"debuggerId": utils.GetUUID()})
}

func (s *AgentSession) onRuntimeEnable(command *protocol.Command) {
	first := !s.domains.Contains(constants.DomainRuntime)
	s.domains.Add(constants.DomainRuntime)
	if entry, ok := s.agent.contexts[s.groupID]; ok && first {
		s.reportContextCreated(entry)
	}
	s.sendResult(command.ID, nil)
}

func (s *AgentSession) onResume(command *protocol.Command, step bool) {
	if !s.agent.paused {
		s.sendError(command.ID, constants.ServerErrorCode, e.ErrNotPaused.Error())
		return
	}
	s.sendResult(command.ID, nil)
	if step {
		s.agent.requestPause(constants.StepPaused)
	}
	s.agent.resume()
}

func (s *AgentSession) onEvaluate(command *protocol.Command) {
	expression, entry, ok := s.evaluateTarget(command)
	if !ok {
		return
	}
	values, err := entry.ctx.Evaluate(expression)
	s.sendEvaluateResult(command.ID, values, err)
}

func (s *AgentSession) onEvaluateOnCallFrame(command *protocol.Command) {
	expression, entry, ok := s.evaluateTarget(command)
	if !ok {
		return
	}
	level, err := strconv.Atoi(command.Params.Get("callFrameId").String())
	if err != nil {
		s.sendError(command.ID, constants.ServerErrorCode, e.ErrCallFrameNotFound.Error())
		return
	}
	values, err := entry.ctx.EvaluateOnFrame(level, expression)
	s.sendEvaluateResult(command.ID, values, err)
}

func (s *AgentSession) onGetProperties(command *protocol.Command) {
	objectID := command.Params.Get("objectId")
	if !objectID.Exists() {
		s.sendError(command.ID, constants.InvalidParamsCode, "Invalid parameters: objectId: string value expected")
		return
	}
	entry, ok := s.agent.contexts[s.groupID]
	if !ok {
		s.sendError(command.ID, constants.ServerErrorCode, "Cannot find default execution context")
		return
	}
	// 栈帧作用域只在暂停期间存在
	if objectID.String() != globalObjectID && !s.agent.paused {
		s.sendError(command.ID, constants.ServerErrorCode, e.ErrNotPaused.Error())
		return
	}
	variables, err := scopeVariables(entry.ctx, objectID.String())
	if err != nil {
		s.sendError(command.ID, constants.ServerErrorCode, err.Error())
		return
	}
	s.sendResult(command.ID, &protocol.GetPropertiesResult{Result: toPropertyDescriptors(variables)})
}

// evaluateTarget 读取表达式和执行上下文，失败时已经回复错误
func (s *AgentSession) evaluateTarget(command *protocol.Command) (string, *contextEntry, bool) {
	expression := command.Params.Get("expression")
	if !expression.Exists() {
		s.sendError(command.ID, constants.InvalidParamsCode, "Invalid parameters: expression: string value expected")
		return "", nil, false
	}
	entry, ok := s.agent.contexts[s.groupID]
	if !ok {
		s.sendError(command.ID, constants.ServerErrorCode, "Cannot find default execution context")
		return "", nil, false
	}
	return expression.String(), entry, true
}

func (s *AgentSession) sendEvaluateResult(id int, values []lua.LValue, err error) {
	if err != nil {
		if errors.Is(err, e.ErrContextClosed) || errors.Is(err, e.ErrCallFrameNotFound) {
			s.sendError(id, constants.ServerErrorCode, err.Error())
			return
		}
		exception := &protocol.RemoteObject{Type: "object", Subtype: "error", ClassName: "Error", Description: err.Error()}
		s.sendResult(id, &protocol.EvaluateResult{
			Result: exception,
			ExceptionDetails: &protocol.ExceptionDetails{
				ExceptionID: 1,
				Text:        "Uncaught",
				Exception:   exception,
			},
		})
		return
	}

	result := &protocol.RemoteObject{Type: "undefined"}
	if len(values) > 0 {
		result = toRemoteObject(values[0])
	}
	s.sendResult(id, &protocol.EvaluateResult{Result: result})
}

func (s *AgentSession) reportContextCreated(entry *contextEntry) {
	s.sendEvent(constants.RuntimeExecutionContextCreatedEvent,
		&protocol.ExecutionContextCreatedEvent{Context: entry.description()})
}

func (s *AgentSession) reportScriptParsed(entry *contextEntry, script *Script) {
	s.sendEvent(constants.DebuggerScriptParsedEvent, &protocol.ScriptParsedEvent{
		ScriptID:           script.ID,
		URL:                script.URL,
		EndLine:            script.EndLine,
		ExecutionContextID: entry.id,
	})
}

// 会话关闭后不再发送任何消息，包括关闭前开始处理的命令的响应
func (s *AgentSession) sendResult(id int, result interface{}) {
	if s.closed {
		return
	}
	s.channel.SendResponse(id, protocol.Encode(protocol.NewResponse(id, result)))
}

func (s *AgentSession) sendError(id int, code int, message string) {
	if s.closed {
		return
	}
	s.channel.SendResponse(id, protocol.Encode(protocol.NewErrorResponse(id, code, message)))
}

func (s *AgentSession) sendEvent(method constants.ProtocolEvent, params interface{}) {
	if s.closed {
		return
	}
	s.channel.SendNotification(protocol.Encode(protocol.NewEvent(method, params)))
}
