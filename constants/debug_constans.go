package constants

import "time"

// 调试器默认配置
const (
	// DefaultPort 远程调试客户端习惯使用的端口
	DefaultPort = 9229
	// DefaultContextGroupID 执行上下文所属的分组
	DefaultContextGroupID = 1
	// DefaultContextName 上报给客户端的上下文名称
	DefaultContextName = "Lua Context"
	// DefaultPauseInterval 暂停循环每一轮的最长等待时间
	DefaultPauseInterval = 10 * time.Millisecond
)

// ProtocolMethod 协议方法名称
type ProtocolMethod string

const (
	DebuggerEnable              ProtocolMethod = "Debugger.enable"
	DebuggerDisable             ProtocolMethod = "Debugger.disable"
	DebuggerPause               ProtocolMethod = "Debugger.pause"
	DebuggerResume              ProtocolMethod = "Debugger.resume"
	DebuggerStepOver            ProtocolMethod = "Debugger.stepOver"
	DebuggerStepInto            ProtocolMethod = "Debugger.stepInto"
	DebuggerStepOut             ProtocolMethod = "Debugger.stepOut"
	DebuggerEvaluateOnCallFrame ProtocolMethod = "Debugger.evaluateOnCallFrame"
	RuntimeEnable               ProtocolMethod = "Runtime.enable"
	RuntimeDisable              ProtocolMethod = "Runtime.disable"
	RuntimeEvaluate             ProtocolMethod = "Runtime.evaluate"
	RuntimeGetProperties        ProtocolMethod = "Runtime.getProperties"
	RuntimeRunIfWaiting         ProtocolMethod = "Runtime.runIfWaitingForDebugger"
	ConsoleEnable               ProtocolMethod = "Console.enable"
	ConsoleDisable              ProtocolMethod = "Console.disable"
)

// ProtocolEvent 协议事件名称
type ProtocolEvent string

const (
	DebuggerPausedEvent                   ProtocolEvent = "Debugger.paused"
	DebuggerResumedEvent                  ProtocolEvent = "Debugger.resumed"
	DebuggerScriptParsedEvent             ProtocolEvent = "Debugger.scriptParsed"
	RuntimeExecutionContextCreatedEvent   ProtocolEvent = "Runtime.executionContextCreated"
	RuntimeExecutionContextDestroyedEvent ProtocolEvent = "Runtime.executionContextDestroyed"
	RuntimeConsoleAPICalledEvent          ProtocolEvent = "Runtime.consoleAPICalled"
)

// Domain 协议域
type Domain string

const (
	DomainDebugger Domain = "Debugger"
	DomainRuntime  Domain = "Runtime"
	DomainConsole  Domain = "Console"
)

// BootstrapCommand 连接时自动下发的命令
type BootstrapCommand struct {
	ID     int
	Method ProtocolMethod
}

// BootstrapCommands 连接后按顺序启用的协议域，id 1-3 为保留 id
var BootstrapCommands = []BootstrapCommand{
	{ID: 1, Method: DebuggerEnable},
	{ID: 2, Method: RuntimeEnable},
	{ID: 3, Method: ConsoleEnable},
}

// ScopeType 栈帧作用域类型
type ScopeType string

const (
	LocalScope   ScopeType = "local"
	ClosureScope ScopeType = "closure"
	GlobalScope  ScopeType = "global"
)

// PausedReasonType 暂停原因
type PausedReasonType string

const (
	DebugCommandPaused PausedReasonType = "debugCommand"
	StepPaused         PausedReasonType = "step"
	OtherPaused        PausedReasonType = "other"
)

// ConsoleAPIType console调用类型
type ConsoleAPIType string

const (
	ConsoleLog     ConsoleAPIType = "log"
	ConsoleInfo    ConsoleAPIType = "info"
	ConsoleWarning ConsoleAPIType = "warning"
	ConsoleError   ConsoleAPIType = "error"
)

// 协议错误码
const (
	ParseErrorCode     = -32700
	InvalidRequestCode = -32600
	MethodNotFoundCode = -32601
	InvalidParamsCode  = -32602
	ServerErrorCode    = -32000
)
