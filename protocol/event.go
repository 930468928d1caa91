package protocol

import "github.com/fansqz/lua-inspector/constants"

// Event 没有 id 的通知消息
type Event struct {
	Method constants.ProtocolEvent `json:"method"`
	Params interface{}             `json:"params"`
}

func NewEvent(method constants.ProtocolEvent, params interface{}) *Event {
	if params == nil {
		params = EmptyResult{}
	}
	return &Event{Method: method, Params: params}
}

// RemoteObject 脚本值在协议中的表示
type RemoteObject struct {
	Type        string      `json:"type"`
	Subtype     string      `json:"subtype,omitempty"`
	ClassName   string      `json:"className,omitempty"`
	Value       interface{} `json:"value,omitempty"`
	Description string      `json:"description,omitempty"`
	ObjectID    string      `json:"objectId,omitempty"`
}

// Scope 栈帧中的一层作用域，object 的属性通过 Runtime.getProperties 读取
type Scope struct {
	Type   string        `json:"type"`
	Object *RemoteObject `json:"object"`
	Name   string        `json:"name,omitempty"`
}

// PropertyDescriptor 对象的一个属性
type PropertyDescriptor struct {
	Name         string        `json:"name"`
	Value        *RemoteObject `json:"value"`
	Writable     bool          `json:"writable"`
	Configurable bool          `json:"configurable"`
	Enumerable   bool          `json:"enumerable"`
	IsOwn        bool          `json:"isOwn"`
}

// GetPropertiesResult Runtime.getProperties 的返回
type GetPropertiesResult struct {
	Result []*PropertyDescriptor `json:"result"`
}

// ExceptionDetails 求值失败时的异常信息
type ExceptionDetails struct {
	ExceptionID  int           `json:"exceptionId"`
	Text         string        `json:"text"`
	LineNumber   int           `json:"lineNumber"`
	ColumnNumber int           `json:"columnNumber"`
	Exception    *RemoteObject `json:"exception,omitempty"`
}

// EvaluateResult Runtime.evaluate 的返回
type EvaluateResult struct {
	Result           *RemoteObject     `json:"result"`
	ExceptionDetails *ExceptionDetails `json:"exceptionDetails,omitempty"`
}

// Location 脚本中的位置，行号从0开始
type Location struct {
	ScriptID     string `json:"scriptId"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

// CallFrame 暂停时的栈帧
type CallFrame struct {
	CallFrameID  string        `json:"callFrameId"`
	FunctionName string        `json:"functionName"`
	Location     Location      `json:"location"`
	URL          string        `json:"url"`
	ScopeChain   []*Scope      `json:"scopeChain"`
	This         *RemoteObject `json:"this"`
}

// PausedEvent Debugger.paused 参数
type PausedEvent struct {
	CallFrames     []*CallFrame               `json:"callFrames"`
	Reason         constants.PausedReasonType `json:"reason"`
	HitBreakpoints []string                   `json:"hitBreakpoints"`
}

// ScriptParsedEvent Debugger.scriptParsed 参数
type ScriptParsedEvent struct {
	ScriptID           string `json:"scriptId"`
	URL                string `json:"url"`
	StartLine          int    `json:"startLine"`
	StartColumn        int    `json:"startColumn"`
	EndLine            int    `json:"endLine"`
	EndColumn          int    `json:"endColumn"`
	ExecutionContextID int    `json:"executionContextId"`
	Hash               string `json:"hash"`
}

// ExecutionContextDescription 执行上下文描述
type ExecutionContextDescription struct {
	ID       int    `json:"id"`
	Origin   string `json:"origin"`
	Name     string `json:"name"`
	UniqueID string `json:"uniqueId"`
}

// ExecutionContextCreatedEvent Runtime.executionContextCreated 参数
type ExecutionContextCreatedEvent struct {
	Context ExecutionContextDescription `json:"context"`
}

// ExecutionContextDestroyedEvent Runtime.executionContextDestroyed 参数
type ExecutionContextDestroyedEvent struct {
	ExecutionContextID int `json:"executionContextId"`
}

// ConsoleAPICalledEvent Runtime.consoleAPICalled 参数
type ConsoleAPICalledEvent struct {
	Type               constants.ConsoleAPIType `json:"type"`
	Args               []*RemoteObject          `json:"args"`
	ExecutionContextID int                      `json:"executionContextId"`
	Timestamp          float64                  `json:"timestamp"`
}
