package debugger

import "time"

// ExecutionContext 被调试的脚本执行环境（全局作用域 + 堆）
// 由外部持有，控制器只保留引用，控制器必须先于上下文销毁
type ExecutionContext interface {
	// RunMicrotasks 执行积压的微任务，只能在解释器线程调用
	RunMicrotasks()
}

// Channel 调试代理向外发送协议消息的通道
type Channel interface {
	// SendResponse 发送某次调用的响应
	SendResponse(callID int, message string)
	// SendNotification 发送通知
	SendNotification(message string)
	// FlushProtocolNotifications 刷新通知
	FlushProtocolNotifications()
}

// Client 由宿主实现、交给调试代理的能力对象
// 三个方法都由解释器线程同步调用
type Client interface {
	// RunMessageLoopOnPause 脚本暂停时调用，返回即恢复执行
	RunMessageLoopOnPause(contextGroupID int)
	// QuitMessageLoopOnPause 结束暂停循环
	QuitMessageLoopOnPause()
	// RunIfWaitingForDebugger 启动时等待调试器的机会，宿主选择不等待
	RunIfWaitingForDebugger(contextGroupID int)
}

// Agent 解释器内部理解调试协议的组件
type Agent interface {
	// ContextCreated 通知代理有新的执行上下文
	ContextCreated(ctx ExecutionContext, contextGroupID int, name string)
	// ContextDestroyed 通知代理执行上下文即将失效
	ContextDestroyed(ctx ExecutionContext)
	// Connect 建立一个调试会话，代理产生的消息写入channel
	Connect(contextGroupID int, channel Channel) AgentSession
}

// AgentSession 代理侧的一个会话
type AgentSession interface {
	// DispatchProtocolMessage 同步处理一条协议消息
	DispatchProtocolMessage(message string)
	// Close 断开会话
	Close()
}

// AgentFactory 以宿主能力对象创建调试代理
type AgentFactory func(client Client) Agent

// Observer 观察控制器内部事件，用于指标统计
type Observer interface {
	SessionConnected()
	SessionDisconnected()
	MessageDispatched()
	MessageQueued(depth int)
	PauseStarted()
	PauseFinished(duration time.Duration)
}
