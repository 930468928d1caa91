package debugger

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	e "github.com/fansqz/lua-inspector/error"
	"github.com/fansqz/lua-inspector/protocol"
	"github.com/fansqz/lua-inspector/utils"
	"github.com/sirupsen/logrus"
)

var (
	boundLock     sync.Mutex
	boundContexts = map[ExecutionContext]*Controller{}
)

// Controller 一个执行上下文的调试会话控制器
// 负责会话的建立与断开、转发协议消息，以及脚本暂停时的等待循环
type Controller struct {
	ctx     ExecutionContext
	agent   Agent
	channel *protocolChannel

	pauseInterval  time.Duration
	contextGroupID int
	contextName    string
	port           int
	observer       Observer

	// status 会话状态，外部线程也会读取
	status  *utils.StatusManager
	lock    sync.Mutex
	session *DebugSession

	// outbound 发往客户端的消息
	outbound *MessageQueue

	// inbound 其他线程投递的消息和任务，在解释器线程执行
	inboundLock sync.Mutex
	inbound     *linkedlistqueue.Queue
	notify      chan struct{}

	// paused 是否正在暂停循环中
	paused    atomic.Bool
	closeOnce sync.Once
}

type inboundItem struct {
	message string
	task    func()
}

// NewController 为执行上下文创建控制器，一个上下文同时只能绑定一个控制器
func NewController(ctx ExecutionContext, factory AgentFactory, opts ...Option) (*Controller, error) {
	if ctx == nil {
		return nil, e.ErrContextClosed
	}
	if factory == nil {
		return nil, errors.New("agent factory is nil")
	}
	c := defaultController()
	for _, opt := range opts {
		opt(c)
	}

	boundLock.Lock()
	if _, ok := boundContexts[ctx]; ok {
		boundLock.Unlock()
		return nil, e.ErrContextAlreadyBound
	}
	boundContexts[ctx] = c
	boundLock.Unlock()

	c.ctx = ctx
	c.status = utils.NewStatusManager()
	c.outbound = NewMessageQueue()
	c.inbound = linkedlistqueue.New()
	c.notify = make(chan struct{}, 1)
	c.channel = newProtocolChannel(c.outbound, c.observer)
	c.agent = factory(c)
	c.agent.ContextCreated(ctx, c.contextGroupID, c.contextName)
	logrus.Infof("[Controller] created, context = %s, group = %d", c.contextName, c.contextGroupID)
	return c, nil
}

// Connect 建立调试会话并启用 Debugger、Runtime、Console 三个域
// 已经存在会话时不做任何事，port 只做记录，控制器本身不监听端口
func (c *Controller) Connect(port int) {
	c.lock.Lock()
	if c.session != nil || c.status.Is(utils.Closed) {
		c.lock.Unlock()
		return
	}
	c.session = &DebugSession{
		ID:      utils.GetUUID(),
		Port:    port,
		session: c.agent.Connect(c.contextGroupID, c.channel),
	}
	c.port = port
	c.status.Set(utils.Connected)
	sessionID := c.session.ID
	c.lock.Unlock()

	logrus.Infof("[Controller] Connect, port = %d, session = %s", port, sessionID)
	c.observer.SessionConnected()
	for _, message := range protocol.BootstrapMessages() {
		c.Dispatch(message)
	}
}

// Disconnect 断开调试会话
// 暂停中调用也是安全的，但不会结束暂停循环，需要调用方另外 Resume
func (c *Controller) Disconnect() {
	c.lock.Lock()
	session := c.session
	c.session = nil
	if session != nil {
		c.status.Transfer(utils.Detached, utils.Connected)
	}
	c.lock.Unlock()
	if session == nil {
		return
	}
	session.session.Close()
	logrus.Infof("[Controller] Disconnect, session = %s", session.ID)
	c.observer.SessionDisconnected()
}

// Dispatch 同步把消息交给调试代理，没有会话时忽略
// 必须在解释器线程调用，其他线程请使用 Post
func (c *Controller) Dispatch(message string) {
	session := c.currentSession()
	if session == nil {
		return
	}
	c.observer.MessageDispatched()
	session.session.DispatchProtocolMessage(message)
}

// NextOutboundMessage 取出下一条待发送的消息，没有时返回空字符串
func (c *Controller) NextOutboundMessage() string {
	message, _ := c.outbound.Pop()
	return message
}

// DiscardOutbound 丢弃所有待发送消息，返回丢弃的数量
// 会话断开后调用，避免上一个客户端的消息发给下一个客户端
func (c *Controller) DiscardOutbound() int {
	return c.outbound.Clear()
}

// PendingOutbound 待发送消息数量
func (c *Controller) PendingOutbound() int {
	return c.outbound.Len()
}

// Post 从任意线程投递一条消息，由 Pump 在解释器线程转发
func (c *Controller) Post(message string) {
	c.pushInbound(inboundItem{message: message})
}

// Submit 从任意线程投递一个任务，由 Pump 在解释器线程执行
func (c *Controller) Submit(task func()) {
	if task == nil {
		return
	}
	c.pushInbound(inboundItem{task: task})
}

// Pump 按投递顺序处理所有积压的消息和任务，返回处理的数量
func (c *Controller) Pump() int {
	count := 0
	for {
		item, ok := c.popInbound()
		if !ok {
			return count
		}
		count++
		if item.task != nil {
			item.task()
			continue
		}
		c.Dispatch(item.message)
	}
}

// Notify 有新投递或需要结束暂停时收到信号
func (c *Controller) Notify() <-chan struct{} {
	return c.notify
}

// Close 销毁控制器：先断开会话，再通知代理上下文失效，最后解除绑定
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.Disconnect()
		c.status.Set(utils.Closed)
		c.agent.ContextDestroyed(c.ctx)
		boundLock.Lock()
		delete(boundContexts, c.ctx)
		boundLock.Unlock()
		logrus.Infof("[Controller] closed, context = %s", c.contextName)
	})
}

func (c *Controller) Connected() bool {
	return c.currentSession() != nil
}

// SessionID 当前会话id，没有会话时为空
func (c *Controller) SessionID() string {
	session := c.currentSession()
	if session == nil {
		return ""
	}
	return session.ID
}

// Port 最近一次连接使用的端口
func (c *Controller) Port() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.port
}

// Status 会话状态，见 utils 中的状态常量
func (c *Controller) Status() string {
	return c.status.Get()
}

func (c *Controller) ContextGroupID() int {
	return c.contextGroupID
}

func (c *Controller) ContextName() string {
	return c.contextName
}

func (c *Controller) currentSession() *DebugSession {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.session
}

func (c *Controller) pushInbound(item inboundItem) {
	c.inboundLock.Lock()
	c.inbound.Enqueue(item)
	c.inboundLock.Unlock()
	c.signal()
}

func (c *Controller) popInbound() (inboundItem, bool) {
	c.inboundLock.Lock()
	defer c.inboundLock.Unlock()
	value, ok := c.inbound.Dequeue()
	if !ok {
		return inboundItem{}, false
	}
	return value.(inboundItem), true
}

func (c *Controller) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
