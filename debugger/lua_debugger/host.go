package lua_debugger

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/fansqz/lua-inspector/debugger"
	e "github.com/fansqz/lua-inspector/error"
	"github.com/sirupsen/logrus"
)

// HostOption 宿主的启动参数
type HostOption struct {
	ContextName    string
	ContextGroupID int
	PauseInterval  time.Duration
	// Output print 输出位置
	Output   io.Writer
	Observer debugger.Observer
}

// Host 持有 Lua 上下文和控制器，调用 Run 的协程即解释器线程
// 除 Run 外的方法可以在任意协程调用，需要解释器线程执行的操作会投递给它
type Host struct {
	context    *LuaContext
	controller *debugger.Controller

	running atomic.Bool
	closed  atomic.Bool
}

func NewHost(option *HostOption) (*Host, error) {
	if option == nil {
		option = &HostOption{}
	}
	luaContext := NewLuaContext(WithOutput(option.Output))
	opts := []debugger.Option{
		debugger.WithContextName(option.ContextName),
		debugger.WithPauseInterval(option.PauseInterval),
		debugger.WithObserver(option.Observer),
	}
	if option.ContextGroupID != 0 {
		opts = append(opts, debugger.WithContextGroupID(option.ContextGroupID))
	}
	controller, err := debugger.NewController(luaContext, NewAgentFactory(), opts...)
	if err != nil {
		luaContext.Close()
		return nil, err
	}
	// 脚本每次调用宿主函数时处理积压的消息，这样运行中也能收到 Debugger.pause
	luaContext.SetCheckpoint(func() { controller.Pump() })
	return &Host{
		context:    luaContext,
		controller: controller,
	}, nil
}

// Run 在当前协程执行脚本，然后持续处理投递的消息直到 ctx 结束
// 返回脚本的执行错误
func (h *Host) Run(ctx context.Context, name string, source string) error {
	if h.closed.Load() {
		return e.ErrHostClosed
	}
	if !h.running.CompareAndSwap(false, true) {
		return errors.New("host is already running")
	}
	defer h.running.Store(false)

	h.context.L.SetContext(ctx)
	defer h.context.L.RemoveContext()
	stop := context.AfterFunc(ctx, h.controller.Resume)
	defer stop()

	h.controller.Pump()
	logrus.Infof("[Host] run script %s", name)
	scriptErr := h.context.Run(name, source)
	if scriptErr != nil {
		logrus.Warnf("[Host] script %s fail, err = %v", name, scriptErr)
	}
	h.serve(ctx)
	return scriptErr
}

// serve 空闲时处理投递的消息和微任务
func (h *Host) serve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.controller.Pump()
			return
		case <-h.controller.Notify():
			h.controller.Pump()
			h.context.RunMicrotasks()
		}
	}
}

// Connect 建立调试会话，等待解释器线程执行完成
func (h *Host) Connect(ctx context.Context, port int) error {
	return h.call(ctx, func() { h.controller.Connect(port) })
}

// Disconnect 断开调试会话，暂停中也可以调用
func (h *Host) Disconnect(ctx context.Context) error {
	return h.call(ctx, h.controller.Disconnect)
}

// Preconnect 在脚本执行前建立会话，Run 开始时处理
// 脚本中的 debugger() 因此可以在客户端连上之前暂停，客户端连上后收到积压的消息
// 不会等待客户端，没有客户端时由 Resume 或 ctx 结束恢复
func (h *Host) Preconnect(port int) {
	h.controller.Submit(func() { h.controller.Connect(port) })
}

// Detach 断开会话并恢复脚本，然后丢弃没有取走的消息
// 断开后代理不会再产生消息，所以丢弃的只是属于旧会话的消息
func (h *Host) Detach(ctx context.Context) error {
	err := h.Disconnect(ctx)
	h.Resume()
	if err != nil {
		return err
	}
	if n := h.controller.DiscardOutbound(); n > 0 {
		logrus.Infof("[Host] discard %d messages of the closed session", n)
	}
	return nil
}

// Post 投递一条协议消息
func (h *Host) Post(message string) {
	h.controller.Post(message)
}

// NextOutboundMessage 取出下一条发往客户端的消息，没有时返回空字符串
func (h *Host) NextOutboundMessage() string {
	return h.controller.NextOutboundMessage()
}

// Resume 结束暂停
func (h *Host) Resume() {
	h.controller.Resume()
}

func (h *Host) Paused() bool {
	return h.controller.Paused()
}

func (h *Host) Connected() bool {
	return h.controller.Connected()
}

func (h *Host) Running() bool {
	return h.running.Load()
}

func (h *Host) Controller() *debugger.Controller {
	return h.controller
}

func (h *Host) Context() *LuaContext {
	return h.context
}

// Close 销毁控制器和上下文，必须在 Run 返回后调用
func (h *Host) Close() error {
	if h.running.Load() {
		return errors.New("host is still running")
	}
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.controller.Close()
	h.context.Close()
	return nil
}

// call 把任务交给解释器线程并等待完成
func (h *Host) call(ctx context.Context, task func()) error {
	if h.closed.Load() {
		return e.ErrHostClosed
	}
	done := make(chan struct{})
	h.controller.Submit(func() {
		defer close(done)
		task()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if !h.running.Load() {
			return e.ErrHostNotRunning
		}
		return ctx.Err()
	}
}
