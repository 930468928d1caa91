package debugger

import (
	"time"

	"github.com/fansqz/lua-inspector/constants"
)

// Option 控制器的配置项
type Option func(*Controller)

// WithPauseInterval 暂停循环每一轮的最长等待时间
func WithPauseInterval(interval time.Duration) Option {
	return func(c *Controller) {
		if interval > 0 {
			c.pauseInterval = interval
		}
	}
}

// WithContextGroupID 上下文所在的分组
func WithContextGroupID(id int) Option {
	return func(c *Controller) {
		c.contextGroupID = id
	}
}

// WithContextName 上报给客户端的上下文名称
func WithContextName(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.contextName = name
		}
	}
}

// WithObserver 设置事件观察者
func WithObserver(observer Observer) Option {
	return func(c *Controller) {
		if observer != nil {
			c.observer = observer
		}
	}
}

func defaultController() *Controller {
	return &Controller{
		pauseInterval:  constants.DefaultPauseInterval,
		contextGroupID: constants.DefaultContextGroupID,
		contextName:    constants.DefaultContextName,
		port:           constants.DefaultPort,
		observer:       nopObserver{},
	}
}

// DebugSession 一次调试连接
type DebugSession struct {
	ID      string
	Port    int
	session AgentSession
}

type nopObserver struct{}

func (nopObserver) SessionConnected()             {}
func (nopObserver) SessionDisconnected()          {}
func (nopObserver) MessageDispatched()            {}
func (nopObserver) MessageQueued(int)             {}
func (nopObserver) PauseStarted()                 {}
func (nopObserver) PauseFinished(d time.Duration) {}
