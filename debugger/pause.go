package debugger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// RunMessageLoopOnPause 脚本暂停时由解释器调用，阻塞直到被通知恢复
// 每一轮先处理投递的消息，再执行微任务，然后最多等待 pauseInterval
// 已经在暂停循环中时直接返回
func (c *Controller) RunMessageLoopOnPause(contextGroupID int) {
	if !c.paused.CompareAndSwap(false, true) {
		return
	}
	logrus.Infof("[Controller] pause, group = %d", contextGroupID)
	c.observer.PauseStarted()
	start := time.Now()

	timer := time.NewTimer(c.pauseInterval)
	defer timer.Stop()
	for c.paused.Load() {
		c.Pump()
		c.ctx.RunMicrotasks()
		if !c.paused.Load() {
			break
		}
		timer.Reset(c.pauseInterval)
		select {
		case <-c.notify:
		case <-timer.C:
		}
	}

	c.observer.PauseFinished(time.Since(start))
	logrus.Infof("[Controller] resume, group = %d", contextGroupID)
}

// QuitMessageLoopOnPause 结束暂停循环，循环在下一次检查时退出
func (c *Controller) QuitMessageLoopOnPause() {
	c.paused.Store(false)
	c.signal()
}

// RunIfWaitingForDebugger 解释器询问是否等待调试器，这里总是直接继续执行
// 没有客户端时等待会永远无法恢复
func (c *Controller) RunIfWaitingForDebugger(contextGroupID int) {
	c.paused.Store(false)
	c.signal()
}

// Resume 供宿主在任意线程结束暂停
func (c *Controller) Resume() {
	c.QuitMessageLoopOnPause()
}

// Paused 是否正在暂停循环中
func (c *Controller) Paused() bool {
	return c.paused.Load()
}
