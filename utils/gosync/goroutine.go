package gosync

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Go 启动一个协程，兜住 panic 并带上名字和堆栈记录日志
// 协程内部 panic 不会导致进程退出，调用方需要自己处理任务未完成的情况
func Go(ctx context.Context, name string, task func(ctx context.Context)) {
	go func() {
		defer func() {
			if err := recover(); err != nil {
				logrus.WithField("goroutine", name).
					Errorf("[gosync] goroutine panic, err = %v\n%s", err, debug.Stack())
			}
		}()
		task(ctx)
	}()
}
