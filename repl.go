package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fansqz/lua-inspector/constants"
	"github.com/fansqz/lua-inspector/debugger/lua_debugger"
	"github.com/fansqz/lua-inspector/utils/gosync"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const prompt = "> "

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl <script.lua>",
		Short: "Run a script with a debug session driven from stdin",
		Long: `Each input line is sent to the debug session as one protocol message and every
message the session produces is printed on its own line. ".resume" resumes a paused
script and ".quit" exits.`,
		Args: cobra.ExactArgs(1),
		RunE: runRepl,
	}
}

func runRepl(cmd *cobra.Command, args []string) error {
	config := loadConfig()
	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	out := &syncWriter{w: cmd.OutOrStdout()}
	host, err := newHost(config, out, nil)
	if err != nil {
		return err
	}
	defer host.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 会话要在脚本执行前建立，脚本中的 debugger() 才会暂停
	host.Preconnect(config.Port)

	repl := NewRepl(host, cmd.InOrStdin(), out, config.PauseInterval)
	gosync.Go(ctx, "repl-reader", func(ctx context.Context) {
		repl.readLoop(ctx)
		cancel()
	})
	gosync.Go(ctx, "repl-writer", repl.writeLoop)
	return host.Run(ctx, args[0], string(source))
}

// Repl 在标准输入输出上收发协议消息
type Repl struct {
	host         *lua_debugger.Host
	in           io.Reader
	out          io.Writer
	interactive  bool
	pollInterval time.Duration
}

func NewRepl(host *lua_debugger.Host, in io.Reader, out io.Writer, pollInterval time.Duration) *Repl {
	if pollInterval <= 0 {
		pollInterval = constants.DefaultPauseInterval
	}
	return &Repl{
		host:         host,
		in:           in,
		out:          out,
		interactive:  isTerminal(in),
		pollInterval: pollInterval,
	}
}

// readLoop 逐行读取消息，输入结束时断开会话并恢复脚本
func (r *Repl) readLoop(ctx context.Context) {
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := r.host.Disconnect(disconnectCtx); err != nil {
			logrus.Warnf("[Repl] disconnect fail, err = %v", err)
		}
		r.host.Resume()
	}()

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for {
		if r.interactive {
			fmt.Fprint(r.out, prompt)
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case ".quit":
			return
		case ".resume":
			r.host.Resume()
			continue
		}
		r.host.Post(line)
		if ctx.Err() != nil {
			return
		}
	}
}

// writeLoop 把发往客户端的消息逐行输出
func (r *Repl) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *Repl) flush() {
	for {
		message := r.host.NextOutboundMessage()
		if message == "" {
			return
		}
		fmt.Fprintln(r.out, message)
	}
}

func isTerminal(in io.Reader) bool {
	file, ok := in.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// syncWriter 脚本输出和协议消息来自不同协程，按行加锁写入
type syncWriter struct {
	lock sync.Mutex
	w    io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.w.Write(p)
}
