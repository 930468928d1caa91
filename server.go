package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/fansqz/lua-inspector/constants"
	"github.com/fansqz/lua-inspector/debugger/lua_debugger"
	"github.com/fansqz/lua-inspector/protocol"
	"github.com/fansqz/lua-inspector/utils"
	"github.com/fansqz/lua-inspector/utils/gosync"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// disconnectTimeout 连接关闭后等待解释器线程断开会话的时间
const disconnectTimeout = time.Second

// TCPServer 通过 TCP 连接收发协议消息，每条消息使用 Content-Length 分帧
// 同一时间只服务一个客户端，连接即建立会话，断开即结束会话并恢复脚本
type TCPServer struct {
	host         *lua_debugger.Host
	port         int
	pollInterval time.Duration
	idleTimeout  time.Duration

	lock   sync.Mutex
	active net.Conn
}

func NewTCPServer(host *lua_debugger.Host, config *Config) *TCPServer {
	pollInterval := config.PauseInterval
	if pollInterval <= 0 {
		pollInterval = constants.DefaultPauseInterval
	}
	return &TCPServer{
		host:         host,
		port:         config.Port,
		pollInterval: pollInterval,
		idleTimeout:  config.IdleTimeout,
	}
}

// Serve 接受连接直到 ctx 结束或 listener 被关闭
func (s *TCPServer) Serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()
	logrus.Infof("[TCPServer] listening at %s", listener.Addr())
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.acquire(conn) {
			logrus.Warnf("[TCPServer] reject %s, a client is already attached", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}
		gosync.Go(ctx, "tcp-conn", func(ctx context.Context) {
			defer s.release(conn)
			s.handleConnection(ctx, conn)
		})
	}
}

func (s *TCPServer) handleConnection(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	logrus.Infof("[TCPServer] accept %s", conn.RemoteAddr())
	if err := s.host.Connect(ctx, s.port); err != nil {
		logrus.Warnf("[TCPServer] connect fail, err = %v", err)
		return
	}
	defer s.detach()

	idle := utils.NewTimeoutManager()
	if s.idleTimeout > 0 {
		idle.Start(ctx, s.idleTimeout, func() {
			logrus.Infof("[TCPServer] %s idle for %s, closing", conn.RemoteAddr(), s.idleTimeout)
			cancel()
		})
		defer idle.Cancel()
	}

	writerDone := make(chan struct{})
	gosync.Go(ctx, "tcp-writer", func(ctx context.Context) {
		defer close(writerDone)
		s.writeLoop(ctx, conn)
	})
	s.readLoop(conn, idle)
	cancel()
	<-writerDone
	logrus.Infof("[TCPServer] closing connection from %s", conn.RemoteAddr())
}

// readLoop 读取客户端消息并投递给解释器线程
func (s *TCPServer) readLoop(conn net.Conn, idle *utils.TimeoutManager) {
	reader := bufio.NewReader(conn)
	for {
		content, err := dap.ReadBaseMessage(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logrus.Warnf("[TCPServer] read fail, err = %v", err)
			}
			return
		}
		idle.Reset()
		message := string(content)
		if id, ok := protocol.PeekCallID(message); ok && protocol.IsReservedCallID(id) {
			logrus.Warnf("[TCPServer] message id %d is reserved for bootstrap commands", id)
		}
		s.host.Post(message)
	}
}

// writeLoop 每个轮询周期把积压的消息写给客户端
func (s *TCPServer) writeLoop(ctx context.Context, conn net.Conn) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			message := s.host.NextOutboundMessage()
			if message == "" {
				break
			}
			if err := dap.WriteBaseMessage(conn, []byte(message)); err != nil {
				logrus.Warnf("[TCPServer] write fail, err = %v", err)
				return
			}
		}
	}
}

// detach 断开会话，恢复可能正在暂停的脚本并丢弃旧会话的消息
func (s *TCPServer) detach() {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := s.host.Detach(ctx); err != nil {
		logrus.Warnf("[TCPServer] disconnect fail, err = %v", err)
	}
}

func (s *TCPServer) acquire(conn net.Conn) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.active != nil {
		return false
	}
	s.active = conn
	return true
}

func (s *TCPServer) release(conn net.Conn) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.active == conn {
		s.active = nil
	}
}
