package main

import (
	"bufio"
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func startTCPServer(t *testing.T, server *TCPServer) net.Addr {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return listener.Addr()
}

// readUntil 读取分帧消息直到满足条件
func readUntil(t *testing.T, conn net.Conn, reader *bufio.Reader, match func(gjson.Result) bool) gjson.Result {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	for {
		content, err := dap.ReadBaseMessage(reader)
		require.NoError(t, err)
		if result := gjson.ParseBytes(content); match(result) {
			return result
		}
	}
}

func TestTCPServer_Session(t *testing.T) {
	host := startHost(t, "x = 5", nil)
	addr := startTCPServer(t, NewTCPServer(host, testConfig()))

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	readUntil(t, conn, reader, hasID(3))
	assert.True(t, host.Connected())

	require.NoError(t, dap.WriteBaseMessage(conn,
		[]byte(`{"id":4,"method":"Runtime.evaluate","params":{"expression":"x + 1"}}`)))
	response := readUntil(t, conn, reader, hasID(4))
	assert.Equal(t, int64(6), response.Get("result.result.value").Int())

	// 已有客户端时拒绝新连接
	other, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = dap.ReadBaseMessage(bufio.NewReader(other))
	assert.Error(t, err)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !host.Connected() }, time.Second, time.Millisecond)
}

func TestTCPServer_CloseResumes(t *testing.T) {
	host := startHost(t, "", nil)
	server := NewTCPServer(host, testConfig())
	addr := startTCPServer(t, server)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	reader := bufio.NewReader(conn)
	readUntil(t, conn, reader, hasID(3))

	require.NoError(t, dap.WriteBaseMessage(conn,
		[]byte(`{"id":5,"method":"Runtime.evaluate","params":{"expression":"debugger()"}}`)))
	readUntil(t, conn, reader, func(result gjson.Result) bool {
		return result.Get("method").String() == "Debugger.paused"
	})
	assert.True(t, host.Paused())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return !host.Paused() && !host.Connected() && !server.attached()
	}, time.Second, time.Millisecond)

	// 新客户端只收到自己会话的消息
	next, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer next.Close()
	nextReader := bufio.NewReader(next)
	var seen []gjson.Result
	readUntil(t, next, nextReader, func(result gjson.Result) bool {
		seen = append(seen, result)
		return hasID(3)(result)
	})
	for _, message := range seen {
		assert.NotEqual(t, int64(5), message.Get("id").Int())
		assert.NotEqual(t, "Debugger.resumed", message.Get("method").String())
	}
}

func TestTCPServer_IdleTimeout(t *testing.T) {
	host := startHost(t, "", nil)
	config := testConfig()
	config.IdleTimeout = 50 * time.Millisecond
	addr := startTCPServer(t, NewTCPServer(host, config))

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))

	// 读完启动消息后连接会因空闲被关闭
	for {
		if _, err = dap.ReadBaseMessage(reader); err != nil {
			break
		}
	}
	assert.NotErrorIs(t, err, os.ErrDeadlineExceeded)
	require.Eventually(t, func() bool { return !host.Connected() }, time.Second, time.Millisecond)
}

func (s *TCPServer) attached() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.active != nil
}
