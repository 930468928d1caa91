package lua_debugger

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/fansqz/lua-inspector/constants"
	e "github.com/fansqz/lua-inspector/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestHost(t *testing.T) *Host {
	host, err := NewHost(&HostOption{
		PauseInterval: time.Millisecond,
		Output:        io.Discard,
	})
	require.NoError(t, err)
	return host
}

func waitMessage(t *testing.T, host *Host, match func(gjson.Result) bool) gjson.Result {
	var found gjson.Result
	require.Eventually(t, func() bool {
		for {
			message := host.NextOutboundMessage()
			if message == "" {
				return false
			}
			if result := gjson.Parse(message); match(result) {
				found = result
				return true
			}
		}
	}, time.Second, time.Millisecond)
	return found
}

func withID(id int64) func(gjson.Result) bool {
	return func(result gjson.Result) bool {
		return result.Get("id").Exists() && result.Get("id").Int() == id
	}
}

func TestHost_RunAndServe(t *testing.T) {
	host := newTestHost(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.Run(ctx, "main.lua", "x = 10") }()

	require.NoError(t, host.Connect(ctx, constants.DefaultPort))
	assert.True(t, host.Connected())
	waitMessage(t, host, withID(3))

	host.Post(`{"id":4,"method":"Runtime.evaluate","params":{"expression":"x * 2"}}`)
	response := waitMessage(t, host, withID(4))
	assert.Equal(t, int64(20), response.Get("result.result.value").Int())

	require.NoError(t, host.Disconnect(ctx))
	assert.False(t, host.Connected())

	assert.Error(t, host.Close())
	cancel()
	require.NoError(t, <-done)
	assert.False(t, host.Running())
	require.NoError(t, host.Close())
	require.NoError(t, host.Close())
	assert.ErrorIs(t, host.Run(context.Background(), "main.lua", ""), e.ErrHostClosed)
}

func TestHost_PauseAndResume(t *testing.T) {
	host := newTestHost(t)
	defer host.Close()

	// 脚本执行前建立会话，debugger() 才会暂停
	host.Preconnect(constants.DefaultPort)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- host.Run(ctx, "main.lua", "debugger()\nresumed = true") }()

	require.Eventually(t, host.Paused, time.Second, time.Millisecond)
	host.Post(`{"id":10,"method":"Debugger.resume"}`)
	waitMessage(t, host, func(result gjson.Result) bool {
		return result.Get("method").String() == string(constants.DebuggerResumedEvent)
	})

	host.Post(`{"id":11,"method":"Runtime.evaluate","params":{"expression":"resumed"}}`)
	response := waitMessage(t, host, withID(11))
	assert.True(t, response.Get("result.result.value").Bool())

	cancel()
	require.NoError(t, <-done)
}

func TestHost_CancelWhilePaused(t *testing.T) {
	host := newTestHost(t)
	defer host.Close()

	host.Preconnect(constants.DefaultPort)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.Run(ctx, "main.lua", "debugger()") }()

	require.Eventually(t, host.Paused, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("host did not stop")
	}
	assert.False(t, host.Paused())
}

func TestHost_ConnectWithoutRun(t *testing.T) {
	host := newTestHost(t)
	defer host.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, host.Connect(ctx, constants.DefaultPort), e.ErrHostNotRunning)
}

func TestHost_ScriptError(t *testing.T) {
	host := newTestHost(t)
	defer host.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := host.Run(ctx, "main.lua", "error('boom')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestHost_PreconnectDoesNotWait(t *testing.T) {
	host := newTestHost(t)
	defer host.Close()

	host.Preconnect(constants.DefaultPort)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.NoError(t, host.Run(ctx, "main.lua", "x = 1"))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, host.Connected())
	waitMessage(t, host, withID(3))
}

func TestHost_DetachDiscardsMessages(t *testing.T) {
	host := newTestHost(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.Run(ctx, "main.lua", "") }()
	defer func() {
		cancel()
		<-done
		_ = host.Close()
	}()

	host.Preconnect(constants.DefaultPort)
	host.Post(`{"id":4,"method":"Runtime.evaluate","params":{"expression":"debugger()"}}`)
	require.Eventually(t, host.Paused, time.Second, time.Millisecond)
	require.Greater(t, host.Controller().PendingOutbound(), 0)

	require.NoError(t, host.Detach(ctx))
	assert.False(t, host.Connected())
	require.Eventually(t, func() bool { return !host.Paused() }, time.Second, time.Millisecond)
	// 会话断开后不会再产生消息
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "", host.NextOutboundMessage())
}
