package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fansqz/lua-inspector/debugger/lua_debugger"
	"github.com/fansqz/lua-inspector/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// startHost 在后台协程运行脚本，测试结束时停止
func startHost(t *testing.T, source string, observer *metrics.Collector) *lua_debugger.Host {
	option := &lua_debugger.HostOption{
		PauseInterval: time.Millisecond,
		Output:        io.Discard,
	}
	if observer != nil {
		option.Observer = observer
	}
	host, err := lua_debugger.NewHost(option)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.Run(ctx, "main.lua", source) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = host.Close()
	})
	return host
}

func testConfig() *Config {
	return &Config{
		Port:          9229,
		PauseInterval: time.Millisecond,
	}
}

// pollMessage 轮询下一条消息直到满足条件
func pollMessage(t *testing.T, server *httptest.Server, match func(gjson.Result) bool) gjson.Result {
	var found gjson.Result
	require.Eventually(t, func() bool {
		for {
			resp, err := http.Get(server.URL + "/session/messages/next")
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusNoContent {
				return false
			}
			require.Equal(t, http.StatusOK, resp.StatusCode)
			if result := gjson.ParseBytes(body); match(result) {
				found = result
				return true
			}
		}
	}, time.Second, 5*time.Millisecond)
	return found
}

func hasID(id int64) func(gjson.Result) bool {
	return func(result gjson.Result) bool {
		return result.Get("id").Exists() && result.Get("id").Int() == id
	}
}

func TestDebuggerHandler_Session(t *testing.T) {
	registry := prometheus.NewRegistry()
	host := startHost(t, "x = 21", metrics.NewCollector(registry))
	server := httptest.NewServer(NewDebuggerHandler(host, registry, testConfig()).Routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/session", "application/json", nil)
	require.NoError(t, err)
	info := &SessionInfo{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(info))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "connected", info.Status)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 9229, info.Port)

	pollMessage(t, server, hasID(3))

	resp, err = http.Post(server.URL+"/session/messages", "application/json",
		strings.NewReader(`{"id":4,"method":"Runtime.evaluate","params":{"expression":"x * 2"}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	response := pollMessage(t, server, hasID(4))
	assert.Equal(t, int64(42), response.Get("result.result.value").Int())

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/session", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, host.Connected())

	resp, err = http.Post(server.URL+"/session/messages", "application/json", strings.NewReader(`{"id":5,"method":"Runtime.enable"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "lua_inspector_session_connects_total 1")
}

func TestDebuggerHandler_Resume(t *testing.T) {
	host := startHost(t, "", nil)
	server := httptest.NewServer(NewDebuggerHandler(host, nil, testConfig()).Routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/session", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Post(server.URL+"/session/messages", "application/json",
		strings.NewReader(`{"id":10,"method":"Runtime.evaluate","params":{"expression":"debugger()"}}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Eventually(t, host.Paused, time.Second, time.Millisecond)

	resp, err = http.Get(server.URL + "/session")
	require.NoError(t, err)
	info := &SessionInfo{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(info))
	resp.Body.Close()
	assert.True(t, info.Paused)

	resp, err = http.Post(server.URL+"/session/resume", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Eventually(t, func() bool { return !host.Paused() }, time.Second, time.Millisecond)
	pollMessage(t, server, hasID(10))
}

func TestDebuggerHandler_Version(t *testing.T) {
	host := startHost(t, "", nil)
	server := httptest.NewServer(NewDebuggerHandler(host, nil, testConfig()).Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/json/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "lua-inspector/"+Version, gjson.GetBytes(body, "Browser").String())
	assert.Equal(t, protocolVersion, gjson.GetBytes(body, "Protocol-Version").String())

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
