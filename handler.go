package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fansqz/lua-inspector/debugger/lua_debugger"
	e "github.com/fansqz/lua-inspector/error"
	"github.com/fansqz/lua-inspector/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	// requestTimeout 等待解释器线程处理会话请求的最长时间
	requestTimeout = 5 * time.Second
	// maxMessageSize 单条协议消息的大小上限
	maxMessageSize = 1 << 20
	// protocolVersion 上报给客户端的协议版本
	protocolVersion = "1.3"
)

// DebuggerHandler 基于 HTTP 轮询的传输层
// 客户端通过 POST 发送消息，通过 GET 逐条拉取发往客户端的消息
type DebuggerHandler struct {
	host     *lua_debugger.Host
	gatherer prometheus.Gatherer
	port     int
}

// SessionInfo 会话状态
type SessionInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Port   int    `json:"port"`
	Paused bool   `json:"paused"`
}

func NewDebuggerHandler(host *lua_debugger.Host, gatherer prometheus.Gatherer, config *Config) *DebuggerHandler {
	return &DebuggerHandler{
		host:     host,
		gatherer: gatherer,
		port:     config.Port,
	}
}

// Routes 注册所有路由
func (d *DebuggerHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/session", func(r chi.Router) {
		r.Get("/", d.handleGetSession)
		r.Post("/", d.handleConnect)
		r.Delete("/", d.handleDisconnect)
		r.Post("/messages", d.handlePostMessage)
		r.Get("/messages/next", d.handleNextMessage)
		r.Post("/resume", d.handleResume)
	})
	r.Get("/json/version", d.handleVersion)
	if d.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (d *DebuggerHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	d.writeJSON(w, http.StatusOK, d.sessionInfo())
}

func (d *DebuggerHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := d.host.Connect(ctx, d.port); err != nil {
		d.writeError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, d.sessionInfo())
}

func (d *DebuggerHandler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := d.host.Detach(ctx); err != nil {
		d.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *DebuggerHandler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	if !d.host.Connected() {
		http.Error(w, "no debug session", http.StatusConflict)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	message := string(body)
	if id, ok := protocol.PeekCallID(message); ok && protocol.IsReservedCallID(id) {
		logrus.Warnf("[DebuggerHandler] message id %d is reserved for bootstrap commands", id)
	}
	d.host.Post(message)
	w.WriteHeader(http.StatusAccepted)
}

func (d *DebuggerHandler) handleNextMessage(w http.ResponseWriter, r *http.Request) {
	message := d.host.NextOutboundMessage()
	if message == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, message)
}

func (d *DebuggerHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	d.host.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (d *DebuggerHandler) handleVersion(w http.ResponseWriter, r *http.Request) {
	d.writeJSON(w, http.StatusOK, map[string]string{
		"Browser":          "lua-inspector/" + Version,
		"Protocol-Version": protocolVersion,
	})
}

func (d *DebuggerHandler) sessionInfo() *SessionInfo {
	controller := d.host.Controller()
	return &SessionInfo{
		ID:     controller.SessionID(),
		Status: controller.Status(),
		Port:   controller.Port(),
		Paused: controller.Paused(),
	}
}

func (d *DebuggerHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, e.ErrHostClosed), errors.Is(err, e.ErrHostNotRunning):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	logrus.Warnf("[DebuggerHandler] request fail, err = %v", err)
	http.Error(w, err.Error(), status)
}

func (d *DebuggerHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Warnf("[DebuggerHandler] encode response fail, err = %v", err)
	}
}
