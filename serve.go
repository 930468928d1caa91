package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fansqz/lua-inspector/debugger/lua_debugger"
	"github.com/fansqz/lua-inspector/metrics"
	"github.com/fansqz/lua-inspector/utils/gosync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <script.lua>",
		Short: "Run a script and accept debugging clients over TCP and HTTP",
		Args:  cobra.ExactArgs(1),
		RunE:  runServe,
	}
	flags := cmd.Flags()
	flags.String("tcp-addr", ":9229", "TCP transport address, empty to disable")
	flags.String("http-addr", "", "HTTP transport address, empty to disable")
	flags.Duration("idle-timeout", 0, "Close a TCP client after this long without a message, 0 to disable")
	flags.Bool("connect-on-start", false, "Open the debug session before the script runs so debugger() pauses until a client resumes it")
	_ = viper.BindPFlags(flags)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	config := loadConfig()
	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	host, err := newHost(config, os.Stdout, metrics.NewCollector(registry))
	if err != nil {
		return err
	}
	defer host.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.TCPAddr != "" {
		listener, err := net.Listen("tcp", config.TCPAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", config.TCPAddr, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "started listening at: %s\n", listener.Addr().String())
		server := NewTCPServer(host, config)
		gosync.Go(ctx, "tcp-server", func(ctx context.Context) {
			if err := server.Serve(ctx, listener); err != nil {
				logrus.Errorf("[TCPServer] serve fail, err = %v", err)
			}
		})
	}

	if config.HTTPAddr != "" {
		httpServer := &http.Server{
			Addr:    config.HTTPAddr,
			Handler: NewDebuggerHandler(host, registry, config).Routes(),
		}
		context.AfterFunc(ctx, func() { _ = httpServer.Shutdown(context.Background()) })
		gosync.Go(ctx, "http-server", func(ctx context.Context) {
			logrus.Infof("[DebuggerHandler] listening at %s", config.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("[DebuggerHandler] serve fail, err = %v", err)
			}
		})
	}

	if config.ConnectOnStart {
		host.Preconnect(config.Port)
	}
	// 当前协程作为解释器线程，直到收到退出信号
	return host.Run(ctx, args[0], string(source))
}

// newHost 根据配置创建宿主
func newHost(config *Config, output io.Writer, observer *metrics.Collector) (*lua_debugger.Host, error) {
	option := &lua_debugger.HostOption{
		ContextName:    config.ContextName,
		ContextGroupID: config.ContextGroupID,
		PauseInterval:  config.PauseInterval,
		Output:         output,
	}
	if observer != nil {
		option.Observer = observer
	}
	return lua_debugger.NewHost(option)
}
