package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var logFile *os.File

const defaultLogPath = "/var/lua-inspector.log"

// SetupLogger 日志写入文件，文件无法打开时写到标准错误
func SetupLogger(logPath string, level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	logrus.SetOutput(openLogOutput(logPath))
	return nil
}

func openLogOutput(logPath string) io.Writer {
	if logPath == "" {
		return os.Stderr
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logrus.Warnf("open log file %s fail, err = %v", logPath, err)
		return os.Stderr
	}
	logFile = file
	return file
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
