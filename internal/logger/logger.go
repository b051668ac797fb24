package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/config"
)

// maxLogSize 超过该大小的日志文件在启动时被轮转
const maxLogSize = 10 * 1024 * 1024

var logFile *os.File

// Init initializes the process-wide logrus logger
func Init(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.File == "" {
		logrus.SetOutput(os.Stdout)
		return nil
	}

	f, err := openLogFile(cfg.File)
	if err != nil {
		return err
	}
	logFile = f
	logrus.SetOutput(io.MultiWriter(os.Stdout, f))

	logrus.WithField("file", cfg.File).Info("Logger initialized")
	return nil
}

// openLogFile opens (or creates) the log file, rotating it aside if too large
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if info, err := os.Stat(path); err == nil && info.Size() > maxLogSize {
		backupPath := fmt.Sprintf("%s.%d", path, time.Now().Unix())
		_ = os.Rename(path, backupPath)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Close closes the log file if one was opened
func Close() {
	if logFile != nil {
		logrus.SetOutput(os.Stdout)
		_ = logFile.Close()
		logFile = nil
	}
}

// LogPanic logs a panic with stack trace
func LogPanic(r any) {
	logrus.WithField("stack", string(debug.Stack())).Errorf("[PANIC] %v", r)
}
