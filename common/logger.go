// Package common provides shared constants, types, and utilities
// used across the nmvpn application.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AppLogger is a structured logger for the application.
// It writes to stdout and, when file logging is enabled, to a
// size-rotated log file under the user's config directory.
type AppLogger struct {
	mu    sync.Mutex
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
	file  *lumberjack.Logger
}

// LogConfig holds configuration options for the logger.
type LogConfig struct {
	// Level is the minimum level to emit: debug, info, warn or error.
	Level string
	// EnableFile enables logging to a rotated file in addition to stdout.
	EnableFile bool
	// MaxFileSize is the rotation threshold in megabytes, default 10.
	MaxFileSize int
	// MaxBackups is the number of rotated files to keep, default 3.
	MaxBackups int
	// MaxAgeDays is how long rotated files are retained, default 28.
	MaxAgeDays int
}

var (
	defaultLogger *AppLogger
	loggerOnce    sync.Once
)

const (
	defaultMaxFileSize = 10 // MB
	defaultMaxBackups  = 3
	defaultMaxAgeDays  = 28
)

// parseLevel maps a level name to a zap level, defaulting to info.
func parseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func consoleEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// isSymlink checks if a path is a symbolic link.
// Returns false if path doesn't exist (safe to create).
func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}

// GetLogger returns the singleton logger instance.
func GetLogger() *AppLogger {
	loggerOnce.Do(func() {
		level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
		core := zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stdout), level)
		defaultLogger = &AppLogger{
			sugar: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar(),
			level: level,
		}
	})
	return defaultLogger
}

// InitLogger initializes the logger with custom configuration.
// Should be called early in application startup.
func InitLogger(config LogConfig) error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		config.Level = v
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = defaultMaxFileSize
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = defaultMaxBackups
	}
	if config.MaxAgeDays <= 0 {
		config.MaxAgeDays = defaultMaxAgeDays
	}

	logger := GetLogger()
	logger.level.SetLevel(parseLevel(config.Level))

	if !config.EnableFile {
		return nil
	}

	logDir := GetLogDir()
	if logDir == "" {
		return fmt.Errorf("cannot resolve log directory")
	}

	// Refuse symlinked locations to prevent log redirection.
	if isSymlink(logDir) {
		return fmt.Errorf("security error: log directory is a symlink")
	}
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return err
	}
	logPath := filepath.Join(logDir, LogFileName)
	if isSymlink(logPath) {
		return fmt.Errorf("security error: log file is a symlink")
	}

	file := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    config.MaxFileSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
		Compress:   true,
	}

	encoder := consoleEncoder()
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), logger.level),
		zapcore.NewCore(encoder, zapcore.AddSync(file), logger.level),
	)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if logger.file != nil {
		logger.file.Close()
	}
	logger.file = file
	logger.sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return nil
}

// GetLogDir returns the log directory path.
func GetLogDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", ConfigDirName, "logs")
}

// SetLevel sets the minimum log level.
func (l *AppLogger) SetLevel(level string) {
	l.level.SetLevel(parseLevel(level))
}

// Debug logs a debug message.
func (l *AppLogger) Debug(msg string, args ...interface{}) {
	l.sugar.Debugf(msg, args...)
}

// Info logs an informational message.
func (l *AppLogger) Info(msg string, args ...interface{}) {
	l.sugar.Infof(msg, args...)
}

// Warn logs a warning message.
func (l *AppLogger) Warn(msg string, args ...interface{}) {
	l.sugar.Warnf(msg, args...)
}

// Error logs an error message.
func (l *AppLogger) Error(msg string, args ...interface{}) {
	l.sugar.Errorf(msg, args...)
}

// Shorthand functions for default logger.

// LogDebug logs a debug message to the default logger.
func LogDebug(msg string, args ...interface{}) {
	GetLogger().sugar.Debugf(msg, args...)
}

// LogInfo logs an info message to the default logger.
func LogInfo(msg string, args ...interface{}) {
	GetLogger().sugar.Infof(msg, args...)
}

// LogWarn logs a warning message to the default logger.
func LogWarn(msg string, args ...interface{}) {
	GetLogger().sugar.Warnf(msg, args...)
}

// LogError logs an error message to the default logger.
func LogError(msg string, args ...interface{}) {
	GetLogger().sugar.Errorf(msg, args...)
}

// Close flushes buffered log entries and closes the log file.
// Should be called on application shutdown.
func (l *AppLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.sugar.Sync()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// CloseLogger closes the default logger.
func CloseLogger() error {
	return GetLogger().Close()
}
