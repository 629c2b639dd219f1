package logger

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Options controls where log lines go. An empty FilePath logs to stderr only.
type Options struct {
	Level    LogLevel
	FilePath string
	Console  bool
}

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base   = newDefaultLogger()
	closer func() error
)

func newDefaultLogger() *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

// Init replaces the process logger. Calling it again closes the previous log file.
func Init(opts Options) error {
	level.SetLevel(opts.Level.zapLevel())

	cores := make([]zapcore.Core, 0, 2)
	if opts.Console || opts.FilePath == "" {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level))
	}

	var file *os.File
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		file = f
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(f), level))
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer()
		closer = nil
	}
	_ = base.Sync()
	base = zap.New(zapcore.NewTee(cores...))
	if file != nil {
		closer = file.Close
	}
	return nil
}

// UseLogger installs an already built zap logger, mostly for tests.
func UseLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	base = l
	mu.Unlock()
}

func SetLevel(l LogLevel) {
	level.SetLevel(l.zapLevel())
}

func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func toZapFields(component string, fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	if component != "" {
		out = append(out, zap.String("component", component))
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

func Debug(msg string) { current().Debug(msg) }
func Info(msg string)  { current().Info(msg) }
func Warn(msg string)  { current().Warn(msg) }
func Error(msg string) { current().Error(msg) }

func DebugC(component, msg string) { current().Debug(msg, toZapFields(component, nil)...) }
func InfoC(component, msg string)  { current().Info(msg, toZapFields(component, nil)...) }
func WarnC(component, msg string)  { current().Warn(msg, toZapFields(component, nil)...) }
func ErrorC(component, msg string) { current().Error(msg, toZapFields(component, nil)...) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	current().Debug(msg, toZapFields(component, fields)...)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	current().Info(msg, toZapFields(component, fields)...)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	current().Warn(msg, toZapFields(component, fields)...)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	current().Error(msg, toZapFields(component, fields)...)
}
