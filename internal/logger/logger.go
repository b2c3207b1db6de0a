package logger

import (
	"os"
	"strings"

	"github.com/samvad-hq/daily-digest/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// S is the process logger, set by Init.
var S *zap.SugaredLogger

var direct, viaGlobal *zap.Logger

// Logger is the object-logging surface components depend on.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

// Init builds the process logger. Output goes to stderr; stdout is reserved for command results.
func Init(cfg *config.Config) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.LogFormat == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	install(zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level), cfg)
	return S, nil
}

// install sets S and the caller-adjusted loggers used by the *Obj helpers.
func install(core zapcore.Core, cfg *config.Config) {
	base := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("app", cfg.AppName), zap.String("env", cfg.Env))
	S = base.Sugar()
	// helper -> write
	direct = base.WithOptions(zap.AddCallerSkip(2))
	// Global method -> helper -> write
	viaGlobal = base.WithOptions(zap.AddCallerSkip(3))
}

// Close flushes buffered entries.
func Close() error {
	if S == nil {
		return nil
	}
	return S.Sync()
}

// The *Obj helpers log obj as a single structured field named key.

func InfoObj(msg, key string, obj interface{})  { write(direct, zapcore.InfoLevel, msg, key, obj) }
func DebugObj(msg, key string, obj interface{}) { write(direct, zapcore.DebugLevel, msg, key, obj) }
func WarnObj(msg, key string, obj interface{})  { write(direct, zapcore.WarnLevel, msg, key, obj) }
func ErrorObj(msg, key string, obj interface{}) { write(direct, zapcore.ErrorLevel, msg, key, obj) }

func write(l *zap.Logger, level zapcore.Level, msg, key string, obj interface{}) {
	if l == nil {
		return
	}
	if ce := l.Check(level, msg); ce != nil {
		if err, ok := obj.(error); ok {
			ce.Write(zap.NamedError(key, err))
			return
		}
		ce.Write(zap.Any(key, obj))
	}
}

// Global routes the object helpers through S.
type Global struct{}

func (Global) InfoObj(msg, key string, obj interface{})  { globalObj(zapcore.InfoLevel, msg, key, obj) }
func (Global) DebugObj(msg, key string, obj interface{}) { globalObj(zapcore.DebugLevel, msg, key, obj) }
func (Global) WarnObj(msg, key string, obj interface{})  { globalObj(zapcore.WarnLevel, msg, key, obj) }
func (Global) ErrorObj(msg, key string, obj interface{}) { globalObj(zapcore.ErrorLevel, msg, key, obj) }

// globalObj keeps the same frame depth as the package helpers.
func globalObj(level zapcore.Level, msg, key string, obj interface{}) {
	write(viaGlobal, level, msg, key, obj)
}

// Nop discards everything.
type Nop struct{}

func (Nop) InfoObj(string, string, interface{})  {}
func (Nop) DebugObj(string, string, interface{}) {}
func (Nop) WarnObj(string, string, interface{})  {}
func (Nop) ErrorObj(string, string, interface{}) {}

// Ensure returns log, or Nop when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return Nop{}
	}
	return log
}
