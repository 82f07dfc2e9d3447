// Package servicelog is the pipeline's structured logging facade: a small
// With/Info/Error/Warn/Debug/Fatal interface backed by zap, with log
// rotation via lumberjack and, when the process is hosted through
// kardianos/service, mirrored to the host's service logger so platform
// service managers (systemd, Windows SCM) see the same messages.
package servicelog

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type lumberjackSink struct {
	*lumberjack.Logger
}

func (lumberjackSink) Sync() error { return nil }

// Attrib is one key/value pair appended to a log line.
type Attrib func(sb *strings.Builder)

func printer(name string, val interface{}) Attrib {
	return func(sb *strings.Builder) {
		sb.WriteString(", ")
		sb.WriteString(name)
		sb.WriteString("=")
		fmt.Fprintf(sb, "%v", val)
	}
}

func String(name, value string) Attrib          { return printer(name, value) }
func Error(err error) Attrib                    { return printer("error", err) }
func Bool(name string, value bool) Attrib       { return printer(name, value) }
func Any(name string, value interface{}) Attrib { return printer(name, value) }
func Int(name string, value int) Attrib         { return printer(name, value) }
func Int64(name string, value int64) Attrib     { return printer(name, value) }
func Uint64(name string, value uint64) Attrib   { return printer(name, value) }
func Time(name string, value time.Time) Attrib  { return printer(name, value) }
func Duration(name string, value time.Duration) Attrib {
	return printer(name, value)
}

// Logger is the interface every pipeline stage logs through.
type Logger interface {
	With(attrs ...Attrib) Logger
	Info(msg string, attrs ...Attrib)
	Error(msg string, attrs ...Attrib)
	Warn(msg string, attrs ...Attrib)
	Debug(msg string, attrs ...Attrib)
	Fatal(msg string, attrs ...Attrib)
}

type logger struct {
	zap   *zap.Logger
	svc   service.Logger // optional: mirrors to the host service manager
	debug bool
	attrs []Attrib
}

// levelFromEnv maps PY_LOG_LEVEL ("DEBUG"|"INFO"|"WARNING"|"ERROR") onto a
// zapcore level, defaulting to Info for unrecognized values.
func levelFromEnv(pyLogLevel string) (zapcore.Level, bool) {
	switch strings.ToUpper(pyLogLevel) {
	case "DEBUG":
		return zapcore.DebugLevel, true
	case "WARNING", "WARN":
		return zapcore.WarnLevel, false
	case "ERROR":
		return zapcore.ErrorLevel, false
	default:
		return zapcore.InfoLevel, false
	}
}

// New builds a Logger. svc may be nil when running outside a hosted
// service (e.g. under test or in the foreground); logFile, when non-empty,
// rotates through lumberjack instead of writing to stderr.
func New(svc service.Logger, pyLogLevel string, logFile string) Logger {
	level, debug := levelFromEnv(pyLogLevel)

	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(level)

	if logFile != "" {
		zap.RegisterSink("lumberjack", func(u *url.URL) (zap.Sink, error) {
			return lumberjackSink{
				Logger: &lumberjack.Logger{
					Filename:   u.Path,
					MaxSize:    100,
					MaxBackups: 5,
					MaxAge:     28,
				},
			}, nil
		})
		config.OutputPaths = []string{"lumberjack://" + logFile}
	}

	zl, err := config.Build()
	if err != nil {
		panic(err)
	}
	return &logger{zap: zl, svc: svc, debug: debug}
}

func (l *logger) render(msg string, attrs ...Attrib) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for _, a := range l.attrs {
		a(&sb)
	}
	for _, a := range attrs {
		a(&sb)
	}
	return sb.String()
}

func (l *logger) Info(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	l.zap.Info(message)
	if l.svc != nil {
		l.svc.Info(message)
	}
}

func (l *logger) Error(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	l.zap.Error(message)
	if l.svc != nil {
		l.svc.Error(message)
	}
}

func (l *logger) Fatal(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	l.zap.Error(message)
	if l.svc != nil {
		l.svc.Error(message)
	}
	panic(message)
}

func (l *logger) Warn(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	l.zap.Warn(message)
	if l.svc != nil {
		l.svc.Warning(message)
	}
}

func (l *logger) Debug(msg string, attrs ...Attrib) {
	if !l.debug {
		return
	}
	message := l.render(msg, attrs...)
	l.zap.Debug(message)
}

func (l *logger) With(attrs ...Attrib) Logger {
	newLogger := &logger{zap: l.zap, svc: l.svc, debug: l.debug}
	newLogger.attrs = make([]Attrib, 0, len(l.attrs)+len(attrs))
	newLogger.attrs = append(newLogger.attrs, l.attrs...)
	newLogger.attrs = append(newLogger.attrs, attrs...)
	return newLogger
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync(l Logger) {
	if concrete, ok := l.(*logger); ok {
		_ = concrete.zap.Sync()
	}
}

// NewNop returns a Logger that discards everything, useful in tests.
func NewNop() Logger {
	return &logger{zap: zap.NewNop(), debug: true}
}
