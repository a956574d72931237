// Package logging provides structured logging and request ID propagation.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log levels
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Logger is the main logging interface
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	Fatal(msg string, err error, fields ...Field)

	WithContext(ctx context.Context) Logger
	WithFields(fields ...Field) Logger
	WithRequestID(requestID string) Logger
	WithUserID(userID uint) Logger
	WithComponent(component string) Logger
}

// ZerologLogger implements Logger using zerolog
type ZerologLogger struct {
	logger zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level       Level
	Environment string // "development" or "production"
	ServiceName string
	Version     string
	Output      io.Writer
}

var globalLogger Logger

// New builds a logger without touching the global instance.
func New(cfg Config) *ZerologLogger {
	var output io.Writer = os.Stdout
	if cfg.Output != nil {
		output = cfg.Output
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "outlook-relay"
	}

	var zl zerolog.Logger
	if cfg.Environment == "production" {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		zl = zerolog.New(output).
			With().
			Timestamp().
			Str("service", cfg.ServiceName).
			Str("version", cfg.Version).
			Logger()
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}).
			With().
			Timestamp().
			Logger()
	}

	return &ZerologLogger{logger: zl.Level(parseLevel(cfg.Level))}
}

// Init initializes the global logger
func Init(cfg Config) Logger {
	globalLogger = New(cfg)
	return globalLogger
}

// Get returns the global logger instance
func Get() Logger {
	if globalLogger == nil {
		Init(Config{Level: LevelInfo, Environment: "development"})
	}
	return globalLogger
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &ZerologLogger{logger: zerolog.Nop()}
}

func parseLevel(l Level) zerolog.Level {
	switch Level(strings.ToLower(string(l))) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func apply(event *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		event = event.Interface(f.Key, f.Value)
	}
	return event
}

func (l *ZerologLogger) Debug(msg string, fields ...Field) {
	apply(l.logger.Debug(), fields).Msg(msg)
}

func (l *ZerologLogger) Info(msg string, fields ...Field) {
	apply(l.logger.Info(), fields).Msg(msg)
}

func (l *ZerologLogger) Warn(msg string, fields ...Field) {
	apply(l.logger.Warn(), fields).Msg(msg)
}

func (l *ZerologLogger) Error(msg string, err error, fields ...Field) {
	event := l.logger.Error()
	if err != nil {
		event = event.Err(err)
	}
	apply(event, fields).Msg(msg)
}

// Fatal logs a fatal message and exits
func (l *ZerologLogger) Fatal(msg string, err error, fields ...Field) {
	event := l.logger.Fatal()
	if err != nil {
		event = event.Err(err)
	}
	apply(event, fields).Msg(msg)
}

// WithContext creates a new logger carrying the request and user IDs found in ctx
func (l *ZerologLogger) WithContext(ctx context.Context) Logger {
	c := l.logger.With()
	if requestID := GetRequestID(ctx); requestID != "" {
		c = c.Str("request_id", requestID)
	}
	if userID := GetUserID(ctx); userID != 0 {
		c = c.Uint("user_id", userID)
	}
	return &ZerologLogger{logger: c.Logger()}
}

func (l *ZerologLogger) WithFields(fields ...Field) Logger {
	c := l.logger.With()
	for _, f := range fields {
		c = c.Interface(f.Key, f.Value)
	}
	return &ZerologLogger{logger: c.Logger()}
}

func (l *ZerologLogger) WithRequestID(requestID string) Logger {
	return &ZerologLogger{logger: l.logger.With().Str("request_id", requestID).Logger()}
}

func (l *ZerologLogger) WithUserID(userID uint) Logger {
	return &ZerologLogger{logger: l.logger.With().Uint("user_id", userID).Logger()}
}

func (l *ZerologLogger) WithComponent(component string) Logger {
	return &ZerologLogger{logger: l.logger.With().Str("component", component).Logger()}
}
