package request

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the structured logging interface used by the client. Arguments
// after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// DebugConfig selects which parts of the pipeline emit debug logs.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogDedup     bool
	LogRefresh   bool
	LogRateLimit bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled config with every category on, so
// WithDebug only has to flip Enabled.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogDedup:     true,
		LogRefresh:   true,
		LogRateLimit: true,
		RequestIDGen: uuid.NewString,
	}
}

type zerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger adapts a zerolog.Logger to Logger.
func NewZerologLogger(logger zerolog.Logger) Logger {
	return &zerologLogger{logger: logger.With().Str("component", "request").Logger()}
}

// NewSimpleLogger returns a human readable console logger on stderr.
func NewSimpleLogger() Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return NewZerologLogger(zerolog.New(output).Level(zerolog.DebugLevel).With().Timestamp().Logger())
}

func (l *zerologLogger) Debug(msg string, args ...interface{}) {
	l.logger.Debug().Fields(args).Msg(msg)
}

func (l *zerologLogger) Info(msg string, args ...interface{}) {
	l.logger.Info().Fields(args).Msg(msg)
}

func (l *zerologLogger) Warn(msg string, args ...interface{}) {
	l.logger.Warn().Fields(args).Msg(msg)
}

func (l *zerologLogger) Error(msg string, args ...interface{}) {
	l.logger.Error().Fields(args).Msg(msg)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
