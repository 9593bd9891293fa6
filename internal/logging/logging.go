package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with the field helpers the engine's packages use
// so every log line carries a consistent vocabulary (peer, container,
// change) rather than ad-hoc key names.
type Logger struct {
	*zap.Logger
}

// NewLogger builds a Logger at the given level ("debug", "info", "warn",
// "error") and encoding ("json" or "console").
func NewLogger(level string, format string) (*Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    format,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: logger}, nil
}

// WithPeer tags log lines with the originating replica's peer id.
func (l *Logger) WithPeer(peer uint64) *zap.Logger {
	return l.With(zap.Uint64("peer_id", peer))
}

// WithContainer tags log lines with the container a change touched.
func (l *Logger) WithContainer(containerID string) *zap.Logger {
	return l.With(zap.String("container_id", containerID))
}

// WithChange tags log lines with the id of the Change being processed.
func (l *Logger) WithChange(changeID string) *zap.Logger {
	return l.With(zap.String("change_id", changeID))
}

func (l *Logger) WithError(err error) *zap.Logger {
	return l.With(zap.Error(err))
}
