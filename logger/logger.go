package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger traces raw frames at the link layer
type Logger interface {
	Debug(format string, v ...any)
}

type zapLogger struct {
	log *zap.SugaredLogger
}

// FromZap adapts z to Logger, prefixing messages with category.
func FromZap(z *zap.Logger, category string) Logger {
	if category != "" {
		z = z.Named(category)
	}
	return &zapLogger{log: z.Sugar()}
}

func (l *zapLogger) Debug(format string, v ...any) {
	l.log.Debugf(format, v...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

// Nop discards everything.
func Nop() Logger {
	return nopLogger{}
}

// Options configure New.
type Options struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string
	// File, when set, receives a copy of the log, rotated by size.
	File       string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// New builds a development-style console logger.
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if opts.Level != "" {
		var err error
		level, err = zap.ParseAtomicLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	c := zap.NewDevelopmentEncoderConfig()
	c.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		p := caller.TrimmedPath()
		if len(p) > 30 {
			p = "..." + p[len(p)-27:]
		}
		enc.AppendString(fmt.Sprintf("%30s", p))
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(c), zapcore.Lock(os.Stderr), level),
	}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxAge:     opts.MaxAgeDays,
			MaxBackups: opts.MaxBackups,
			Compress:   opts.Compress,
		}
		fc := zap.NewProductionEncoderConfig()
		fc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fc), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
