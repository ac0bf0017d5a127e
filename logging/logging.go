// Package logging builds the zap loggers used by the phoneauth binaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger pairs a zap logger with the level that controls it at runtime.
type Logger struct {
	*zap.Logger
	Level zap.AtomicLevel
}

// New returns a JSON logger on stdout for production and a console logger on
// stderr otherwise. level accepts zap level names; empty means info.
func New(level, env string) (*Logger, error) {
	out := zapcore.Lock(os.Stdout)
	if !strings.EqualFold(env, "production") {
		out = zapcore.Lock(os.Stderr)
	}
	return NewWriter(level, env, out)
}

// NewWriter is New writing to w.
func NewWriter(level, env string, w io.Writer) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	atomicLevel := zap.NewAtomicLevelAt(lvl)

	var encoder zapcore.Encoder
	if strings.EqualFold(env, "production") {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "time"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), atomicLevel)
	base := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: base, Level: atomicLevel}, nil
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return lvl, fmt.Errorf("logging: invalid level %q", level)
	}
	return lvl, nil
}
