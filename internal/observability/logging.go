// Package observability builds the structured logger shared by every
// duelhub component.
package observability

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/duelhub/internal/config"
)

// NewLogger builds a logger writing to stderr. See NewLoggerTo.
func NewLogger(cfg config.LoggingConfig, instance string) (*zap.Logger, error) {
	return NewLoggerTo(cfg, instance, zapcore.Lock(os.Stderr))
}

// NewLoggerTo builds a logger writing to out. "json" uses the production
// encoder, "console" the colourless development one; both stamp ISO8601
// times. A non-empty instance is attached to every entry.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLoggerTo(cfg config.LoggingConfig, instance string, out zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var (
		encoder zapcore.Encoder
		opts    = []zap.Option{zap.AddCaller(), zap.ErrorOutput(out)}
	)
	switch cfg.Format {
	case "json":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	case "console":
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if instance != "" {
		opts = append(opts, zap.Fields(zap.String("instance", instance)))
	}
	return zap.New(zapcore.NewCore(encoder, out, level), opts...), nil
}
