// Package logger holds the process-wide zap logger and the gin middlewares
// that attach a request id to it.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envProduction = "production"

var (
	mu     sync.RWMutex
	global *zap.Logger
)

// New builds a logger for env. production writes JSON to stdout with
// ISO8601 timestamps; any other env gets the colored console encoder.
func New(env string) (*zap.Logger, error) {
	if env != envProduction {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Init replaces the global logger. A logger that cannot be built falls back
// to a no-op one and the error is returned.
func Init(env string) error {
	l, err := New(env)
	if err != nil {
		l = zap.NewNop()
	}
	set(l)
	return err
}

func set(l *zap.Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// L returns the global logger, building it from APP_ENV on first use. Safe
// for concurrent callers.
func L() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		built, err := New(os.Getenv("APP_ENV"))
		if err != nil {
			built = zap.NewNop()
		}
		global = built
	}
	return global
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}
