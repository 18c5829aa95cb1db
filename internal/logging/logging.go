// Package logging builds the diagnostic zap logger. Decision history lives in
// the SQLite audit store; this logger only carries operational diagnostics
// (store failures, daemon lifecycle) and stays silent unless debug is on.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing to logPath when debug is enabled, and a no-op
// logger otherwise. Hook stdout/stderr belong to the hook protocol, so the
// logger never writes there.
func New(debug bool, logPath string) *zap.Logger {
	if !debug {
		return zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return zap.NewNop()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.OutputPaths = []string{logPath}
	cfg.ErrorOutputPaths = []string{logPath}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
