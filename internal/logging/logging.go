// Package logging constructs the zap loggers shared by all three binaries.
package logging

import "go.uber.org/zap"

// New builds a production zap logger named for role (e.g. "scheduler",
// "drone", "firesource").
func New(role string) (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger.Named(role), nil
}

// NewDevelopment builds a human-readable development logger named for
// role, or a no-op logger if zap cannot build one.
func NewDevelopment(role string) *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger.Named(role)
}

// OrNop returns logger if non-nil, else a no-op logger.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
