package utils

import "go.uber.org/zap"

// LoggerName is the root name of every yomu logger.
const LoggerName = "yomu"

// NewLogger returns the service logger. debug selects the development config
// (console, debug level); otherwise the production config (JSON, info level)
// is used with sampling off.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Sampling = nil
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Named(LoggerName), nil
}

// NewCommandLogger returns a logger for one-shot CLI commands: silent unless debug
// is set, since their output goes to stdout.
func NewCommandLogger(debug bool) *zap.Logger {
	if !debug {
		return zap.NewNop()
	}
	l, err := NewLogger(true)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
