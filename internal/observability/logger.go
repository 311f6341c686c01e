// Package observability builds the process-wide zap logger.
package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production JSON logger whose level is derived from the
// CLI verbosity: negative values quiet the output down to errors, positive
// values raise it through info to debug. Zero means warnings and above.
func NewLogger(verbosity int) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = levelForVerbosity(verbosity)

	return config.Build()
}

func levelForVerbosity(v int) zap.AtomicLevel {
	switch {
	case v < 0:
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	case v == 0:
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case v == 1:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	}
}
