// Package logging builds the zap.Logger gofastd uses everywhere, replacing
// the teacher's log.Printf calls with structured logging the way
// grafana-tempo's services construct theirs.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger for the given level ("debug", "info", "warn",
// "error") and format ("text" or "json"). Config.Validate rejects any other
// level before this is called, so an unrecognized level here is a
// programming error rather than a user-input error.
//
// The returned AtomicLevel backs the logger's minimum level and can be
// changed after construction (config.WatchConfig does this on a config
// reload) without rebuilding the logger.
func New(level, format string) (*zap.Logger, zap.AtomicLevel, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("logging: unknown level %q: %w", level, err)
	}

	atomicLevel := zap.NewAtomicLevelAt(zapLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case "json":
		cfg.Encoding = "json"
	case "text", "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("logging: unknown format %q", format)
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	return log, atomicLevel, nil
}
