// Package logging adapts zap to the printf style Logger used by the library
// packages.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Printf wraps a sugared zap logger. It satisfies artisan.Logger and
// gateway.Logger.
type Printf struct {
	s *zap.SugaredLogger
}

func NewPrintf(logger *zap.Logger) *Printf {
	return &Printf{s: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (p *Printf) Debug(format string, args ...any) { p.s.Debugf(format, args...) }
func (p *Printf) Info(format string, args ...any)  { p.s.Infof(format, args...) }
func (p *Printf) Warn(format string, args ...any)  { p.s.Warnf(format, args...) }
func (p *Printf) Error(format string, args ...any) { p.s.Errorf(format, args...) }

// Named returns a child logger tagged with name.
func (p *Printf) Named(name string) *Printf {
	return &Printf{s: p.s.Named(name)}
}

// New builds a zap logger for level. development switches to the console
// encoder.
func New(level string, development bool) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
