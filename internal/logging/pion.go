package logging

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// pionLogger satisfies pion's LeveledLogger on top of a zerolog logger, so
// pion libraries log through the same writer as the rest of the device.
type pionLogger struct {
	l *zerolog.Logger
}

func (p *pionLogger) Trace(msg string) { p.l.Trace().Msg(msg) }
func (p *pionLogger) Tracef(format string, args ...interface{}) {
	p.l.Trace().Msgf(format, args...)
}
func (p *pionLogger) Debug(msg string) { p.l.Debug().Msg(msg) }
func (p *pionLogger) Debugf(format string, args ...interface{}) {
	p.l.Debug().Msgf(format, args...)
}
func (p *pionLogger) Info(msg string) { p.l.Info().Msg(msg) }
func (p *pionLogger) Infof(format string, args ...interface{}) {
	p.l.Info().Msgf(format, args...)
}
func (p *pionLogger) Warn(msg string) { p.l.Warn().Msg(msg) }
func (p *pionLogger) Warnf(format string, args ...interface{}) {
	p.l.Warn().Msgf(format, args...)
}
func (p *pionLogger) Error(msg string) { p.l.Error().Msg(msg) }
func (p *pionLogger) Errorf(format string, args ...interface{}) {
	p.l.Error().Msgf(format, args...)
}

type pionLoggerFactory struct{}

// NewLogger returns a pion logger whose scope is reported as the component.
func (pionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	l := GetSubsystemLogger("pion").With().Str("component", scope).Logger()
	return &pionLogger{l: &l}
}

func GetPionDefaultLoggerFactory() logging.LoggerFactory {
	return pionLoggerFactory{}
}
