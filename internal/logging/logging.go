package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var defaultOutput io.Writer = zerolog.ConsoleWriter{
	Out:           os.Stdout,
	TimeFormat:    time.RFC3339,
	PartsOrder:    []string{"time", "level", "scope", "component", "message"},
	FieldsExclude: []string{"scope", "component"},
	FormatPartValueByName: func(value interface{}, name string) string {
		if name == "component" && value == nil {
			return "-"
		}
		return fmt.Sprintf("%s", value)
	},
}

var (
	writer = &loggerWriter{output: defaultOutput}

	rootLogger = zerolog.New(writer).With().Timestamp().Logger().Level(zerolog.InfoLevel)

	subsystemLoggers     = make(map[string]*zerolog.Logger)
	subsystemLoggersLock sync.Mutex
)

// loggerWriter guards the output writer, which can be swapped at runtime.
type loggerWriter struct {
	sync.RWMutex
	output io.Writer
}

func (lw *loggerWriter) SetOutput(output io.Writer) {
	lw.Lock()
	defer lw.Unlock()
	lw.output = output
}

func (lw *loggerWriter) Write(data []byte) (int, error) {
	lw.RLock()
	defer lw.RUnlock()

	return lw.output.Write(data)
}

// SetOutput redirects every logger created by this package.
func SetOutput(output io.Writer) {
	writer.SetOutput(output)
}

// SetLevel parses a level name (trace, debug, info, warn, error) and applies it
// to the root logger and all subsystem loggers created afterwards.
func SetLevel(level string) error {
	if level == "" {
		return nil
	}

	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()

	rootLogger = rootLogger.Level(l)
	for _, logger := range subsystemLoggers {
		*logger = logger.Level(l)
	}

	return nil
}

func GetDefaultLogger() *zerolog.Logger {
	return &rootLogger
}

// GetSubsystemLogger returns the shared logger for a subsystem, tagged with its scope.
func GetSubsystemLogger(subsystem string) *zerolog.Logger {
	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()

	if logger, ok := subsystemLoggers[subsystem]; ok {
		return logger
	}

	logger := rootLogger.With().Str("scope", subsystem).Logger()
	subsystemLoggers[subsystem] = &logger

	return &logger
}
