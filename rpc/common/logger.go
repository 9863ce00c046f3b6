package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Client logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// output is shared by every client logger, log.Logger serializes the writes
var output = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)

var levelTags = map[logger.LogLevel]string{
	logger.CRITICAL: "CRIT",
	logger.ERROR:    "ERROR",
	logger.WARNING:  "WARN",
	logger.INFO:     "INFO",
	logger.DEBUG:    "DEBUG",
}

// clientLogger writes "LEVEL | name | message" lines. The reactor logs while the
// CLI may still change the level, so the level is atomic.
type clientLogger struct {
	name  string
	level atomic.Int32
}

func (l *clientLogger) SetLevel(level logger.LogLevel) {
	l.level.Store(int32(level))
}

func (l *clientLogger) Debugf(format string, args ...interface{}) {
	l.logf(logger.DEBUG, format, args...)
}

func (l *clientLogger) Infof(format string, args ...interface{}) {
	l.logf(logger.INFO, format, args...)
}

func (l *clientLogger) Warningf(format string, args ...interface{}) {
	l.logf(logger.WARNING, format, args...)
}

func (l *clientLogger) Errorf(format string, args ...interface{}) {
	l.logf(logger.ERROR, format, args...)
}

// Panicf writes the message regardless of the level and panics with it
func (l *clientLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.write(logger.CRITICAL, msg)
	panic(msg)
}

func (l *clientLogger) logf(level logger.LogLevel, format string, args ...interface{}) {
	if logger.LogLevel(l.level.Load()) < level {
		return
	}
	l.write(level, fmt.Sprintf(format, args...))
}

func (l *clientLogger) write(level logger.LogLevel, msg string) {
	output.Printf("%-5s | %-9s | %s", levelTags[level], l.name, msg)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the dragonboat logger factory. New loggers only
// report warnings and errors until InitLoggers sets a level.
func CreateLogger(pkgName string) logger.ILogger {
	l := &clientLogger{name: pkgName}
	l.SetLevel(logger.WARNING)
	return l
}

// SetLogOutput redirects all client loggers to w
func SetLogOutput(w io.Writer) {
	output.SetOutput(w)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	case "critical", "crit":
		return logger.CRITICAL, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error, critical", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// LoggerNames lists all loggers used by the client packages
var LoggerNames = []string{"amqpio", "driver", "protocol", "transport", "stream"}

// dragonboat panics if the factory is set twice
var installFactory sync.Once

// InitLoggers installs the client factory and sets the level of all client
// loggers. It may be called again to change the level.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	installFactory.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
