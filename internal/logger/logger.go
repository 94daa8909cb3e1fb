package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarning
	LogLevelError
)

var (
	debugLogger   *log.Logger
	infoLogger    *log.Logger
	warningLogger *log.Logger
	errorLogger   *log.Logger
	currentLevel  = LogLevelInfo
)

func init() {
	debugLogger = log.New(os.Stdout, "", log.LstdFlags)
	infoLogger = log.New(os.Stdout, "", log.LstdFlags)
	warningLogger = log.New(os.Stdout, "", log.LstdFlags)
	errorLogger = log.New(os.Stderr, "", log.LstdFlags)
}

// SetLevel sets the minimum log level to display
func SetLevel(level LogLevel) {
	currentLevel = level
}

// ParseLevel maps a config/flag value to a LogLevel. Unknown values fall back to info.
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarning
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// SetOutput sets the output destination for the loggers
func SetOutput(w io.Writer) {
	debugLogger.SetOutput(w)
	infoLogger.SetOutput(w)
	warningLogger.SetOutput(w)
	errorLogger.SetOutput(w)
}

func tagPrefix(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return fmt.Sprintf("[%s] ", strings.Join(tags, "]["))
}

// Debug logs a debug message
func Debug(format string, v ...interface{}) {
	if currentLevel <= LogLevelDebug {
		debugLogger.Printf("DEBUG: "+format, v...)
	}
}

// DebugTagged logs a debug message with tags
func DebugTagged(tags []string, format string, v ...interface{}) {
	if currentLevel <= LogLevelDebug {
		debugLogger.Printf("DEBUG: "+tagPrefix(tags)+format, v...)
	}
}

// Info logs an informational message
func Info(format string, v ...interface{}) {
	if currentLevel <= LogLevelInfo {
		infoLogger.Printf(format, v...)
	}
}

// InfoTagged logs an informational message with tags
func InfoTagged(tags []string, format string, v ...interface{}) {
	if currentLevel <= LogLevelInfo {
		infoLogger.Printf(tagPrefix(tags)+format, v...)
	}
}

// Warning logs a warning message
func Warning(format string, v ...interface{}) {
	if currentLevel <= LogLevelWarning {
		warningLogger.Printf("WARNING: "+format, v...)
	}
}

// WarningTagged logs a warning message with tags
func WarningTagged(tags []string, format string, v ...interface{}) {
	if currentLevel <= LogLevelWarning {
		warningLogger.Printf("WARNING: "+tagPrefix(tags)+format, v...)
	}
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	if currentLevel <= LogLevelError {
		errorLogger.Printf("ERROR: "+format, v...)
	}
}

// ErrorTagged logs an error message with tags
func ErrorTagged(tags []string, format string, v ...interface{}) {
	if currentLevel <= LogLevelError {
		errorLogger.Printf("ERROR: "+tagPrefix(tags)+format, v...)
	}
}
