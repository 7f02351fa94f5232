package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the logging level.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[Level]string{
	DEBUG: "\033[36m", // Cyan
	INFO:  "\033[32m", // Green
	WARN:  "\033[33m", // Yellow
	ERROR: "\033[31m", // Red
	FATAL: "\033[35m", // Magenta
}

const colorReset = "\033[0m"

// LogFileName is the name of the log file created by InitWithFile.
const LogFileName = "covmerge.log"

// Logger writes leveled messages to the console and, optionally, to a log file.
type Logger struct {
	mu          sync.Mutex
	level       Level
	output      io.Writer
	colorEnable bool
	file        *os.File
	filePath    string
	exit        func(int)
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger with the specified level.
func Init(levelStr string) {
	once.Do(func() {
		defaultLogger = &Logger{
			level:       parseLevel(levelStr),
			output:      os.Stderr,
			colorEnable: true,
			exit:        os.Exit,
		}
	})
}

// InitWithFile initializes the default logger and mirrors every message,
// without color codes, into dir/covmerge.log.
func InitWithFile(levelStr string, dir string) error {
	Init(levelStr)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, LogFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.level = parseLevel(levelStr)
	if defaultLogger.file != nil {
		defaultLogger.file.Close()
	}
	defaultLogger.file = f
	defaultLogger.filePath = path
	return nil
}

// GetLogFilePath returns the path of the log file, or "" when logging
// only to the console.
func GetLogFilePath() string {
	if defaultLogger == nil {
		return ""
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	return defaultLogger.filePath
}

// Close flushes and closes the log file, if any.
func Close() error {
	if defaultLogger == nil {
		return nil
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	if defaultLogger.file == nil {
		return nil
	}
	err := defaultLogger.file.Close()
	defaultLogger.file = nil
	return err
}

// SetLevel sets the logging level for the default logger.
func SetLevel(levelStr string) {
	if defaultLogger == nil {
		Init(levelStr)
		return
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.level = parseLevel(levelStr)
}

// SetOutput sets the console destination for the default logger.
func SetOutput(w io.Writer) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.output = w
}

// SetColorEnable enables or disables color output.
func SetColorEnable(enable bool) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.colorEnable = enable
}

// parseLevel converts a string to a Level.
func parseLevel(levelStr string) Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func (l *Logger) log(level Level, scope string, format string, args ...interface{}) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	message := fmt.Sprintf(format, args...)
	if scope != "" {
		message = fmt.Sprintf("(%s) %s", scope, message)
	}
	levelName := levelNames[level]

	plain := fmt.Sprintf("[%s] %s", levelName, message)
	if l.colorEnable {
		color := levelColors[level]
		log.New(l.output, "", log.LstdFlags).Println(fmt.Sprintf("%s[%s]%s %s", color, levelName, colorReset, message))
	} else {
		log.New(l.output, "", log.LstdFlags).Println(plain)
	}

	if l.file != nil {
		fmt.Fprintf(l.file, "%s %s\n", time.Now().Format("2006/01/02 15:04:05"), plain)
	}

	if level == FATAL {
		if l.file != nil {
			l.file.Sync()
		}
		l.exit(1)
	}
}

func logAt(level Level, scope string, format string, args ...interface{}) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.log(level, scope, format, args...)
}

// Debug logs a debug message.
func Debug(format string, args ...interface{}) { logAt(DEBUG, "", format, args...) }

// Info logs an info message.
func Info(format string, args ...interface{}) { logAt(INFO, "", format, args...) }

// Warn logs a warning message.
func Warn(format string, args ...interface{}) { logAt(WARN, "", format, args...) }

// Error logs an error message.
func Error(format string, args ...interface{}) { logAt(ERROR, "", format, args...) }

// Fatal logs a fatal message and exits the program.
func Fatal(format string, args ...interface{}) { logAt(FATAL, "", format, args...) }

// Scoped tags every message with a scope, typically an environment name.
type Scoped struct {
	scope string
}

// Named returns a logger whose messages are prefixed with "(scope)".
func Named(scope string) *Scoped {
	return &Scoped{scope: scope}
}

// Scope reports the scope of the logger.
func (s *Scoped) Scope() string {
	if s == nil {
		return ""
	}
	return s.scope
}

func (s *Scoped) Debug(format string, args ...interface{}) { logAt(DEBUG, s.Scope(), format, args...) }
func (s *Scoped) Info(format string, args ...interface{})  { logAt(INFO, s.Scope(), format, args...) }
func (s *Scoped) Warn(format string, args ...interface{})  { logAt(WARN, s.Scope(), format, args...) }
func (s *Scoped) Error(format string, args ...interface{}) { logAt(ERROR, s.Scope(), format, args...) }
