package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// LogFileName is the file written under Config.LogDir
const LogFileName = "ansari.log"

// Field is a type alias for zap.Field
type Field = zap.Field

var (
	String   = zap.String
	Int      = zap.Int
	Bool     = zap.Bool
	Error    = zap.Error
	Duration = zap.Duration
)

// SessionID tags entries with the conversation session they belong to
func SessionID(id string) Field { return zap.String("session", id) }

// Tool tags entries with a tool name
func Tool(name string) Field { return zap.String("tool", name) }

// Role tags entries with a message role
func Role(role string) Field { return zap.String("role", role) }

// LevelFromString parses a level name. Unknown names mean info.
func LevelFromString(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel
	}
	if l < zapcore.DebugLevel || l > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return l
}

// Config selects where entries go and at which levels.
// The file sink is always on; the console sink writes to stderr.
type Config struct {
	LogDir         string
	FileLevel      zapcore.Level
	ConsoleLevel   zapcore.Level
	EnableCaller   bool
	ConsoleEnabled bool
}

// Logger is the structured logger handed to every component
type Logger struct {
	zap  *zap.Logger
	file *os.File
}

// NewLogger opens (appending) LogDir/ansari.log and builds the logger
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = &Config{LogDir: ".ansari/logs", ConsoleLevel: zapcore.WarnLevel}
	}
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(cfg.LogDir, LogFileName)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	cores := []zapcore.Core{fileCore(file, cfg.FileLevel)}
	if cfg.ConsoleEnabled {
		cores = append(cores, consoleCore(cfg.ConsoleLevel))
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.EnableCaller {
		// Skip the wrapper methods below
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	return &Logger{zap: zap.New(zapcore.NewTee(cores...), opts...), file: file}, nil
}

func fileCore(file *os.File, level zapcore.Level) zapcore.Core {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(file), level)
}

func consoleCore(level zapcore.Level) zapcore.Core {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
}

// NewNopLogger discards everything
func NewNopLogger() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// NewTestLogger routes entries through t.Log so they only show for failing tests
func NewTestLogger(t zaptest.TestingT) *Logger {
	return &Logger{zap: zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel))}
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Close flushes and releases the log file. Child loggers share the file,
// so only the root logger should be closed.
func (l *Logger) Close() error {
	_ = l.zap.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) Debug(msg string, fields ...Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.zap.Error(msg, fields...) }

// Enabled reports whether entries at level would be written
func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
}

// With returns a child logger that adds fields to every entry
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

// Named returns a child logger with name appended to the logger name
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name)}
}

// ForSession returns the child logger used by one conversation session
func (l *Logger) ForSession(id string) *Logger {
	return l.With(SessionID(id))
}
