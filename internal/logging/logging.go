// ABOUTME: Structured logger setup with a rotating log file
// ABOUTME: In TUI mode logs go only to the file; otherwise they are teed to stdout
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Ashama-AI/ashama-go/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger owns the sugared logger and its file
type Logger struct {
	*zap.SugaredLogger
	file io.Closer
}

// New builds a logger from cfg. When console is true records are also
// written to stdout.
func New(cfg config.LoggingConfig, console bool) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}

	var stdout io.Writer
	if console {
		stdout = os.Stdout
	}
	return &Logger{
		SugaredLogger: build(level, zapcore.AddSync(file), stdout),
		file:          file,
	}, nil
}

// build writes JSON to the file sink and, when stdout is set, human
// readable lines there too
func build(level zapcore.Level, sink zapcore.WriteSyncer, stdout io.Writer) *zap.SugaredLogger {
	fileEnc := zap.NewProductionEncoderConfig()
	fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), sink, level),
	}
	if stdout != nil {
		consoleEnc := zap.NewDevelopmentEncoderConfig()
		consoleEnc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEnc), zapcore.AddSync(stdout), level))
	}
	return zap.New(zapcore.NewTee(cores...)).Sugar()
}

// Close flushes buffered records and closes the file
func (l *Logger) Close() error {
	_ = l.Sync()
	return l.file.Close()
}
