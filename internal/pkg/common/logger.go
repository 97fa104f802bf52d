package common

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/do/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

var ErrUnknownLogFormat = errors.New("unknown log format")

type LoggerService struct {
	Logger zerolog.Logger

	file *lumberjack.Logger
}

func NewLoggerService(i do.Injector) (*LoggerService, error) {
	level := do.MustInvokeNamed[string](i, "log-level")
	format := do.MustInvokeNamed[string](i, "log-format")
	file := do.MustInvokeNamed[string](i, "log-file")

	return NewLogger(level, format, file)
}

// NewLogger writes to stderr, and additionally to a rotated file when file is set.
func NewLogger(level string, format string, file string) (*LoggerService, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	var console io.Writer

	switch format {
	case LogFormatConsole, "":
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	case LogFormatJSON:
		console = os.Stderr
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownLogFormat, format)
	}

	result := &LoggerService{}

	writer := console

	if len(file) > 0 {
		//nolint:mnd
		result.file = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    64,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		writer = zerolog.MultiLevelWriter(console, result.file)
	}

	result.Logger = zerolog.New(writer).Level(lvl).With().Timestamp().Logger()

	return result, nil
}

func (s *LoggerService) Named(component string) zerolog.Logger {
	return s.Logger.With().Str("component", component).Logger()
}

func (s *LoggerService) Shutdown() error {
	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	return nil
}
