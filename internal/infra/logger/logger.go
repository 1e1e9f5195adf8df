// Package logger provides structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// MaxValueLength is the longest string value kept by Sanitize.
const MaxValueLength = 500

const redacted = "[REDACTED]"

var sensitiveKey = regexp.MustCompile(`(?i)token|secret|password|authorization|credential`)

// Config represents logger configuration.
type Config struct {
	Output    string // "stdout", "stderr", or file path
	Level     string // "debug", "info", "warn", "error"
	Component string // Added to every entry when set
}

// Init initializes the global zerolog logger with the given configuration.
// Console outputs are colored; file output is JSON. The caller is only
// recorded at debug level.
func Init(cfg Config) error {
	level := ParseLevel(cfg.Level)

	console := true
	var writer io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		writer = f
		console = false
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = shortCaller

	logger := New(writer, console, level == zerolog.DebugLevel, cfg.Component)
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger
	return nil
}

// New builds a logger writing to w.
func New(w io.Writer, console, caller bool, component string) zerolog.Logger {
	if console {
		cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
		if caller {
			cw.PartsOrder = []string{"time", "level", "message", "caller"}
			cw.FormatCaller = func(i interface{}) string {
				s, _ := i.(string)
				return "(" + s + ")"
			}
		}
		w = cw
	}

	ctx := zerolog.New(w).With().Timestamp()
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	if caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ParseLevel parses the log level string. Unknown levels mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Sanitize returns a copy of fields suitable for logging: values under
// sensitive keys are redacted, nested maps are sanitized and long strings
// are truncated.
func Sanitize(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if sensitiveKey.MatchString(k) {
			out[k] = redacted
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			out[k] = Sanitize(val)
		case string:
			out[k] = truncate(val)
		default:
			out[k] = v
		}
	}
	return out
}

func truncate(s string) string {
	if len(s) <= MaxValueLength {
		return s
	}
	return s[:MaxValueLength] + "...[truncated]"
}

func shortCaller(_ uintptr, file string, line int) string {
	parts := strings.Split(file, string(filepath.Separator))
	if len(parts) > 1 {
		return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
