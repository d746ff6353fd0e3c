package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

const logFileName = "media-dubber.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Dir receives an append-only log file when set.
	Dir string
	// Console is the terminal writer; nil means stderr.
	Console io.Writer
}

// New constructs a slog logger. The returned close function releases the log
// file, if any, and is always safe to call.
func New(opts Options) (*slog.Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	format, err := resolveFormat(opts.Format, console)
	if err != nil {
		return nil, nil, err
	}

	out := console
	closeFn := func() error { return nil }
	if dir := strings.TrimSpace(opts.Dir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("ensure log directory: %w", err)
		}
		path := filepath.Join(dir, logFileName)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		out = io.MultiWriter(console, file)
		closeFn = file.Close
	}

	level := parseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler), closeFn, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// resolveFormat maps "auto" to console on a terminal and json elsewhere.
func resolveFormat(format string, w io.Writer) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "console", "json":
		return f, nil
	case "", "auto":
		if isTerminal(w) {
			return "console", nil
		}
		return "json", nil
	default:
		return "", fmt.Errorf("log format: unsupported value %q", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
