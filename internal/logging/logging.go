// Package logging sets up the bridge's dual-handler slog logger: a
// colorized handler on stdout when attached to a terminal, and a plain
// handler writing to the daemon log file whose path the caller supplies
// (cmd/bridged passes config.DefaultLogFilePath, under the user's home
// directory), generalizing the teacher's cmd/client/main.go bootstrap.
package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/vibefoundry/vibefoundry-sandbox/internal/utils"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Setup builds and installs the default slog logger at the given level,
// writing to stdout (colorized if a TTY) and, if logFilePath is non-empty,
// to a plain text handler wrapped in a sequence-numbering interceptor. It
// returns a close func that flushes and closes the log file; callers
// should defer it.
func Setup(level slog.Level, logFilePath string) (close func(), err error) {
	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: timeFormat,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	if logFilePath == "" {
		slog.SetDefault(slog.New(stdoutHandler))
		return func() {}, nil
	}

	if err := utils.EnsureParent(logFilePath); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	interceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	logger := slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler))
	slog.SetDefault(logger)

	return func() {
		_ = interceptor.Close()
		_ = file.Close()
	}, nil
}

// ParseLevel maps the config's LogLevel string onto a slog.Level, defaulting
// to Info on anything unrecognized.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
