package logger

import (
	"os"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// Messages logs esbuild diagnostics, errors at error level and warnings at warn.
func Messages(logger zerolog.Logger, errors, warnings []api.Message) {
	for _, msg := range errors {
		event(logger.Error(), msg).Msg("Build error")
	}
	for _, msg := range warnings {
		event(logger.Warn(), msg).Msg("Build warning")
	}
}

func event(e *zerolog.Event, msg api.Message) *zerolog.Event {
	e = e.Str("text", msg.Text)
	if msg.PluginName != "" {
		e = e.Str("plugin", msg.PluginName)
	}
	if msg.Location != nil {
		e = e.Str("file", msg.Location.File).
			Int("line", msg.Location.Line).
			Int("column", msg.Location.Column)
	}
	return e
}
