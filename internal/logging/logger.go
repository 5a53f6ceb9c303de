package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a colored console logger for the dev environment and a JSON
// logger otherwise.
func New(w io.Writer, env string, level slog.Level, appName string) *slog.Logger {
	if env == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(h).With(
		"app", appName,
		"env", env,
	)
}
