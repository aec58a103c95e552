package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs a JSON slog handler as the process default and returns it.
func Init(service, env string) *slog.Logger {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("service", service, "env", env)
	slog.SetDefault(logger)
	return logger
}
