package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/shopfloor-ops/change-relay/config"
)

// ProvideLogger builds the root logger. The level is a LevelVar so a config
// file edit can change it at runtime.
func ProvideLogger(cfg *config.Config) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Log.Level))

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		slog.String("service", ServiceName),
		slog.String("namespace", ServiceNamespace),
		slog.String("version", version),
	)
	slog.SetDefault(logger)

	// [HOT_RELOAD] Only the level is live; everything else needs a restart.
	cfg.OnChange(func(next *config.Config, err error) {
		if err != nil {
			logger.Warn("CONFIG_RELOAD_REJECTED", slog.Any("err", err))
			return
		}
		level.Set(parseLevel(next.Log.Level))
		logger.Info("CONFIG_RELOADED", slog.String("log_level", level.Level().String()))
	})

	return logger, level
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With(slog.String("component", "watermill")))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
