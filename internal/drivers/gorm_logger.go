package drivers

import (
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm/logger"
)

// newGormLogger routes gorm's SQL log through the default slog handler at
// info level, so statements follow the configured log format. "info" shows
// every statement, "warn" slow statements, "error" failures only; anything
// else is silent.
func newGormLogger(logLevel string) logger.Interface {
	var level logger.LogLevel
	switch strings.ToLower(logLevel) {
	case "info":
		level = logger.Info
	case "warn":
		level = logger.Warn
	case "error":
		level = logger.Error
	default:
		return logger.Default.LogMode(logger.Silent)
	}

	return logger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
