package utils

import (
	"strings"

	logger "github.com/sirupsen/logrus"
)

// SetupLogger applies LOG_LEVEL and LOG_FORMAT to the global logger. An
// unknown level falls back to debug.
func SetupLogger(levelStr, format string) {
	level, err := logger.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		level = logger.DebugLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logger.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}
