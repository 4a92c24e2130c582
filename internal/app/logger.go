package app

import (
	"strings"

	"github.com/learnhub/learnhub/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level, defaulting to info.
// The development environment switches to the console encoder.
func ConfigureLogging(server ServerConfig) error {
	level := strings.TrimSpace(server.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.InitWithEnvironment(level, server.Environment)
}
