package main

import (
	"fmt"
	"os"

	"trade-confirmation-backend/internal/config"
	"trade-confirmation-backend/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.LogConfig{
		Level:      cfg.LogLevel,
		Console:    cfg.LogConsole,
		FilePath:   cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
	})

	if err := newRootCmd(cfg, logger).Execute(); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
