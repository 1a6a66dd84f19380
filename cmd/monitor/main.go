package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/fsm-monitor/cmd/monitor/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	var configPath string
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.Parse()

	if configPath == "" {
		logger.Error("no configuration file provided")
		os.Exit(1)
	}

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	logLevel.Set(config.Settings.LogLevel)

	var logFile io.Closer
	if config.Render.Dashboard {
		// the dashboard owns the terminal
		f, err := os.OpenFile(config.Settings.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Error(fmt.Sprintf("failed to open log file: %s", err.Error()), slog.String("path", config.Settings.LogFile))
			os.Exit(1)
		}
		logFile = f

		logger.Info("dashboard enabled, logging to file", slog.String("path", config.Settings.LogFile))
		logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: &logLevel}))
	}

	logger.Info("starting monitor",
		slog.String("config", configPath),
		slog.String("transport", string(config.Transport.Type)),
		slog.Int("channels", config.Frame.Channels),
		slog.Bool("dashboard", config.Render.Dashboard))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = app.Run(ctx, config, logger)
	cancel()

	if err != nil {
		logger.Error(err.Error())
	}

	if logFile != nil {
		if cErr := logFile.Close(); cErr != nil {
			fmt.Fprintf(os.Stderr, "closing log file: %v\n", cErr)
		}
		if err != nil {
			// the log file is not visible while the dashboard runs
			fmt.Fprintf(os.Stderr, "monitor failed: %v (see %s)\n", err, config.Settings.LogFile)
		}
	}

	if err != nil {
		os.Exit(1)
	}
}
