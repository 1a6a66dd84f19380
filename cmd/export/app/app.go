package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/fsm-monitor/internal/export"
	"github.com/roman-kulish/fsm-monitor/internal/fsm"
	"github.com/roman-kulish/fsm-monitor/internal/storage"
)

// Run exports a journaled session and returns the path of the written file.
func Run(ctx context.Context, config *Config, logger *slog.Logger) (string, error) {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return "", fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	session, err := findSession(ctx, store, config.SessionID)
	if err != nil {
		return "", err
	}

	logger.Info("reading session",
		slog.String("session", session.UUID),
		slog.String("startTime", session.StartTime.Local().Format(time.DateTime)),
		slog.Int("channels", session.Channels))

	reader, err := store.ReadSamples(ctx, session.UUID)
	if err != nil {
		return "", fmt.Errorf("reading samples: %w", err)
	}
	defer reader.Close()

	samples, err := storage.ReadAll(ctx, reader)
	if err != nil {
		return "", fmt.Errorf("reading samples: %w", err)
	}

	layout, err := fsm.NewLayout(session.Channels)
	if err != nil {
		return "", err
	}

	path := export.FileName(config.OutputDir, session.StartTime, config.Format)
	if err = export.ToFile(path, config.Format, layout, samples); err != nil {
		return "", err
	}

	logger.Info("session exported",
		slog.String("destination", path),
		slog.String("format", string(config.Format)),
		slog.String("samples", humanize.Comma(int64(len(samples)))))

	return path, nil
}

func findSession(ctx context.Context, store *storage.SqliteStore, id string) (*storage.SessionInfo, error) {
	if id != "" {
		session, err := store.Session(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("finding session %s: %w", id, err)
		}
		return session, nil
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no sessions in '%s'", store.Path())
	}
	return sessions[len(sessions)-1], nil // ordered by start time
}
