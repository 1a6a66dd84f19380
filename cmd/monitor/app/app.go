package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/fsm-monitor/internal/export"
	"github.com/roman-kulish/fsm-monitor/internal/link"
	"github.com/roman-kulish/fsm-monitor/internal/render"
	"github.com/roman-kulish/fsm-monitor/internal/session"
	"github.com/roman-kulish/fsm-monitor/internal/storage"
)

const dashboardTitle = "FSM Monitor"

// Run monitors the device until ctx is cancelled, the dashboard is closed or
// the link is lost, then exports the session. With the dashboard enabled the
// logger must not write to the terminal.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	s, err := session.New(session.Config{
		Channels:    config.Frame.Channels,
		Divisor:     config.Frame.Divisor,
		TickPeriod:  time.Duration(config.Consumer.TickPeriod),
		Wavelengths: config.Frame.Wavelengths,
	}, session.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	logger = logger.With(slog.String("session", s.ID().String()))
	logger.Info("session created",
		slog.Int("channels", config.Frame.Channels),
		slog.Float64("divisor", config.Frame.Divisor),
		slog.String("transport", string(config.Transport.Type)))

	store, err := createStorage(&config.Storage, s.StartTime())
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	journal, err := storage.NewJournal(ctx, store, &storage.SessionInfo{
		UUID:          s.ID().String(),
		StartTime:     s.StartTime(),
		Channels:      config.Frame.Channels,
		Divisor:       config.Frame.Divisor,
		DeviceAddress: config.Device.Address,
	}, config, storage.WithMaxBatchSize(config.Storage.MaxBatchSize), storage.WithJournalLogger(logger))
	if err != nil {
		return fmt.Errorf("creating journal: %w", err)
	}

	receiver, err := createReceiver(config, logger)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	chart, dashboard, err := createRenderers(config, s, logger)
	if err != nil {
		return fmt.Errorf("failed to create renderers: %w", err)
	}

	options := []func(c *session.Consumer){
		session.WithSink(journal),
		session.WithConsumerLogger(logger),
		session.WithRenderer(session.RendererFunc(func(update session.Update) {
			if update.Final {
				logger.Info("final drain",
					slog.String("samples", humanize.Comma(int64(update.Total))),
					slog.Uint64("decodeErrors", update.Stats.DecodeErrors))
			}
		})),
	}
	if chart != nil {
		options = append(options, session.WithRenderer(chart))
	}
	if dashboard != nil {
		options = append(options, session.WithRenderer(dashboard))
	}

	consumer := session.NewConsumer(s, options...)

	if err = monitor(ctx, receiver, s, consumer, dashboard, logger); err != nil {
		logger.Error(err.Error())
	}

	return exportSession(config, s, store, logger)
}

// monitor runs the transport and the consumer until the session is stopped. The
// transport is stopped first so the consumer's final drain sees every frame.
func monitor(ctx context.Context, receiver link.Receiver, s *session.Session, consumer *session.Consumer, dashboard *render.Dashboard, logger *slog.Logger) error {
	transportCtx, stopTransport := context.WithCancel(ctx)
	defer stopTransport()

	consumerCtx, stopConsumer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopConsumer()

	transportDone := make(chan error, 1)
	go func() {
		transportDone <- receiver.Receive(transportCtx, s.HandleFrame)
	}()

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Run(consumerCtx)
	}()

	var (
		stopSignal    <-chan struct{}
		dashboardDone chan error
	)
	dashboardCtx, stopDashboard := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDashboard()

	if dashboard != nil {
		stopSignal = dashboard.Done()
		dashboardDone = make(chan error, 1)
		go func() {
			dashboardDone <- dashboard.Run(dashboardCtx)
		}()
	}

	var (
		transportErr, consumerErr   error
		transportOver, consumerOver bool
	)

	select {
	case <-ctx.Done():
		logger.Info("stop requested")

	case <-stopSignal:
		logger.Info("dashboard closed")

	case transportErr = <-transportDone:
		transportOver = true
		if errors.Is(transportErr, link.ErrTransportDisconnected) {
			logger.Warn("transport disconnected, stopping the session", slog.Any("error", transportErr))
			transportErr = nil
		}

	case consumerErr = <-consumerDone:
		consumerOver = true
	}

	stopTransport()
	if !transportOver {
		transportErr = <-transportDone
		if errors.Is(transportErr, link.ErrTransportDisconnected) {
			transportErr = nil // lost while stopping
		}
	}

	stopConsumer()
	if !consumerOver {
		consumerErr = <-consumerDone
	}

	var dashboardErr error
	if dashboard != nil {
		stopDashboard()
		dashboardErr = <-dashboardDone
	}

	logger.Info("session stopped",
		slog.String("samples", humanize.Comma(int64(s.Buffer().Len()))),
		slog.Uint64("frames", s.Stats().Frames),
		slog.Uint64("decodeErrors", s.Stats().DecodeErrors))

	return errors.Join(transportErr, consumerErr, dashboardErr)
}

// exportSession writes the session buffer to the export file. The journal is
// kept when the export fails so it can be exported again with the export tool.
func exportSession(config *Config, s *session.Session, store *storage.SqliteStore, logger *slog.Logger) error {
	samples := s.Buffer().Samples()
	path := export.FileName(config.Export.Directory, s.StartTime(), config.Export.Format)

	if err := export.ToFile(path, config.Export.Format, s.Layout(), samples); err != nil {
		logger.Error("export failed, the session journal is kept",
			slog.String("journal", store.Path()),
			slog.String("session", s.ID().String()))
		return fmt.Errorf("exporting session: %w", err)
	}

	logger.Info("session exported",
		slog.String("destination", path),
		slog.String("format", string(config.Export.Format)),
		slog.String("samples", humanize.Comma(int64(len(samples)))))

	logSummary(logger, export.Summarize(s.Layout(), samples))

	if !config.Export.RemoveJournal {
		return store.Close()
	}

	if err := store.Remove(); err != nil {
		return fmt.Errorf("removing journal: %w", err)
	}
	logger.Debug("journal removed", slog.String("journal", store.Path()))
	return nil
}

func logSummary(logger *slog.Logger, summaries []export.ColumnSummary) {
	for _, summary := range summaries {
		logger.Debug("column summary",
			slog.String("column", summary.Name),
			slog.Float64("min", summary.Min),
			slog.Float64("max", summary.Max),
			slog.Float64("mean", summary.Mean),
			slog.Float64("stdDev", summary.StdDev))
	}
}

func createReceiver(config *Config, logger *slog.Logger) (link.Receiver, error) {
	t := config.Transport

	switch t.Type {
	case TransportWebsocket:
		return link.NewGateway(t.URL, config.Device.Address, config.Device.Characteristic, link.WithGatewayLogger(logger)), nil

	case TransportExec:
		helper, err := link.NewHelper(t.Command, t.Args, link.WithHelperLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating helper: %w", err)
		}
		return helper, nil

	case TransportReplay:
		return link.NewReplay(t.File, time.Duration(t.Interval), link.WithReplayLogger(logger)), nil

	default:
		return nil, fmt.Errorf("creating transport: unknown type '%s'", t.Type)
	}
}

func createRenderers(config *Config, s *session.Session, logger *slog.Logger) (*render.Chart, *render.Dashboard, error) {
	var chart *render.Chart
	if config.Render.Snapshot != "" {
		var err error
		chart, err = render.NewChart(s.Layout(), config.Render.Snapshot, render.ChartConfig{
			Scale:      config.Render.PlotStyle,
			ColorTheme: config.Render.ColorTheme,
		}, render.WithChartLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("creating chart: %w", err)
		}
	}

	if !config.Render.Dashboard {
		return chart, nil, nil
	}

	dashboard := render.NewDashboard(dashboardTitle, s.Layout(),
		render.WithColorTheme(config.Render.ColorTheme),
		render.WithSelectionHandler(func(selection render.Selection) {
			if chart == nil {
				return
			}
			if err := chart.SetSelection(selection); err != nil {
				logger.Warn(err.Error())
			}
		}))

	return chart, dashboard, nil
}

func createStorage(config *StorageConfig, start time.Time) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = defaultDataDirectory
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	dbPath := filepath.Join(dir, fmt.Sprintf("fsm_session_%s.sqlite", start.UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
