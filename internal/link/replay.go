package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// DefaultReplayInterval matches the device notification period.
const DefaultReplayInterval = 100 * time.Millisecond

// WithReplayLogger sets the logger for the replay
func WithReplayLogger(logger *slog.Logger) func(r *Replay) {
	return func(r *Replay) {
		r.logger = logger.With(slog.String("replay", r.path))
	}
}

// Replay delivers frames recorded as hex lines, one frame per interval.
// The end of the recording is reported as a disconnected link.
type Replay struct {
	path     string
	interval time.Duration
	logger   *slog.Logger
}

// NewReplay creates a new Replay instance with a discard logger.
func NewReplay(path string, interval time.Duration, options ...func(r *Replay)) *Replay {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	if interval <= 0 {
		interval = DefaultReplayInterval
	}

	r := Replay{
		path:     path,
		interval: interval,
		logger:   logger,
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

func (r *Replay) Receive(ctx context.Context, handle FrameHandler) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var frames int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	for scanner.Scan() {
		frame, err := ParseFrameLine(scanner.Text())
		if errors.Is(err, ErrNotFrame) {
			continue
		}
		if err != nil {
			r.logger.Warn(fmt.Sprintf("error parsing frame: %s", err.Error()), slog.String("line", scanner.Text()))
			continue
		}

		if frames > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		handle(frame)
		frames++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: reading recording: %w", ErrTransportDisconnected, err)
	}

	r.logger.Info("recording finished", slog.Int("frames", frames))

	return fmt.Errorf("%w: end of recording", ErrTransportDisconnected)
}
