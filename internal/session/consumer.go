package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
)

const (
	StateIdle     State = "idle"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
)

// ErrConsumerRunning is returned when Run is called on a consumer that is already running
var ErrConsumerRunning = errors.New("consumer is already running")

type State string

// Update is passed to renderers after every consumer tick.
type Update struct {
	Appended []fsm.Sample // Samples appended during this tick, in buffer order
	Rejected int          // Drained samples the buffer refused during this tick
	Total    int          // Buffer length after the tick
	Stats    Stats        // Producer counters at the time of the tick
	Final    bool         // Set on the last update before the consumer stops
}

// Renderer receives buffer updates from the consumer goroutine. Render must return
// promptly, slow renderers delay the next drain.
type Renderer interface {
	Render(update Update)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(update Update)

func (f RendererFunc) Render(update Update) {
	f(update)
}

// Sink persists appended samples, typically to the session journal.
type Sink interface {
	StoreSamples(ctx context.Context, samples []fsm.Sample) error
}

// WithRenderer registers a renderer triggered after each tick
func WithRenderer(r Renderer) func(c *Consumer) {
	return func(c *Consumer) {
		c.renderers = append(c.renderers, r)
	}
}

// WithSink sets the sink receiving every appended batch
func WithSink(sink Sink) func(c *Consumer) {
	return func(c *Consumer) {
		c.sink = sink
	}
}

// WithConsumerLogger sets the logger for the consumer
func WithConsumerLogger(logger *slog.Logger) func(c *Consumer) {
	return func(c *Consumer) {
		c.logger = logger.With(slog.String("component", "consumer"))
	}
}

// Consumer periodically drains the session queue into the sample buffer and triggers
// the renderers. It owns the buffer while it runs.
type Consumer struct {
	session   *Session
	renderers []Renderer
	sink      Sink

	state    atomic.Value
	running  atomic.Bool
	ticks    atomic.Uint64
	rejected atomic.Uint64

	logger *slog.Logger
}

// NewConsumer creates a consumer for the session.
func NewConsumer(s *Session, options ...func(c *Consumer)) *Consumer {
	c := Consumer{
		session: s,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}
	c.state.Store(StateIdle)

	for _, option := range options {
		option(&c)
	}

	return &c
}

// State returns the current state of the consumer loop.
func (c *Consumer) State() State {
	return c.state.Load().(State)
}

// Ticks returns the number of completed drain passes.
func (c *Consumer) Ticks() uint64 {
	return c.ticks.Load()
}

// Rejected returns the number of drained samples the buffer refused.
func (c *Consumer) Rejected() uint64 {
	return c.rejected.Load()
}

// Run drains the queue every tick period until ctx is cancelled, then drains one
// final time so no queued sample is lost.
func (c *Consumer) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrConsumerRunning
	}
	defer c.running.Store(false)

	c.state.Store(StateIdle)

	ticker := time.NewTicker(c.session.config.TickPeriod)
	defer ticker.Stop()

	c.logger.Info("consumer started", slog.Duration("tickPeriod", c.session.config.TickPeriod))

	for {
		select {
		case <-ctx.Done():
			// the journal context is already cancelled, the final batch uses a fresh one
			c.Tick(context.WithoutCancel(ctx), true)
			c.state.Store(StateStopped)

			c.logger.Info("consumer stopped",
				slog.Int("samples", c.session.buffer.Len()),
				slog.Uint64("ticks", c.ticks.Load()),
				slog.Uint64("rejected", c.rejected.Load()))
			return nil

		case <-ticker.C:
			c.Tick(ctx, false)
		}
	}
}

// Tick performs one drain pass: drain, append in order, persist, render. A sample
// the buffer refuses is logged and dropped, the rest of the batch is kept. Sink
// failures are logged.
func (c *Consumer) Tick(ctx context.Context, final bool) {
	c.state.Store(StateDraining)
	defer c.state.Store(StateIdle)

	drained := c.session.queue.DrainAll()

	appended := make([]fsm.Sample, 0, len(drained))
	var rejected int
	for _, item := range drained {
		if err := c.session.buffer.Append(item.Sample); err != nil {
			rejected++
			c.logger.Warn(fmt.Sprintf("dropping drained sample: %s", err.Error()), slog.Uint64("seq", item.Seq))
			continue
		}
		appended = append(appended, item.Sample)
	}
	c.rejected.Add(uint64(rejected))

	if c.sink != nil && len(appended) > 0 {
		if err := c.sink.StoreSamples(ctx, appended); err != nil {
			c.logger.Error(fmt.Sprintf("storing samples: %s", err.Error()), slog.Int("count", len(appended)))
		}
	}

	update := Update{
		Appended: appended,
		Rejected: rejected,
		Total:    c.session.buffer.Len(),
		Stats:    c.session.Stats(),
		Final:    final,
	}
	for _, r := range c.renderers {
		r.Render(update)
	}

	c.ticks.Add(1)
}
