package session

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
)

const (
	// DefaultTickPeriod is the consumer loop period when none is configured
	DefaultTickPeriod = 100 * time.Millisecond

	// DecodeErrorsWarnThreshold defines the number of consecutive decode errors after
	// which a warning about the link quality is logged
	DecodeErrorsWarnThreshold = 5
)

// Config holds the session parameters supplied by the application.
type Config struct {
	Channels    int           // K, values per array
	Divisor     float64       // Unit-scale divisor applied to raw readings
	TickPeriod  time.Duration // Consumer loop period
	Wavelengths []string      // Optional wavelength group labels
}

// Stats are counters describing the producer side of a session.
type Stats struct {
	Frames       uint64 // Frames received
	Decoded      uint64 // Frames decoded and queued
	DecodeErrors uint64 // Frames dropped because they could not be decoded
}

// WithLogger sets the logger for the session
func WithLogger(logger *slog.Logger) func(s *Session) {
	return func(s *Session) {
		s.logger = logger.With(slog.String("session", s.id.String()))
	}
}

// WithClock replaces the wall clock used to timestamp arrivals
func WithClock(now func() time.Time) func(s *Session) {
	return func(s *Session) {
		s.now = now
	}
}

// Session owns everything one monitoring session needs: the decoder, the ingestion
// queue shared by the producer and the consumer, and the sample buffer owned by the
// consumer.
type Session struct {
	id        uuid.UUID
	startTime time.Time
	config    Config

	layout  *fsm.Layout
	decoder *fsm.Decoder
	queue   *fsm.Queue
	buffer  *fsm.Buffer

	anchorMu     sync.Mutex
	anchor       time.Time // Wall-clock arrival of the first decoded sample
	anchored     bool
	lastHostTime float64

	frames            atomic.Uint64
	decoded           atomic.Uint64
	decodeErrors      atomic.Uint64
	consecutiveErrors atomic.Uint32

	now    func() time.Time
	logger *slog.Logger
}

// New creates a session with an empty buffer and queue.
func New(config Config, options ...func(s *Session)) (*Session, error) {
	if config.TickPeriod == 0 {
		config.TickPeriod = DefaultTickPeriod
	}
	if config.TickPeriod < 0 {
		return nil, fmt.Errorf("session.Config: tick period must be positive: %s", config.TickPeriod)
	}

	layout, err := fsm.NewLayout(config.Channels, config.Wavelengths...)
	if err != nil {
		return nil, fmt.Errorf("creating layout: %w", err)
	}

	decoder, err := fsm.NewDecoder(config.Channels, config.Divisor)
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	buffer, err := fsm.NewBuffer(config.Channels)
	if err != nil {
		return nil, fmt.Errorf("creating buffer: %w", err)
	}

	s := Session{
		id:      uuid.New(),
		config:  config,
		layout:  layout,
		decoder: decoder,
		queue:   fsm.NewQueue(),
		buffer:  buffer,
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	s.startTime = s.now()
	return &s, nil
}

// ID returns the unique session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// StartTime returns the wall-clock time the session was created.
func (s *Session) StartTime() time.Time {
	return s.startTime
}

// Config returns the session parameters.
func (s *Session) Config() Config {
	return s.config
}

// Layout returns the channel layout of the session.
func (s *Session) Layout() *fsm.Layout {
	return s.layout
}

// Queue returns the ingestion queue.
func (s *Session) Queue() *fsm.Queue {
	return s.queue
}

// Buffer returns the sample buffer. It must only be accessed from the consumer
// goroutine while the session is running.
func (s *Session) Buffer() *fsm.Buffer {
	return s.buffer
}

// Stats returns the producer counters.
func (s *Session) Stats() Stats {
	return Stats{
		Frames:       s.frames.Load(),
		Decoded:      s.decoded.Load(),
		DecodeErrors: s.decodeErrors.Load(),
	}
}

// HandleFrame is the frame notification callback. It decodes the frame, assigns the
// host time and queues the sample. Frames that cannot be decoded are dropped and
// reported, they never end the session.
func (s *Session) HandleFrame(frame []byte) {
	s.frames.Add(1)

	sample, err := s.decoder.Decode(frame)
	if err != nil {
		s.decodeErrors.Add(1)
		s.logger.Warn(fmt.Sprintf("dropping frame: %s", err.Error()), slog.Int("length", len(frame)))

		if s.consecutiveErrors.Add(1) == DecodeErrorsWarnThreshold {
			s.logger.Warn("too many consecutive decode errors, check the channel count configuration",
				slog.Int("channels", s.config.Channels),
				slog.Int("minFrameLength", s.decoder.MinFrameLength()))
		}
		return
	}
	s.consecutiveErrors.Store(0)

	seq := s.enqueue(sample)
	s.decoded.Add(1)

	s.logger.Debug("sample queued",
		slog.Uint64("seq", seq),
		slog.String("deviceTime", fmt.Sprintf("%0.2fs", sample.DeviceTime)))
}

// enqueue timestamps the sample and pushes it. Timestamping and pushing happen under
// one lock so host time never decreases in queue order, even if the wall clock is
// stepped backwards.
func (s *Session) enqueue(sample fsm.Sample) uint64 {
	s.anchorMu.Lock()
	defer s.anchorMu.Unlock()

	arrival := s.now()
	if !s.anchored {
		s.anchor = arrival
		s.anchored = true
	}

	s.lastHostTime = max(arrival.Sub(s.anchor).Seconds(), s.lastHostTime)

	sample.ReceivedAt = arrival
	sample.HostTime = s.lastHostTime

	return s.queue.Push(sample)
}
