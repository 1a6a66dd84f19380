package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
)

// DefaultMaxBatchSize is the number of samples written per transaction.
const DefaultMaxBatchSize = 100

// JournalOption configures a Journal.
type JournalOption func(j *Journal)

// WithMaxBatchSize limits the number of samples written in a single transaction.
// Values above MaxBatchSize are clamped.
func WithMaxBatchSize(n int) JournalOption {
	return func(j *Journal) {
		if n > 0 {
			j.maxBatchSize = min(n, MaxBatchSize)
		}
	}
}

// WithJournalLogger sets the logger.
func WithJournalLogger(logger *slog.Logger) JournalOption {
	return func(j *Journal) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// Journal records the samples of one session, in the order the consumer
// appends them to the session buffer.
type Journal struct {
	store     Store
	session   *SessionInfo
	sessionID int64

	mu   sync.Mutex
	seq  uint64
	size int

	maxBatchSize int
	logger       *slog.Logger
}

// NewJournal registers the session in the store and returns a journal for it.
func NewJournal(ctx context.Context, store Store, info *SessionInfo, config any, options ...JournalOption) (*Journal, error) {
	j := &Journal{
		store:        store,
		maxBatchSize: DefaultMaxBatchSize,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}
	for _, option := range options {
		option(j)
	}

	sessionID, err := store.CreateSession(ctx, info, config)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	session := *info
	session.ID = sessionID
	j.session = &session
	j.sessionID = sessionID
	j.logger = j.logger.With(slog.String("journal", info.UUID))

	return j, nil
}

// Session returns the journaled session.
func (j *Journal) Session() *SessionInfo {
	return j.session
}

// Len returns the number of samples journaled so far.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.size
}

// StoreSamples appends samples to the journal in batches of at most maxBatchSize.
// A failed batch is not retried, samples stored before it remain journaled.
func (j *Journal) StoreSamples(ctx context.Context, samples []fsm.Sample) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for batch := range slices.Chunk(samples, j.maxBatchSize) {
		if err := j.store.StoreSamples(ctx, j.sessionID, j.seq, batch); err != nil {
			return fmt.Errorf("journaling %d samples: %w", len(batch), err)
		}
		j.seq += uint64(len(batch))
		j.size += len(batch)
	}

	if len(samples) > 0 {
		j.logger.Debug("samples journaled",
			slog.Int("count", len(samples)),
			slog.String("total", humanize.Comma(int64(j.size))))
	}
	return nil
}
