package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
)

// SampleReader provides an iterator-based interface for reading the samples of
// a journaled session in the order they were appended to the session buffer.
type SampleReader interface {
	// Session returns metadata about the session this reader is accessing.
	Session() *SessionInfo

	// Next advances the iterator and returns true if there is another sample
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current sample in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *fsm.Sample

	// Error returns any error that occurred during iteration.
	// If Next() returns false, Error() should be checked to distinguish between
	// end of data and an error condition.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// SqliteSampleReader implements SampleReader for SQLite database backend.
type SqliteSampleReader struct {
	session *SessionInfo
	rows    *sql.Rows
	current fsm.Sample
	err     error
}

func newSqliteSampleReader(ctx context.Context, db *sql.DB, session *SessionInfo) (*SqliteSampleReader, error) {
	rows, err := db.QueryContext(ctx, selectSamplesSQL, session.ID)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}

	return &SqliteSampleReader{
		session: session,
		rows:    rows,
	}, nil
}

func (r *SqliteSampleReader) Session() *SessionInfo {
	return r.session
}

func (r *SqliteSampleReader) Next(ctx context.Context) bool {
	if r.err != nil || r.rows == nil {
		return false
	}

	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}

	if !r.rows.Next() {
		r.err = r.rows.Err()
		return false
	}

	var (
		seq        int64
		receivedAt int64
		arrayA     []byte
		arrayB     []byte
		sample     fsm.Sample
	)

	if err := r.rows.Scan(&seq, &receivedAt, &sample.HostTime, &sample.DeviceTime, &arrayA, &arrayB); err != nil {
		r.err = fmt.Errorf("scanning sample: %w", err)
		return false
	}

	var err error
	if sample.ArrayA, err = decodeValues(arrayA, r.session.Channels); err != nil {
		r.err = fmt.Errorf("sample %d: array A: %w", seq, err)
		return false
	}
	if sample.ArrayB, err = decodeValues(arrayB, r.session.Channels); err != nil {
		r.err = fmt.Errorf("sample %d: array B: %w", seq, err)
		return false
	}
	sample.ReceivedAt = time.Unix(0, receivedAt)

	r.current = sample
	return true
}

func (r *SqliteSampleReader) Current() *fsm.Sample {
	return &r.current
}

func (r *SqliteSampleReader) Error() error {
	return r.err
}

func (r *SqliteSampleReader) Close() error {
	if r.rows == nil {
		return nil
	}

	err := r.rows.Close()
	r.rows = nil
	return err
}

// ReadAll drains the reader into a slice.
func ReadAll(ctx context.Context, r SampleReader) ([]fsm.Sample, error) {
	var samples []fsm.Sample
	for r.Next(ctx) {
		samples = append(samples, *r.Current())
	}
	if err := r.Error(); err != nil {
		return nil, err
	}
	return samples, nil
}
