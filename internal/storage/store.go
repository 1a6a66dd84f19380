package storage

import (
	"context"
	"time"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
)

// SessionInfo describes a journaled monitoring session.
type SessionInfo struct {
	ID            int64     `json:"id"`                      // Database identifier
	UUID          string    `json:"uuid"`                    // Session identifier assigned by the monitor
	StartTime     time.Time `json:"startTime"`               // When the monitoring session began
	Channels      int       `json:"channels"`                // K, values per array
	Divisor       float64   `json:"divisor"`                 // Unit-scale divisor applied when decoding
	DeviceAddress string    `json:"deviceAddress,omitempty"` // Address of the device, if known
	Config        *string   `json:"config,omitempty"`        // Optional monitor configuration in JSON format
}

// Store is the session journal: an intermediate, append-only record of every sample
// appended to a session buffer, kept until the session has been exported.
type Store interface {
	// CreateSession registers a new session and returns its database identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - info: Session metadata, ID is ignored
	//   - config: Optional configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, info *SessionInfo, config any) (sessionID int64, err error)

	// Session returns the session with the given UUID.
	Session(ctx context.Context, uuid string) (*SessionInfo, error)

	// Sessions returns all sessions ordered by start time.
	Sessions(ctx context.Context) ([]*SessionInfo, error)

	// StoreSamples appends samples to a session in a single transaction. Samples are
	// numbered from firstSeq in slice order.
	StoreSamples(ctx context.Context, sessionID int64, firstSeq uint64, samples []fsm.Sample) error

	// CountSamples returns the number of samples stored for a session.
	CountSamples(ctx context.Context, sessionID int64) (int, error)

	// Close releases all database connections. It is safe to call Close multiple times.
	Close() error
}
