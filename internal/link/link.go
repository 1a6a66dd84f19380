// Package link delivers raw sensor notification frames from the wireless link
// to a frame handler. The BLE stack itself lives outside the process: frames
// arrive through a websocket gateway, a helper program or a recorded file.
package link

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultCharacteristic is the FSM data characteristic frames are subscribed from.
const DefaultCharacteristic = "c042d543-3929-48c9-af11-cf252f5ce7f4"

// ParseErrorsThreshold defines the number of consecutive parse errors allowed
const ParseErrorsThreshold = 5

// helper output prefix of a notification line: "Received data (length: N): <hex>"
const receivedDataPrefix = "Received data (length: "

var (
	// ErrTransportDisconnected is returned when the link is gone while the
	// session is still running.
	ErrTransportDisconnected = errors.New("transport disconnected")

	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

	// ErrBrokenPipe is returned when there's an error reading from stdout or stderr
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrNotFrame is returned by ParseFrameLine for lines that carry no frame.
	ErrNotFrame = errors.New("not a frame line")
)

// FrameHandler is the notification callback. It is invoked sequentially, once
// per frame, on the transport goroutine and must not retain the frame.
type FrameHandler func(frame []byte)

// Receiver delivers frames until ctx is cancelled, which returns nil after the
// subscription has been stopped and the link closed, or until the link drops,
// which returns an error wrapping ErrTransportDisconnected.
type Receiver interface {
	Receive(ctx context.Context, handle FrameHandler) error
}

// ParseFrameLine extracts a frame from a line of text. Both a bare hex string
// and a "Received data (length: N): <hex>" notification line are accepted, in
// the latter case N must match the decoded length.
func ParseFrameLine(line string) ([]byte, error) {
	line = strings.TrimSpace(line)

	if rest, ok := strings.CutPrefix(line, receivedDataPrefix); ok {
		length, payload, found := strings.Cut(rest, "):")
		if !found {
			return nil, fmt.Errorf("malformed notification line: %q", line)
		}

		n, err := strconv.Atoi(strings.TrimSpace(length))
		if err != nil {
			return nil, fmt.Errorf("malformed frame length: %w", err)
		}

		frame, err := hex.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			return nil, fmt.Errorf("malformed frame payload: %w", err)
		}
		if len(frame) != n {
			return nil, fmt.Errorf("frame length mismatch: declared %d, got %d", n, len(frame))
		}
		return frame, nil
	}

	if line == "" || len(line)%2 != 0 || strings.IndexFunc(line, notHex) >= 0 {
		return nil, ErrNotFrame
	}

	return hex.DecodeString(line)
}

func notHex(r rune) bool {
	return !('0' <= r && r <= '9' || 'a' <= r && r <= 'f' || 'A' <= r && r <= 'F')
}
