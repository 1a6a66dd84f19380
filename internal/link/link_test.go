package link

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *frameRecorder) handle(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, bytes.Clone(frame))
}

func (r *frameRecorder) snapshot() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

func TestParseFrameLine(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		expected    []byte
		expectedErr error
		wantErr     bool
	}{
		{
			name:     "bare hex",
			line:     "00ff10",
			expected: []byte{0x00, 0xff, 0x10},
		},
		{
			name:     "uppercase hex with whitespace",
			line:     "  0A0B  ",
			expected: []byte{0x0a, 0x0b},
		},
		{
			name:     "notification line",
			line:     "Received data (length: 3): 010203",
			expected: []byte{0x01, 0x02, 0x03},
		},
		{
			name:    "length mismatch",
			line:    "Received data (length: 4): 010203",
			wantErr: true,
		},
		{
			name:    "bad payload",
			line:    "Received data (length: 1): zz",
			wantErr: true,
		},
		{
			name:    "bad length",
			line:    "Received data (length: x): 01",
			wantErr: true,
		},
		{
			name:        "log line",
			line:        "Connected to AA:BB:CC:DD:EE:FF",
			expectedErr: ErrNotFrame,
		},
		{
			name:        "odd length",
			line:        "abc",
			expectedErr: ErrNotFrame,
		},
		{
			name:        "empty",
			line:        "",
			expectedErr: ErrNotFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseFrameLine(tt.line)

			switch {
			case tt.expectedErr != nil:
				if !errors.Is(err, tt.expectedErr) {
					t.Errorf("Expected error %v, got %v", tt.expectedErr, err)
				}
			case tt.wantErr:
				if err == nil || errors.Is(err, ErrNotFrame) {
					t.Errorf("Expected parse error, got %v", err)
				}
			default:
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if !bytes.Equal(frame, tt.expected) {
					t.Errorf("Expected %x, got %x", tt.expected, frame)
				}
			}
		})
	}
}

func writeRecording(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "recording.txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("Failed to write recording: %v", err)
	}
	return path
}

func TestReplay_Receive(t *testing.T) {
	path := writeRecording(t,
		"Scanning...",
		"0102",
		"Received data (length: 2): 0304",
		"Received data (length: 9): 05",
		"0506",
	)

	recorder := &frameRecorder{}
	err := NewReplay(path, time.Millisecond).Receive(context.Background(), recorder.handle)
	if !errors.Is(err, ErrTransportDisconnected) {
		t.Fatalf("Expected ErrTransportDisconnected at end of recording, got %v", err)
	}

	frames := recorder.snapshot()
	expected := [][]byte{{0x01, 0x02}, {0x03, 0x04}, {0x05, 0x06}}
	if len(frames) != len(expected) {
		t.Fatalf("Expected %d frames, got %d", len(expected), len(frames))
	}
	for i := range expected {
		if !bytes.Equal(frames[i], expected[i]) {
			t.Errorf("Frame %d: expected %x, got %x", i, expected[i], frames[i])
		}
	}
}

func TestReplay_Cancel(t *testing.T) {
	path := writeRecording(t, "01", "02", "03")

	ctx, cancel := context.WithCancel(context.Background())

	recorder := &frameRecorder{}
	err := NewReplay(path, time.Hour).Receive(ctx, func(frame []byte) {
		recorder.handle(frame)
		cancel()
	})
	if err != nil {
		t.Fatalf("Expected nil error on cancellation, got %v", err)
	}
	if frames := recorder.snapshot(); len(frames) != 1 {
		t.Errorf("Expected 1 frame before cancellation, got %d", len(frames))
	}
}

func TestReplay_MissingFile(t *testing.T) {
	err := NewReplay(filepath.Join(t.TempDir(), "missing.txt"), 0).Receive(context.Background(), func([]byte) {})
	if err == nil {
		t.Fatal("Expected error for missing recording")
	}
	if errors.Is(err, ErrTransportDisconnected) {
		t.Errorf("Expected open error, got %v", err)
	}
}
