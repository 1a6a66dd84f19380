package fsm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	minutesOffset = 0
	microsOffset  = 2
	arrayAOffset  = 9
	arrayBOffset  = 96

	wordSize = 4

	// DefaultDivisor converts raw nanovolt readings to volts
	DefaultDivisor = 1e9
)

var (
	// ErrTruncatedFrame is returned when a frame is shorter than the configured layout requires
	ErrTruncatedFrame = errors.New("truncated frame")

	// ErrMalformedFrame is returned when a frame is structurally inconsistent with the layout
	ErrMalformedFrame = errors.New("malformed frame")
)

// DecodeError describes a frame that could not be decoded. It wraps either
// ErrTruncatedFrame or ErrMalformedFrame.
type DecodeError struct {
	Err      error
	Length   int // Length of the received frame
	Expected int // Minimum length for the configured channel count
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %d bytes, expected at least %d", e.Err, e.Length, e.Expected)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Sample is a decoded, unit-converted frame.
type Sample struct {
	DeviceTime float64   // Elapsed seconds on the device clock
	HostTime   float64   // Elapsed wall-clock seconds since the first sample of the session
	ReceivedAt time.Time // Wall-clock time of arrival
	ArrayA     []float64 // K values of array A, scaled by the divisor
	ArrayB     []float64 // K values of array B, scaled by the divisor
}

// Decoder turns raw frames into samples for a fixed channel count and divisor.
// It holds no mutable state and is safe for concurrent use.
type Decoder struct {
	channels int
	divisor  float64
}

// NewDecoder creates a decoder for k channels per array. Every raw value is divided by
// divisor, use DefaultDivisor to get volts or 1 to keep raw readings.
func NewDecoder(k int, divisor float64) (*Decoder, error) {
	if !ValidChannels(k) {
		return nil, fmt.Errorf("fsm.Decoder: unsupported channel count %d, must be %d or %d", k, Channels21, Channels28)
	}
	if divisor <= 0 {
		return nil, fmt.Errorf("fsm.Decoder: divisor must be positive: %g given", divisor)
	}

	return &Decoder{channels: k, divisor: divisor}, nil
}

// Channels returns the number of values decoded per array.
func (d *Decoder) Channels() int {
	return d.channels
}

// MinFrameLength returns the shortest frame accepted by the decoder.
func (d *Decoder) MinFrameLength() int {
	return arrayBOffset + wordSize*d.channels
}

// Decode parses a frame. HostTime and ReceivedAt are left zero, they are assigned by
// whoever observed the arrival.
func (d *Decoder) Decode(frame []byte) (Sample, error) {
	if len(frame) < d.MinFrameLength() {
		return Sample{}, &DecodeError{Err: ErrTruncatedFrame, Length: len(frame), Expected: d.MinFrameLength()}
	}

	minutes := binary.LittleEndian.Uint16(frame[minutesOffset:])
	micros := binary.LittleEndian.Uint32(frame[microsOffset:])

	arrayA, err := d.readArray(frame, arrayAOffset)
	if err != nil {
		return Sample{}, err
	}
	arrayB, err := d.readArray(frame, arrayBOffset)
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		DeviceTime: float64(minutes)*60 + float64(micros)/1_000_000,
		ArrayA:     arrayA,
		ArrayB:     arrayB,
	}, nil
}

func (d *Decoder) readArray(frame []byte, offset int) ([]float64, error) {
	end := offset + wordSize*d.channels
	if end > len(frame) {
		return nil, &DecodeError{Err: ErrMalformedFrame, Length: len(frame), Expected: end}
	}

	values := make([]float64, d.channels)
	for i := range values {
		raw := binary.LittleEndian.Uint32(frame[offset+i*wordSize:])
		values[i] = float64(raw) / d.divisor
	}

	return values, nil
}
