package fsm

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrChannelMismatch is returned when a sample does not carry K values per array
	ErrChannelMismatch = errors.New("channel count mismatch")

	// ErrHostTimeRegression is returned when a sample's host time is earlier than the last one
	ErrHostTimeRegression = errors.New("host time went backwards")
)

// Buffer is the append-only store of decoded samples for one session. Insertion order
// is arrival order. Every sample has exactly K values per array and host time never
// decreases. Buffer is owned by a single goroutine and is not safe for concurrent use.
type Buffer struct {
	channels int
	samples  []Sample
}

// NewBuffer creates an empty buffer for samples with k values per array.
func NewBuffer(k int) (*Buffer, error) {
	if !ValidChannels(k) {
		return nil, fmt.Errorf("fsm.Buffer: unsupported channel count %d", k)
	}
	return &Buffer{channels: k}, nil
}

// Append adds samples to the end of the buffer. The whole batch is validated first,
// an invalid batch leaves the buffer untouched.
func (b *Buffer) Append(samples ...Sample) error {
	last := b.lastHostTime()

	for i, s := range samples {
		if len(s.ArrayA) != b.channels || len(s.ArrayB) != b.channels {
			return fmt.Errorf("appending sample %d: %w: expected %d, got %d/%d",
				i, ErrChannelMismatch, b.channels, len(s.ArrayA), len(s.ArrayB))
		}
		if s.HostTime < last {
			return fmt.Errorf("appending sample %d: %w: %f < %f", i, ErrHostTimeRegression, s.HostTime, last)
		}
		last = s.HostTime
	}

	b.samples = append(b.samples, samples...)
	return nil
}

func (b *Buffer) lastHostTime() float64 {
	if len(b.samples) == 0 {
		return 0
	}
	return b.samples[len(b.samples)-1].HostTime
}

// Channels returns K.
func (b *Buffer) Channels() int {
	return b.channels
}

// Len returns the number of samples in the buffer.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// At returns the i-th sample in insertion order.
func (b *Buffer) At(i int) Sample {
	return b.samples[i]
}

// Last returns the most recent sample, false if the buffer is empty.
func (b *Buffer) Last() (Sample, bool) {
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Samples returns a copy of the buffered samples, value arrays included.
func (b *Buffer) Samples() []Sample {
	samples := make([]Sample, len(b.samples))
	for i, s := range b.samples {
		s.ArrayA = slices.Clone(s.ArrayA)
		s.ArrayB = slices.Clone(s.ArrayB)
		samples[i] = s
	}
	return samples
}

// Column returns the series of one array position across all samples.
func (b *Buffer) Column(array Array, i int) []float64 {
	values := make([]float64, len(b.samples))
	for j, s := range b.samples {
		if array == ArrayB {
			values[j] = s.ArrayB[i]
		} else {
			values[j] = s.ArrayA[i]
		}
	}
	return values
}
