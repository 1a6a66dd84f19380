// Package render draws the live view of a monitoring session: a terminal
// dashboard and PNG chart snapshots of the selected LED groups.
package render

import (
	"sync"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
)

// History is the column store the renderers draw from. It is safe for
// concurrent use, the consumer appends while the dashboard reads.
type History struct {
	mu       sync.RWMutex
	channels int
	limit    int
	times    []float64
	arrays   [2][][]float64 // array, position, sample
}

// NewHistory creates a history for k channels keeping at most limit samples,
// 0 keeps the whole session.
func NewHistory(k, limit int) *History {
	h := History{channels: k, limit: limit}
	for a := range h.arrays {
		h.arrays[a] = make([][]float64, k)
	}
	return &h
}

// Append adds samples in order. Samples with a different channel count are skipped.
func (h *History) Append(samples []fsm.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sample := range samples {
		if len(sample.ArrayA) != h.channels || len(sample.ArrayB) != h.channels {
			continue
		}

		h.times = append(h.times, sample.HostTime)
		for i := 0; i < h.channels; i++ {
			h.arrays[fsm.ArrayA][i] = append(h.arrays[fsm.ArrayA][i], sample.ArrayA[i])
			h.arrays[fsm.ArrayB][i] = append(h.arrays[fsm.ArrayB][i], sample.ArrayB[i])
		}
	}

	if h.limit > 0 && len(h.times) > h.limit {
		drop := len(h.times) - h.limit
		h.times = trim(h.times, drop)
		for a := range h.arrays {
			for i := range h.arrays[a] {
				h.arrays[a][i] = trim(h.arrays[a][i], drop)
			}
		}
	}
}

// trim drops the first n values, reusing the backing array.
func trim(values []float64, n int) []float64 {
	return values[:copy(values, values[n:])]
}

// Len returns the number of samples held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.times)
}

// Times returns a copy of the host times.
func (h *History) Times() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]float64(nil), h.times...)
}

// Series returns a copy of the values at position i of array.
func (h *History) Series(array fsm.Array, i int) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]float64(nil), h.arrays[array][i]...)
}

// Selection is the LED group plotted for each array.
type Selection struct {
	A int
	B int
}

// Group returns the selected group of array.
func (s Selection) Group(array fsm.Array) int {
	if array == fsm.ArrayB {
		return s.B
	}
	return s.A
}

// cycle moves a group index by delta, wrapping around n groups.
func cycle(group, delta, n int) int {
	return ((group+delta)%n + n) % n
}
