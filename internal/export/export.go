// Package export turns the samples of a finished session into a tabular file:
// one header row, then one row per sample with host time, device time and the
// K values of array A followed by the K values of array B.
package export

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
)

// Precision is the number of fractional digits every value is written with.
const Precision = 6

// ErrExportWrite is returned when the export file could not be written. The
// samples are left untouched so the export can be retried.
var ErrExportWrite = errors.New("export write failure")

// Format is the container format of an export file.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name, it is case-insensitive.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format '%s'", s)
	}
}

// Ext returns the file extension of the format, including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// FileName returns the export path for a session started at start.
func FileName(dir string, start time.Time, format Format) string {
	return filepath.Join(dir, fmt.Sprintf("fsm_data_%s%s", start.Format("20060102_150405"), format.Ext()))
}

// Export writes samples to w in the given format. Every sample must carry
// layout.Channels() values per array.
func Export(w io.Writer, format Format, layout *fsm.Layout, samples []fsm.Sample) error {
	for i, sample := range samples {
		if len(sample.ArrayA) != layout.Channels() || len(sample.ArrayB) != layout.Channels() {
			return fmt.Errorf("sample %d: %w", i, fsm.ErrChannelMismatch)
		}
	}

	switch format {
	case FormatCSV:
		return writeCSV(w, layout, samples)
	case FormatXLSX:
		return writeXLSX(w, layout, samples)
	case FormatParquet:
		return writeParquet(w, layout, samples)
	default:
		return fmt.Errorf("unsupported export format '%s'", format)
	}
}

// ToFile exports samples to path. The file is written under a temporary name
// and renamed into place, a failed export leaves no partial file behind.
// Write failures are wrapped with ErrExportWrite.
func ToFile(path string, format Format, layout *fsm.Layout, samples []fsm.Sample) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExportWrite, err)
	}

	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			err = fmt.Errorf("%w: %w", ErrExportWrite, err)
		}
	}()

	if err = Export(f, format, layout, samples); err != nil {
		return
	}
	if err = f.Sync(); err != nil {
		return
	}
	if err = f.Close(); err != nil {
		return
	}

	return os.Rename(f.Name(), path)
}

// round limits v to Precision fractional digits.
func round(v float64) float64 {
	const scale = 1e6
	return math.Round(v*scale) / scale
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', Precision, 64)
}

// row returns the values of a sample in column order.
func row(sample fsm.Sample) []float64 {
	values := make([]float64, 0, 2+len(sample.ArrayA)+len(sample.ArrayB))
	values = append(values, sample.HostTime, sample.DeviceTime)
	values = append(values, sample.ArrayA...)
	values = append(values, sample.ArrayB...)
	return values
}
