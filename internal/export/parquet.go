package export

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/segmentio/parquet-go"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
)

// Parquet file metadata keys.
const (
	MetadataColumns  = "columns"
	MetadataChannels = "channels"
)

// Record is a row of a Parquet export. Array values keep channel order, the
// per-channel column names are stored in the file metadata under MetadataColumns.
type Record struct {
	HostTime   float64   `parquet:"host_time"`
	DeviceTime float64   `parquet:"device_time"`
	ArrayA     []float64 `parquet:"array_a"`
	ArrayB     []float64 `parquet:"array_b"`
}

func writeParquet(w io.Writer, layout *fsm.Layout, samples []fsm.Sample) error {
	columns, err := json.Marshal(layout.ColumnNames())
	if err != nil {
		return err
	}

	writer := parquet.NewGenericWriter[Record](w,
		parquet.KeyValueMetadata(MetadataColumns, string(columns)),
		parquet.KeyValueMetadata(MetadataChannels, strconv.Itoa(layout.Channels())),
	)

	records := make([]Record, len(samples))
	for i, sample := range samples {
		records[i] = Record{
			HostTime:   round(sample.HostTime),
			DeviceTime: round(sample.DeviceTime),
			ArrayA:     roundAll(sample.ArrayA),
			ArrayB:     roundAll(sample.ArrayB),
		}
	}

	if _, err = writer.Write(records); err != nil {
		_ = writer.Close()
		return err
	}

	return writer.Close()
}

func roundAll(values []float64) []float64 {
	rounded := make([]float64, len(values))
	for i, v := range values {
		rounded[i] = round(v)
	}
	return rounded
}
