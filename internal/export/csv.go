package export

import (
	"bufio"
	"encoding/csv"
	"io"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
)

func writeCSV(w io.Writer, layout *fsm.Layout, samples []fsm.Sample) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)

	if err := cw.Write(layout.ColumnNames()); err != nil {
		return err
	}

	record := make([]string, 2+2*layout.Channels())
	for _, sample := range samples {
		for i, v := range row(sample) {
			record[i] = formatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	return bw.Flush()
}
