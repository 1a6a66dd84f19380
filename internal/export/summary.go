package export

import (
	"gonum.org/v1/gonum/stat"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
)

// ColumnSummary holds the statistics of one exported column.
type ColumnSummary struct {
	Name   string
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Summarize computes per-column statistics of the exported values, in column
// order. It returns nil for an empty session.
func Summarize(layout *fsm.Layout, samples []fsm.Sample) []ColumnSummary {
	if len(samples) == 0 {
		return nil
	}

	names := layout.ColumnNames()
	columns := make([][]float64, len(names))
	for i := range columns {
		columns[i] = make([]float64, len(samples))
	}
	for i, sample := range samples {
		for j, v := range row(sample) {
			columns[j][i] = v
		}
	}

	summaries := make([]ColumnSummary, len(names))
	for i, values := range columns {
		mean, std := stat.MeanStdDev(values, nil)
		if len(values) < 2 {
			std = 0 // sample deviation is undefined for one value
		}

		lo, hi := values[0], values[0]
		for _, v := range values[1:] {
			lo = min(lo, v)
			hi = max(hi, v)
		}

		summaries[i] = ColumnSummary{
			Name:   names[i],
			Min:    lo,
			Max:    hi,
			Mean:   mean,
			StdDev: std,
		}
	}

	return summaries
}
