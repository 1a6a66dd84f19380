package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
)

const (
	// SheetName is the worksheet samples are written to.
	SheetName = "FSM Data"

	columnWidth  = 15
	numberFormat = "0.000000"
)

func writeXLSX(w io.Writer, layout *fsm.Layout, samples []fsm.Sample) (err error) {
	f := excelize.NewFile()
	defer closeWithError(f, &err)

	if err = f.SetSheetName("Sheet1", SheetName); err != nil {
		return
	}

	numFmt := numberFormat
	style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return
	}

	columns := layout.ColumnNames()
	if err = sw.SetColWidth(1, len(columns), columnWidth); err != nil {
		return
	}

	header := make([]any, len(columns))
	for i, name := range columns {
		header[i] = name
	}
	if err = sw.SetRow("A1", header); err != nil {
		return
	}

	cells := make([]any, len(columns))
	for i, sample := range samples {
		for j, v := range row(sample) {
			cells[j] = excelize.Cell{StyleID: style, Value: round(v)}
		}

		cell, cErr := excelize.CoordinatesToCellName(1, i+2)
		if cErr != nil {
			return cErr
		}
		if err = sw.SetRow(cell, cells); err != nil {
			return
		}
	}

	if err = sw.Flush(); err != nil {
		return
	}

	return f.Write(w)
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
