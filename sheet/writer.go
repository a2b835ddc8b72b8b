// Package sheet serializes scraped records to an .xlsx table.
package sheet

import (
	"fmt"
	"unicode/utf8"

	"github.com/use-agent/trendshot/models"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Stories"

// header is the fixed column layout of the output table.
var header = []string{"Title", "ImgPath", "ImgPathChart", "GoogleUrl", "ExternalUrl", "ImgUrl"}

// column width bounds, in Excel character units.
const (
	minColWidth = 10.0
	maxColWidth = 80.0
)

// WriteTable writes the header row plus one row per record, in aggregation
// order, with auto-sized columns, to destPath. Absent optional fields are
// serialized as the page's "undefined" marker so every cell holds a value.
func WriteTable(records []models.Record, destPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return models.NewPipelineError(models.ErrCodeSerialization, "failed to name sheet", err)
	}

	widths := make([]int, len(header))

	if err := writeRow(f, 1, header, widths); err != nil {
		return err
	}
	for i, rec := range records {
		row := []string{
			rec.Title,
			rec.LocalImagePath,
			rec.ChartImagePath,
			rec.GoogleURL.Or(models.UndefinedSentinel),
			rec.ExternalURL.Or(models.UndefinedSentinel),
			rec.ImageURL.Or(models.UndefinedSentinel),
		}
		if err := writeRow(f, i+2, row, widths); err != nil {
			return err
		}
	}

	for col, w := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return models.NewPipelineError(models.ErrCodeSerialization, "failed to size columns", err)
		}
		if err := f.SetColWidth(sheetName, name, name, fitWidth(w)); err != nil {
			return models.NewPipelineError(models.ErrCodeSerialization, "failed to size columns", err)
		}
	}

	if err := f.SaveAs(destPath); err != nil {
		return models.NewPipelineError(
			models.ErrCodeSerialization,
			fmt.Sprintf("failed to save table to %s", destPath),
			err,
		)
	}
	return nil
}

// writeRow sets one sheet row (1-based) and folds cell lengths into the
// per-column width tracker.
func writeRow(f *excelize.File, row int, cells []string, widths []int) error {
	for col, v := range cells {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return models.NewPipelineError(models.ErrCodeSerialization, "bad cell coordinates", err)
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return models.NewPipelineError(models.ErrCodeSerialization, "failed to set cell", err)
		}
		if n := utf8.RuneCountInString(v); n > widths[col] {
			widths[col] = n
		}
	}
	return nil
}

// fitWidth maps a column's longest cell length to a bounded Excel width.
func fitWidth(runes int) float64 {
	w := float64(runes) + 2
	if w < minColWidth {
		return minColWidth
	}
	if w > maxColWidth {
		return maxColWidth
	}
	return w
}
