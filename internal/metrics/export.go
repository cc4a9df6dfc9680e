package metrics

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const summarySheet = "Summary"

var summaryHeader = []interface{}{"Stage", "Count", "Avg (ms)", "Min (ms)", "Max (ms)"}

// SaveWorkbook writes the current stage summary to an xlsx file at path,
// one row per stage in sorted order.
func (c *Collector) SaveWorkbook(path string) error {
	summary := c.Summary()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(summarySheet, "A1", &summaryHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, stage := range c.Stages() {
		s := summary[stage]
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{stage, s.Count, s.AvgMS, s.MinMS, s.MaxMS}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s: %w", stage, err)
		}
	}

	if err := f.SaveAs(filepath.Clean(path)); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}
