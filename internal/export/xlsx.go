package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"jobtrack/api/internal/jobs"
)

const boardSheet = "Board"

var boardHeaders = []string{"Status", "Job #", "Title", "In Hands", "Owner", "Priority", "Est/SO #", "Updated"}

// BoardWorkbook writes one row per job, grouped by status in board order.
// Within a status the incoming order is kept.
func BoardWorkbook(list []jobs.Job, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", boardSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range boardHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(boardSheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(boardSheet, 1, 1, style)
	}

	row := 2
	for _, status := range jobs.Statuses() {
		for _, job := range list {
			if job.Status != status {
				continue
			}
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(boardSheet, cell, v)
			}
			write(1, string(job.Status))
			write(2, job.JobNo)
			write(3, job.Title)
			if job.InHandsDate != nil {
				write(4, job.InHandsDate.String())
			}
			write(5, deref(job.Owner))
			write(6, deref(job.Priority))
			write(7, deref(job.EstSONo))
			if !job.UpdatedAt.IsZero() {
				write(8, job.UpdatedAt.UTC().Format(time.RFC3339))
			}
			row++
		}
	}

	_ = f.SetColWidth(boardSheet, "A", "B", 12)
	_ = f.SetColWidth(boardSheet, "C", "C", 40)
	_ = f.SetColWidth(boardSheet, "D", "D", 12)
	_ = f.SetColWidth(boardSheet, "E", "E", 28)
	_ = f.SetColWidth(boardSheet, "F", "G", 12)
	_ = f.SetColWidth(boardSheet, "H", "H", 22)
	_ = f.SetDocProps(&excelize.DocProperties{Title: "Job board", Created: generatedAt.UTC().Format(time.RFC3339)})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
