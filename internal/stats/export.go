package stats

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var recordExportHeader = []string{
	"ID", "Source Type", "Status", "Abnormal", "Behavior Type", "Confidence",
	"Media Path", "Visualization URL", "Error", "Created At",
}

var alertExportHeader = []string{
	"ID", "Record ID", "Alert Type", "Alert Level", "Confidence", "Description",
	"Read", "Handled", "Handled By", "Handled At", "Handle Note", "Created At",
}

// ExportRecords renders every record of the owner as an xlsx workbook.
func (a *Aggregator) ExportRecords(ctx context.Context, ownerID uint) ([]byte, error) {
	records, err := a.records.AllByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.ID,
			r.SourceType,
			r.Status,
			yesNo(r.HasAbnormal),
			deref(r.BehaviorType),
			derefFloat(r.Confidence),
			deref(r.MediaPath),
			deref(r.VisualizationURL),
			deref(r.ErrorMessage),
			r.CreatedAt.Format(exportTimeLayout),
		})
	}
	return writeWorkbook("Detection Records", recordExportHeader, rows)
}

// ExportAlerts renders every alert of the owner as an xlsx workbook.
func (a *Aggregator) ExportAlerts(ctx context.Context, ownerID uint) ([]byte, error) {
	alerts, err := a.alerts.AllByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	rows := make([][]any, 0, len(alerts))
	for _, al := range alerts {
		rows = append(rows, []any{
			al.ID,
			al.RecordID,
			al.AlertType,
			al.AlertLevel,
			al.Confidence,
			al.Description,
			yesNoBool(al.IsRead),
			yesNoBool(al.IsHandled),
			deref(al.HandledBy),
			formatTime(al.HandledAt),
			deref(al.HandleNote),
			al.CreatedAt.Format(exportTimeLayout),
		})
	}
	return writeWorkbook("Alerts", alertExportHeader, rows)
}

// writeWorkbook writes one sheet with a bold frozen header row. Nil and empty
// values leave the cell blank.
func writeWorkbook(sheet string, headers []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open, so Close is called explicitly below.

	index, err := f.NewSheet(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for i, row := range rows {
		for j, value := range row {
			if value == nil || value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func yesNo(b *bool) any {
	if b == nil {
		return nil
	}
	return yesNoBool(*b)
}

func yesNoBool(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(exportTimeLayout)
}
