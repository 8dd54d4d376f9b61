// Package report builds spreadsheet exports of the reservation log for
// the event organizers.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/63Paulo/lan-party/internal/model"
)

const sheetName = "Reservations"

var columns = []string{
	"ID", "Code", "Station ID", "User ID",
	"Start", "End", "Status", "Created At", "Updated At",
}

// Exporter writes reservations into an xlsx workbook.
type Exporter struct {
	file *excelize.File
	row  int
}

// NewExporter creates a workbook with the reservations sheet prepared.
func NewExporter() (*Exporter, error) {
	e := &Exporter{file: excelize.NewFile(), row: 1}
	e.file.SetSheetName("Sheet1", sheetName)

	if err := e.writeHeader(); err != nil {
		e.file.Close()
		return nil, err
	}
	return e, nil
}

func (e *Exporter) writeHeader() error {
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, e.row)
		if err != nil {
			return err
		}
		if err := e.file.SetCellValue(sheetName, cell, col); err != nil {
			return err
		}
	}

	style, err := e.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, e.row)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), e.row)
		_ = e.file.SetCellStyle(sheetName, startCell, endCell, style)
	}

	e.row++
	return nil
}

// Add appends one reservation row.
func (e *Exporter) Add(r model.Reservation) error {
	values := []interface{}{
		r.ID,
		r.Code,
		r.StationID,
		r.UserID,
		r.StartTime.Format(time.RFC3339),
		r.EndTime.Format(time.RFC3339),
		string(r.Status),
		r.CreatedAt.Format(time.RFC3339),
		r.UpdatedAt.Format(time.RFC3339),
	}
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, e.row)
		if err != nil {
			return err
		}
		if err := e.file.SetCellValue(sheetName, cell, val); err != nil {
			return err
		}
	}
	e.row++
	return nil
}

// Save writes the workbook to w.
func (e *Exporter) Save(w io.Writer) error {
	return e.file.Write(w)
}

// Close releases workbook resources.
func (e *Exporter) Close() error {
	return e.file.Close()
}

// Write builds a complete workbook from reservations and writes it to w.
func Write(w io.Writer, reservations []model.Reservation) error {
	exporter, err := NewExporter()
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	defer exporter.Close()

	for _, r := range reservations {
		if err := exporter.Add(r); err != nil {
			return fmt.Errorf("add reservation %d: %w", r.ID, err)
		}
	}
	return exporter.Save(w)
}
