package httpapi

import (
	"bytes"
	"fmt"

	"telemetry-hub/internal/models"

	"github.com/xuri/excelize/v2"
)

// LogExportHeader is the header row of a spreadsheet export.
var LogExportHeader = []string{"Time", "X", "Y", "Z", "Latitude", "Longitude", "IP"}

// GenerateLogWorkbook renders one device-day log as an xlsx file. Missing
// coordinates are left blank.
func GenerateLogWorkbook(deviceID, day string, rows []models.SampleRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := day
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("%s %s", deviceID, day),
		Subject: "sensor samples",
	}); err != nil {
		return nil, fmt.Errorf("failed to set doc props: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range LogExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
	}
	if err := f.SetCellStyle(sheetName, "A1", "G1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "A", 26); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "G", "G", 18); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, row := range rows {
		values := []any{row.Time, row.X, row.Y, row.Z, nil, nil, row.IP}
		if row.Lat != nil {
			values[4] = *row.Lat
		}
		if row.Lon != nil {
			values[5] = *row.Lon
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
