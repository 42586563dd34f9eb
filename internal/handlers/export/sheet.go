package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Sheet is a titled table with a block of key/value metadata above it.
type Sheet struct {
	Name    string
	Meta    [][2]string
	Headers []string
	Rows    [][]interface{}
}

// WriteCSV writes the sheet as CSV: metadata lines, a blank line, then the table.
func WriteCSV(out io.Writer, s Sheet) error {
	writer := csv.NewWriter(out)
	for _, m := range s.Meta {
		if err := writer.Write([]string{m[0], m[1]}); err != nil {
			return err
		}
	}
	if len(s.Meta) > 0 {
		if err := writer.Write([]string{""}); err != nil {
			return err
		}
	}
	if err := writer.Write(s.Headers); err != nil {
		return err
	}
	record := make([]string, len(s.Headers))
	for _, row := range s.Rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, csvValue(v))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func csvValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.String()
	case *decimal.Decimal:
		if x == nil {
			return ""
		}
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func cellValue(v interface{}) interface{} {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64()
	case *decimal.Decimal:
		if x == nil {
			return ""
		}
		return x.InexactFloat64()
	default:
		return v
	}
}

// BuildWorkbook renders the sheet into a new excelize workbook.
func BuildWorkbook(s Sheet) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(s.Name)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if s.Name != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	metaStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create meta style: %w", err)
	}

	row := 1
	for _, m := range s.Meta {
		f.SetCellValue(s.Name, fmt.Sprintf("A%d", row), m[0])
		f.SetCellStyle(s.Name, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), metaStyle)
		f.SetCellValue(s.Name, fmt.Sprintf("B%d", row), m[1])
		row++
	}
	if len(s.Meta) > 0 {
		row++
	}

	headerRow := row
	for i, header := range s.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(s.Name, cell, header)
		f.SetCellStyle(s.Name, cell, cell, headerStyle)
	}
	row++

	for _, r := range s.Rows {
		for colIdx, value := range r {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, row)
			f.SetCellValue(s.Name, cell, cellValue(value))
		}
		row++
	}

	for i := range s.Headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(s.Name, col, col, 16)
	}
	if len(s.Headers) > 0 {
		topLeft, _ := excelize.CoordinatesToCellName(1, headerRow+1)
		f.SetPanes(s.Name, &excelize.Panes{
			Freeze:      true,
			YSplit:      headerRow,
			TopLeftCell: topLeft,
			ActivePane:  "bottomLeft",
		})
	}
	return f, nil
}

// WriteExcel streams the sheet as an xlsx download.
func WriteExcel(w http.ResponseWriter, filename string, s Sheet) error {
	f, err := BuildWorkbook(s)
	if err != nil {
		return err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, err = w.Write(buf.Bytes())
	return err
}

// WriteCSVResponse streams the sheet as a CSV download.
func WriteCSVResponse(w http.ResponseWriter, filename string, s Sheet) error {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return WriteCSV(w, s)
}
