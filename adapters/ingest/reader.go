// Package ingest reads the raw tabular dataset (CSV or XLSX) and hands clean
// observation records to the pipeline.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"nh3flux/domain/observation"
	"nh3flux/internal/config"
	"nh3flux/internal/errors"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	columns  config.ColumnMap
}

// NewDataReader creates a new data reader that handles both Excel and CSV
// files. format overrides extension sniffing when non-empty.
func NewDataReader(filePath, format string, columns config.ColumnMap) *DataReader {
	fileType := format
	if fileType == "" {
		fileType = "xlsx"
		if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
			fileType = "csv"
		}
	}
	return &DataReader{filePath: filePath, fileType: fileType, columns: columns}
}

// Read loads the source file, coerces its rows, and returns the cleaned
// dataset plus the drop report. Unparsable rows are dropped, never fatal; a
// missing file or header is.
func (r *DataReader) Read() (observation.Dataset, observation.DropReport, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, observation.DropReport{}, errors.IngestFailed(fmt.Sprintf("input file not found: %s", r.filePath))
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		return nil, observation.DropReport{}, errors.IngestFailed(fmt.Sprintf("unsupported file type: %s", r.fileType))
	}
	if err != nil {
		return nil, observation.DropReport{}, errors.Wrap(err, "failed to read input file")
	}

	raw, err := r.mapRows(rows)
	if err != nil {
		return nil, observation.DropReport{}, err
	}

	ds, report := observation.Clean(raw, r.columns.TimeFormat)
	return ds, report, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

// mapRows resolves the configured column names against the header row and
// lifts each data row into an observation.Row.
func (r *DataReader) mapRows(rows [][]string) ([]observation.Row, error) {
	if len(rows) < 2 {
		return nil, errors.IngestFailed("input must have a header row and at least one data row")
	}

	header := rows[0]
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	col := func(name string) (int, error) {
		i, ok := idx[strings.ToLower(name)]
		if !ok {
			return 0, errors.IngestFailed(fmt.Sprintf("column %q not found in header", name))
		}
		return i, nil
	}

	c := r.columns
	var ti, di, hi, tpi, wi, ei, pi, ni int
	var err error
	if ti, err = col(c.Timestamp); err != nil {
		return nil, err
	}
	if di, err = col(c.DayIndex); err != nil {
		return nil, err
	}
	if hi, err = col(c.HourOfDay); err != nil {
		return nil, err
	}
	if tpi, err = col(c.Temperature); err != nil {
		return nil, err
	}
	if wi, err = col(c.WindSpeed); err != nil {
		return nil, err
	}
	if ei, err = col(c.RainEvent); err != nil {
		return nil, err
	}
	if pi, err = col(c.PostEvent); err != nil {
		return nil, err
	}
	if ni, err = col(c.NH3); err != nil {
		return nil, err
	}

	cell := func(row []string, i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	raw := make([]observation.Row, 0, len(rows)-1)
	for _, row := range rows[1:] {
		raw = append(raw, observation.Row{
			Timestamp:   cell(row, ti),
			DayIndex:    cell(row, di),
			HourOfDay:   cell(row, hi),
			Temperature: cell(row, tpi),
			WindSpeed:   cell(row, wi),
			RainEvent:   cell(row, ei),
			PostEvent:   cell(row, pi),
			NH3:         cell(row, ni),
		})
	}
	return raw, nil
}
