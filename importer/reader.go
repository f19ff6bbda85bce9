package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/nonsonwune/tofhir_db/testspec"
)

// RawTable is a parsed result file before serial resolution
type RawTable struct {
	Path    string
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the index of a column, or -1
func (t *RawTable) ColumnIndex(name string) int {
	return getColumnIndex(t.Columns, name)
}

// RecordReader reads delimited result files
type RecordReader struct {
	fs afero.Fs
}

func NewRecordReader(fs afero.Fs) *RecordReader {
	return &RecordReader{fs: fs}
}

func delimiterFor(path string) (rune, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv":
		return '\t', nil
	case ".csv":
		return ',', nil
	default:
		return 0, &FormatError{Path: path, Message: fmt.Sprintf("file format %q not supported", filepath.Ext(path))}
	}
}

// Read parses a result file according to its layout
func (r *RecordReader) Read(path string, layout testspec.Layout) (*RawTable, error) {
	comma, err := delimiterFor(path)
	if err != nil {
		return nil, err
	}

	file, err := r.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingDataError{Dir: filepath.Dir(path), Path: path, Message: "result file not found"}
		}
		return nil, &MissingDataError{Dir: filepath.Dir(path), Path: path, Message: "result file unreadable", Err: err}
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &FormatError{Path: path, Message: err.Error()}
		}
		return nil, &MissingDataError{Dir: filepath.Dir(path), Path: path, Message: "result file unreadable", Err: err}
	}

	if layout.Header {
		return readWithHeader(path, layout, records)
	}
	return readPositional(path, layout, records)
}

func readWithHeader(path string, layout testspec.Layout, records [][]string) (*RawTable, error) {
	if len(records) == 0 {
		return nil, &FormatError{Path: path, Message: "file has no header"}
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = cleanHeader(name)
	}

	if layout.Sentinel != "" && getColumnIndex(header, layout.Sentinel) == -1 {
		// legacy exports drop the header's final names; the data carries them
		logrus.WithField("file", path).Info("Fixing legacy column layout")
		header = append(header[:len(header)-1], layout.LegacyTail...)
	}

	table := &RawTable{Path: path, Columns: header, Rows: make([][]string, 0, len(records)-1)}
	for i, row := range records[1:] {
		row, err := fitRow(row, len(header))
		if err != nil {
			return nil, &FormatError{Path: path, Line: i + 2, Message: err.Error()}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func readPositional(path string, layout testspec.Layout, records [][]string) (*RawTable, error) {
	width := len(layout.Positional)
	for _, row := range records {
		if len(row) > width {
			width = len(row)
		}
	}

	columns := make([]string, width)
	for i := range columns {
		if i < len(layout.Positional) {
			columns[i] = layout.Positional[i]
		} else {
			columns[i] = strconv.Itoa(i)
		}
	}

	table := &RawTable{Path: path, Columns: columns, Rows: make([][]string, 0, len(records))}
	for i, row := range records {
		if len(row) < len(layout.Positional) {
			return nil, &FormatError{
				Path:    path,
				Line:    i + 1,
				Message: fmt.Sprintf("expected at least %d fields, got %d", len(layout.Positional), len(row)),
			}
		}
		for len(row) < width {
			row = append(row, "")
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// fitRow checks a data row against the header width; trailing empty fields are dropped
func fitRow(row []string, width int) ([]string, error) {
	if len(row) < width {
		return nil, fmt.Errorf("expected %d fields, got %d", width, len(row))
	}
	for _, extra := range row[width:] {
		if strings.TrimSpace(extra) != "" {
			return nil, fmt.Errorf("expected %d fields, got %d", width, len(row))
		}
	}
	return row[:width], nil
}

func cleanHeader(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "#")
	return strings.TrimSpace(name)
}

// getColumnIndex returns the index of a column in headers
func getColumnIndex(headers []string, columnName string) int {
	for i, header := range headers {
		if strings.TrimSpace(header) == columnName {
			return i
		}
	}
	return -1
}
