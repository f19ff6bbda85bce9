package merger

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/nonsonwune/tofhir_db/models"
)

const (
	snColumn        = "SN"
	testerColumn    = "tester_id"
	sourceDirColumn = "source_dir"
	passColumn      = "pass"
)

// FormatFloat renders a value with the shortest representation that parses back exactly
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteTable writes a merged table as CSV, creating parent directories
func WriteTable(fs afero.Fs, path string, t *models.Table) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating %s: %w", filepath.Dir(path), err)
	}
	file, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer file.Close()

	if err := EncodeTable(file, t); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

// EncodeTable writes the CSV form of a table
func EncodeTable(w io.Writer, t *models.Table) error {
	writer := csv.NewWriter(w)

	header := append([]string{snColumn, testerColumn, sourceDirColumn}, t.Columns...)
	if t.Evaluated {
		header = append(header, passColumn)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range t.Records {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(rec.SN), strconv.Itoa(rec.TesterID), rec.SourceDir)
		for _, col := range t.Columns {
			row = append(row, FormatFloat(rec.Value(col)))
		}
		if t.Evaluated {
			row = append(row, strconv.FormatBool(rec.Pass))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ReadTable loads a table written by WriteTable
func ReadTable(fs afero.Fs, path, test string) (*models.Table, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	if len(rows) == 0 || len(rows[0]) < 3 || rows[0][0] != snColumn {
		return nil, fmt.Errorf("%s is not a merged test table", path)
	}

	header := rows[0]
	evaluated := header[len(header)-1] == passColumn
	end := len(header)
	if evaluated {
		end--
	}
	t := models.NewTable(test, header[3:end], evaluated)

	for n, row := range rows[1:] {
		sn, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: invalid SN %q", path, n+2, row[0])
		}
		tester, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: invalid tester id %q", path, n+2, row[1])
		}
		rec := models.TestRecord{SN: sn, TesterID: tester, SourceDir: row[2], Values: make(map[string]float64, len(t.Columns))}
		for i, col := range t.Columns {
			v, err := strconv.ParseFloat(row[3+i], 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: column %s: %w", path, n+2, col, err)
			}
			rec.Values[col] = v
		}
		if evaluated {
			rec.Pass, err = strconv.ParseBool(strings.TrimSpace(row[end]))
			if err != nil {
				return nil, fmt.Errorf("%s line %d: invalid pass value %q", path, n+2, row[end])
			}
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}
