package yield

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/nonsonwune/tofhir_db/models"
)

const passSuffix = "_pass"

// EncodeCSV writes the yield table: SN, then one <test>_pass column per test.
// Unmeasured cells are empty.
func EncodeCSV(w io.Writer, yt *models.YieldTable) error {
	writer := csv.NewWriter(w)
	header := []string{"SN"}
	for _, test := range yt.Tests {
		header = append(header, test+passSuffix)
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, b := range yt.Boards {
		row := []string{strconv.Itoa(b.SN)}
		for _, test := range yt.Tests {
			cell := ""
			if pass, measured := b.Passed(test); measured {
				cell = strconv.FormatBool(pass)
			}
			row = append(row, cell)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// DecodeCSV reads a yield table written by EncodeCSV
func DecodeCSV(r io.Reader) (*models.YieldTable, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0][0] != "SN" {
		return nil, fmt.Errorf("not a yield table")
	}

	yt := &models.YieldTable{}
	for _, col := range rows[0][1:] {
		yt.Tests = append(yt.Tests, strings.TrimSuffix(col, passSuffix))
	}
	for n, row := range rows[1:] {
		sn, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid SN %q", n+2, row[0])
		}
		b := models.BoardYield{SN: sn, Pass: make(map[string]bool)}
		for i, cell := range row[1:] {
			if cell == "" {
				continue
			}
			pass, err := strconv.ParseBool(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid pass value %q", n+2, cell)
			}
			b.Pass[yt.Tests[i]] = pass
		}
		yt.Boards = append(yt.Boards, b)
	}
	return yt, nil
}

// WriteCSV writes the yield table to a file
func WriteCSV(fs afero.Fs, path string, yt *models.YieldTable) error {
	return writeWith(fs, path, func(w io.Writer) error { return EncodeCSV(w, yt) })
}

// ReadCSV loads a yield table file
func ReadCSV(fs afero.Fs, path string) (*models.YieldTable, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer file.Close()

	yt, err := DecodeCSV(file)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return yt, nil
}

// WriteIncomplete writes the serials lacking full test coverage as a JSON array
func WriteIncomplete(fs afero.Fs, path string, serials []int) error {
	return writeWith(fs, path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		return enc.Encode(serials)
	})
}

// WriteSkips writes the skip report as CSV
func WriteSkips(fs afero.Fs, path string, skips []models.Skip) error {
	return writeWith(fs, path, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write([]string{"dir", "test", "kind", "reason"}); err != nil {
			return err
		}
		for _, s := range skips {
			if err := writer.Write([]string{s.Dir, s.Test, s.Kind, s.Reason}); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
}

func writeWith(fs afero.Fs, path string, encode func(io.Writer) error) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating %s: %w", filepath.Dir(path), err)
	}
	file, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer file.Close()

	if err := encode(file); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}
