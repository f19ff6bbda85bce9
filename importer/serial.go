package importer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/nonsonwune/tofhir_db/models"
)

// MarkerConvention says which half of a marker pair lives in the file name
type MarkerConvention int

const (
	// SerialInName markers are named after the board serial and hold the tester id
	SerialInName MarkerConvention = iota
	// TesterInName markers are named after the tester id and hold the board serial
	TesterInName
)

// ParseMarkerConvention maps the config spelling of a convention
func ParseMarkerConvention(s string) (MarkerConvention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "serial-in-name":
		return SerialInName, nil
	case "tester-in-name":
		return TesterInName, nil
	default:
		return 0, fmt.Errorf("unknown marker convention %q", s)
	}
}

// DefaultMarkerPattern matches both "SN_3 0017.txt" and the legacy "SN_3_0017.txt".
// The first capture group is the number carried by the name.
var DefaultMarkerPattern = regexp.MustCompile(`^SN_3[ _](\d+)\.txt$`)

// SerialMap maps tester ids to board serial numbers within one directory
type SerialMap map[int]int

// SerialResolver builds the tester id to serial mapping of a result directory
type SerialResolver struct {
	fs         afero.Fs
	pattern    *regexp.Regexp
	convention MarkerConvention
}

func NewSerialResolver(fs afero.Fs, pattern *regexp.Regexp, convention MarkerConvention) *SerialResolver {
	if pattern == nil {
		pattern = DefaultMarkerPattern
	}
	return &SerialResolver{
		fs:         fs,
		pattern:    pattern,
		convention: convention,
	}
}

// Resolve scans the directory tree for marker files
func (sr *SerialResolver) Resolve(dir models.ResultDirectory) (SerialMap, error) {
	serials := make(SerialMap)
	markerOf := make(map[int]string)

	err := afero.Walk(sr.fs, dir.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		match := sr.pattern.FindStringSubmatch(info.Name())
		if match == nil || len(match) < 2 {
			return nil
		}

		fromName, err := strconv.Atoi(match[1])
		if err != nil {
			return &FormatError{Path: path, Message: fmt.Sprintf("marker name number: %v", err)}
		}
		content, err := afero.ReadFile(sr.fs, path)
		if err != nil {
			return &MissingDataError{Dir: dir.Name, Path: path, Message: "serial marker unreadable", Err: err}
		}
		fromContent, err := strconv.Atoi(strings.TrimSpace(string(content)))
		if err != nil {
			return &FormatError{Path: path, Message: fmt.Sprintf("marker content %q is not an integer", strings.TrimSpace(string(content)))}
		}

		tester, serial := fromContent, fromName
		if sr.convention == TesterInName {
			tester, serial = fromName, fromContent
		}

		if existing, ok := serials[tester]; ok && existing != serial {
			return &FormatError{
				Path:    path,
				Message: fmt.Sprintf("tester id %d already mapped to serial %d by %s", tester, existing, filepath.Base(markerOf[tester])),
			}
		}
		serials[tester] = serial
		markerOf[tester] = path

		logrus.WithFields(logrus.Fields{"dir": dir.Name, "tester": tester, "sn": serial}).Debug("Loaded serial marker")
		return nil
	})
	if err != nil {
		var (
			formatErr  *FormatError
			missingErr *MissingDataError
		)
		switch {
		case errors.As(err, &formatErr), errors.As(err, &missingErr):
			return nil, err
		case errors.Is(err, os.ErrNotExist):
			return nil, &MissingDataError{Dir: dir.Name, Path: dir.Path, Message: "result directory not found"}
		}
		return nil, &MissingDataError{Dir: dir.Name, Path: dir.Path, Message: "result directory unreadable", Err: err}
	}

	if len(serials) == 0 {
		return nil, &MissingDataError{Dir: dir.Name, Message: "no serial marker files found"}
	}
	return serials, nil
}
