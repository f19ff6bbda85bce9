package importer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nonsonwune/tofhir_db/models"
)

// FormatError represents an unsupported or malformed result file
type FormatError struct {
	Path    string
	Line    int
	Message string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("format error in %s line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("format error in %s: %s", e.Path, e.Message)
}

// MissingDataError represents an absent or unreadable result file, or absent serial markers
type MissingDataError struct {
	Dir     string
	Path    string
	Message string
	Err     error
}

func (e *MissingDataError) Error() string {
	msg := fmt.Sprintf("missing data in %s: %s", e.Dir, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingDataError) Unwrap() error {
	return e.Err
}

// UnresolvedSerialError lists tester ids that have no serial marker in a directory
type UnresolvedSerialError struct {
	Dir       string
	Test      string
	TesterIDs []int
}

func (e *UnresolvedSerialError) Error() string {
	ids := make([]string, len(e.TesterIDs))
	for i, id := range e.TesterIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("unresolved tester ids [%s] for %s in %s", strings.Join(ids, ", "), e.Test, e.Dir)
}

func newUnresolvedSerialError(dir, test string, missing map[int]bool) *UnresolvedSerialError {
	ids := make([]int, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return &UnresolvedSerialError{Dir: dir, Test: test, TesterIDs: ids}
}

// SkipFor converts a recoverable aggregation error into a skip entry.
// The second result is false for errors that must abort the run.
func SkipFor(dir, test string, err error) (models.Skip, bool) {
	var (
		formatErr     *FormatError
		missingErr    *MissingDataError
		unresolvedErr *UnresolvedSerialError
	)
	skip := models.Skip{Dir: dir, Test: test, Reason: err.Error()}
	switch {
	case errors.As(err, &unresolvedErr):
		skip.Kind = models.SkipUnresolvedSerial
	case errors.As(err, &missingErr):
		skip.Kind = models.SkipMissingData
	case errors.As(err, &formatErr):
		skip.Kind = models.SkipFormat
	default:
		return models.Skip{}, false
	}
	return skip, true
}
