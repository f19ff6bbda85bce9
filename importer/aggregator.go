package importer

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/nonsonwune/tofhir_db/models"
	"github.com/nonsonwune/tofhir_db/testspec"
)

// Stage selects how far a test's records are processed
type Stage int

const (
	// StageRaw stops after serial resolution
	StageRaw Stage = iota
	// StageEvaluated also runs the reducer and pass/fail predicate
	StageEvaluated
)

func (s Stage) String() string {
	if s == StageRaw {
		return "raw"
	}
	return "evaluated"
}

// Outcome is the result of one test type in one directory: a table or a skip
type Outcome struct {
	Test  string
	Table *models.Table
	Skip  *models.Skip
}

func (o Outcome) Skipped() bool {
	return o.Skip != nil
}

// Aggregator turns one result directory into per-test tables
type Aggregator struct {
	registry *testspec.Registry
	reader   *RecordReader
	resolver *SerialResolver
}

func NewAggregator(fs afero.Fs, registry *testspec.Registry, resolver *SerialResolver) *Aggregator {
	if registry == nil {
		registry = testspec.Default()
	}
	if resolver == nil {
		resolver = NewSerialResolver(fs, nil, SerialInName)
	}
	return &Aggregator{
		registry: registry,
		reader:   NewRecordReader(fs),
		resolver: resolver,
	}
}

func (a *Aggregator) Registry() *testspec.Registry {
	return a.registry
}

// Serials resolves the tester id to serial map of a directory
func (a *Aggregator) Serials(dir models.ResultDirectory) (SerialMap, error) {
	return a.resolver.Resolve(dir)
}

// Aggregate processes the requested tests of one directory. Recoverable failures are
// returned as skipped outcomes; only unknown test names fail the call.
func (a *Aggregator) Aggregate(dir models.ResultDirectory, tests []string, serials SerialMap, stage Stage) ([]Outcome, error) {
	specs, err := a.registry.Resolve(tests)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(specs))
	for _, spec := range specs {
		table, err := a.Table(dir, spec, serials, stage)
		if err != nil {
			skip, ok := SkipFor(dir.Name, spec.Name, err)
			if !ok {
				return nil, fmt.Errorf("error aggregating %s in %s: %w", spec.Name, dir.Name, err)
			}
			logrus.WithField("stage", stage.String()).Warn(skip.String())
			outcomes = append(outcomes, Outcome{Test: spec.Name, Skip: &skip})
			continue
		}
		outcomes = append(outcomes, Outcome{Test: spec.Name, Table: table})
	}
	return outcomes, nil
}

// Table reads one test's file, attaches serials and, in the evaluated stage, applies the
// test's predicate
func (a *Aggregator) Table(dir models.ResultDirectory, spec testspec.Spec, serials SerialMap, stage Stage) (*models.Table, error) {
	path := filepath.Join(dir.Path, spec.File)
	raw, err := a.reader.Read(path, spec.Layout)
	if err != nil {
		return nil, err
	}

	idIdx := raw.ColumnIndex(spec.IDColumn)
	if idIdx == -1 {
		return nil, &FormatError{Path: path, Message: fmt.Sprintf("id column %s not found", spec.IDColumn)}
	}
	colIdx := make([]int, len(spec.Columns))
	for i, col := range spec.Columns {
		colIdx[i] = raw.ColumnIndex(col)
		if colIdx[i] == -1 {
			return nil, &FormatError{Path: path, Message: fmt.Sprintf("column %s not found", col)}
		}
	}

	table := models.NewTable(spec.Name, spec.Columns, false)
	table.Records = make([]models.TestRecord, 0, len(raw.Rows))
	missing := make(map[int]bool)

	for n, row := range raw.Rows {
		line := n + 1
		if spec.Layout.Header {
			line++
		}

		id, err := parseID(row[idIdx])
		if err != nil {
			return nil, &FormatError{Path: path, Line: line, Message: err.Error()}
		}
		tester := spec.IDRule.TesterID(id)
		sn, ok := serials[tester]
		if !ok {
			missing[tester] = true
			continue
		}

		values := make(map[string]float64, len(spec.Columns))
		for i, col := range spec.Columns {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[colIdx[i]]), 64)
			if err != nil {
				return nil, &FormatError{Path: path, Line: line, Message: fmt.Sprintf("column %s: %v", col, err)}
			}
			values[col] = v
		}

		table.Records = append(table.Records, models.TestRecord{
			SN:        sn,
			TesterID:  tester,
			SourceDir: dir.Name,
			Values:    values,
		})
	}

	if len(missing) > 0 {
		return nil, newUnresolvedSerialError(dir.Name, spec.Name, missing)
	}
	logrus.WithFields(logrus.Fields{
		"file":    raw.Path,
		"rows":    len(table.Records),
		"id_rule": spec.IDRule.String(),
	}).Debug("Read test results")

	if stage == StageEvaluated {
		table = spec.Evaluate(table)
	}
	return table, nil
}

func parseID(s string) (int, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	if math.IsInf(v, 0) || v != math.Trunc(v) || v < 0 || v > math.MaxInt32 {
		return 0, fmt.Errorf("id %q is not a non-negative integer", s)
	}
	return int(v), nil
}
