package merger

import (
	"github.com/sirupsen/logrus"

	"github.com/nonsonwune/tofhir_db/importer"
	"github.com/nonsonwune/tofhir_db/models"
)

// Result holds the merged tables of one run, in requested test order
type Result struct {
	Tables []*models.Table
	Skips  []models.Skip
}

// Table returns the merged table of a test, or nil
func (r *Result) Table(test string) *models.Table {
	for _, t := range r.Tables {
		if t.Test == test {
			return t
		}
	}
	return nil
}

// Merger combines per-directory tables so that the most recent directory wins per board
type Merger struct {
	agg *importer.Aggregator
}

func New(agg *importer.Aggregator) *Merger {
	return &Merger{agg: agg}
}

// Merge merges one test across directories sorted ascending by timestamp
func (m *Merger) Merge(dirs []models.ResultDirectory, test string, stage importer.Stage) (*models.Table, []models.Skip, error) {
	result, err := m.MergeAll(dirs, []string{test}, stage)
	if err != nil {
		return nil, nil, err
	}
	return result.Tables[0], result.Skips, nil
}

// MergeAll merges every requested test. Serials are resolved once per directory; a
// directory whose serials cannot be resolved is skipped for every test.
func (m *Merger) MergeAll(dirs []models.ResultDirectory, tests []string, stage importer.Stage) (*Result, error) {
	specs, err := m.agg.Registry().Resolve(tests)
	if err != nil {
		return nil, err
	}

	result := &Result{Tables: make([]*models.Table, len(specs))}
	index := make(map[string]int, len(specs))
	for i, spec := range specs {
		evaluated := stage == importer.StageEvaluated && spec.Evaluated()
		result.Tables[i] = models.NewTable(spec.Name, spec.OutputColumns(stage == importer.StageEvaluated), evaluated)
		index[spec.Name] = i
	}

	for _, dir := range dirs {
		serials, err := m.agg.Serials(dir)
		if err != nil {
			skip, ok := importer.SkipFor(dir.Name, "", err)
			if !ok {
				return nil, err
			}
			logrus.WithField("stage", stage.String()).Warn(skip.String())
			result.Skips = append(result.Skips, skip)
			continue
		}

		outcomes, err := m.agg.Aggregate(dir, tests, serials, stage)
		if err != nil {
			return nil, err
		}
		for _, outcome := range outcomes {
			if outcome.Skipped() {
				result.Skips = append(result.Skips, *outcome.Skip)
				continue
			}
			i := index[outcome.Test]
			dropped := supersede(result.Tables[i], outcome.Table)
			logrus.WithFields(logrus.Fields{
				"dir":        dir.Name,
				"test":       outcome.Test,
				"rows":       len(outcome.Table.Records),
				"superseded": dropped,
			}).Debug("Merged test results")
		}
	}
	return result, nil
}

// supersede drops every accumulated row whose serial appears in batch, then appends batch.
// It returns the number of dropped rows.
func supersede(acc, batch *models.Table) int {
	incoming := make(map[int]bool)
	for _, rec := range batch.Records {
		incoming[rec.SN] = true
	}

	kept := acc.Records[:0]
	dropped := 0
	for _, rec := range acc.Records {
		if incoming[rec.SN] {
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	acc.Records = append(kept, batch.Records...)
	return dropped
}
