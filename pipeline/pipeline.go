package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/nonsonwune/tofhir_db/config"
	"github.com/nonsonwune/tofhir_db/importer"
	"github.com/nonsonwune/tofhir_db/merger"
	"github.com/nonsonwune/tofhir_db/models"
	"github.com/nonsonwune/tofhir_db/store"
	"github.com/nonsonwune/tofhir_db/testspec"
	"github.com/nonsonwune/tofhir_db/yield"
)

// ResultStore receives the results of a run. SaveRun replaces all previously stored results.
type ResultStore interface {
	SaveRun(ctx context.Context, tables []*models.Table, yt *models.YieldTable, skips []models.Skip, run store.Run) error
}

// Deps are the collaborators of a run. Zero values fall back to the OS filesystem,
// the default registry, fresh metrics and no store.
type Deps struct {
	Fs       afero.Fs
	Registry *testspec.Registry
	Store    ResultStore
	Metrics  *yield.Metrics
	Now      func() time.Time
}

// Report summarises one run
type Report struct {
	Directories []models.ResultDirectory
	Tables      []*models.Table
	Raw         []*models.Table
	Yield       *models.YieldTable
	Skips       []models.Skip
	OutputDir   string
}

// Output file names under the output directory
const (
	TestDataDir    = "testdata"
	RawDir         = "raw"
	YieldFile      = "yield.csv"
	IncompleteFile = "incomplete_boards.json"
	SkipsFile      = "skipped.csv"
	MetricsFile    = "yield.prom"
)

func (d *Deps) defaults() error {
	if d.Fs == nil {
		d.Fs = afero.NewOsFs()
	}
	if d.Registry == nil {
		d.Registry = testspec.Default()
	}
	if d.Metrics == nil {
		m, err := yield.NewMetrics()
		if err != nil {
			return err
		}
		d.Metrics = m
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return nil
}

// Run discovers, merges and summarises the result directories under cfg.BaseDir and
// writes every artifact. Per-directory problems end up in Report.Skips; only
// configuration, output and store failures are returned.
func Run(ctx context.Context, cfg config.Config, deps Deps) (*Report, error) {
	if err := deps.defaults(); err != nil {
		return nil, err
	}
	started := deps.Now()

	if err := cfg.Validate(deps.Registry); err != nil {
		return nil, err
	}
	specs, err := deps.Registry.Resolve(cfg.Tests)
	if err != nil {
		return nil, err
	}
	dirPattern, _ := cfg.DirRegexp()
	markerPattern, _ := cfg.MarkerRegexp()
	convention, _ := importer.ParseMarkerConvention(cfg.Markers.Convention)

	scanner := importer.NewDirectoryScanner(deps.Fs, dirPattern)
	dirs, skips, err := scanner.Scan(cfg.BaseDir, specs)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"base_dir":    cfg.BaseDir,
		"directories": len(dirs),
		"skipped":     len(skips),
	}).Info("Discovered result directories")

	resolver := importer.NewSerialResolver(deps.Fs, markerPattern, convention)
	m := merger.New(importer.NewAggregator(deps.Fs, deps.Registry, resolver))

	evaluated, err := m.MergeAll(dirs, cfg.Tests, importer.StageEvaluated)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Directories: dirs,
		Tables:      evaluated.Tables,
		Skips:       append(skips, evaluated.Skips...),
		OutputDir:   cfg.OutputDir,
	}

	if cfg.WriteRaw {
		raw, err := m.MergeAll(dirs, cfg.Tests, importer.StageRaw)
		if err != nil {
			return nil, err
		}
		report.Raw = raw.Tables
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Yield = yield.Summarize(report.Tables)
	if err := writeArtifacts(deps.Fs, cfg.OutputDir, report); err != nil {
		return nil, err
	}

	deps.Metrics.Observe(report.Yield, report.Skips)
	metricsPath := cfg.MetricsFile
	if metricsPath == "" {
		metricsPath = filepath.Join(cfg.OutputDir, MetricsFile)
	}
	if err := deps.Metrics.WriteFile(deps.Fs, metricsPath); err != nil {
		return nil, err
	}

	if deps.Store != nil {
		if err := persist(ctx, deps.Store, cfg, report, started); err != nil {
			return nil, err
		}
	}

	overall := yield.OverallYield(report.Yield)
	logrus.WithFields(logrus.Fields{
		"boards":        len(report.Yield.Boards),
		"overall_yield": fmt.Sprintf("%d/%d", overall.Passed, overall.Total),
		"skipped":       len(report.Skips),
		"elapsed":       deps.Now().Sub(started).String(),
	}).Info("Aggregation finished")
	return report, nil
}

func writeArtifacts(fs afero.Fs, outDir string, report *Report) error {
	for _, t := range report.Tables {
		if err := merger.WriteTable(fs, filepath.Join(outDir, TestDataDir, t.Test+".csv"), t); err != nil {
			return err
		}
	}
	for _, t := range report.Raw {
		if err := merger.WriteTable(fs, filepath.Join(outDir, RawDir, t.Test+".csv"), t); err != nil {
			return err
		}
	}
	if err := yield.WriteCSV(fs, filepath.Join(outDir, YieldFile), report.Yield); err != nil {
		return err
	}
	if err := yield.WriteIncomplete(fs, filepath.Join(outDir, IncompleteFile), yield.Incomplete(report.Yield)); err != nil {
		return err
	}
	return yield.WriteSkips(fs, filepath.Join(outDir, SkipsFile), report.Skips)
}

func persist(ctx context.Context, st ResultStore, cfg config.Config, report *Report, started time.Time) error {
	run := store.Run{
		ID:           started.UTC().Format("20060102T150405.000000000"),
		StartedAt:    started,
		BaseDir:      cfg.BaseDir,
		Directories:  len(report.Directories),
		Boards:       len(report.Yield.Boards),
		Skipped:      len(report.Skips),
		OverallYield: yield.OverallYield(report.Yield).Ratio(),
	}
	if err := st.SaveRun(ctx, report.Tables, report.Yield, report.Skips, run); err != nil {
		return fmt.Errorf("failed to store run results: %w", err)
	}
	return nil
}
