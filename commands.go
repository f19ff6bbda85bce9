package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nonsonwune/tofhir_db/merger"
	"github.com/nonsonwune/tofhir_db/models"
	"github.com/nonsonwune/tofhir_db/pipeline"
	"github.com/nonsonwune/tofhir_db/report"
	"github.com/nonsonwune/tofhir_db/store"
	"github.com/nonsonwune/tofhir_db/testspec"
	"github.com/nonsonwune/tofhir_db/yield"
)

var errNoStore = errors.New("no result store configured (set database.driver and database.dsn, or DB_HOST)")

const (
	sourceCSV   = "csv"
	sourceStore = "store"
)

func (o *options) run(ctx context.Context) (*pipeline.Report, error) {
	deps := pipeline.Deps{}
	st, err := o.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if st != nil {
		defer st.Close()
		deps.Store = st
	}
	return pipeline.Run(ctx, o.cfg, deps)
}

func printRun(r *pipeline.Report) {
	report.PrintYield(os.Stdout, r.Yield)
	report.PrintFailing(os.Stdout, r.Yield)
	report.PrintSkips(os.Stdout, r.Skips)
	color.Green("\nWrote %d table(s) from %d directories to %s", len(r.Tables), len(r.Directories), r.OutputDir)
}

func mergeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Merge every campaign directory and write tables, yield and skip report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := o.run(cmd.Context())
			if err != nil {
				return err
			}
			printRun(r)
			return nil
		},
	}
}

func reportCmd(o *options) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the yield summary of the last merge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch source {
			case sourceCSV:
				yt, err := yield.ReadCSV(afero.NewOsFs(), filepath.Join(o.cfg.OutputDir, pipeline.YieldFile))
				if err != nil {
					return err
				}
				report.PrintYield(os.Stdout, yt)
				report.PrintFailing(os.Stdout, yt)
				return nil
			case sourceStore:
				st, err := o.requireStore(cmd.Context())
				if err != nil {
					return err
				}
				defer st.Close()
				return showStoredYield(cmd.Context(), st)
			}
			return fmt.Errorf("unknown source %q (want %s or %s)", source, sourceCSV, sourceStore)
		},
	}
	cmd.Flags().StringVar(&source, "source", sourceCSV, "read from the output directory (csv) or the result store (store)")
	return cmd
}

func showStoredYield(ctx context.Context, st *store.Store) error {
	yt, err := st.LoadYield(ctx)
	if err != nil {
		return err
	}
	skips, err := st.LoadSkips(ctx)
	if err != nil {
		return err
	}
	report.PrintYield(os.Stdout, yt)
	report.PrintFailing(os.Stdout, yt)
	report.PrintSkips(os.Stdout, skips)
	return nil
}

func boardCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "board <sn>",
		Short: "Show the stored test status of one board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sn, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid serial number %q", args[0])
			}
			st, err := o.requireStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			return showBoard(cmd.Context(), st, sn)
		},
	}
}

func showBoard(ctx context.Context, st *store.Store, sn int) error {
	statuses, err := st.LoadBoard(ctx, sn)
	if errors.Is(err, store.ErrNotFound) {
		color.Red("No stored results for board %d", sn)
		return nil
	}
	if err != nil {
		return err
	}
	report.PrintBoard(os.Stdout, sn, statuses)
	return nil
}

func histCmd(o *options) *cobra.Command {
	var (
		test, param, source string
		bins                int
	)
	cmd := &cobra.Command{
		Use:   "hist",
		Short: "Print a histogram of one parameter of a merged test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bins < 1 {
				return fmt.Errorf("invalid --bins %d: must be at least 1", bins)
			}
			spec, err := testspec.Default().Lookup(test)
			if err != nil {
				return err
			}
			values, err := o.columnValues(cmd.Context(), source, spec, param)
			if err != nil {
				return err
			}

			binning := report.BinningFor(spec, param, values)
			if cmd.Flags().Changed("bins") {
				binning = report.AutoBinning(values, bins)
			}
			report.PrintHistogram(os.Stdout, fmt.Sprintf("%s %s", test, param), report.Fill(values, binning))
			return nil
		},
	}
	cmd.Flags().StringVar(&test, "test", "", "test name")
	cmd.Flags().StringVar(&param, "param", "", "parameter column")
	cmd.Flags().StringVar(&source, "source", sourceCSV, "read from the output directory (csv) or the result store (store)")
	cmd.Flags().IntVar(&bins, "bins", report.DefaultBins, "fit this many bins to the data range instead of the predefined binning")
	cmd.MarkFlagRequired("test")
	cmd.MarkFlagRequired("param")
	return cmd
}

func (o *options) columnValues(ctx context.Context, source string, spec testspec.Spec, param string) ([]float64, error) {
	switch source {
	case sourceStore:
		st, err := o.requireStore(ctx)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return st.LoadColumn(ctx, spec.Name, param)
	case sourceCSV:
		path := filepath.Join(o.cfg.OutputDir, pipeline.TestDataDir, spec.Name+".csv")
		t, err := merger.ReadTable(afero.NewOsFs(), path, spec.Name)
		if err != nil {
			return nil, err
		}
		return tableColumn(t, param)
	}
	return nil, fmt.Errorf("unknown source %q (want %s or %s)", source, sourceCSV, sourceStore)
}

func tableColumn(t *models.Table, param string) ([]float64, error) {
	known := false
	for _, c := range t.Columns {
		if c == param {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%s has no column %s (columns: %v)", t.Test, param, t.Columns)
	}
	values := make([]float64, 0, len(t.Records))
	for _, rec := range t.Records {
		values = append(values, rec.Value(param))
	}
	return values, nil
}

func watchCmd(o *options) *cobra.Command {
	var settle time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Merge again whenever a new campaign directory appears",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return o.watch(ctx, settle, func() error {
				r, err := o.run(ctx)
				if err != nil {
					return err
				}
				printRun(r)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&settle, "settle", 30*time.Second, "wait this long after the last change before merging")
	return cmd
}

// watch runs one merge up front, then one per burst of new directories. Merges never overlap.
func (o *options) watch(ctx context.Context, settle time.Duration, merge func() error) error {
	dirPattern, err := o.cfg.DirRegexp()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(o.cfg.BaseDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", o.cfg.BaseDir, err)
	}

	if err := merge(); err != nil {
		return err
	}

	timer := time.NewTimer(settle)
	timer.Stop()
	logrus.WithField("base_dir", o.cfg.BaseDir).Info("Watching for new result directories")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) || !dirPattern.MatchString(filepath.Base(event.Name)) {
				continue
			}
			logrus.WithField("dir", filepath.Base(event.Name)).Info("New result directory")
			timer.Reset(settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Warn("Watcher error")
		case <-timer.C:
			if err := merge(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
