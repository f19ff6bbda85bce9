package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nonsonwune/tofhir_db/config"
	"github.com/nonsonwune/tofhir_db/store"
)

func init() {
	// Load .env file if present
	if err := config.LoadEnv(); err != nil {
		logrus.WithError(err).Fatal("Error loading .env file")
	}
}

type options struct {
	configPath string
	logLevel   string
	baseDir    string
	outputDir  string
	tests      []string
	writeRaw   bool
	dbDriver   string
	dbDSN      string

	cfg config.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "tofhir_db",
		Short:         "Aggregate TOFHIR2C board calibration results into yield tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "config file (default ./"+config.DefaultFile+" if present)")
	flags.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVarP(&o.baseDir, "base-dir", "b", "", "directory holding the campaign directories")
	flags.StringVarP(&o.outputDir, "output-dir", "o", "", "directory for the generated tables")
	flags.StringSliceVarP(&o.tests, "tests", "t", nil, "tests to aggregate (default all registered tests)")
	flags.BoolVar(&o.writeRaw, "raw", false, "also write unevaluated tables under raw/")
	flags.StringVar(&o.dbDriver, "db-driver", "", "result store driver (postgres or sqlite3)")
	flags.StringVar(&o.dbDSN, "db-dsn", "", "result store data source name")

	cmd.AddCommand(
		mergeCmd(o),
		reportCmd(o),
		boardCmd(o),
		histCmd(o),
		watchCmd(o),
		menuCmd(o),
	)
	return cmd
}

// load reads the config file and environment, then applies the flags that were set
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("base-dir") {
		cfg.BaseDir = o.baseDir
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = o.outputDir
	}
	if flags.Changed("tests") {
		cfg.Tests = o.tests
	}
	if flags.Changed("raw") {
		cfg.WriteRaw = o.writeRaw
	}
	if flags.Changed("db-driver") {
		cfg.Database.Driver = o.dbDriver
	}
	if flags.Changed("db-dsn") {
		cfg.Database.DSN = o.dbDSN
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	o.cfg = cfg
	return nil
}

// openStore returns nil when no database is configured
func (o *options) openStore(ctx context.Context) (*store.Store, error) {
	if !o.cfg.Database.Enabled() {
		return nil, nil
	}
	st, err := store.Open(ctx, o.cfg.Database.Driver, o.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	logrus.WithField("driver", o.cfg.Database.Driver).Debug("Connected to result store")
	return st, nil
}

func (o *options) requireStore(ctx context.Context) (*store.Store, error) {
	st, err := o.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errNoStore
	}
	return st, nil
}
