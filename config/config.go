package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nonsonwune/tofhir_db/importer"
	"github.com/nonsonwune/tofhir_db/testspec"
)

// DefaultFile is read when no config path is given
const DefaultFile = "tofhir.yaml"

// MarkerConfig selects how serial marker files are recognised
type MarkerConfig struct {
	Pattern    string `yaml:"pattern"`
	Convention string `yaml:"convention"` // "serial-in-name" or "tester-in-name"
}

// DatabaseConfig points at the optional result store
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "sqlite3"
	DSN    string `yaml:"dsn"`
}

func (d DatabaseConfig) Enabled() bool {
	return d.Driver != "" && d.DSN != ""
}

// Config holds the settings of an aggregation run
type Config struct {
	BaseDir     string         `yaml:"base_dir"`
	DirPattern  string         `yaml:"dir_pattern"`
	Tests       []string       `yaml:"tests"`
	OutputDir   string         `yaml:"output_dir"`
	WriteRaw    bool           `yaml:"write_raw"`
	MetricsFile string         `yaml:"metrics_file"`
	LogLevel    string         `yaml:"log_level"`
	Markers     MarkerConfig   `yaml:"markers"`
	Database    DatabaseConfig `yaml:"database"`
}

// Default returns the built-in settings: every registered test, output under ./output
func Default() Config {
	return Config{
		DirPattern: importer.DefaultDirPattern.String(),
		Tests:      testspec.Default().Names(),
		OutputDir:  "output",
		LogLevel:   "info",
		Markers: MarkerConfig{
			Pattern:    importer.DefaultMarkerPattern.String(),
			Convention: "serial-in-name",
		},
	}
}

// LoadEnv loads .env files into the environment; missing files are ignored
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a YAML config over the defaults, then applies environment overrides.
// An empty path reads DefaultFile if it exists.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		logrus.WithField("file", path).Debug("Loaded config file")
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides settings from TOFHIR_* and DB_* variables
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TOFHIR_BASE_DIR"); v != "" {
		c.BaseDir = v
	}
	if v := os.Getenv("TOFHIR_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("TOFHIR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Database.DSN = v
	}

	if c.Database.DSN == "" && os.Getenv("DB_HOST") != "" {
		if c.Database.Driver == "" {
			c.Database.Driver = "postgres"
		}
		if c.Database.Driver == "postgres" {
			c.Database.DSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
				os.Getenv("DB_HOST"),
				envOr("DB_PORT", "5432"),
				os.Getenv("DB_USER"),
				os.Getenv("DB_PASSWORD"),
				os.Getenv("DB_NAME"))
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate checks the settings against the test registry
func (c Config) Validate(registry *testspec.Registry) error {
	if c.BaseDir == "" {
		return &testspec.ConfigError{Message: "base_dir is required"}
	}
	if len(c.Tests) == 0 {
		return &testspec.ConfigError{Message: "no tests selected"}
	}
	if _, err := registry.Resolve(c.Tests); err != nil {
		return err
	}
	if _, err := c.DirRegexp(); err != nil {
		return err
	}
	if _, err := c.MarkerRegexp(); err != nil {
		return err
	}
	if _, err := importer.ParseMarkerConvention(c.Markers.Convention); err != nil {
		return &testspec.ConfigError{Message: err.Error()}
	}
	switch c.Database.Driver {
	case "", "postgres", "sqlite3":
	default:
		return &testspec.ConfigError{Message: fmt.Sprintf("unsupported database driver %q", c.Database.Driver)}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return &testspec.ConfigError{Message: err.Error()}
	}
	return nil
}

func (c Config) DirRegexp() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.DirPattern)
	if err != nil {
		return nil, &testspec.ConfigError{Message: fmt.Sprintf("invalid dir_pattern: %v", err)}
	}
	return re, nil
}

func (c Config) MarkerRegexp() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.Markers.Pattern)
	if err != nil {
		return nil, &testspec.ConfigError{Message: fmt.Sprintf("invalid marker pattern: %v", err)}
	}
	if re.NumSubexp() < 1 {
		return nil, &testspec.ConfigError{Message: "marker pattern needs a capture group"}
	}
	return re, nil
}
