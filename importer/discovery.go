package importer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/nonsonwune/tofhir_db/models"
	"github.com/nonsonwune/tofhir_db/testspec"
)

// DefaultDirPattern matches yyyymmddhhmm campaign directory names
var DefaultDirPattern = regexp.MustCompile(`^\d{12}$`)

// DirectoryScanner lists the campaign directories under a base directory
type DirectoryScanner struct {
	fs      afero.Fs
	pattern *regexp.Regexp
}

func NewDirectoryScanner(fs afero.Fs, pattern *regexp.Regexp) *DirectoryScanner {
	if pattern == nil {
		pattern = DefaultDirPattern
	}
	return &DirectoryScanner{fs: fs, pattern: pattern}
}

// Scan returns the valid directories sorted ascending by timestamp, plus the skipped ones.
// A directory is valid when it holds the result file of every required test.
func (ds *DirectoryScanner) Scan(baseDir string, required []testspec.Spec) ([]models.ResultDirectory, []models.Skip, error) {
	entries, err := afero.ReadDir(ds.fs, baseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading base directory %s: %w", baseDir, err)
	}

	var (
		dirs    []models.ResultDirectory
		skipped []models.Skip
	)
	for _, entry := range entries {
		if !entry.IsDir() || !ds.pattern.MatchString(entry.Name()) {
			continue
		}
		name := entry.Name()
		ts, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			skipped = append(skipped, models.Skip{
				Dir:    name,
				Kind:   models.SkipFormat,
				Reason: fmt.Sprintf("directory name is not a timestamp: %v", err),
			})
			continue
		}

		dir := models.ResultDirectory{Name: name, Path: filepath.Join(baseDir, name), Timestamp: ts}
		if missing := ds.missingFile(dir, required); missing != "" {
			logrus.WithFields(logrus.Fields{"dir": name, "file": missing}).Warn("Skipping result directory")
			skipped = append(skipped, models.Skip{
				Dir:    name,
				Kind:   models.SkipMissingData,
				Reason: fmt.Sprintf("file %s not found", missing),
			})
			continue
		}
		dirs = append(dirs, dir)
	}

	sort.SliceStable(dirs, func(i, j int) bool {
		if dirs[i].Timestamp != dirs[j].Timestamp {
			return dirs[i].Timestamp < dirs[j].Timestamp
		}
		return dirs[i].Name < dirs[j].Name
	})
	return dirs, skipped, nil
}

func (ds *DirectoryScanner) missingFile(dir models.ResultDirectory, required []testspec.Spec) string {
	for _, spec := range required {
		ok, err := afero.Exists(ds.fs, filepath.Join(dir.Path, spec.File))
		if err != nil || !ok {
			return spec.File
		}
	}
	return ""
}
