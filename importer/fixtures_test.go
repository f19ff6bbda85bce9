package importer

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/nonsonwune/tofhir_db/models"
)

func writeFile(t *testing.T, fs afero.Fs, path string, lines ...string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

func resultDir(name string) models.ResultDirectory {
	return models.ResultDirectory{Name: name, Path: filepath.Join("/data", name)}
}

const tdcHeader = "# chipID\tchannelID\ttacID\tbranch\tt0\ta0\ta1\ta2\tsigma"

// tdcRow returns a TDC row that passes unless a1 is below 440
func tdcRow(chipID int, a1 string) string {
	return strings.Join([]string{strconv.Itoa(chipID), "0", "0", "0", "0.05", "60", a1, "-5", "0.004"}, "\t")
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// deniedFs fails every Open of the listed paths with a permission error
type deniedFs struct {
	afero.Fs
	denied map[string]bool
}

func (d deniedFs) Open(name string) (afero.File, error) {
	if d.denied[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return d.Fs.Open(name)
}
