package importer

import (
	"os"
	"regexp"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAcceptsBothSeparators(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/202401010000/SN_3 0017.txt", "2")
	writeFile(t, fs, "/data/202401010000/boards/SN_3_0018.txt", " 3 ")
	writeFile(t, fs, "/data/202401010000/notes.txt", "9")

	serials, err := NewSerialResolver(fs, nil, SerialInName).Resolve(resultDir("202401010000"))
	require.NoError(t, err)
	assert.Equal(t, SerialMap{2: 17, 3: 18}, serials)
}

func TestResolveTesterInName(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/202401010000/tester_4.txt", "101")

	pattern := regexp.MustCompile(`^tester_(\d+)\.txt$`)
	serials, err := NewSerialResolver(fs, pattern, TesterInName).Resolve(resultDir("202401010000"))
	require.NoError(t, err)
	assert.Equal(t, SerialMap{4: 101}, serials)
}

func TestResolveNoMarkers(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/202401010000/aldo.tsv", "1")

	_, err := NewSerialResolver(fs, nil, SerialInName).Resolve(resultDir("202401010000"))
	var missingErr *MissingDataError
	require.ErrorAs(t, err, &missingErr)
}

func TestResolveMissingDirectory(t *testing.T) {
	_, err := NewSerialResolver(afero.NewMemMapFs(), nil, SerialInName).Resolve(resultDir("202401010000"))
	var missingErr *MissingDataError
	require.ErrorAs(t, err, &missingErr)
}

func TestResolveConflictingMarkers(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/202401010000/SN_3 0017.txt", "2")
	writeFile(t, fs, "/data/202401010000/SN_3 0018.txt", "2")

	_, err := NewSerialResolver(fs, nil, SerialInName).Resolve(resultDir("202401010000"))
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
}

func TestResolveBadContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/202401010000/SN_3 0017.txt", "two")

	_, err := NewSerialResolver(fs, nil, SerialInName).Resolve(resultDir("202401010000"))
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
}

func TestParseMarkerConvention(t *testing.T) {
	c, err := ParseMarkerConvention("")
	require.NoError(t, err)
	assert.Equal(t, SerialInName, c)

	c, err = ParseMarkerConvention("Tester-In-Name")
	require.NoError(t, err)
	assert.Equal(t, TesterInName, c)

	_, err = ParseMarkerConvention("sideways")
	assert.Error(t, err)
}

func TestResolveUnreadableMarker(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/202401010000/SN_3 0017.txt", "2")
	denied := deniedFs{Fs: fs, denied: map[string]bool{"/data/202401010000/SN_3 0017.txt": true}}

	_, err := NewSerialResolver(denied, nil, SerialInName).Resolve(resultDir("202401010000"))
	var missingErr *MissingDataError
	require.ErrorAs(t, err, &missingErr)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestResolveUnreadableDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/202401010000/SN_3 0017.txt", "2")
	denied := deniedFs{Fs: fs, denied: map[string]bool{"/data/202401010000": true}}

	_, err := NewSerialResolver(denied, nil, SerialInName).Resolve(resultDir("202401010000"))
	var missingErr *MissingDataError
	require.ErrorAs(t, err, &missingErr)
	assert.Contains(t, err.Error(), "unreadable")
}
