package songcsv

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/syncerr"
)

var sample = []model.SongRow{
	{Song: "Fracture Ray", Artist: "Sakuzyo", Difficulty: "FTR", ChartConstant: "11.2", Level: "11", Version: "1.5"},
	{Song: "Aterlbus", Artist: "Apo11o program", Difficulty: "BYD", ChartConstant: "10.8", Level: "10+", Version: "5.1"},
	{Song: "Genesis, Part 2", Artist: `He said "hi"`, Difficulty: "PRS", ChartConstant: "-", Level: "5", Version: "1.0"},
	{Song: "Café", Artist: "ぱらどっくす", Difficulty: "PST", ChartConstant: "", Level: "3", Version: "2.0"},
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.csv")

	n, err := WriteAll(path, sample)
	require.NoError(t, err)
	assert.Equal(t, len(sample), n)

	got, err := Read(path)
	require.NoError(t, err)
	if diff := cmp.Diff(sample, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.csv")
	_, err := WriteAll(path, sample[2:3])
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"Song,Artist,Difficulty,Chart Constant,Level,Version\n"+
			`"Genesis, Part 2","He said ""hi""",PRS,-,5,1.0`+"\n",
		string(data))
}

func TestWrite_EmptyWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.csv")
	n, err := WriteAll(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rows, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWrite_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.csv")
	_, err := WriteAll(path, sample)
	require.NoError(t, err)
	_, err = WriteAll(path, sample[:1])
	require.NoError(t, err)

	rows, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteAll(filepath.Join(dir, "songs.csv"), sample)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "songs.csv", entries[0].Name())
}

func TestWrite_UnwritableDir(t *testing.T) {
	_, err := WriteAll(filepath.Join(t.TempDir(), "missing", "songs.csv"), sample)
	require.Error(t, err)
	assert.Equal(t, syncerr.IO, syncerr.KindOf(err))
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Equal(t, syncerr.IO, syncerr.KindOf(err))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRead_HeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.csv")
	require.NoError(t, os.WriteFile(path, []byte("song,artist,difficulty,chart_constant,level,version\nA,B,FTR,9,9,1\n"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
	assert.Equal(t, syncerr.IO, syncerr.KindOf(err))
	assert.Contains(t, err.Error(), "unexpected header")
}

func TestRead_ByteOrderMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.csv")
	data := "\ufeffSong,Artist,Difficulty,Chart Constant,Level,Version\nFracture Ray,Sakuzyo,FTR,11.2,11,1.5\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	rows, err := Read(path)
	require.NoError(t, err)
	if diff := cmp.Diff(sample[:1], rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty file")
}

func TestRead_RaggedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.csv")
	require.NoError(t, os.WriteFile(path, []byte("Song,Artist,Difficulty,Chart Constant,Level,Version\nA,B,FTR\n"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
	assert.Equal(t, syncerr.IO, syncerr.KindOf(err))
}
