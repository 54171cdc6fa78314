// Package songcsv reads and writes the intermediate songs CSV that sits between
// the scrape and sync stages.
package songcsv

import (
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/syncerr"
)

// Write writes the header and one line per row to path, replacing any existing
// file. The file is written to a temporary sibling and renamed into place, so
// readers see either the previous file or the complete new one.
func Write(path string, rows iter.Seq[model.SongRow]) (int, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, syncerr.E(syncerr.IO, eris.Wrapf(err, "songcsv: create temp file in %s", dir))
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := encode(tmp, rows)
	if err != nil {
		return 0, syncerr.E(syncerr.IO, eris.Wrapf(err, "songcsv: write %s", path))
	}
	if err := tmp.Sync(); err != nil {
		return 0, syncerr.E(syncerr.IO, eris.Wrapf(err, "songcsv: sync %s", tmpName))
	}
	if err := tmp.Chmod(0o644); err != nil {
		return 0, syncerr.E(syncerr.IO, eris.Wrapf(err, "songcsv: chmod %s", tmpName))
	}
	if err := tmp.Close(); err != nil {
		return 0, syncerr.E(syncerr.IO, eris.Wrapf(err, "songcsv: close %s", tmpName))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, syncerr.E(syncerr.IO, eris.Wrapf(err, "songcsv: rename into %s", path))
	}
	committed = true
	return n, nil
}

// WriteAll is Write for a slice.
func WriteAll(path string, rows []model.SongRow) (int, error) {
	return Write(path, slices.Values(rows))
}

func encode(w io.Writer, rows iter.Seq[model.SongRow]) (int, error) {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	// The header goes out even when there are no rows.
	if err := enc.EncodeHeader(model.SongRow{}); err != nil {
		return 0, eris.Wrap(err, "encode header")
	}
	enc.AutoHeader = false

	n := 0
	for row := range rows {
		if err := enc.Encode(row); err != nil {
			return n, eris.Wrapf(err, "encode row %d", n+1)
		}
		n++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, eris.Wrap(err, "flush")
	}
	return n, nil
}

// Read returns the rows of the CSV at path in file order. The header must match
// model.CSVHeader exactly, after any leading byte order mark. A missing file is an IOError wrapping fs.ErrNotExist.
func Read(path string) ([]model.SongRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, syncerr.E(syncerr.IO, eris.Wrapf(err, "songcsv: open %s", path))
	}
	defer f.Close()

	rows, err := decode(f)
	if err != nil {
		return nil, syncerr.E(syncerr.IO, eris.Wrapf(err, "songcsv: read %s", path))
	}
	return rows, nil
}

func decode(r io.Reader) ([]model.SongRow, error) {
	// Spreadsheet re-saves often prepend a byte order mark; drop it (and decode
	// UTF-16 if that is what the mark announces).
	r = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if errors.Is(err, io.EOF) {
		return nil, eris.New("empty file, expected header")
	}
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}
	if got := dec.Header(); !slices.Equal(got, model.CSVHeader) {
		return nil, eris.Errorf("unexpected header %q, want %q", got, model.CSVHeader)
	}

	var rows []model.SongRow
	for {
		var row model.SongRow
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "decode line %d", len(rows)+2)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
