// Package mapper converts scraped SongRow values into SongRecord values for the
// songs table.
package mapper

import (
	"regexp"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/syncerr"
)

// DefaultMaxConstant excludes charts above this constant from a sync.
const DefaultMaxConstant = 13

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Options control mapping. The zero value maps blank constants to NULL and
// excludes nothing.
type Options struct {
	// MaxConstant drops records whose constant is greater than this value.
	// 0 disables the filter.
	MaxConstant float64
	// UnknownConstants are constant cell values meaning "not known yet"; they
	// map to NULL. The empty string is always unknown.
	UnknownConstants []string
}

// DefaultOptions returns the options used by the sync pipeline.
func DefaultOptions() Options {
	return Options{
		MaxConstant:      DefaultMaxConstant,
		UnknownConstants: []string{"-", "?"},
	}
}

// Map converts one row. It is pure: the same row and options always produce
// the same record or the same error. Rejections are MappingError.
func Map(row model.SongRow, opts Options) (model.SongRecord, error) {
	title := strings.TrimSpace(row.Song)
	if title == "" {
		return model.SongRecord{}, syncerr.New(syncerr.Mapping, "mapper: empty song title")
	}

	diff, err := model.ParseDifficulty(row.Difficulty)
	if err != nil {
		return model.SongRecord{}, syncerr.E(syncerr.Mapping, eris.Wrapf(err, "mapper: %s", title))
	}

	constant, err := parseConstant(row.ChartConstant, opts.UnknownConstants)
	if err != nil {
		return model.SongRecord{}, syncerr.E(syncerr.Mapping, eris.Wrapf(err, "mapper: %s/%s", title, diff))
	}

	return model.SongRecord{
		Title:      title,
		Artist:     strings.TrimSpace(row.Artist),
		Difficulty: diff,
		Constant:   constant,
		Level:      strings.TrimSpace(row.Level),
		Version:    strings.TrimSpace(row.Version),
	}, nil
}

func parseConstant(raw string, unknown []string) (pgtype.Numeric, error) {
	s := strings.TrimSpace(raw)
	if s == "" || slices.Contains(unknown, s) {
		return pgtype.Numeric{}, nil
	}
	if !decimalPattern.MatchString(s) {
		return pgtype.Numeric{}, eris.Errorf("chart constant %q is not a decimal", raw)
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{}, eris.Wrapf(err, "chart constant %q", raw)
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return pgtype.Numeric{}, eris.Errorf("chart constant %q is not finite", raw)
	}
	if n.Int != nil && n.Int.Sign() < 0 {
		return pgtype.Numeric{}, eris.Errorf("chart constant %q is negative", raw)
	}
	return n, nil
}

// Rejection is a row the mapper refused.
type Rejection struct {
	// Index is the 0-based position of the row in the input.
	Index int
	Row   model.SongRow
	Err   error
}

// Result is the outcome of mapping a full snapshot.
type Result struct {
	// Records are unique by natural key, in order of first appearance.
	Records    []model.SongRecord
	Rejections []Rejection
	// Excluded counts records dropped by Options.MaxConstant.
	Excluded int
	// Duplicates counts rows that replaced an earlier row with the same key.
	Duplicates int
}

// MapAll maps every row. A later row with the same natural key replaces the
// earlier one but keeps its position.
func MapAll(rows []model.SongRow, opts Options) Result {
	var res Result
	pos := make(map[model.Key]int, len(rows))

	for i, row := range rows {
		rec, err := Map(row, opts)
		if err != nil {
			res.Rejections = append(res.Rejections, Rejection{Index: i, Row: row, Err: err})
			continue
		}
		if exceeds(rec.Constant, opts.MaxConstant) {
			res.Excluded++
			continue
		}

		if j, ok := pos[rec.Key()]; ok {
			res.Records[j] = rec
			res.Duplicates++
			continue
		}
		pos[rec.Key()] = len(res.Records)
		res.Records = append(res.Records, rec)
	}
	return res
}

func exceeds(n pgtype.Numeric, limit float64) bool {
	if limit <= 0 || !n.Valid {
		return false
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return false
	}
	return f.Float64 > limit
}

// ToRow renders a record back into CSV row form, used for the export file.
func ToRow(rec model.SongRecord) model.SongRow {
	return model.SongRow{
		Song:          rec.Title,
		Artist:        rec.Artist,
		Difficulty:    string(rec.Difficulty),
		ChartConstant: rec.ConstantString(),
		Level:         rec.Level,
		Version:       rec.Version,
	}
}
