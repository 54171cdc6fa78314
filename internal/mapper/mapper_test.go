package mapper

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/syncerr"
)

func TestMap_FractureRay(t *testing.T) {
	row := model.SongRow{Song: "Fracture Ray", Artist: "T+Pazolite", Difficulty: "FTR", ChartConstant: "9.00", Level: "9", Version: "2.0"}

	rec, err := Map(row, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "Fracture Ray", rec.Title)
	assert.Equal(t, "T+Pazolite", rec.Artist)
	assert.Equal(t, model.Future, rec.Difficulty)
	assert.Equal(t, "9.00", rec.ConstantString())
	assert.Equal(t, "9", rec.Level)
	assert.Equal(t, "2.0", rec.Version)

	f, err := rec.Constant.Float64Value()
	require.NoError(t, err)
	assert.InDelta(t, 9.0, f.Float64, 1e-9)
}

func TestMap_EternalAbbreviations(t *testing.T) {
	for _, d := range []string{"ETR", "ETC", "Eternal"} {
		t.Run(d, func(t *testing.T) {
			row := model.SongRow{Song: "Tempestissimo", Artist: "t+pazolite", Difficulty: d, ChartConstant: "9.8", Level: "9+", Version: "6.0"}
			rec, err := Map(row, DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, model.Eternal, rec.Difficulty)
			assert.Equal(t, "9.8", rec.ConstantString())
		})
	}
}

func TestMap_Pure(t *testing.T) {
	row := model.SongRow{Song: " Tempestissimo ", Artist: "t+pazolite", Difficulty: "beyond", ChartConstant: "11.3", Level: "11", Version: "3.0"}

	a, errA := Map(row, DefaultOptions())
	b, errB := Map(row, DefaultOptions())
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
	assert.Equal(t, "Tempestissimo", a.Title)
	assert.Equal(t, model.Beyond, a.Difficulty)
}

func TestMap_Rejections(t *testing.T) {
	base := model.SongRow{Song: "S", Artist: "A", Difficulty: "FTR", ChartConstant: "9.5", Level: "9+", Version: "1.0"}

	tests := []struct {
		name   string
		mutate func(*model.SongRow)
		want   string
	}{
		{"empty title", func(r *model.SongRow) { r.Song = "  " }, "empty song title"},
		{"unknown difficulty", func(r *model.SongRow) { r.Difficulty = "Hard" }, `unknown difficulty "Hard"`},
		{"text constant", func(r *model.SongRow) { r.ChartConstant = "nine" }, "not a decimal"},
		{"range constant", func(r *model.SongRow) { r.ChartConstant = "9.5~9.7" }, "not a decimal"},
		{"NaN constant", func(r *model.SongRow) { r.ChartConstant = "NaN" }, "not a decimal"},
		{"infinite constant", func(r *model.SongRow) { r.ChartConstant = "Infinity" }, "not a decimal"},
		{"negative constant", func(r *model.SongRow) { r.ChartConstant = "-1.5" }, "is negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := base
			tt.mutate(&row)
			_, err := Map(row, DefaultOptions())
			require.Error(t, err)
			assert.Equal(t, syncerr.Mapping, syncerr.KindOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMap_UnknownConstantIsNull(t *testing.T) {
	for _, c := range []string{"", " ", "-", "?"} {
		rec, err := Map(model.SongRow{Song: "S", Difficulty: "ETR", ChartConstant: c}, DefaultOptions())
		require.NoError(t, err, "constant %q", c)
		assert.False(t, rec.Constant.Valid, "constant %q", c)
		assert.Equal(t, "", rec.ConstantString())
	}
}

func TestMap_ZeroOptionsRejectsDash(t *testing.T) {
	_, err := Map(model.SongRow{Song: "S", Difficulty: "ETR", ChartConstant: "-"}, Options{})
	require.Error(t, err)
}

func TestMap_DecimalForms(t *testing.T) {
	tests := map[string]string{
		"9":     "9",
		"9.0":   "9.0",
		"10.85": "10.85",
		".5":    "0.5",
		"+3.2":  "3.2",
	}
	for in, want := range tests {
		rec, err := Map(model.SongRow{Song: "S", Difficulty: "PST", ChartConstant: in}, Options{})
		require.NoError(t, err, in)
		assert.Equal(t, want, rec.ConstantString(), in)
	}
}

func TestMapAll(t *testing.T) {
	rows := []model.SongRow{
		{Song: "A", Artist: "x", Difficulty: "FTR", ChartConstant: "9.0", Level: "9", Version: "1.0"},
		{Song: "B", Artist: "y", Difficulty: "Oops", ChartConstant: "9.0"},
		{Song: "C", Artist: "z", Difficulty: "BYD", ChartConstant: "13.5", Level: "13", Version: "6.0"},
		{Song: "D", Artist: "w", Difficulty: "PRS", ChartConstant: "?", Level: "6", Version: "1.0"},
		{Song: "A", Artist: "x", Difficulty: "Future", ChartConstant: "9.3", Level: "9", Version: "1.1"},
	}

	res := MapAll(rows, DefaultOptions())

	require.Len(t, res.Rejections, 1)
	assert.Equal(t, 1, res.Rejections[0].Index)
	assert.Equal(t, "B", res.Rejections[0].Row.Song)
	assert.True(t, syncerr.Is(res.Rejections[0].Err, syncerr.Mapping))

	assert.Equal(t, 1, res.Excluded)
	assert.Equal(t, 1, res.Duplicates)

	got := make([]model.SongRow, len(res.Records))
	for i, r := range res.Records {
		got[i] = ToRow(r)
	}
	want := []model.SongRow{
		{Song: "A", Artist: "x", Difficulty: "FTR", ChartConstant: "9.3", Level: "9", Version: "1.1"},
		{Song: "D", Artist: "w", Difficulty: "PRS", ChartConstant: "", Level: "6", Version: "1.0"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestMapAll_MaxConstantDisabled(t *testing.T) {
	rows := []model.SongRow{{Song: "C", Difficulty: "BYD", ChartConstant: "13.5"}}
	opts := DefaultOptions()
	opts.MaxConstant = 0

	res := MapAll(rows, opts)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 0, res.Excluded)
}

func TestMapAll_BoundaryNotExcluded(t *testing.T) {
	res := MapAll([]model.SongRow{{Song: "C", Difficulty: "BYD", ChartConstant: "13.0"}}, DefaultOptions())
	assert.Len(t, res.Records, 1)
}
