// Package model defines the song rows scraped from the wiki and the records
// persisted to the songs table.
package model

import (
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"
)

// CSVHeader is the fixed column order of the intermediate CSV file.
var CSVHeader = []string{"Song", "Artist", "Difficulty", "Chart Constant", "Level", "Version"}

// SongRow is one chart as it appears on the Songs by Level page. Values are
// kept as page text; the mapper owns numeric and enum validation.
type SongRow struct {
	Song          string `csv:"Song" json:"song"`
	Artist        string `csv:"Artist" json:"artist"`
	Difficulty    string `csv:"Difficulty" json:"difficulty"`
	ChartConstant string `csv:"Chart Constant" json:"chart_constant"`
	Level         string `csv:"Level" json:"level"`
	Version       string `csv:"Version" json:"version"`
}

// Difficulty is a chart difficulty tier.
type Difficulty string

const (
	Past    Difficulty = "PST"
	Present Difficulty = "PRS"
	Future  Difficulty = "FTR"
	Eternal Difficulty = "ETR"
	Beyond  Difficulty = "BYD"
)

// Difficulties lists every tier in game order.
var Difficulties = []Difficulty{Past, Present, Future, Eternal, Beyond}

var difficultyAliases = map[string]Difficulty{
	"pst":     Past,
	"past":    Past,
	"prs":     Present,
	"present": Present,
	"ftr":     Future,
	"future":  Future,
	"etr":     Eternal,
	"etc":     Eternal,
	"eternal": Eternal,
	"byd":     Beyond,
	"beyond":  Beyond,
}

// ParseDifficulty maps an abbreviation or long name, case-insensitive, to a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	d, ok := difficultyAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", eris.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}

// SongRecord is a row of the songs table. Title and Difficulty form the natural key.
type SongRecord struct {
	Title      string         `json:"title"`
	Artist     string         `json:"artist"`
	Difficulty Difficulty     `json:"difficulty"`
	Constant   pgtype.Numeric `json:"constant"`
	Level      string         `json:"level"`
	Version    string         `json:"version"`
}

// Key returns the natural key of the record.
func (r SongRecord) Key() Key {
	return Key{Title: r.Title, Difficulty: r.Difficulty}
}

// ConstantString renders the chart constant as written, or "" when unknown.
func (r SongRecord) ConstantString() string {
	if !r.Constant.Valid {
		return ""
	}
	b, err := r.Constant.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

// Key is the natural key of a chart.
type Key struct {
	Title      string
	Difficulty Difficulty
}

func (k Key) String() string {
	return k.Title + "/" + string(k.Difficulty)
}
