// Package extract turns the rendered HTML of the Songs by Level page into
// SongRow values.
package extract

import (
	"iter"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/syncerr"
)

// minCells is the number of positional columns a song row carries:
// Song, Artist, Difficulty, Chart Constant, Level, Version.
const minCells = 6

// Fandom renders the same table under several class combinations; the first
// selector that matches anything wins.
var tableSelectors = []string{
	"table.wikitable.sortable",
	"table.article-table.sortable",
	"table.wikitable",
	"table.sortable",
}

// Table is the set of song tables found on a page. Its rows can be consumed once.
type Table struct {
	tables   *goquery.Selection
	selector string
	consumed atomic.Bool
	skipped  int
	yielded  int
}

// Parse locates the song tables in page HTML. A page with no recognizable
// table fails with ExtractionError.
func Parse(pageHTML string) (*Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, syncerr.E(syncerr.Extraction, eris.Wrap(err, "extract: parse html"))
	}

	for _, sel := range tableSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return &Table{tables: found, selector: sel}, nil
		}
	}

	// Last resort: the first table that has at least one full-width data row.
	var fallback *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		for _, tr := range ownRows(t) {
			if tr.ChildrenFiltered("td").Length() >= minCells {
				fallback = t
				return false
			}
		}
		return true
	})
	if fallback != nil {
		return &Table{tables: fallback, selector: "table"}, nil
	}

	return nil, syncerr.New(syncerr.Extraction, "extract: no song table found on page (page format changed?)")
}

// Tables returns the number of tables rows are read from.
func (t *Table) Tables() int { return t.tables.Length() }

// Selector returns the CSS selector that matched the tables.
func (t *Table) Selector() string { return t.selector }

// Skipped returns the number of data rows dropped so far for missing columns.
func (t *Table) Skipped() int { return t.skipped }

// Yielded returns the number of rows produced so far.
func (t *Table) Yielded() int { return t.yielded }

// Rows yields one SongRow per well-formed table row in page order. The
// sequence is single-pass: only the first call yields rows.
func (t *Table) Rows() iter.Seq[model.SongRow] {
	return func(yield func(model.SongRow) bool) {
		if !t.consumed.CompareAndSwap(false, true) {
			return
		}
		for i := range t.tables.Nodes {
			for _, tr := range ownRows(t.tables.Eq(i)) {
				tds := tr.ChildrenFiltered("td")
				if tds.Length() == 0 {
					// header row
					continue
				}
				row, ok := toRow(tds)
				if !ok {
					t.skipped++
					zap.L().Debug("extract: skipping incomplete row",
						zap.Int("cells", tds.Length()),
						zap.String("text", cellText(tr)),
					)
					continue
				}
				t.yielded++
				if !yield(row) {
					return
				}
			}
		}
	}
}

// ownRows returns the rows belonging to table t, excluding rows of nested tables.
func ownRows(t *goquery.Selection) []*goquery.Selection {
	var rows []*goquery.Selection
	self := t.Get(0)
	t.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("table").Get(0) == self {
			rows = append(rows, tr)
		}
	})
	return rows
}

func toRow(tds *goquery.Selection) (model.SongRow, bool) {
	if tds.Length() < minCells {
		return model.SongRow{}, false
	}

	songCell := tds.Eq(0)
	song := cellText(songCell.Find("a").First())
	if song == "" {
		song = cellText(songCell)
	}

	row := model.SongRow{
		Song:          song,
		Artist:        cellText(tds.Eq(1)),
		Difficulty:    cellText(tds.Eq(2)),
		ChartConstant: cellText(tds.Eq(3)),
		Level:         cellText(tds.Eq(4)),
		Version:       cellText(tds.Eq(5)),
	}
	if row.Song == "" || row.Difficulty == "" {
		return model.SongRow{}, false
	}
	return row, true
}

// cellText returns the visible text of s with whitespace collapsed and NFC applied.
// Footnote markers (<sup>) are dropped.
func cellText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	var b strings.Builder
	for _, n := range s.Nodes {
		visibleText(n, &b)
	}
	return norm.NFC.String(strings.Join(strings.Fields(b.String()), " "))
}

func visibleText(n *html.Node, b *strings.Builder) {
	switch {
	case n.Type == html.TextNode:
		b.WriteString(n.Data)
		return
	case n.Type == html.ElementNode && (n.Data == "sup" || n.Data == "style" || n.Data == "script"):
		return
	case n.Type == html.ElementNode && n.Data == "br":
		b.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(c, b)
	}
}
