package store

import (
	"bytes"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
	"text/template"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// migration is one rendered DDL file.
type migration struct {
	Name string
	SQL  string
}

// ddlTarget is the template data for migration files.
type ddlTarget struct {
	// Table is the quoted, possibly schema-qualified table name.
	Table string
	base  string
}

// Index returns a quoted index name for col on the target table.
func (d ddlTarget) Index(col string) string {
	return pgx.Identifier{"idx_" + d.base + "_" + col}.Sanitize()
}

func newDDLTarget(table string) ddlTarget {
	base := table
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		base = table[i+1:]
	}
	return ddlTarget{Table: quoteTable(table), base: base}
}

// loadMigrations renders the migrations of dialect for table, in filename order.
func loadMigrations(dialect, table string) ([]migration, error) {
	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read %s migrations", dialect)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	target := newDDLTarget(table)
	out := make([]migration, 0, len(entries))
	for _, e := range entries {
		raw, err := migrationFS.ReadFile(path.Join(dir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "store: read migration %s", e.Name())
		}
		tmpl, err := template.New(e.Name()).Parse(string(raw))
		if err != nil {
			return nil, eris.Wrapf(err, "store: parse migration %s", e.Name())
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, target); err != nil {
			return nil, eris.Wrapf(err, "store: render migration %s", e.Name())
		}
		out = append(out, migration{Name: e.Name(), SQL: buf.String()})
	}
	return out, nil
}
