package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/chartsync/internal/model"
)

// SQLiteStore is a local mirror of the songs table for development and dry
// runs against real data.
type SQLiteStore struct {
	db     *sql.DB
	table  string
	upsert string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, table: table, upsert: sqliteUpsertSQL(table)}, nil
}

// sqliteUpsertSQL only rewrites a conflicting row when a value differs, so the
// change count of an identical re-run is zero.
func sqliteUpsertSQL(table string) string {
	q := quoteTable(table)
	var set, changed []string
	for _, c := range Columns[1:] {
		if c == "difficulty" {
			continue
		}
		set = append(set, fmt.Sprintf("%s = excluded.%s", c, c))
		changed = append(changed, fmt.Sprintf("%s.%s IS NOT excluded.%s", q, c, c))
	}
	set = append(set, "updated_at = datetime('now')")

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (%s) DO UPDATE SET %s WHERE %s",
		q,
		strings.Join(Columns, ", "),
		strings.Join(ConflictKeys, ", "),
		strings.Join(set, ", "),
		strings.Join(changed, " OR "),
	)
}

// Authenticate checks the database file is usable. SQLite has no credentials.
func (s *SQLiteStore) Authenticate(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Upsert writes batch in one transaction and returns the number of rows
// inserted or changed.
func (s *SQLiteStore) Upsert(ctx context.Context, batch []model.SongRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.upsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	var total int64
	for _, r := range batch {
		var constant any
		if r.Constant.Valid {
			constant = r.ConstantString()
		}
		res, err := stmt.ExecContext(ctx, r.Title, r.Artist, string(r.Difficulty), constant, r.Level, r.Version)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert %s", r.Key())
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return total, nil
}

// Migrate applies every sqlite migration; each is idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations("sqlite", s.table)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.SQL); err != nil {
			return eris.Wrapf(err, "sqlite: apply migration %s", m.Name)
		}
		zap.L().Debug("sqlite: migration applied", zap.String("file", m.Name))
	}
	return nil
}

// Records returns every row of the table ordered by natural key.
func (s *SQLiteStore) Records(ctx context.Context) ([]model.SongRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT title, artist, difficulty, constant, level, version FROM "+quoteTable(s.table)+" ORDER BY title, difficulty")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query records")
	}
	defer rows.Close()

	var out []model.SongRecord
	for rows.Next() {
		var (
			r        model.SongRecord
			diff     string
			constant sql.NullString
		)
		if err := rows.Scan(&r.Title, &r.Artist, &diff, &constant, &r.Level, &r.Version); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		r.Difficulty = model.Difficulty(diff)
		if constant.Valid {
			if err := r.Constant.Scan(constant.String); err != nil {
				return nil, eris.Wrapf(err, "sqlite: constant of %s", r.Key())
			}
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
