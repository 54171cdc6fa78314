// Package store writes song records to the target songs table. The rest driver
// talks to Supabase's PostgREST endpoint; postgres and sqlite write directly.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sells-group/chartsync/internal/config"
	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/syncerr"
)

// Upserter writes batches of records keyed on (title, difficulty).
type Upserter interface {
	// Authenticate verifies the credentials and that the table is reachable.
	// Invalid credentials yield AuthError.
	Authenticate(ctx context.Context) error
	// Upsert inserts or updates batch and returns the number of rows written.
	Upsert(ctx context.Context, batch []model.SongRecord) (int64, error)
	// Migrate creates the target table if it does not exist.
	Migrate(ctx context.Context) error
	Close() error
}

// Columns are the written columns of the songs table, in COPY order.
var Columns = []string{"title", "artist", "difficulty", "constant", "level", "version"}

// ConflictKeys form the natural key of the songs table.
var ConflictKeys = []string{"title", "difficulty"}

// DefaultSQLitePath is used when the sqlite driver has no database_url.
const DefaultSQLitePath = "chartsync.db"

// Open builds the Upserter selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Upserter, error) {
	switch cfg.Store.Driver {
	case "rest":
		return NewREST(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey,
			WithSchema(cfg.Supabase.Schema),
			WithTable(cfg.Store.Table),
			WithRequestTimeout(time.Duration(cfg.Upsert.TimeoutSecs)*time.Second),
		), nil
	case "postgres":
		return NewPostgres(ctx, cfg.Store.DatabaseURL, qualify(cfg.Supabase.Schema, cfg.Store.Table), &PoolConfig{
			MaxConns: cfg.Store.MaxConns,
		})
	case "sqlite":
		path := cfg.Store.DatabaseURL
		if path == "" {
			path = DefaultSQLitePath
		}
		return NewSQLite(path, cfg.Store.Table)
	default:
		return nil, syncerr.Errorf(syncerr.Config, "store: unknown driver %q", cfg.Store.Driver)
	}
}

func qualify(schema, table string) string {
	if schema == "" || strings.Contains(table, ".") {
		return table
	}
	return schema + "." + table
}

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(table string) string {
	return pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize()
}
