package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/chartsync/internal/db"
	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/syncerr"
)

// migrationLockID serializes concurrent migrate runs against one database.
const migrationLockID = 20240917

// PostgresStore writes directly to Postgres through a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	table   string
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore for table (optionally schema-qualified).
// Connections are opened lazily; call Authenticate to verify them.
func NewPostgres(ctx context.Context, connString, table string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, syncerr.E(syncerr.Config, eris.Wrap(err, "postgres: parse config"))
	}

	// A sync is sequential; a handful of connections is plenty.
	maxConns := int32(4)
	minConns := int32(0)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	return &PostgresStore{pool: pool, table: table, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Authenticate opens a connection and checks that the table is readable.
func (s *PostgresStore) Authenticate(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classifyPgError(eris.Wrap(err, "postgres: connect"))
	}
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+quoteTable(s.table)).Scan(&n); err != nil {
		return classifyPgError(eris.Wrapf(err, "postgres: read %s", s.table))
	}
	zap.L().Debug("postgres: authenticated", zap.String("table", s.table), zap.Int64("rows", n))
	return nil
}

// Upsert writes batch with a single COPY + INSERT ON CONFLICT. Rows whose
// values are unchanged are not rewritten and not counted.
func (s *PostgresStore) Upsert(ctx context.Context, batch []model.SongRecord) (int64, error) {
	rows := make([][]any, len(batch))
	for i, r := range batch {
		rows[i] = []any{r.Title, r.Artist, string(r.Difficulty), r.Constant, r.Level, r.Version}
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:         s.table,
		Columns:       Columns,
		ConflictKeys:  ConflictKeys,
		SkipUnchanged: true,
		TouchCol:      "updated_at",
	}, rows)
	if err != nil {
		return 0, classifyPgError(err)
	}
	return n, nil
}

// Migrate applies the embedded postgres migrations not yet recorded.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	migrations, err := loadMigrations("postgres", s.table)
	if err != nil {
		return err
	}

	// The lock, every migration and the release share one transaction, so they
	// run on one connection and the lock is dropped at commit or rollback.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyPgError(eris.Wrap(err, "postgres: begin migration tx"))
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return classifyPgError(eris.Wrap(err, "postgres: acquire migration lock"))
	}

	trackTable := s.trackingTable()
	if schema, _, ok := strings.Cut(s.table, "."); ok {
		if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteTable(schema)); err != nil {
			return eris.Wrapf(err, "postgres: create schema %s", schema)
		}
	}
	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+quoteTable(trackTable)+` (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	applied, err := appliedMigrations(ctx, tx, trackTable)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		log.Info("applying migration", zap.String("file", m.Name), zap.String("table", s.table))
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", m.Name)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO "+quoteTable(trackTable)+" (filename, applied_at) VALUES ($1, now())",
			m.Name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", m.Name)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit migrations")
	}
	return nil
}

// trackingTable lives next to the songs table.
func (s *PostgresStore) trackingTable() string {
	if schema, _, ok := strings.Cut(s.table, "."); ok {
		return schema + ".chartsync_migrations"
	}
	return "chartsync_migrations"
}

func appliedMigrations(ctx context.Context, tx pgx.Tx, trackTable string) (map[string]bool, error) {
	rows, err := tx.Query(ctx, "SELECT filename FROM "+quoteTable(trackTable))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// classifyPgError tags credential and privilege failures as AuthError.
// SQLSTATE class 28 is invalid authorization; 42501 is insufficient_privilege.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "28") || pgErr.Code == "42501") {
		return syncerr.E(syncerr.Auth, err)
	}
	return err
}
