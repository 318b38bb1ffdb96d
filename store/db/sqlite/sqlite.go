// Package sqlite implements store.Driver on top of modernc.org/sqlite, a
// pure-Go SQLite driver. It is the only storage backend this module ships:
// the target deployment is an embedded device with a local relational
// store, not a networked database.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Registers the "sqlite" driver name with database/sql.
	_ "modernc.org/sqlite"

	"github.com/caihaoran-00/memchr/store"
)

// DB implements store.Driver.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dsn and configures it for
// single-connection WAL-mode access, which is the sane default for a
// personal/embedded deployment where there is exactly one writer.
func Open(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	// modernc.org/sqlite requires each pragma to be passed as its own
	// _pragma= query parameter.
	sqlDB, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	// A single connection is optimal for SQLite in WAL mode: there is only
	// ever one writer, and concurrent Go-level access is already serialized
	// per-session/per-user by the memory package's own mutexes.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	return &DB{db: sqlDB}, nil
}

func (d *DB) Close() error { return d.db.Close() }

var _ store.Driver = (*DB)(nil)

// txDB is a Driver bound to one in-flight transaction. All methods reuse
// the same *sql.Tx so that a Transaction(ctx, fn) call commits or rolls
// back atomically.
type txDB struct {
	tx *sql.Tx
}

func (d *DB) Transaction(ctx context.Context, fn func(ctx context.Context, tx store.Driver) error) error {
	sqlTx, err := d.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(ctx, &txDB{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// Close/Migrate/Transaction are not meaningful on a nested transaction
// handle; they are unreachable through store.Store but must exist to
// satisfy store.Driver.
func (t *txDB) Close() error { return nil }

func (t *txDB) Migrate(ctx context.Context) error {
	return errors.New("migrate cannot run inside a transaction")
}

func (t *txDB) Transaction(ctx context.Context, fn func(ctx context.Context, tx store.Driver) error) error {
	return fn(ctx, t)
}

func (t *txDB) ListUserIDs(ctx context.Context) ([]string, error) {
	return listUserIDs(ctx, t.tx)
}

var _ store.Driver = (*txDB)(nil)

// querier abstracts *sql.DB and *sql.Tx for the shared query helpers in
// profiles.go/episodes.go/facts.go/messages.go.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nowUnix() int64 { return time.Now().Unix() }

func unixToTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }
