// Package engine drives the embedded SQLite (WAL-mode) database file that
// backs one worker: opening it with the pragmas the coordination core
// requires, running schema migrations, executing batches, and performing
// the checkpoint/close/reopen steps of the maintenance state machine.
//
// The engine itself carries no concurrency control; it assumes its caller
// (internal/worker) serializes every call, which is what lets it hold a
// single physical connection for the lifetime of an Open database.
package engine

import (
	"database/sql"
	"fmt"

	"github.com/vkolb/waldb/internal/engine/migrations"
	"github.com/vkolb/waldb/internal/protocol"
	"github.com/vkolb/waldb/rpc/common"

	_ "modernc.org/sqlite"
)

// BusyTimeoutMillis, WALAutoCheckpointPages and the journaling/synchronous
// modes are applied immediately after opening, before any request is
// served.
const (
	BusyTimeoutMillis      = 5000
	WALAutoCheckpointPages = 1000
)

// Engine owns the single physical connection to one database file.
type Engine struct {
	path   string
	db     *sql.DB
	logger common.ILogger
}

// Open opens the database file at path, applies the required pragmas, and
// runs any pending migrations. On any failure the underlying connection
// is closed and the caller's worker must remain Closed.
func Open(path string, logger common.ILogger) (*Engine, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, protocol.NewCodedError(protocol.CodeOpenFailed, fmt.Errorf("open %s: %w", path, err))
	}

	// This daemon is the sole writer for the database file; pinning the
	// pool to one physical connection turns "at most one write in flight"
	// into an engine-level guarantee rather than only an
	// application-level one.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", BusyTimeoutMillis),
		fmt.Sprintf("PRAGMA wal_autocheckpoint=%d", WALAutoCheckpointPages),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, protocol.NewCodedError(protocol.CodeOpenFailed, fmt.Errorf("apply %q: %w", p, err))
		}
	}

	if err := runMigrations(db, migrations.FS, logger); err != nil {
		db.Close()
		return nil, protocol.NewCodedError(protocol.CodeOpenFailed, fmt.Errorf("migrate: %w", err))
	}

	return &Engine{path: path, db: db, logger: logger}, nil
}

// Path returns the canonicalized path this engine was opened against.
func (e *Engine) Path() string {
	return e.path
}

// CurrentRevision reads the single row of the meta table.
func (e *Engine) CurrentRevision() (int64, error) {
	var rev int64
	err := e.db.QueryRow(`SELECT rev FROM meta`).Scan(&rev)
	if err != nil {
		return 0, ToCodedError(err)
	}
	return rev, nil
}

// ExecBatch executes stmts per the requested transaction mode and bumps
// the revision counter inside the same transaction boundary as any
// committed user-data change.
//
// Under TxAtomic, all statements and the revision bump share a single
// transaction; any failure rolls back the entire batch and the revision
// is left untouched.
//
// Under TxNone, each statement (and its own revision bump) commits
// independently; a failure at statement k leaves statements before k
// committed, does not execute statements after k, and reports the
// accumulated rows affected alongside the error.
func (e *Engine) ExecBatch(stmts []protocol.Statement, mode protocol.TxMode) (rev int64, rowsAffected int64, err error) {
	if len(stmts) == 0 {
		return 0, 0, protocol.NewCodedError(protocol.CodeBadRequest, fmt.Errorf("engine: statement batch must not be empty"))
	}
	if mode == protocol.TxNone {
		return e.execBatchNone(stmts)
	}
	return e.execBatchAtomic(stmts)
}

func (e *Engine) execBatchAtomic(stmts []protocol.Statement) (int64, int64, error) {
	tx, err := e.db.Begin()
	if err != nil {
		return 0, 0, ToCodedError(err)
	}
	defer tx.Rollback()

	var rowsAffected int64
	for _, stmt := range stmts {
		res, err := tx.Exec(stmt.SQL, stmt.Params...)
		if err != nil {
			return 0, rowsAffected, ToCodedError(err)
		}
		if n, err := res.RowsAffected(); err == nil {
			rowsAffected += n
		}
	}

	if _, err := tx.Exec(`UPDATE meta SET rev = rev + 1`); err != nil {
		return 0, rowsAffected, ToCodedError(err)
	}

	var rev int64
	if err := tx.QueryRow(`SELECT rev FROM meta`).Scan(&rev); err != nil {
		return 0, rowsAffected, ToCodedError(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, rowsAffected, ToCodedError(err)
	}

	return rev, rowsAffected, nil
}

func (e *Engine) execBatchNone(stmts []protocol.Statement) (int64, int64, error) {
	var rowsAffected int64
	var rev int64

	for _, stmt := range stmts {
		committedRev, n, err := e.execSingleCommitted(stmt)
		rowsAffected += n
		if err != nil {
			return rev, rowsAffected, ToCodedError(err)
		}
		rev = committedRev
	}

	return rev, rowsAffected, nil
}

func (e *Engine) execSingleCommitted(stmt protocol.Statement) (int64, int64, error) {
	tx, err := e.db.Begin()
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(stmt.SQL, stmt.Params...)
	if err != nil {
		return 0, 0, err
	}

	var rowsAffected int64
	if n, err := res.RowsAffected(); err == nil {
		rowsAffected = n
	}

	if _, err := tx.Exec(`UPDATE meta SET rev = rev + 1`); err != nil {
		return 0, rowsAffected, err
	}

	var rev int64
	if err := tx.QueryRow(`SELECT rev FROM meta`).Scan(&rev); err != nil {
		return 0, rowsAffected, err
	}

	if err := tx.Commit(); err != nil {
		return 0, rowsAffected, err
	}

	return rev, rowsAffected, nil
}

// Checkpoint issues a full WAL checkpoint, truncating the WAL file to
// zero length on success. It does not change the engine's open/closed
// state; callers drive that through Close.
func (e *Engine) Checkpoint() error {
	if _, err := e.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return ToCodedError(err)
	}
	return nil
}

// Close issues a final checkpoint then releases the connection and all
// file locks on the database.
func (e *Engine) Close() error {
	_ = e.Checkpoint()
	return e.db.Close()
}
