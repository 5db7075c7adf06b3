// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

var ErrNoRows = sql.ErrNoRows

// Executor runs SQL text with parameters. It is satisfied by *sql.DB,
// *sql.Tx and *sql.Conn.
type Executor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Run runs the compiled query on the executor. The caller must close the
// returned rows.
func Run(ctx context.Context, ex Executor, cq *CompiledQuery) (*sql.Rows, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ex.QueryContext(ctx, cq.SQL(), cq.Params()...)
}

// DB runs compiled queries on a database. The statement of a compiled query
// is prepared on the database the first time the query is run, and reused
// afterwards.
type DB struct {
	// cacheID is used to look up the driver prepared statements prepared on
	// this database.
	cacheID uint64
	sqldb   *sql.DB
	logger  *slog.Logger

	mu      sync.Mutex
	lastSQL string
}

// DBOption configures a DB.
type DBOption func(*DB)

// WithLogger sets the logger. Every query run is logged at debug level.
func WithLogger(logger *slog.Logger) DBOption {
	return func(db *DB) {
		db.logger = logger
	}
}

// NewDB returns a DB running queries on sqldb. The caller stays responsible
// for closing sqldb.
func NewDB(sqldb *sql.DB, opts ...DBOption) *DB {
	if sqldb == nil {
		return nil
	}
	db := &DB{sqldb: sqldb, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(db)
	}
	stmtCache.newDB(db)
	return db
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// LastSQL returns the SQL text of the last query run on the database.
func (db *DB) LastSQL() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lastSQL
}

// Rows runs the query and returns its rows. The caller must close them.
func (db *DB) Rows(ctx context.Context, cq *CompiledQuery) (*sql.Rows, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cq == nil {
		return nil, fmt.Errorf("cannot run query: nil query")
	}
	sqlstmt, cached, err := stmtCache.prepareStmt(ctx, db.cacheID, db.sqldb, cq)
	if err != nil {
		return nil, fmt.Errorf("cannot prepare query: %w", err)
	}

	db.mu.Lock()
	db.lastSQL = cq.SQL()
	db.mu.Unlock()
	params := cq.Params()
	db.logger.Debug("running query", "sql", cq.SQL(), "params", len(params), "cached", cached)

	rows, err := sqlstmt.QueryContext(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("cannot run query: %w", err)
	}
	return rows, nil
}

// Scalar runs the query and scans the first column of the first row into
// dest. It returns [ErrNoRows] if there are no rows.
func (db *DB) Scalar(ctx context.Context, cq *CompiledQuery, dest any) error {
	rows, err := db.Rows(ctx, cq)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return ErrNoRows
	}
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	ptrs := make([]any, len(cols))
	ptrs[0] = dest
	for i := 1; i < len(ptrs); i++ {
		ptrs[i] = new(any)
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("cannot get result: %w", err)
	}
	return rows.Close()
}

// Column runs the query and appends the first column of every row to the
// slice pointed to by sliceArg.
func (db *DB) Column(ctx context.Context, cq *CompiledQuery, sliceArg any) error {
	ptrVal := reflect.ValueOf(sliceArg)
	if ptrVal.Kind() != reflect.Pointer {
		return fmt.Errorf("need pointer to slice, got %s", ptrVal.Kind())
	}
	if ptrVal.IsNil() {
		return fmt.Errorf("need pointer to slice, got nil")
	}
	sliceVal := ptrVal.Elem()
	if sliceVal.Kind() != reflect.Slice {
		return fmt.Errorf("need pointer to slice, got pointer to %s", sliceVal.Kind())
	}

	rows, err := db.Rows(ctx, cq)
	if err != nil {
		return err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	elemType := sliceVal.Type().Elem()
	for rows.Next() {
		elem := reflect.New(elemType)
		ptrs := make([]any, len(cols))
		ptrs[0] = elem.Interface()
		for i := 1; i < len(ptrs); i++ {
			ptrs[i] = new(any)
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("cannot get result: %w", err)
		}
		sliceVal = reflect.Append(sliceVal, elem.Elem())
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	ptrVal.Elem().Set(sliceVal)
	return nil
}
