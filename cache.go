// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"context"
	"database/sql"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/canonical/sqlexpr/internal/expr"
)

// stmtIDCount and dbIDCount are used to generate unique IDs.
var stmtIDCount uint64
var dbIDCount uint64

type dbID = uint64
type stmtID = uint64

// statementCache caches the sql.Stmt objects prepared for each
// CompiledQuery. A CompiledQuery can correspond to multiple sql.Stmt values
// on different databases. The cache is indexed by the CompiledQuery ID and
// the DB ID.
//
// The sql.Stmt values of a CompiledQuery are closed by a finalizer on the
// CompiledQuery. Similarly a finalizer on the DB closes all statements
// prepared on it and removes the DB from the cache. The sql.DB itself is
// owned by the caller and never closed by the cache.
//
// The mutex must be locked when accessing either the stmtDBCache or the
// dbStmtCache.
type statementCache struct {
	stmtDBCache map[stmtID]map[dbID]*sql.Stmt
	dbStmtCache map[dbID]map[stmtID]bool
	mutex       sync.RWMutex
}

var once sync.Once
var singleStmtCache *statementCache

// stmtCache stores the driver prepared statements of compiled queries.
var stmtCache = newStatementCache()

// newStatementCache returns the single instance of the statement cache.
func newStatementCache() *statementCache {
	once.Do(func() {
		singleStmtCache = &statementCache{
			stmtDBCache: map[stmtID]map[dbID]*sql.Stmt{},
			dbStmtCache: map[dbID]map[stmtID]bool{},
		}
	})
	return singleStmtCache
}

// newStatement returns a new CompiledQuery and allocates it in the cache. A
// finalizer is set on the CompiledQuery to remove all sql.Stmt values
// associated with it from the cache and close them.
func (sc *statementCache) newStatement(c *expr.Compiled) *CompiledQuery {
	cacheID := atomic.AddUint64(&stmtIDCount, 1)
	cq := &CompiledQuery{c: c, cacheID: cacheID}
	sc.mutex.Lock()
	sc.stmtDBCache[cacheID] = map[dbID]*sql.Stmt{}
	sc.mutex.Unlock()
	runtime.SetFinalizer(cq, sc.stmtFinalizer)
	return cq
}

// newDB allocates db in the cache and sets a finalizer on it which closes
// the statements prepared on it and removes it from the cache.
func (sc *statementCache) newDB(db *DB) {
	db.cacheID = atomic.AddUint64(&dbIDCount, 1)
	sc.mutex.Lock()
	sc.dbStmtCache[db.cacheID] = map[stmtID]bool{}
	sc.mutex.Unlock()
	runtime.SetFinalizer(db, sc.dbFinalizer)
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a sql.DB
// or sql.Conn.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// prepareStmt returns the statement of cq prepared on ps. It is prepared
// only if it is not already in the cache. The second return value is true if
// the statement was found in the cache. ps must belong to the database with
// the given ID.
func (sc *statementCache) prepareStmt(ctx context.Context, id dbID, ps prepareSubstrate, cq *CompiledQuery) (*sql.Stmt, bool, error) {
	sc.mutex.RLock()
	// The statement ID is only removed from the cache when the finalizer is
	// run, so it is always in stmtDBCache.
	sqlstmt, ok := sc.stmtDBCache[cq.cacheID][id]
	sc.mutex.RUnlock()
	if ok {
		return sqlstmt, true, nil
	}

	sqlstmt, err := ps.PrepareContext(ctx, cq.SQL())
	if err != nil {
		return nil, false, err
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if alt, ok := sc.stmtDBCache[cq.cacheID][id]; ok {
		sqlstmt.Close()
		return alt, true, nil
	}
	sc.stmtDBCache[cq.cacheID][id] = sqlstmt
	sc.dbStmtCache[id][cq.cacheID] = true
	return sqlstmt, false, nil
}

// stmtFinalizer removes a CompiledQuery from the cache and closes its
// statements.
func (sc *statementCache) stmtFinalizer(cq *CompiledQuery) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	for id, sqlstmt := range sc.stmtDBCache[cq.cacheID] {
		sqlstmt.Close()
		delete(sc.dbStmtCache[id], cq.cacheID)
	}
	delete(sc.stmtDBCache, cq.cacheID)
}

// dbFinalizer closes and removes from the cache all statements prepared on
// the database, then removes the database from the cache.
func (sc *statementCache) dbFinalizer(db *DB) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	for id := range sc.dbStmtCache[db.cacheID] {
		dbCache := sc.stmtDBCache[id]
		dbCache[db.cacheID].Close()
		delete(dbCache, db.cacheID)
	}
	delete(sc.dbStmtCache, db.cacheID)
}
