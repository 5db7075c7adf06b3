// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

func (cq *CompiledQuery) CacheID() uint64 {
	return cq.cacheID
}

func (db *DB) CacheID() uint64 {
	return db.cacheID
}

// NumCachedStmts returns the number of statements of cq prepared on any
// database.
func NumCachedStmts(cq *CompiledQuery) int {
	stmtCache.mutex.RLock()
	defer stmtCache.mutex.RUnlock()
	return len(stmtCache.stmtDBCache[cq.cacheID])
}
