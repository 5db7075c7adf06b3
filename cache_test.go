// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/check.v1"
)

type CacheSuite struct{}

var _ = check.Suite(&CacheSuite{})

type Person struct {
	ID   int    `db:"id,pk"`
	Name string `db:"name"`
	Team string `db:"team"`
}

func (Person) TableName() string { return "person" }

func (s *CacheSuite) TearDownSuite(_ *check.C) {
	stmtRegistryMutex.Lock()
	defer stmtRegistryMutex.Unlock()
	closedStmts = map[string]map[uintptr]bool{}
	openedStmts = map[string]map[uintptr]string{}
	stmtQueriesRun = map[string]int{}
}

func (s *CacheSuite) TestPreparedStatementReuse(c *check.C) {
	db := s.openDB(c)

	var stmtID uint64
	// For a CompiledQuery to be removed from the cache it needs to go out of
	// scope and be garbage collected. A function is used to "forget" it.
	func() {
		cq, err := From[Person](WithDialect(SQLite)).Where(Eq(Col("Team"), "engineering")).Finalize()
		c.Assert(err, check.IsNil)
		stmtID = cq.cacheID

		rows, err := db.Rows(context.Background(), cq)
		c.Assert(err, check.IsNil)
		c.Assert(rows.Close(), check.IsNil)

		s.checkStmtInCache(c, db.cacheID, cq.cacheID)
		s.checkNumDBStmts(c, db.cacheID, 1)
		s.checkDriverStmtsOpened(c, 1)

		// Running the query again does not prepare a second statement.
		var names []string
		err = db.Column(context.Background(), cq, &names)
		c.Assert(err, check.IsNil)
		s.checkNumDBStmts(c, db.cacheID, 1)
		s.checkDriverStmtsOpened(c, 1)
		s.checkStmtQueriesRun(c, 2)
	}()

	s.waitFor(c, func() bool { return s.stmtGone(stmtID) })
	s.checkDriverStmtsAllClosed(c)
}

func (s *CacheSuite) TestStatementsClosedWithDB(c *check.C) {
	var dbID, stmtID uint64
	var cq *CompiledQuery
	func() {
		db := s.openDB(c)
		dbID = db.cacheID
		cq = From[Person](WithDialect(SQLite)).MustFinalize()
		stmtID = cq.cacheID
		rows, err := db.Rows(context.Background(), cq)
		c.Assert(err, check.IsNil)
		c.Assert(rows.Close(), check.IsNil)
		s.checkStmtInCache(c, dbID, stmtID)
	}()

	s.waitFor(c, func() bool { return s.dbGone(dbID) })
	s.checkDriverStmtsAllClosed(c)
	// The query is still cached, without statements.
	c.Check(NumCachedStmts(cq), check.Equals, 0)
}

func (s *CacheSuite) TestConcurrentPrepare(c *check.C) {
	db := s.openDB(c)
	db.PlainDB().SetMaxOpenConns(1)
	cq := From[Person](WithDialect(SQLite)).Select(Col("Name")).MustFinalize()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var names []string
			errs <- db.Column(context.Background(), cq, &names)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		c.Check(err, check.IsNil)
	}
	s.checkNumDBStmts(c, db.cacheID, 1)
}

func (s *CacheSuite) TestLogging(c *check.C) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	db := s.openDB(c, WithLogger(logger))
	cq := From[Person](WithDialect(SQLite)).Where(Eq(Col("ID"), 1)).MustFinalize()

	for i := 0; i < 2; i++ {
		var name string
		err := db.Scalar(context.Background(), cq, &name)
		c.Assert(err, check.Equals, ErrNoRows)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	c.Assert(lines, check.HasLen, 2)
	c.Check(lines[0], check.Matches, `.*level=DEBUG msg="running query" sql=.*params=1 cached=false`)
	c.Check(lines[1], check.Matches, `.*cached=true`)
	c.Check(db.LastSQL(), check.Equals, `SELECT "id", "name", "team" FROM "person" WHERE "id" = ?1`)
}

func (s *CacheSuite) openDB(c *check.C, opts ...DBOption) *DB {
	sqldb, err := sql.Open("sqlite3_stmtChecked", "file:"+c.TestName()+"?cache=shared&mode=memory&testName="+c.TestName())
	c.Assert(err, check.IsNil)
	_, err = sqldb.Exec(`CREATE TABLE IF NOT EXISTS person (id integer, name text, team text)`)
	c.Assert(err, check.IsNil)
	return NewDB(sqldb, opts...)
}

// waitFor runs the garbage collector until cond holds.
func (s *CacheSuite) waitFor(c *check.C, cond func() bool) {
	for i := 0; i < 100; i++ {
		runtime.GC()
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.Fatalf("condition not met after garbage collection")
}

func (s *CacheSuite) stmtGone(stmtID uint64) bool {
	stmtCache.mutex.RLock()
	defer stmtCache.mutex.RUnlock()
	if _, ok := stmtCache.stmtDBCache[stmtID]; ok {
		return false
	}
	for _, dbc := range stmtCache.dbStmtCache {
		if dbc[stmtID] {
			return false
		}
	}
	return true
}

func (s *CacheSuite) dbGone(dbID uint64) bool {
	stmtCache.mutex.RLock()
	defer stmtCache.mutex.RUnlock()
	if _, ok := stmtCache.dbStmtCache[dbID]; ok {
		return false
	}
	for _, sc := range stmtCache.stmtDBCache {
		if _, ok := sc[dbID]; ok {
			return false
		}
	}
	return true
}

func (s *CacheSuite) checkStmtInCache(c *check.C, dbID, stmtID uint64) {
	stmtCache.mutex.RLock()
	defer stmtCache.mutex.RUnlock()
	_, ok := stmtCache.stmtDBCache[stmtID][dbID]
	c.Check(ok, check.Equals, true)
	_, ok = stmtCache.dbStmtCache[dbID][stmtID]
	c.Check(ok, check.Equals, true)
}

func (s *CacheSuite) checkNumDBStmts(c *check.C, dbID uint64, n int) {
	stmtCache.mutex.RLock()
	defer stmtCache.mutex.RUnlock()
	sc, ok := stmtCache.dbStmtCache[dbID]
	c.Check(ok, check.Equals, true)
	c.Check(sc, check.HasLen, n)

	numDBStmts := 0
	for _, dbc := range stmtCache.stmtDBCache {
		if _, ok := dbc[dbID]; ok {
			numDBStmts++
		}
	}
	c.Check(numDBStmts, check.Equals, n)
}

func (s *CacheSuite) checkDriverStmtsOpened(c *check.C, n int) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	c.Check(openedStmts[c.TestName()], check.HasLen, n)
}

func (s *CacheSuite) checkStmtQueriesRun(c *check.C, n int) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	c.Check(stmtQueriesRun[c.TestName()], check.Equals, n)
}

func (s *CacheSuite) checkDriverStmtsAllClosed(c *check.C) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	for stmt, query := range openedStmts[c.TestName()] {
		c.Check(closedStmts[c.TestName()][stmt], check.Equals, true, check.Commentf("statement not closed: %s", query))
	}
}
