// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr_test

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlexpr"
	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// Hook up gocheck into the "go test" runner.
func TestPackage(t *testing.T) { TestingT(t) }

type PackageSuite struct{}

var _ = Suite(&PackageSuite{})

type Person2 struct {
	Id   int `db:",pk"`
	Name string
}

type Order2 struct {
	Id          int
	Person2Id   int `db:",references=Person2"`
	OrderDate   time.Time
	OrderTypeId int
}

type AnyObjectClass struct {
	Id       uuid.UUID  `db:"_id"`
	Identity *uuid.UUID `db:"_identity"`
	Name     string     `db:"_name"`
	Custom   float64    `db:"-"`
}

var (
	col = sqlexpr.Col
	eq  = sqlexpr.Eq
)

func createExampleDB(c *C) *sqlexpr.DB {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	// Every connection to :memory: is a new database.
	sqldb.SetMaxOpenConns(1)
	_, err = sqldb.Exec(`
CREATE TABLE Person2 (Id integer, Name text);
CREATE TABLE Order2 (Id integer, Person2Id integer, OrderDate text, OrderTypeId integer);
CREATE TABLE AnyObjectClass (_id text, _identity text, _name text);
CREATE TABLE AnyObjectClassItem (Id integer, OwnerId text, Price real);
INSERT INTO Person2 VALUES (1, 'fred'), (2, 'mary'), (3, 'jim');
INSERT INTO Order2 VALUES (1, 1, '2024-01-01', 2), (2, 2, '2024-01-02', 1), (3, 3, '2024-01-03', 2);
INSERT INTO AnyObjectClass VALUES
	('7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001', NULL, 'one'),
	('7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0002', '7c1d5a38-5fd9-4a4c-9b55-46ce2d9effff', 'two');
INSERT INTO AnyObjectClassItem VALUES
	(1, '7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001', 1.5),
	(2, '7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001', 2.25),
	(3, '7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0002', 10);
`)
	c.Assert(err, IsNil)
	db := sqlexpr.NewDB(sqldb)
	c.Assert(db, NotNil)
	return db
}

func (s *PackageSuite) TestNullConstantInSubquery(c *C) {
	inner := func() *sqlexpr.Query[AnyObjectClass] {
		return sqlexpr.From[AnyObjectClass]().
			Where(sqlexpr.Ne(col("Identity"), nil)).
			Select(col("Identity"))
	}
	compiledInner, err := inner().Finalize()
	c.Assert(err, IsNil)
	c.Check(compiledInner.SQL(), Equals, `SELECT "_identity" FROM "AnyObjectClass" WHERE "_identity" IS NOT NULL`)
	c.Check(compiledInner.Params(), HasLen, 0)

	prebuilt, err := sqlexpr.From[AnyObjectClass]().Where(sqlexpr.In(col("Identity"), compiledInner)).Finalize()
	c.Assert(err, IsNil)
	inline, err := sqlexpr.From[AnyObjectClass]().Where(sqlexpr.In(col("Identity"), inner())).Finalize()
	c.Assert(err, IsNil)
	c.Check(inline.SQL(), Equals, prebuilt.SQL())
	c.Check(inline.Params(), HasLen, 0)
}

func (s *PackageSuite) TestVariableInSubExpression(c *C) {
	orderTypeId := 2
	inner := sqlexpr.From[Order2]().
		Where(eq(col("OrderTypeId"), &orderTypeId)).
		Select(col("Person2Id"))
	orderTypeId = 5

	q, err := sqlexpr.From[Person2]().Where(sqlexpr.In(col("Id"), inner.MustFinalize())).Finalize()
	c.Assert(err, IsNil)
	c.Check(q.SQL(), Equals, `SELECT "Id", "Name" FROM "Person2" `+
		`WHERE "Id" IN (SELECT "Person2Id" FROM "Order2" WHERE "OrderTypeId" = @0)`)
	c.Check(q.Params(), DeepEquals, []any{2})

	shape := q.Shape()
	c.Assert(shape, HasLen, 2)
	c.Check(shape[0].Member, Equals, "Id")
	c.Check(shape[0].Type, Equals, reflect.TypeOf(0))
}

func (s *PackageSuite) TestCombinators(c *C) {
	q, err := sqlexpr.From[Person2]().
		Where(sqlexpr.And(sqlexpr.Gt(col("Id"), 1), sqlexpr.Lt(col("Id"), 10), sqlexpr.Ne(col("Name"), "bob"))).
		Where(sqlexpr.Or(sqlexpr.Like(col("Name"), "j%"), sqlexpr.Not(sqlexpr.Ge(sqlexpr.Mod(col("Id"), 2), 1)))).
		Select(col("Name"), sqlexpr.Neg(sqlexpr.Add(col("Id"), sqlexpr.Mul(2, 3)))).
		OrderByDescending(col("Id")).
		Limit(5, 0).
		Finalize()
	c.Assert(err, IsNil)
	c.Check(q.SQL(), Equals, `SELECT "Name", -("Id" + @0 * @1) FROM "Person2" `+
		`WHERE "Id" > @2 AND "Id" < @3 AND "Name" <> @4 AND ("Name" LIKE @5 OR NOT "Id" % @6 >= @7) `+
		`ORDER BY "Id" DESC LIMIT 5`)
	c.Check(q.Params(), DeepEquals, []any{2, 3, 1, 10, "bob", "j%", 2, 1})

	c.Check(sqlexpr.And(), IsNil)
	id := col("Id")
	c.Check(sqlexpr.Or(id), Equals, id)
}

func (s *PackageSuite) TestScalarSubqueryOperand(c *C) {
	lazy := sqlexpr.From[Order2]().Where(eq(col("Id"), 3)).Select(col("Person2Id"))
	q, err := sqlexpr.From[Person2]().Where(eq(col("Id"), lazy)).Finalize()
	c.Assert(err, IsNil)
	c.Check(q.SQL(), Equals, `SELECT "Id", "Name" FROM "Person2" WHERE "Id" = (SELECT "Person2Id" FROM "Order2" WHERE "Id" = @0)`)
	c.Check(q.Params(), DeepEquals, []any{3})

	compiled, err := sqlexpr.From[Order2]().Select(col("Person2Id")).Limit(1, 0).Finalize()
	c.Assert(err, IsNil)
	q, err = sqlexpr.From[Person2]().Where(sqlexpr.Gt(col("Id"), compiled)).Finalize()
	c.Assert(err, IsNil)
	c.Check(q.SQL(), Equals, `SELECT "Id", "Name" FROM "Person2" WHERE "Id" > (SELECT "Person2Id" FROM "Order2" LIMIT 1)`)
	c.Check(q.Params(), HasLen, 0)

	// The whole row cannot be compared with a value.
	_, err = sqlexpr.From[Person2]().Where(eq(col("Id"), sqlexpr.From[Order2]())).Finalize()
	c.Check(err, ErrorMatches, ".*need exactly one selected column, got 4")
}

func (s *PackageSuite) TestStickyErrors(c *C) {
	q := sqlexpr.From[Person2]().Join(42).Where(eq(col("Id"), 1))
	c.Assert(q.Err(), ErrorMatches, "need struct type sample, got int")
	_, err := q.Finalize()
	c.Assert(err, ErrorMatches, "need struct type sample, got int")

	_, err = sqlexpr.From[int]().Finalize()
	c.Assert(err, ErrorMatches, "need struct type, got int")

	// The error of an unfinalized subquery surfaces in the enclosing query.
	inner := sqlexpr.From[Order2]().Select(col("Person2Id")).Limit(-1, 0)
	_, err = sqlexpr.From[Person2]().Where(sqlexpr.In(col("Id"), inner)).Finalize()
	c.Assert(err, ErrorMatches, "cannot set limit: negative value")

	c.Assert(func() { sqlexpr.From[Person2]().Where(nil).MustFinalize() }, PanicMatches, "cannot add predicate: nil node")
}

func (s *PackageSuite) TestErrorTypes(c *C) {
	_, err := sqlexpr.From[AnyObjectClass]().Where(eq(col("Custom"), 1.5)).Finalize()
	var unmapped *sqlexpr.UnmappedMemberError
	c.Assert(errors.As(err, &unmapped), Equals, true)
	c.Check(unmapped.Member, Equals, "Custom")

	_, err = sqlexpr.From[Person2]().Where(sqlexpr.Add(col("Name"), 1)).Finalize()
	var unsupported *sqlexpr.UnsupportedOperationError
	c.Assert(errors.As(err, &unsupported), Equals, true)
	c.Check(unsupported.Op, Equals, "+")

	inner := sqlexpr.From[Order2]().Where(eq(col("Person2Id"), sqlexpr.Ref("p", "Nope"))).Select(col("Person2Id"))
	_, err = sqlexpr.From[Person2]().As("p").Where(sqlexpr.In(col("Id"), inner)).Finalize()
	var correlation *sqlexpr.UnresolvedCorrelationError
	c.Assert(errors.As(err, &correlation), Equals, true)
	c.Check(errors.As(err, &unmapped), Equals, true)

	q := sqlexpr.From[Person2]()
	_, err = q.Finalize()
	c.Assert(err, IsNil)
	q.Where(eq(col("Id"), 1))
	var invalid *sqlexpr.InvalidStateError
	c.Assert(errors.As(q.Err(), &invalid), Equals, true)
	c.Check(q.Err(), ErrorMatches, "cannot add predicate: query is finalized")
}

func (s *PackageSuite) TestFinalizeIsIdempotent(c *C) {
	q := sqlexpr.From[Person2]().Where(eq(col("Name"), "fred"))
	first := q.MustFinalize()
	second := q.MustFinalize()
	c.Check(second, Equals, first)
	c.Check(second.CacheID(), Equals, first.CacheID())

	ext := sqlexpr.From[Person2]().Extendable()
	first = ext.MustFinalize()
	ext.Where(eq(col("Name"), "fred"))
	c.Assert(ext.Err(), IsNil)
	second = ext.MustFinalize()
	c.Check(first.SQL(), Equals, `SELECT "Id", "Name" FROM "Person2"`)
	c.Check(second.SQL(), Equals, `SELECT "Id", "Name" FROM "Person2" WHERE "Name" = @0`)
	c.Check(second.CacheID(), Not(Equals), first.CacheID())
}

type countingProvider struct {
	sqlexpr.Provider
	resolved []string
}

func (p *countingProvider) Resolve(t reflect.Type, member string) (*typeinfo.Member, error) {
	p.resolved = append(p.resolved, t.Name()+"."+member)
	return p.Provider.Resolve(t, member)
}

func (s *PackageSuite) TestWithProvider(c *C) {
	p := &countingProvider{Provider: typeinfo.NewResolver()}
	inner := sqlexpr.From[Order2](sqlexpr.WithProvider(p)).Select(col("Person2Id"))
	_, err := sqlexpr.From[Person2](sqlexpr.WithProvider(p)).
		Where(sqlexpr.In(col("Id"), inner)).
		Finalize()
	c.Assert(err, IsNil)
	c.Check(p.resolved, DeepEquals, []string{"Person2.Id", "Order2.Person2Id"})
}

func (s *PackageSuite) TestDialectByName(c *C) {
	d, ok := sqlexpr.DialectByName("postgres")
	c.Assert(ok, Equals, true)
	q := sqlexpr.From[Person2](sqlexpr.WithDialect(d)).Where(eq(col("Id"), 1)).Select(col("Name")).MustFinalize()
	c.Check(q.SQL(), Equals, `SELECT "Name" FROM "Person2" WHERE "Id" = $1`)
	c.Check(q.Dialect(), Equals, sqlexpr.Postgres)
	c.Check(q.String(), Equals, q.SQL())
}

func (s *PackageSuite) TestRunOnSQLite(c *C) {
	db := createExampleDB(c)
	ctx := context.Background()
	sqlite := sqlexpr.WithDialect(sqlexpr.SQLite)

	// Uncorrelated subquery.
	orders := sqlexpr.From[Order2]().Where(eq(col("OrderTypeId"), 2)).Select(col("Person2Id"))
	q := sqlexpr.From[Person2](sqlite).Where(sqlexpr.In(col("Id"), orders)).Select(col("Name")).OrderBy(col("Name")).MustFinalize()
	var names []string
	c.Assert(db.Column(ctx, q, &names), IsNil)
	c.Check(names, DeepEquals, []string{"fred", "jim"})
	c.Check(db.LastSQL(), Equals, `SELECT "Name" FROM "Person2" WHERE "Id" IN `+
		`(SELECT "Person2Id" FROM "Order2" WHERE "OrderTypeId" = ?1) ORDER BY "Name"`)

	// Correlated subquery.
	orders = sqlexpr.From[Order2]().
		Where(sqlexpr.And(eq(col("Person2Id"), sqlexpr.Ref("p", "Id")), eq(col("OrderTypeId"), 1))).
		Select(col("Person2Id"))
	q = sqlexpr.From[Person2](sqlite).As("p").Where(sqlexpr.In(col("Id"), orders)).Select(col("Name")).MustFinalize()
	names = nil
	c.Assert(db.Column(ctx, q, &names), IsNil)
	c.Check(names, DeepEquals, []string{"mary"})

	// Literal sequence.
	q = sqlexpr.From[Person2](sqlite).Where(sqlexpr.NotIn(col("Id"), []int{1, 3})).Select(col("Name")).MustFinalize()
	names = nil
	c.Assert(db.Column(ctx, q, &names), IsNil)
	c.Check(names, DeepEquals, []string{"mary"})

	// Null comparison.
	q = sqlexpr.From[AnyObjectClass](sqlite).Where(sqlexpr.Ne(col("Identity"), nil)).Select(col("Name")).MustFinalize()
	names = nil
	c.Assert(db.Column(ctx, q, &names), IsNil)
	c.Check(names, DeepEquals, []string{"two"})

	// Join.
	q = sqlexpr.From[Order2](sqlite).Join(Person2{}).Where(eq(col("Person2.Name"), "mary")).Select(col("OrderTypeId")).MustFinalize()
	var orderType int
	c.Assert(db.Scalar(ctx, q, &orderType), IsNil)
	c.Check(orderType, Equals, 1)

	// No rows.
	q = sqlexpr.From[Person2](sqlite).Where(eq(col("Id"), 42)).MustFinalize()
	var id int
	c.Check(db.Scalar(ctx, q, &id), Equals, sqlexpr.ErrNoRows)

	// Any executor.
	q = sqlexpr.From[Person2](sqlite).Where(eq(col("Id"), 3)).Select(col("Name")).MustFinalize()
	rows, err := sqlexpr.Run(ctx, db.PlainDB(), q)
	c.Assert(err, IsNil)
	defer rows.Close()
	c.Assert(rows.Next(), Equals, true)
	var name string
	c.Assert(rows.Scan(&name), IsNil)
	c.Check(name, Equals, "jim")
}

func (s *PackageSuite) TestColumnErrors(c *C) {
	db := createExampleDB(c)
	q := sqlexpr.From[Person2](sqlexpr.WithDialect(sqlexpr.SQLite)).Select(col("Name")).MustFinalize()
	var names []string
	c.Check(db.Column(context.Background(), q, names), ErrorMatches, "need pointer to slice, got slice")
	c.Check(db.Column(context.Background(), q, (*[]string)(nil)), ErrorMatches, "need pointer to slice, got nil")
	var name string
	c.Check(db.Column(context.Background(), q, &name), ErrorMatches, "need pointer to slice, got pointer to string")
	c.Check(sqlexpr.NewDB(nil), IsNil)
}
