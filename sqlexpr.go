// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"reflect"

	"github.com/canonical/sqlexpr/internal/expr"
	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// Expr is a node of a predicate or projection expression. Expressions are
// built with the constructors of this package, such as [Col], [Eq] and [In].
type Expr = expr.Node

// Dialect describes how placeholders and identifiers are written.
type Dialect = expr.Dialect

// Column describes a column selected by a [CompiledQuery].
type Column = expr.Column

// Provider provides the metadata of entity types. The default provider reads
// it from `db` struct tags.
type Provider = typeinfo.Provider

var (
	// AtParams writes placeholders @0, @1, ... It is the default dialect.
	AtParams = expr.AtParams
	// SQLite writes placeholders ?1, ?2, ...
	SQLite = expr.SQLite
	// Postgres writes placeholders $1, $2, ...
	Postgres = expr.Postgres
	// MySQL writes ? placeholders and quotes identifiers with backticks.
	MySQL = expr.MySQL
)

// DialectByName returns the predefined dialect with the given name: "at",
// "sqlite", "postgres" or "mysql".
func DialectByName(name string) (*Dialect, bool) {
	return expr.DialectByName(name)
}

type (
	UnmappedMemberError        = typeinfo.UnmappedMemberError
	UnsupportedOperationError  = expr.UnsupportedOperationError
	UnresolvedCorrelationError = expr.UnresolvedCorrelationError
	InvalidStateError          = expr.InvalidStateError
)

type options struct {
	dialect  *Dialect
	provider Provider
}

// Option configures a query.
type Option func(*options)

// WithDialect sets the dialect the query is compiled for.
func WithDialect(d *Dialect) Option {
	return func(o *options) {
		o.dialect = d
	}
}

// WithProvider sets the metadata provider used to resolve members.
func WithProvider(p Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// Query builds a query on the table of the entity type T. The first error
// encountered while building is kept and returned by [Query.Finalize] and
// [Query.Err]; the remaining calls have no effect.
//
// A Query must not be used concurrently.
type Query[T any] struct {
	q   *expr.Query
	err error
	// last is the result of the last Finalize.
	last *CompiledQuery
}

// From starts a query on the entity type T, which must be a named struct
// type or a pointer to one.
func From[T any](opts ...Option) *Query[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	q, err := expr.NewQuery(reflect.TypeOf((*T)(nil)).Elem(), o.provider, o.dialect)
	return &Query[T]{q: q, err: err}
}

func (q *Query[T]) apply(f func(*expr.Query) error) *Query[T] {
	if q.err == nil {
		q.err = f(q.q)
	}
	return q
}

// As sets the alias of the query. Subqueries reference members of the query
// with [Ref].
func (q *Query[T]) As(alias string) *Query[T] {
	return q.apply(func(eq *expr.Query) error { return eq.As(alias) })
}

// Where adds a predicate. Multiple predicates are conjoined.
func (q *Query[T]) Where(pred Expr) *Query[T] {
	return q.apply(func(eq *expr.Query) error { return eq.Where(pred) })
}

// Select sets the projection. By default every mapped member is selected.
func (q *Query[T]) Select(nodes ...Expr) *Query[T] {
	return q.apply(func(eq *expr.Query) error { return eq.Select(nodes...) })
}

// Join joins the table of the type of sample. The types must be related by a
// foreign key declared with the references tag option on either of them.
// Members of the joined type are referenced as "Type.Field".
func (q *Query[T]) Join(sample any) *Query[T] {
	return q.apply(func(eq *expr.Query) error {
		t, err := typeinfo.TypeOf(sample)
		if err != nil {
			return err
		}
		return eq.Join(t)
	})
}

// OrderBy adds an ascending sort key.
func (q *Query[T]) OrderBy(n Expr) *Query[T] {
	return q.apply(func(eq *expr.Query) error { return eq.OrderBy(n, false) })
}

// OrderByDescending adds a descending sort key.
func (q *Query[T]) OrderByDescending(n Expr) *Query[T] {
	return q.apply(func(eq *expr.Query) error { return eq.OrderBy(n, true) })
}

// Limit limits the result to rows rows after skipping offset rows.
func (q *Query[T]) Limit(rows, offset int) *Query[T] {
	return q.apply(func(eq *expr.Query) error { return eq.Limit(rows, offset) })
}

// Extendable allows the query to be changed after it is finalized. Changes
// are only observed by the next call to Finalize.
func (q *Query[T]) Extendable() *Query[T] {
	return q.apply(func(eq *expr.Query) error {
		eq.Extendable()
		return nil
	})
}

// Err returns the first error encountered while building the query.
func (q *Query[T]) Err() error {
	return q.err
}

// Finalize compiles the query. Finalizing an unchanged query again returns
// the same [CompiledQuery].
func (q *Query[T]) Finalize() (*CompiledQuery, error) {
	if q.err != nil {
		return nil, q.err
	}
	compiled, err := q.q.Finalize()
	if err != nil {
		return nil, err
	}
	if q.last == nil || q.last.c != compiled {
		q.last = stmtCache.newStatement(compiled)
	}
	return q.last, nil
}

// MustFinalize is the same as [Query.Finalize] except that it panics on
// error.
func (q *Query[T]) MustFinalize() *CompiledQuery {
	cq, err := q.Finalize()
	if err != nil {
		panic(err)
	}
	return cq
}

// subquery implements subquerySource. The query is compiled along with the
// query it is used in.
func (q *Query[T]) subquery() expr.Subquery {
	if q.err != nil {
		return expr.FailedSubquery(typeName[T](), q.err)
	}
	return q.q
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().Name()
}

// CompiledQuery is an immutable compiled query. It can be run any number of
// times, on any [DB], and used concurrently.
type CompiledQuery struct {
	// cacheID is used to look up the driver prepared statements of this
	// query.
	cacheID uint64
	c       *expr.Compiled
}

// SQL returns the SQL text of the query.
func (cq *CompiledQuery) SQL() string {
	return cq.c.SQL()
}

// Params returns the parameter values in placeholder order.
func (cq *CompiledQuery) Params() []any {
	return cq.c.Params()
}

// Shape returns the columns selected by the query.
func (cq *CompiledQuery) Shape() []Column {
	return cq.c.Shape()
}

// Dialect returns the dialect the query was compiled for.
func (cq *CompiledQuery) Dialect() *Dialect {
	return cq.c.Dialect()
}

func (cq *CompiledQuery) String() string {
	return cq.c.SQL()
}

// subquery implements subquerySource.
func (cq *CompiledQuery) subquery() expr.Subquery {
	return cq.c
}
