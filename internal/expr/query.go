// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/canonical/sqlexpr/internal/typeinfo"
)

type ordering struct {
	node Node
	desc bool
}

// Query is the mutable state of a query being built. It is not safe for
// concurrent use. Finalize compiles it into an immutable *Compiled.
type Query struct {
	entityType reflect.Type
	provider   typeinfo.Provider
	dialect    *Dialect

	alias      string
	predicates []Node
	projection []Node
	joins      []reflect.Type
	orderings  []ordering
	limit      int
	offset     int

	extendable bool
	finalized  bool
	// compiling is set while the query is being compiled, so that a query
	// reaching itself through its subqueries is reported.
	compiling bool
	// compiled is the result of the last Finalize. It is reset by every
	// change to the query.
	compiled *Compiled
}

// NewQuery returns a query selecting from the table of the entity type t. A
// nil provider uses the default resolver and a nil dialect uses AtParams.
func NewQuery(t reflect.Type, provider typeinfo.Provider, d *Dialect) (*Query, error) {
	if provider == nil {
		provider = typeinfo.DefaultResolver()
	}
	if d == nil {
		d = AtParams
	}
	if t == nil {
		return nil, fmt.Errorf("cannot query nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if _, err := provider.Entity(t); err != nil {
		return nil, err
	}
	return &Query{entityType: t, provider: provider, dialect: d, limit: -1}, nil
}

// EntityType returns the entity type of the query.
func (q *Query) EntityType() reflect.Type {
	return q.entityType
}

// Dialect returns the dialect the query is compiled for by Finalize.
func (q *Query) Dialect() *Dialect {
	return q.dialect
}

// mutate checks that the query can be changed and discards the result of the
// last Finalize.
func (q *Query) mutate(op string) error {
	if q.finalized && !q.extendable {
		return &InvalidStateError{Op: op, Reason: "query is finalized"}
	}
	q.compiled = nil
	return nil
}

// As sets the alias of the query. Columns of the query are qualified with the
// alias, and subqueries can reference its members with NewRef.
func (q *Query) As(alias string) error {
	if err := q.mutate("set alias"); err != nil {
		return err
	}
	if alias == "" {
		return fmt.Errorf("cannot set alias: empty alias")
	}
	q.alias = alias
	return nil
}

// Where adds a predicate. Predicates are conjoined.
func (q *Query) Where(pred Node) error {
	if err := q.mutate("add predicate"); err != nil {
		return err
	}
	if pred == nil {
		return fmt.Errorf("cannot add predicate: nil node")
	}
	q.predicates = append(q.predicates, pred)
	return nil
}

// Select sets the projection, replacing any previous one. With no nodes every
// mapped member of the entity is selected.
func (q *Query) Select(nodes ...Node) error {
	if err := q.mutate("set projection"); err != nil {
		return err
	}
	for _, n := range nodes {
		if n == nil {
			return fmt.Errorf("cannot set projection: nil node")
		}
	}
	q.projection = append([]Node(nil), nodes...)
	return nil
}

// Join adds an inner join of the entity type t. The join condition is
// derived from a foreign key of either type referencing the other.
func (q *Query) Join(t reflect.Type) error {
	if err := q.mutate("add join"); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("cannot add join: nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if _, err := q.provider.Entity(t); err != nil {
		return err
	}
	q.joins = append(q.joins, t)
	return nil
}

// OrderBy adds a sort key.
func (q *Query) OrderBy(n Node, desc bool) error {
	if err := q.mutate("add ordering"); err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("cannot add ordering: nil node")
	}
	q.orderings = append(q.orderings, ordering{node: n, desc: desc})
	return nil
}

// Limit limits the number of rows returned, skipping the first offset rows.
func (q *Query) Limit(rows, offset int) error {
	if err := q.mutate("set limit"); err != nil {
		return err
	}
	if rows < 0 || offset < 0 {
		return fmt.Errorf("cannot set limit: negative value")
	}
	q.limit, q.offset = rows, offset
	return nil
}

// Extendable allows the query to be changed after it is finalized. The
// change is only observed by the next call to Finalize.
func (q *Query) Extendable() {
	q.extendable = true
}

// Finalize compiles the query. Finalizing again without changing the query
// returns the same *Compiled.
func (q *Query) Finalize() (*Compiled, error) {
	if q.compiled != nil {
		return q.compiled, nil
	}
	compiled, err := q.compile(nil, q.dialect)
	if err != nil {
		return nil, err
	}
	q.finalized = true
	q.compiled = compiled
	return compiled, nil
}

// compile emits the query in the given parent scope. parent is nil for the
// outermost query.
func (q *Query) compile(parent *scope, d *Dialect) (*Compiled, error) {
	if q.compiling {
		return nil, &InvalidStateError{Op: "compile subquery", Reason: "query references itself"}
	}
	q.compiling = true
	defer func() { q.compiling = false }()

	entity, err := q.provider.Entity(q.entityType)
	if err != nil {
		return nil, err
	}
	s := &scope{
		alias:    q.alias,
		entity:   entity,
		provider: q.provider,
		qualify:  q.alias != "" || len(q.joins) > 0,
		parent:   parent,
	}
	joined, err := q.joinedEntities(s)
	if err != nil {
		return nil, err
	}

	e := newEmitter(d, s)
	e.sql.write("SELECT ")
	shape, err := e.emitProjection(q.projection)
	if err != nil {
		return nil, err
	}
	e.sql.write(" FROM " + d.Quote(entity.Table))
	if q.alias != "" {
		e.sql.write(" AS " + d.Quote(q.alias))
	}
	for _, target := range joined {
		if err := e.emitJoin(target); err != nil {
			return nil, err
		}
	}

	if len(q.predicates) > 0 {
		e.sql.write(" WHERE ")
		for i, pred := range q.predicates {
			if i > 0 {
				e.sql.write(" AND ")
			}
			c, err := e.emitOperand(pred, len(q.predicates) > 1 && precedence(pred) < precAnd)
			if err != nil {
				return nil, err
			}
			if c != typeinfo.CategoryBool {
				return nil, unsupported("Where", "predicate %s is %s, need bool", pred, c)
			}
		}
	}

	if len(q.orderings) > 0 {
		e.sql.write(" ORDER BY ")
		err := e.sql.writeCommaSeparatedList(len(q.orderings), func(i int) error {
			o := q.orderings[i]
			if _, err := e.emit(o.node); err != nil {
				return err
			}
			if o.desc {
				e.sql.write(" DESC")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if q.limit >= 0 {
		e.sql.write(" LIMIT " + strconv.Itoa(q.limit))
		if q.offset > 0 {
			e.sql.write(" OFFSET " + strconv.Itoa(q.offset))
		}
	}

	return newCompiled(entity, d, e.sql.getParts(), e.binder.params, shape), nil
}

// joinedEntities resolves the joined types and records them in the scope.
func (q *Query) joinedEntities(s *scope) ([]*typeinfo.Entity, error) {
	if len(q.joins) == 0 {
		return nil, nil
	}
	s.joins = make(map[string]*typeinfo.Entity, len(q.joins))
	joined := make([]*typeinfo.Entity, 0, len(q.joins))
	for _, t := range q.joins {
		target, err := q.provider.Entity(t)
		if err != nil {
			return nil, err
		}
		if target.Type == s.entity.Type {
			return nil, unsupported("Join", "cannot join type %s with itself", target.Name())
		}
		if _, ok := s.joins[target.Name()]; ok {
			return nil, unsupported("Join", "type %s is joined more than once", target.Name())
		}
		s.joins[target.Name()] = target
		joined = append(joined, target)
	}
	return joined, nil
}

// emitJoin writes the join clause for target. The condition equates a
// foreign key of the query's entity with the primary key of target or the
// other way round.
func (e *emitter) emitJoin(target *typeinfo.Entity) error {
	base := e.scope.entity
	e.sql.write(" INNER JOIN " + e.dialect.Quote(target.Table) + " ON ")

	fk, err := foreignKey(e.scope.provider, base, target)
	if err != nil {
		return err
	}
	if fk != nil {
		e.writeColumn(e.scope.name(), fk.Member.Column)
		e.sql.write(" = ")
		e.writeColumn(target.Table, target.PrimaryKey.Column)
		return nil
	}
	fk, err = foreignKey(e.scope.provider, target, base)
	if err != nil {
		return err
	}
	if fk != nil {
		e.writeColumn(target.Table, fk.Member.Column)
		e.sql.write(" = ")
		e.writeColumn(e.scope.name(), base.PrimaryKey.Column)
		return nil
	}
	return unsupported("Join", "no foreign key relates %s and %s", base.Name(), target.Name())
}

// foreignKey returns the foreign key of from referencing to, or nil if there
// is none or to has no primary key.
func foreignKey(p typeinfo.Provider, from, to *typeinfo.Entity) (*typeinfo.ForeignKey, error) {
	if to.PrimaryKey == nil {
		return nil, nil
	}
	fks, err := p.ForeignKeysOf(from.Type)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		if fk.Target == to.Name() {
			return &fk, nil
		}
	}
	return nil, nil
}
