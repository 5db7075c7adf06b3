// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

// Subquery is a query that can be used as an operand of another query. It
// is either a *Compiled query or an unfinalized *Query.
type Subquery interface {
	// compileSubquery compiles the subquery in the scope of the query it is
	// spliced into.
	compileSubquery(parent *scope, d *Dialect) (*Compiled, error)

	// subqueryName returns the name of the subquery's entity type.
	subqueryName() string
}

var _ Subquery = (*Compiled)(nil)
var _ Subquery = (*Query)(nil)

// compileSubquery returns the compiled query itself. A compiled query never
// references an enclosing scope, correlated references fail when it is
// compiled on its own.
func (c *Compiled) compileSubquery(_ *scope, d *Dialect) (*Compiled, error) {
	if c.dialect != d {
		return nil, unsupported(MethodIn, "subquery was compiled for dialect %s, need %s", c.dialect, d)
	}
	return c, nil
}

func (c *Compiled) subqueryName() string {
	return c.entity.Name()
}

// compileSubquery compiles the query within the parent scope so that its
// predicates can reference the enclosing queries. The query itself is not
// finalized.
func (q *Query) compileSubquery(parent *scope, d *Dialect) (*Compiled, error) {
	return q.compile(parent, d)
}

func (q *Query) subqueryName() string {
	return q.entityType.Name()
}

// splice compiles the subquery independently of the current query and
// writes its SQL, in parentheses, at the current position. The parameters of
// the subquery are merged into the current parameters and its placeholders
// renumbered to match. The subquery must select exactly one column, which is
// returned.
func (e *emitter) splice(ref *SubqueryRef) (Column, error) {
	if ref.Source == nil {
		return Column{}, unsupported("subquery", "no query given")
	}
	inner, err := ref.Source.compileSubquery(e.scope, e.dialect)
	if err != nil {
		return Column{}, err
	}
	if len(inner.shape) != 1 {
		return Column{}, unsupported(ref, "need exactly one selected column, got %d", len(inner.shape))
	}

	offset := e.binder.merge(inner.params)
	e.sql.write("(")
	e.sql.writeParts(inner.parts, offset)
	e.sql.write(")")
	return inner.shape[0], nil
}

// failedSubquery stands in for a subquery that could not be built.
type failedSubquery struct {
	name string
	err  error
}

// FailedSubquery returns a Subquery that fails to compile with err. It lets
// errors of a subquery builder surface when the enclosing query is compiled.
func FailedSubquery(name string, err error) Subquery {
	return &failedSubquery{name: name, err: err}
}

func (f *failedSubquery) compileSubquery(*scope, *Dialect) (*Compiled, error) {
	return nil, f.err
}

func (f *failedSubquery) subqueryName() string {
	return f.name
}
