/*
Package sqlexpr compiles typed query expressions into parameterized SQL.

Queries are built against entity types, which are Go structs mapped to
tables with `db` struct tags:

	type Person struct {
		ID       int        `db:"id,pk"`
		Name     string     `db:"name"`
		Identity *uuid.UUID `db:"_identity"`
		Internal string     `db:"-"`
	}

	type Order struct {
		ID       int `db:"id"`
		PersonID int `db:"person_id,references=Person"`
		Type     int `db:"type"`
	}

The table of an entity type is named after the type unless it has a
TableName method. A field without a tag is mapped to a column with the same
name as the field, fields tagged "-" and unexported fields are not mapped.

# Expressions

Predicates and projections are trees built with the constructors of this
package. Members are referenced by field name:

	q := sqlexpr.From[Person]().
		Where(sqlexpr.Ne(sqlexpr.Col("Identity"), nil)).
		Select(sqlexpr.Col("Name"))

Go values used in an expression are captured when the expression is built.
Comparing a member with nil is compiled to IS NULL or IS NOT NULL.

# Subqueries

A query selecting a single column can be used as the set of [In], either
finalized or not. An unfinalized query is compiled along with the enclosing
query and can reference its members by alias with [Ref]:

	orders := sqlexpr.From[Order]().
		Where(sqlexpr.Eq(sqlexpr.Col("PersonID"), sqlexpr.Ref("p", "ID"))).
		Select(sqlexpr.Col("PersonID"))
	people, err := sqlexpr.From[Person]().As("p").
		Where(sqlexpr.In(sqlexpr.Col("ID"), orders)).
		Finalize()

The parameters of the subquery are merged into those of the enclosing query
and its placeholders renumbered.

# Running queries

A [CompiledQuery] holds the SQL text and the parameters. It can be handed to
any [Executor] with [Run], or to a [DB] which caches the prepared statement of
every compiled query it runs.
*/
package sqlexpr
