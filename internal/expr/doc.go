/*
Package expr compiles predicate and projection expressions written against
mapped entity types into parameterized SQL and an ordered parameter list. It
covers all functionality relating to expressions, it does not cover
interaction with the databases.

The expr package is split up into three stages: the Construction stage, the
Emit stage and the Splice stage.

# Construction stage

Expressions are trees of Nodes: Constant, Member, BinaryOp, UnaryOp,
MethodCall and SubqueryRef. Nodes are immutable once constructed. A Constant
captures its value when it is built, so changes to the variable it was read
from afterwards are not seen by the compiler.

Queries are accumulated in a Query: predicates, a projection, joins and an
ordering. Finalize turns it into a Compiled query. Members are not resolved before
Finalize.

# Emit stage

The emitter walks the node tree depth first, resolving members to columns with
the typeinfo.Provider and writing SQL text. Every constant becomes a
placeholder, numbered in the order it is emitted, and its value is appended to
the parameter list. Null constants compared with = or <> are lowered to IS
NULL and IS NOT NULL and do not produce a parameter.

# Splice stage

A SubqueryRef is compiled independently against its own entity type, with the
scope of the enclosing query available for correlated references. Its SQL is
then written into the enclosing query and its parameters are merged into the
enclosing parameter list, with the placeholders renumbered after those
already emitted.
*/
package expr
