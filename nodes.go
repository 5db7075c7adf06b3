// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"github.com/canonical/sqlexpr/internal/expr"
)

// Operands of the constructors below are either an [Expr] or a Go value. Go
// values are captured when the expression is built: pointers are followed
// and slices copied, so later changes to the variable are not seen. A nil
// value, a nil pointer or a driver.Valuer producing nil is SQL NULL. A
// [*Query] or [*CompiledQuery] operand is a scalar subquery and must select a
// single column.

// Col returns a member of the query's entity type, given by its field name,
// or "Type.Field" for a member of a joined type.
func Col(path string) Expr {
	return expr.NewMember(path)
}

// Ref returns a member of the query with the given alias. Referencing a
// member of an enclosing query makes a subquery correlated.
func Ref(alias, path string) Expr {
	return expr.NewRef(alias, path)
}

// Val captures a value.
func Val(v any) Expr {
	return expr.NewConstant(v)
}

func operand(v any) expr.Node {
	switch v := v.(type) {
	case Expr:
		if v != nil {
			return v
		}
	case subquerySource:
		return expr.NewSubqueryRef(v.subquery())
	}
	return expr.NewConstant(v)
}

func binary(op expr.BinaryOperator, l, r any) Expr {
	return expr.NewBinary(op, operand(l), operand(r))
}

// Eq compares for equality. Comparing with NULL is compiled to IS NULL.
func Eq(l, r any) Expr { return binary(expr.OpEq, l, r) }

// Ne compares for inequality. Comparing with NULL is compiled to IS NOT NULL.
func Ne(l, r any) Expr { return binary(expr.OpNe, l, r) }

func Lt(l, r any) Expr { return binary(expr.OpLt, l, r) }
func Le(l, r any) Expr { return binary(expr.OpLe, l, r) }
func Gt(l, r any) Expr { return binary(expr.OpGt, l, r) }
func Ge(l, r any) Expr { return binary(expr.OpGe, l, r) }

func Add(l, r any) Expr { return binary(expr.OpAdd, l, r) }
func Sub(l, r any) Expr { return binary(expr.OpSub, l, r) }
func Mul(l, r any) Expr { return binary(expr.OpMul, l, r) }
func Div(l, r any) Expr { return binary(expr.OpDiv, l, r) }
func Mod(l, r any) Expr { return binary(expr.OpMod, l, r) }

// Like matches a string against a pattern.
func Like(l, r any) Expr { return binary(expr.OpLike, l, r) }

// And conjoins the predicates. It returns nil if there are none.
func And(preds ...Expr) Expr {
	return fold(expr.OpAnd, preds)
}

// Or disjoins the predicates. It returns nil if there are none.
func Or(preds ...Expr) Expr {
	return fold(expr.OpOr, preds)
}

func fold(op expr.BinaryOperator, nodes []Expr) Expr {
	if len(nodes) == 0 {
		return nil
	}
	n := nodes[0]
	for _, next := range nodes[1:] {
		n = expr.NewBinary(op, n, next)
	}
	return n
}

// Not negates a predicate.
func Not(pred Expr) Expr {
	return expr.NewUnary(expr.OpNot, pred)
}

// Neg negates a number.
func Neg(v any) Expr {
	return expr.NewUnary(expr.OpNeg, operand(v))
}

// subquerySource is implemented by the queries of this package that can be
// used as the set of [In].
type subquerySource interface {
	subquery() expr.Subquery
}

// In tests whether left is in source. The source is a [*CompiledQuery], a
// [*Query] that has not been finalized, which is compiled along with the
// enclosing query, or a slice of values. A query must select a single
// column.
func In(left, source any) Expr {
	return expr.NewIn(operand(left), setSource(source))
}

// NotIn is the negation of [In].
func NotIn(left, source any) Expr {
	return expr.NewNotIn(operand(left), setSource(source))
}

func setSource(source any) any {
	if s, ok := source.(subquerySource); ok {
		return s.subquery()
	}
	return source
}
