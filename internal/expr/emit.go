// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"

	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// scope is the context members are resolved in. The scope of a subquery
// points to the scope of the query it is spliced into.
type scope struct {
	// alias is the alias of the query. It is empty unless set explicitly.
	alias    string
	entity   *typeinfo.Entity
	provider typeinfo.Provider
	// joins relates the names of joined entity types to their metadata.
	joins map[string]*typeinfo.Entity
	// qualify is set if columns of the entity must be qualified with the
	// table name or alias.
	qualify bool
	parent  *scope
}

// name returns the name the query's table is referred to by.
func (s *scope) name() string {
	if s.alias != "" {
		return s.alias
	}
	return s.entity.Table
}

func (s *scope) qualifier() string {
	if s.qualify {
		return s.name()
	}
	return ""
}

// resolve returns the column of a member path along with the table name or
// alias to qualify it with, which is empty if no qualification is needed.
func (s *scope) resolve(m *Member) (string, *typeinfo.Member, error) {
	rel, field := m.relationship()
	if rel == "" {
		member, err := s.provider.Resolve(s.entity.Type, field)
		if err != nil {
			return "", nil, err
		}
		return s.qualifier(), member, nil
	}
	joined, ok := s.joins[rel]
	if !ok {
		return "", nil, &typeinfo.UnmappedMemberError{
			Type:   s.entity.Name(),
			Member: m.Path,
			Reason: fmt.Sprintf("type %s is not joined", rel),
		}
	}
	member, err := s.provider.Resolve(joined.Type, field)
	if err != nil {
		return "", nil, err
	}
	return joined.Table, member, nil
}

// Column describes a column selected by a compiled query.
type Column struct {
	// Name is the physical column name for selected members, and a
	// description of the expression otherwise.
	Name string
	// Member is the name of the selected member. It is empty for
	// expressions.
	Member string
	// Type is the Go type of the selected member. It is nil for
	// expressions.
	Type reflect.Type

	category typeinfo.Category
}

// Precedences of SQL operators, lowest first.
const (
	precOr = iota + 1
	precAnd
	precNot
	precComparison
	precAdditive
	precMultiplicative
	precNeg
	precAtom
)

func precedence(n Node) int {
	switch n := n.(type) {
	case *BinaryOp:
		return binaryPrecedence(n.Op)
	case *UnaryOp:
		if n.Op == OpNot {
			return precNot
		}
		return precNeg
	case *MethodCall:
		return precComparison
	}
	return precAtom
}

func binaryPrecedence(op BinaryOperator) int {
	switch op {
	case OpOr:
		return precOr
	case OpAnd:
		return precAnd
	case OpAdd, OpSub:
		return precAdditive
	case OpMul, OpDiv, OpMod:
		return precMultiplicative
	}
	return precComparison
}

func isComparison(op BinaryOperator) bool {
	return binaryPrecedence(op) == precComparison
}

// parenthesize reports whether the operand of a binary operation must be
// parenthesized.
func parenthesize(operand Node, op BinaryOperator, right bool) bool {
	prec, parentPrec := precedence(operand), binaryPrecedence(op)
	switch {
	case prec < parentPrec:
		return true
	case prec > parentPrec:
		return false
	case isComparison(op):
		return true
	case !right:
		return false
	}
	// Only a chain of the same associative operator can drop the parentheses
	// on the right.
	b, ok := operand.(*BinaryOp)
	if !ok || b.Op != op {
		return true
	}
	switch op {
	case OpAnd, OpOr, OpAdd, OpMul:
		return false
	}
	return true
}

func isNull(n Node) bool {
	c, ok := n.(*Constant)
	return ok && c.Null
}

// setValues returns the non-NULL elements of a literal set and whether any
// element was NULL.
func setValues(set any) ([]any, bool) {
	elems := typeinfo.Elements(set)
	vals := make([]any, 0, len(elems))
	hasNull := false
	for _, elem := range elems {
		v, null := typeinfo.Capture(elem)
		if null {
			hasNull = true
			continue
		}
		vals = append(vals, v)
	}
	return vals, hasNull
}

func isSequence(n Node) bool {
	c, ok := n.(*Constant)
	return ok && c.isSequence()
}

// compatible reports whether values of the two categories can be compared.
func compatible(l, r typeinfo.Category) bool {
	return l == r || l == typeinfo.CategoryOther || r == typeinfo.CategoryOther
}

// emitter walks node trees, writing the SQL and binding the parameters.
type emitter struct {
	dialect *Dialect
	scope   *scope
	sql     sqlBuilder
	binder  paramBinder
}

func newEmitter(d *Dialect, s *scope) *emitter {
	return &emitter{dialect: d, scope: s}
}

// emit writes the SQL for n and returns the category of the value it
// produces.
func (e *emitter) emit(n Node) (typeinfo.Category, error) {
	switch n := n.(type) {
	case *Constant:
		return e.emitConstant(n)
	case *Member:
		return e.emitMember(n)
	case *BinaryOp:
		return e.emitBinary(n)
	case *UnaryOp:
		return e.emitUnary(n)
	case *MethodCall:
		return e.emitMethodCall(n)
	case *SubqueryRef:
		col, err := e.splice(n)
		return col.category, err
	case nil:
		return 0, fmt.Errorf("internal error: nil node")
	default:
		return 0, fmt.Errorf("internal error: unknown node type %T", n)
	}
}

// emitOperand emits n, in parentheses if parens is set.
func (e *emitter) emitOperand(n Node, parens bool) (typeinfo.Category, error) {
	if !parens {
		return e.emit(n)
	}
	e.sql.write("(")
	c, err := e.emit(n)
	if err != nil {
		return 0, err
	}
	e.sql.write(")")
	return c, nil
}

func (e *emitter) emitConstant(c *Constant) (typeinfo.Category, error) {
	if c.Null {
		e.sql.write("NULL")
		return typeinfo.CategoryOther, nil
	}
	if c.isSequence() {
		return 0, unsupported(c, "a sequence of values can only be used with %s", MethodIn)
	}
	e.sql.writeParam(e.binder.bind(c.Value))
	return typeinfo.CategoryOf(reflect.TypeOf(c.Value)), nil
}

// resolve resolves a member in the current scope or, if the member names a
// scope, in the enclosing scope with that alias.
func (e *emitter) resolve(m *Member) (string, *typeinfo.Member, error) {
	if m.Scope == "" {
		return e.scope.resolve(m)
	}
	for s := e.scope; s != nil; s = s.parent {
		if s.alias != m.Scope {
			continue
		}
		qualifier, member, err := s.resolve(m)
		if err != nil {
			return "", nil, &UnresolvedCorrelationError{Scope: m.Scope, Member: m.Path, Err: err}
		}
		return qualifier, member, nil
	}
	return "", nil, &UnresolvedCorrelationError{Scope: m.Scope, Member: m.Path}
}

func (e *emitter) emitMember(m *Member) (typeinfo.Category, error) {
	qualifier, member, err := e.resolve(m)
	if err != nil {
		return 0, err
	}
	e.writeColumn(qualifier, member.Column)
	return member.Category(), nil
}

func (e *emitter) writeColumn(qualifier, column string) {
	if qualifier != "" {
		e.sql.write(e.dialect.Quote(qualifier) + ".")
	}
	e.sql.write(e.dialect.Quote(column))
}

func (e *emitter) emitBinary(b *BinaryOp) (typeinfo.Category, error) {
	op := b.Op
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpAnd, OpOr, OpAdd, OpSub, OpMul, OpDiv, OpMod, OpLike:
	default:
		return 0, unsupported(op, "unknown operator")
	}

	leftNull, rightNull := isNull(b.Left), isNull(b.Right)
	if leftNull || rightNull {
		if op != OpEq && op != OpNe {
			return 0, unsupported(op, "cannot apply to NULL")
		}
		if leftNull && rightNull {
			return 0, unsupported(op, "both operands are NULL")
		}
		return e.emitIsNull(b)
	}

	lc, err := e.emitOperand(b.Left, parenthesize(b.Left, op, false))
	if err != nil {
		return 0, err
	}
	e.sql.write(" " + string(op) + " ")
	rc, err := e.emitOperand(b.Right, parenthesize(b.Right, op, true))
	if err != nil {
		return 0, err
	}
	return checkBinary(op, lc, rc)
}

// emitIsNull lowers a comparison with a NULL constant to IS NULL or IS NOT
// NULL. No parameter is bound for the NULL.
func (e *emitter) emitIsNull(b *BinaryOp) (typeinfo.Category, error) {
	operand := b.Left
	if isNull(b.Left) {
		operand = b.Right
	}
	if isSequence(operand) {
		return 0, unsupported(b.Op, "cannot compare a sequence of values with NULL")
	}
	if _, err := e.emitOperand(operand, precedence(operand) <= precComparison); err != nil {
		return 0, err
	}
	if b.Op == OpEq {
		e.sql.write(" IS NULL")
	} else {
		e.sql.write(" IS NOT NULL")
	}
	return typeinfo.CategoryBool, nil
}

// checkBinary checks that the operand categories are valid for the operator
// and returns the category of the result.
func checkBinary(op BinaryOperator, l, r typeinfo.Category) (typeinfo.Category, error) {
	switch op {
	case OpAnd, OpOr:
		if l != typeinfo.CategoryBool || r != typeinfo.CategoryBool {
			return 0, unsupported(op, "need boolean operands, got %s and %s", l, r)
		}
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		if l != typeinfo.CategoryNumeric || r != typeinfo.CategoryNumeric {
			return 0, unsupported(op, "need numeric operands, got %s and %s", l, r)
		}
		return typeinfo.CategoryNumeric, nil
	case OpLike:
		if l != typeinfo.CategoryString || r != typeinfo.CategoryString {
			return 0, unsupported(op, "need string operands, got %s and %s", l, r)
		}
	case OpLt, OpLe, OpGt, OpGe:
		if l == typeinfo.CategoryBool || r == typeinfo.CategoryBool {
			return 0, unsupported(op, "cannot order boolean values")
		}
		fallthrough
	default:
		if !compatible(l, r) {
			return 0, unsupported(op, "cannot compare %s with %s", l, r)
		}
	}
	return typeinfo.CategoryBool, nil
}

func (e *emitter) emitUnary(u *UnaryOp) (typeinfo.Category, error) {
	if isNull(u.Operand) {
		return 0, unsupported(u.Op, "cannot apply to NULL")
	}
	switch u.Op {
	case OpNot:
		e.sql.write("NOT ")
		c, err := e.emitOperand(u.Operand, precedence(u.Operand) < precNot)
		if err != nil {
			return 0, err
		}
		if c != typeinfo.CategoryBool {
			return 0, unsupported(u.Op, "need boolean operand, got %s", c)
		}
		return typeinfo.CategoryBool, nil
	case OpNeg:
		e.sql.write("-")
		// A nested minus must be parenthesized to not start a comment.
		c, err := e.emitOperand(u.Operand, precedence(u.Operand) <= precNeg)
		if err != nil {
			return 0, err
		}
		if c != typeinfo.CategoryNumeric {
			return 0, unsupported(u.Op, "need numeric operand, got %s", c)
		}
		return typeinfo.CategoryNumeric, nil
	}
	return 0, unsupported(u.Op, "unknown operator")
}

func (e *emitter) emitMethodCall(m *MethodCall) (typeinfo.Category, error) {
	var keyword, emptySet, nullJoin, isNullKeyword string
	switch m.Name {
	case MethodIn:
		keyword, emptySet = " IN ", "1 = 0"
		nullJoin, isNullKeyword = " OR ", " IS NULL"
	case MethodNotIn:
		keyword, emptySet = " NOT IN ", "1 = 1"
		nullJoin, isNullKeyword = " AND ", " IS NOT NULL"
	default:
		return 0, unsupported(m.Name, "unknown method")
	}
	if len(m.Args) != 2 {
		return 0, unsupported(m.Name, "need 2 operands, got %d", len(m.Args))
	}
	left, set := m.Args[0], m.Args[1]
	switch left.(type) {
	case *SubqueryRef:
		return 0, unsupported(m.Name, "left operand must be a scalar, got %s", left)
	}
	if isNull(left) || isSequence(left) {
		return 0, unsupported(m.Name, "left operand must be a scalar, got %s", left)
	}
	parens := precedence(left) <= precComparison

	switch set := set.(type) {
	case *SubqueryRef:
		lc, err := e.emitOperand(left, parens)
		if err != nil {
			return 0, err
		}
		e.sql.write(keyword)
		col, err := e.splice(set)
		if err != nil {
			return 0, err
		}
		if !compatible(lc, col.category) {
			return 0, unsupported(m.Name, "cannot compare %s with %s column %q", lc, col.category, col.Name)
		}
	case *Constant:
		if !set.isSequence() {
			return 0, unsupported(m.Name, "need a subquery or a sequence of values, got %s", set)
		}
		vals, hasNull := setValues(set.Value)
		if len(vals) == 0 && !hasNull {
			// The left operand is still checked although it is not
			// written; IN () is not valid SQL.
			scratch := newEmitter(e.dialect, e.scope)
			if _, err := scratch.emit(left); err != nil {
				return 0, err
			}
			e.sql.write(emptySet)
			return typeinfo.CategoryBool, nil
		}
		if len(vals) == 0 {
			if _, err := e.emitOperand(left, parens); err != nil {
				return 0, err
			}
			e.sql.write(isNullKeyword)
			return typeinfo.CategoryBool, nil
		}
		if hasNull {
			e.sql.write("(")
		}
		lc, err := e.emitOperand(left, parens)
		if err != nil {
			return 0, err
		}
		for _, v := range vals {
			if vc := typeinfo.CategoryOf(reflect.TypeOf(v)); !compatible(lc, vc) {
				return 0, unsupported(m.Name, "cannot compare %s with %s value %v", lc, vc, v)
			}
		}
		e.sql.write(keyword + "(")
		err = e.sql.writeCommaSeparatedList(len(vals), func(i int) error {
			e.sql.writeParam(e.binder.bind(vals[i]))
			return nil
		})
		if err != nil {
			return 0, err
		}
		e.sql.write(")")
		if hasNull {
			// A NULL element matches a NULL operand, as a comparison with
			// NULL does.
			e.sql.write(nullJoin)
			if _, err := e.emitOperand(left, parens); err != nil {
				return 0, err
			}
			e.sql.write(isNullKeyword + ")")
		}
	default:
		return 0, unsupported(m.Name, "need a subquery or a sequence of values, got %s", set)
	}
	return typeinfo.CategoryBool, nil
}

// emitProjection writes the selected columns. With no projection every
// mapped member of the entity is selected.
func (e *emitter) emitProjection(nodes []Node) ([]Column, error) {
	var shape []Column
	if len(nodes) == 0 {
		members := e.scope.entity.Members
		if len(members) == 0 {
			return nil, unsupported("Select", "type %s has no mapped members", e.scope.entity.Name())
		}
		err := e.sql.writeCommaSeparatedList(len(members), func(i int) error {
			e.writeColumn(e.scope.qualifier(), members[i].Column)
			shape = append(shape, memberColumn(members[i]))
			return nil
		})
		if err != nil {
			return nil, err
		}
		return shape, nil
	}
	err := e.sql.writeCommaSeparatedList(len(nodes), func(i int) error {
		if m, ok := nodes[i].(*Member); ok {
			qualifier, member, err := e.resolve(m)
			if err != nil {
				return err
			}
			e.writeColumn(qualifier, member.Column)
			shape = append(shape, memberColumn(member))
			return nil
		}
		c, err := e.emit(nodes[i])
		if err != nil {
			return err
		}
		shape = append(shape, Column{Name: nodes[i].String(), category: c})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shape, nil
}

func memberColumn(m *typeinfo.Member) Column {
	return Column{Name: m.Column, Member: m.Name, Type: m.Type, category: m.Category()}
}
