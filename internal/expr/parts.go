// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"strings"

	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// A Node represents a part of a predicate or projection expression. The set
// of Nodes is closed, the emitter handles each of them explicitly.
type Node interface {
	// String returns a string representation of the node for debugging and
	// testing purposes.
	String() string

	// node is a marker method.
	node()
}

// Constant is a value captured when the node was constructed.
type Constant struct {
	// Value is a copy of the captured value. It is nil if Null is set.
	Value any
	// Null is true if the captured value represents SQL NULL.
	Null bool
}

// NewConstant captures v. Pointers are followed and slices copied so that the
// constant does not change if the original variable does.
func NewConstant(v any) *Constant {
	val, null := typeinfo.Capture(v)
	return &Constant{Value: val, Null: null}
}

func (c *Constant) String() string {
	if c.Null {
		return "Constant[NULL]"
	}
	return fmt.Sprintf("Constant[%v]", c.Value)
}

// isSequence reports whether the constant holds a literal sequence of values.
func (c *Constant) isSequence() bool {
	return !c.Null && typeinfo.IsSequence(c.Value)
}

// Marker function for Node.
func (c *Constant) node() {}

// Member is a member access. The path is a field name of the query's entity
// type, or Type.Field for a field of an entity type joined through a foreign
// key.
type Member struct {
	// Scope is the alias of the query the member belongs to. It is empty for
	// members of the query being compiled.
	Scope string
	Path  string
}

// NewMember returns a member of the query's entity type.
func NewMember(path string) *Member {
	return &Member{Path: path}
}

// NewRef returns a member of the query with the given alias. This may be
// an enclosing query, in which case the reference is correlated.
func NewRef(scope, path string) *Member {
	return &Member{Scope: scope, Path: path}
}

func (m *Member) String() string {
	if m.Scope == "" {
		return "Member[" + m.Path + "]"
	}
	return "Member[" + m.Scope + ":" + m.Path + "]"
}

// relationship splits the path into the name of a joined entity type and a
// field name. The relationship is empty for fields of the query's own type.
func (m *Member) relationship() (string, string) {
	if i := strings.LastIndexByte(m.Path, '.'); i >= 0 {
		return m.Path[:i], m.Path[i+1:]
	}
	return "", m.Path
}

// Marker function for Node.
func (m *Member) node() {}

// BinaryOperator is an operator applied to two operands.
type BinaryOperator string

const (
	OpEq   BinaryOperator = "="
	OpNe   BinaryOperator = "<>"
	OpLt   BinaryOperator = "<"
	OpLe   BinaryOperator = "<="
	OpGt   BinaryOperator = ">"
	OpGe   BinaryOperator = ">="
	OpAnd  BinaryOperator = "AND"
	OpOr   BinaryOperator = "OR"
	OpAdd  BinaryOperator = "+"
	OpSub  BinaryOperator = "-"
	OpMul  BinaryOperator = "*"
	OpDiv  BinaryOperator = "/"
	OpMod  BinaryOperator = "%"
	OpLike BinaryOperator = "LIKE"
)

// BinaryOp applies an operator to two operands.
type BinaryOp struct {
	Op          BinaryOperator
	Left, Right Node
}

// NewBinary returns a binary operation.
func NewBinary(op BinaryOperator, left, right Node) *BinaryOp {
	return &BinaryOp{Op: op, Left: left, Right: right}
}

func (b *BinaryOp) String() string {
	return fmt.Sprintf("Binary[%s %s %s]", b.Left, b.Op, b.Right)
}

// Marker function for Node.
func (b *BinaryOp) node() {}

// UnaryOperator is an operator applied to one operand.
type UnaryOperator string

const (
	OpNot UnaryOperator = "NOT"
	OpNeg UnaryOperator = "-"
)

// UnaryOp applies an operator to a single operand.
type UnaryOp struct {
	Op      UnaryOperator
	Operand Node
}

// NewUnary returns a unary operation.
func NewUnary(op UnaryOperator, operand Node) *UnaryOp {
	return &UnaryOp{Op: op, Operand: operand}
}

func (u *UnaryOp) String() string {
	return fmt.Sprintf("Unary[%s %s]", u.Op, u.Operand)
}

// Marker function for Node.
func (u *UnaryOp) node() {}

// Names of the methods understood by the emitter.
const (
	MethodIn    = "In"
	MethodNotIn = "NotIn"
)

// MethodCall is a call of a named SQL construct. Set membership is the only
// one: In and NotIn take a scalar operand and a set, which is either a
// SubqueryRef or a Constant holding a sequence of values.
type MethodCall struct {
	Name string
	Args []Node
}

// NewIn returns a set membership test of left in source. The source can be
// a *Compiled query, an unfinalized *Query which is compiled along with the
// enclosing query, or a slice of values which is captured now.
func NewIn(left Node, source any) *MethodCall {
	return &MethodCall{Name: MethodIn, Args: []Node{left, setNode(source)}}
}

// NewNotIn returns the negation of NewIn.
func NewNotIn(left Node, source any) *MethodCall {
	return &MethodCall{Name: MethodNotIn, Args: []Node{left, setNode(source)}}
}

// setNode returns the node for the set operand of a membership test.
func setNode(source any) Node {
	switch s := source.(type) {
	case Subquery:
		return NewSubqueryRef(s)
	case Node:
		return s
	}
	if typeinfo.IsSequence(source) {
		elems := typeinfo.Elements(source)
		vals := make([]any, len(elems))
		for i, elem := range elems {
			vals[i], _ = typeinfo.Capture(elem)
		}
		return &Constant{Value: vals}
	}
	return NewConstant(source)
}

func (m *MethodCall) String() string {
	args := make([]string, len(m.Args))
	for i, arg := range m.Args {
		args[i] = arg.String()
	}
	return "MethodCall[" + m.Name + " " + strings.Join(args, " ") + "]"
}

// Marker function for Node.
func (m *MethodCall) node() {}

// SubqueryRef references a query used as an operand of another.
type SubqueryRef struct {
	Source Subquery
}

// NewSubqueryRef returns a reference to the subquery.
func NewSubqueryRef(source Subquery) *SubqueryRef {
	return &SubqueryRef{Source: source}
}

func (s *SubqueryRef) String() string {
	return "Subquery[" + s.Source.subqueryName() + "]"
}

// Marker function for Node.
func (s *SubqueryRef) node() {}
