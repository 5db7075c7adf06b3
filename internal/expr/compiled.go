// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"reflect"

	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// Compiled is the immutable result of compiling a query: SQL text with
// placeholders, the parameter values in placeholder order and the shape of
// the result rows.
type Compiled struct {
	entity  *typeinfo.Entity
	dialect *Dialect
	parts   []part
	params  []any
	shape   []Column
	sql     string
}

func newCompiled(entity *typeinfo.Entity, d *Dialect, parts []part, params []any, shape []Column) *Compiled {
	return &Compiled{
		entity:  entity,
		dialect: d,
		parts:   parts,
		params:  params,
		shape:   shape,
		sql:     render(parts, d),
	}
}

// SQL returns the SQL text of the query.
func (c *Compiled) SQL() string {
	return c.sql
}

// Params returns the parameter values. The value at index i is bound to the
// placeholder for parameter i.
func (c *Compiled) Params() []any {
	params := make([]any, len(c.params))
	copy(params, c.params)
	return params
}

// Shape returns the columns selected by the query.
func (c *Compiled) Shape() []Column {
	shape := make([]Column, len(c.shape))
	copy(shape, c.shape)
	return shape
}

// Dialect returns the dialect the query was compiled for.
func (c *Compiled) Dialect() *Dialect {
	return c.dialect
}

// EntityType returns the type of the query's entity.
func (c *Compiled) EntityType() reflect.Type {
	return c.entity.Type
}

func (c *Compiled) String() string {
	return c.sql
}
