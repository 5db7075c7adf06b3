// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"bytes"
	"strings"
)

// part is a section of emitted SQL: either a chunk of text or a placeholder
// for the parameter with the given index.
type part struct {
	chunk string
	// param is the index of the parameter, it is -1 for chunks.
	param int
}

// sqlBuilder is used to generate SQL piece by piece. Placeholders are kept
// as separate parts so that they can be renumbered when the SQL is spliced
// into another query.
type sqlBuilder struct {
	buf   bytes.Buffer
	parts []part
}

// write writes the SQL to the sqlBuilder.
func (b *sqlBuilder) write(sql string) {
	b.buf.WriteString(sql)
}

// writeParam writes a placeholder for the parameter with index i.
func (b *sqlBuilder) writeParam(i int) {
	b.flush()
	b.parts = append(b.parts, part{param: i})
}

// writeParts writes out previously emitted parts, shifting the index of
// every placeholder by offset.
func (b *sqlBuilder) writeParts(parts []part, offset int) {
	for _, p := range parts {
		if p.param < 0 {
			b.write(p.chunk)
		} else {
			b.writeParam(p.param + offset)
		}
	}
}

// writeCommaSeparatedList calls writer for each of the n elements of a list,
// separating them with commas.
func (b *sqlBuilder) writeCommaSeparatedList(n int, writer func(i int) error) error {
	for i := 0; i < n; i++ {
		if i != 0 {
			b.write(", ")
		}
		if err := writer(i); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqlBuilder) flush() {
	if b.buf.Len() > 0 {
		b.parts = append(b.parts, part{chunk: b.buf.String(), param: -1})
		b.buf.Reset()
	}
}

// getParts returns the parts written so far.
func (b *sqlBuilder) getParts() []part {
	b.flush()
	return b.parts
}

// render returns the SQL text of the parts with placeholders written in the
// dialect.
func render(parts []part, d *Dialect) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.param < 0 {
			sb.WriteString(p.chunk)
		} else {
			sb.WriteString(d.Placeholder(p.param))
		}
	}
	return sb.String()
}

// paramBinder assigns placeholder indices to parameter values. Indices are
// assigned in the order values are emitted, which is also the order they
// appear in the SQL.
type paramBinder struct {
	params []any
}

// bind appends v to the parameters and returns its index.
func (pb *paramBinder) bind(v any) int {
	pb.params = append(pb.params, v)
	return len(pb.params) - 1
}

// merge appends the parameters of a subquery and returns the offset to add to
// the subquery's placeholder indices.
func (pb *paramBinder) merge(inner []any) int {
	var offset int
	pb.params, offset = Merge(pb.params, inner)
	return offset
}

// Merge combines the parameters emitted so far by an outer query with those
// of an inner query spliced into it. The inner parameters keep their relative
// order and are placed after the outer ones; offset is the index of the first
// of them. Neither input is modified.
func Merge(outer, inner []any) (combined []any, offset int) {
	combined = make([]any, 0, len(outer)+len(inner))
	combined = append(combined, outer...)
	combined = append(combined, inner...)
	return combined, len(outer)
}
