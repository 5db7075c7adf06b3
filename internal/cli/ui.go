// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/canonical/sqlexpr"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	keywordColor = color.New(color.FgMagenta)
	paramColor   = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AS": true, "AND": true,
	"OR": true, "NOT": true, "IN": true, "IS": true, "NULL": true,
	"LIKE": true, "INNER": true, "JOIN": true, "ON": true, "ORDER": true,
	"BY": true, "DESC": true, "LIMIT": true, "OFFSET": true,
}

// highlight colors the SQL keywords of text. Quoted identifiers are never
// split, so only bare words are matched.
func highlight(text string) string {
	words := strings.Split(text, " ")
	for i, w := range words {
		bare := strings.TrimLeft(w, "(")
		if sqlKeywords[bare] {
			words[i] = w[:len(w)-len(bare)] + keywordColor.Sprint(bare)
		}
	}
	return strings.Join(words, " ")
}

// printCompiled writes a compiled scenario query.
func printCompiled(w io.Writer, name string, cq *sqlexpr.CompiledQuery) {
	d := cq.Dialect()
	fmt.Fprintf(w, "%s %s\n", headingColor.Sprintf("-- %s", name), dimColor.Sprintf("(%s)", d.Name))
	fmt.Fprintln(w, highlight(cq.SQL()))
	for i, p := range cq.Params() {
		fmt.Fprintf(w, "  %s = %s\n", paramColor.Sprint(paramLabel(d, i)), formatValue(p))
	}
	cols := make([]string, 0, len(cq.Shape()))
	for _, col := range cq.Shape() {
		if col.Type == nil {
			cols = append(cols, col.Name)
			continue
		}
		cols = append(cols, fmt.Sprintf("%s %s", col.Name, col.Type))
	}
	fmt.Fprintf(w, "  %s %s\n", dimColor.Sprint("columns:"), strings.Join(cols, ", "))
}

// paramLabel names parameter i. MySQL placeholders carry no index, so the
// position is shown instead.
func paramLabel(d *sqlexpr.Dialect, i int) string {
	label := d.Placeholder(i)
	if label == "?" {
		return fmt.Sprintf("?#%d", i+1)
	}
	return label
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", v)
	case []byte:
		return fmt.Sprintf("%q", string(v))
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

// printRows writes rows as a table and returns the number of rows.
func printRows(w io.Writer, rows *sql.Rows) (int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	data := pterm.TableData{cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return 0, fmt.Errorf("cannot scan row: %w", err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if v == nil {
				row[i] = "NULL"
				continue
			}
			row[i] = fmt.Sprint(v)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return 0, err
	}
	fmt.Fprintln(w, table)
	return len(data) - 1, nil
}
