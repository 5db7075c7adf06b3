// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"strconv"
	"strings"
)

// Dialect describes the only two things the compiler needs to know about the
// target database: how placeholders are written and how identifiers are
// quoted.
type Dialect struct {
	Name        string
	placeholder func(i int) string
	quote       func(ident string) string
}

// NewDialect returns a dialect. placeholder is called with the zero based
// index of a parameter.
func NewDialect(name string, placeholder func(i int) string, quote func(ident string) string) *Dialect {
	return &Dialect{Name: name, placeholder: placeholder, quote: quote}
}

// Placeholder returns the placeholder for the parameter with zero based index
// i.
func (d *Dialect) Placeholder(i int) string {
	return d.placeholder(i)
}

// Quote returns the quoted identifier.
func (d *Dialect) Quote(ident string) string {
	return d.quote(ident)
}

func (d *Dialect) String() string {
	return d.Name
}

func quoteANSI(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func quoteBacktick(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

var (
	// AtParams writes zero based placeholders @0, @1, ... and quotes
	// identifiers with double quotes. It is the default dialect.
	AtParams = NewDialect("at", func(i int) string {
		return "@" + strconv.Itoa(i)
	}, quoteANSI)

	// SQLite writes one based placeholders ?1, ?2, ...
	SQLite = NewDialect("sqlite", func(i int) string {
		return "?" + strconv.Itoa(i+1)
	}, quoteANSI)

	// Postgres writes one based placeholders $1, $2, ...
	Postgres = NewDialect("postgres", func(i int) string {
		return "$" + strconv.Itoa(i+1)
	}, quoteANSI)

	// MySQL writes positional ? placeholders and quotes identifiers with
	// backticks.
	MySQL = NewDialect("mysql", func(int) string {
		return "?"
	}, quoteBacktick)
)

// DialectByName returns one of the predefined dialects.
func DialectByName(name string) (*Dialect, bool) {
	for _, d := range []*Dialect{AtParams, SQLite, Postgres, MySQL} {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}
