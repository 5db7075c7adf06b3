// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// driver opens databases for the run command.
type driver struct {
	// dialect is the name of the dialect the database understands.
	dialect string
	// open returns the database and a function closing it along with
	// whatever open started for it.
	open func(ctx context.Context, dsn string) (*sql.DB, func() error, error)
}

var drivers = map[string]driver{
	"sqlite3":  {dialect: "sqlite", open: openSQLite},
	"postgres": {dialect: "postgres", open: sqlOpener("postgres")},
	"mysql":    {dialect: "mysql", open: sqlOpener("mysql")},
}

func sqlOpener(name string) func(context.Context, string) (*sql.DB, func() error, error) {
	return func(ctx context.Context, dsn string) (*sql.DB, func() error, error) {
		db, err := sql.Open(name, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, db.Close, nil
	}
}

// openSQLite opens a SQLite database on a single connection, so that every
// statement sees the same in-memory database.
func openSQLite(ctx context.Context, dsn string) (*sql.DB, func() error, error) {
	db, release, err := sqlOpener("sqlite3")(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(1)
	return db, release, nil
}

func driverNames() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupDriver(name string) (driver, error) {
	drv, ok := drivers[name]
	if !ok {
		return driver{}, fmt.Errorf("unknown driver %q, need one of %v", name, driverNames())
	}
	return drv, nil
}
