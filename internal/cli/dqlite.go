// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

//go:build dqlite

package cli

import (
	"context"
	"database/sql"
	"os"

	"github.com/canonical/go-dqlite/app"
)

func init() {
	drivers["dqlite"] = driver{dialect: "sqlite", open: openDqlite}
}

// openDqlite starts a single node dqlite application with its data in a
// temporary directory and opens the database named by dsn. The release
// function stops the node and removes its data.
func openDqlite(ctx context.Context, dsn string) (*sql.DB, func() error, error) {
	dir, err := os.MkdirTemp("", "sqlexpr-dqlite-")
	if err != nil {
		return nil, nil, err
	}
	node, err := app.New(dir, app.WithAddress("127.0.0.1:9001"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, err
	}
	release := func() error {
		err := node.Close()
		os.RemoveAll(dir)
		return err
	}
	if err := node.Ready(ctx); err != nil {
		release()
		return nil, nil, err
	}
	if dsn == "" || dsn == ":memory:" {
		dsn = "sqlexpr"
	}
	db, err := node.Open(ctx, dsn)
	if err != nil {
		release()
		return nil, nil, err
	}
	return db, func() error {
		db.Close()
		return release()
	}, nil
}
