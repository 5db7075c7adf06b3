// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains the metadata resolver. As much as possible,
reflection code is limited to this package. It turns mapped entity types (Go
structs) into the table, column, primary key and foreign key information the
expression compiler needs, and caches it per type for the process lifetime.

Mapping is declared with the "db" struct tag:

	type Order2 struct {
		Id          int       `db:",pk"`
		Person2Id   int       `db:",references=Person2"`
		OrderDate   time.Time `db:"order_date"`
		OrderTypeId int
		Notes       string    `db:"-"`
	}

A field without a tag is mapped to a column with the field's name. The "-"
tag excludes a field from the mapping.
*/
package typeinfo
