// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr_test

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlexpr"
)

type AnyObjectClassItem struct {
	Id      int
	OwnerId uuid.UUID `db:",references=AnyObjectClass"`
	Price   float64
}

// PurchaseTotal returns the sum of the prices of the items owned by o. A new
// query is compiled and run on every call.
func (o *AnyObjectClass) PurchaseTotal(ctx context.Context, db *sqlexpr.DB) (float64, error) {
	owners := sqlexpr.From[AnyObjectClass]().
		Where(sqlexpr.Eq(sqlexpr.Col("Id"), o.Id)).
		Select(sqlexpr.Col("Id"))
	q, err := sqlexpr.From[AnyObjectClassItem](sqlexpr.WithDialect(sqlexpr.SQLite)).
		Where(sqlexpr.In(sqlexpr.Col("OwnerId"), owners)).
		Select(sqlexpr.Col("Price")).
		Finalize()
	if err != nil {
		return 0, err
	}
	var prices []float64
	if err := db.Column(ctx, q, &prices); err != nil {
		return 0, err
	}
	var total float64
	for _, p := range prices {
		total += p
	}
	return total, nil
}

func Example() {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		panic(err)
	}
	defer sqldb.Close()
	sqldb.SetMaxOpenConns(1)
	_, err = sqldb.Exec(`
CREATE TABLE AnyObjectClass (_id text, _identity text, _name text);
CREATE TABLE AnyObjectClassItem (Id integer, OwnerId text, Price real);
INSERT INTO AnyObjectClass VALUES ('7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001', NULL, 'one');
INSERT INTO AnyObjectClassItem VALUES
	(1, '7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001', 1.5),
	(2, '7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001', 2.25);
`)
	if err != nil {
		panic(err)
	}
	db := sqlexpr.NewDB(sqldb)
	ctx := context.Background()

	o := &AnyObjectClass{Id: uuid.MustParse("7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001")}
	total, err := o.PurchaseTotal(ctx, db)
	if err != nil {
		panic(err)
	}
	fmt.Println(total)
	fmt.Println(db.LastSQL())

	_, err = sqldb.Exec(`INSERT INTO AnyObjectClassItem VALUES (3, '7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001', 4)`)
	if err != nil {
		panic(err)
	}
	total, err = o.PurchaseTotal(ctx, db)
	if err != nil {
		panic(err)
	}
	fmt.Println(total)

	// Output:
	// 3.75
	// SELECT "Price" FROM "AnyObjectClassItem" WHERE "OwnerId" IN (SELECT "_id" FROM "AnyObjectClass" WHERE "_id" = ?1)
	// 7.75
}

func ExampleIn() {
	orderTypeId := 2
	orders := sqlexpr.From[Order2]().
		Where(sqlexpr.Eq(sqlexpr.Col("OrderTypeId"), orderTypeId)).
		Select(sqlexpr.Col("Person2Id"))
	q := sqlexpr.From[Person2]().
		Where(sqlexpr.Ne(sqlexpr.Col("Name"), nil)).
		Where(sqlexpr.In(sqlexpr.Col("Id"), orders)).
		MustFinalize()

	fmt.Println(q.SQL())
	fmt.Println(q.Params())

	// Output:
	// SELECT "Id", "Name" FROM "Person2" WHERE "Name" IS NOT NULL AND "Id" IN (SELECT "Person2Id" FROM "Order2" WHERE "OrderTypeId" = @0)
	// [2]
}

func ExampleRef() {
	orders := sqlexpr.From[Order2]().
		Where(sqlexpr.Eq(sqlexpr.Col("Person2Id"), sqlexpr.Ref("p", "Id"))).
		Select(sqlexpr.Col("Person2Id"))
	q := sqlexpr.From[Person2](sqlexpr.WithDialect(sqlexpr.Postgres)).
		As("p").
		Where(sqlexpr.In(sqlexpr.Col("Id"), orders)).
		Select(sqlexpr.Col("Name")).
		MustFinalize()

	fmt.Println(q.SQL())

	// Output:
	// SELECT "p"."Name" FROM "Person2" AS "p" WHERE "p"."Id" IN (SELECT "Person2Id" FROM "Order2" WHERE "Person2Id" = "p"."Id")
}
