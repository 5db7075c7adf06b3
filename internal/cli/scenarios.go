// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/canonical/sqlexpr"
)

type Person2 struct {
	Id   int `db:",pk"`
	Name string
}

type Order2 struct {
	Id          int
	Person2Id   int `db:",references=Person2"`
	OrderDate   time.Time
	OrderTypeId int
}

type AnyObjectClass struct {
	Id       uuid.UUID  `db:"_id"`
	Identity *uuid.UUID `db:"_identity"`
	Name     string     `db:"_name"`
}

type AnyObjectClassItem struct {
	Id      int
	OwnerId uuid.UUID `db:",references=AnyObjectClass"`
	Price   float64
}

var firstObject = uuid.MustParse("7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001")

// Scenario is a named query that the CLI can compile and run.
type Scenario struct {
	Name        string
	Description string
	Build       func(d *sqlexpr.Dialect) (*sqlexpr.CompiledQuery, error)
}

var scenarios = map[string]*Scenario{}

func register(s *Scenario) {
	if _, ok := scenarios[s.Name]; ok {
		panic(fmt.Sprintf("internal error: scenario %q registered twice", s.Name))
	}
	scenarios[s.Name] = s
}

// Scenarios returns the registered scenarios sorted by name.
func Scenarios() []*Scenario {
	all := make([]*Scenario, 0, len(scenarios))
	for _, s := range scenarios {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

func lookupScenario(name string) (*Scenario, error) {
	s, ok := scenarios[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
	return s, nil
}

func init() {
	register(&Scenario{
		Name:        "captured-variable",
		Description: "people with a name who placed an order of a captured order type",
		Build: func(d *sqlexpr.Dialect) (*sqlexpr.CompiledQuery, error) {
			orderTypeId := 2
			orders := sqlexpr.From[Order2](sqlexpr.WithDialect(d)).
				Where(sqlexpr.Eq(sqlexpr.Col("OrderTypeId"), orderTypeId)).
				Select(sqlexpr.Col("Person2Id"))
			return sqlexpr.From[Person2](sqlexpr.WithDialect(d)).
				Where(sqlexpr.Ne(sqlexpr.Col("Name"), nil)).
				Where(sqlexpr.In(sqlexpr.Col("Id"), orders)).
				Finalize()
		},
	})
	register(&Scenario{
		Name:        "null-constant",
		Description: "objects whose identity is the identity of another object",
		Build: func(d *sqlexpr.Dialect) (*sqlexpr.CompiledQuery, error) {
			identities := sqlexpr.From[AnyObjectClass](sqlexpr.WithDialect(d)).
				Where(sqlexpr.Ne(sqlexpr.Col("Identity"), nil)).
				Select(sqlexpr.Col("Identity"))
			return sqlexpr.From[AnyObjectClass](sqlexpr.WithDialect(d)).
				Where(sqlexpr.In(sqlexpr.Col("Identity"), identities)).
				Select(sqlexpr.Col("Name")).
				Finalize()
		},
	})
	register(&Scenario{
		Name:        "purchase-total",
		Description: "prices of the items owned by the first object",
		Build: func(d *sqlexpr.Dialect) (*sqlexpr.CompiledQuery, error) {
			owners := sqlexpr.From[AnyObjectClass](sqlexpr.WithDialect(d)).
				Where(sqlexpr.Eq(sqlexpr.Col("Id"), firstObject)).
				Select(sqlexpr.Col("Id"))
			return sqlexpr.From[AnyObjectClassItem](sqlexpr.WithDialect(d)).
				Where(sqlexpr.In(sqlexpr.Col("OwnerId"), owners)).
				Select(sqlexpr.Col("Price")).
				Finalize()
		},
	})
	register(&Scenario{
		Name:        "correlated",
		Description: "names of people referenced by their own orders",
		Build: func(d *sqlexpr.Dialect) (*sqlexpr.CompiledQuery, error) {
			orders := sqlexpr.From[Order2](sqlexpr.WithDialect(d)).
				Where(sqlexpr.Eq(sqlexpr.Col("Person2Id"), sqlexpr.Ref("p", "Id"))).
				Select(sqlexpr.Col("Person2Id"))
			return sqlexpr.From[Person2](sqlexpr.WithDialect(d)).
				As("p").
				Where(sqlexpr.In(sqlexpr.Col("Id"), orders)).
				Select(sqlexpr.Col("Name")).
				Finalize()
		},
	})
	register(&Scenario{
		Name:        "join",
		Description: "order types of the orders placed by fred",
		Build: func(d *sqlexpr.Dialect) (*sqlexpr.CompiledQuery, error) {
			return sqlexpr.From[Order2](sqlexpr.WithDialect(d)).
				Join(Person2{}).
				Where(sqlexpr.Eq(sqlexpr.Col("Person2.Name"), "fred")).
				Select(sqlexpr.Col("Id"), sqlexpr.Col("OrderTypeId")).
				OrderBy(sqlexpr.Col("Id")).
				Finalize()
		},
	})
	register(&Scenario{
		Name:        "paging",
		Description: "second page of people ordered by name",
		Build: func(d *sqlexpr.Dialect) (*sqlexpr.CompiledQuery, error) {
			return sqlexpr.From[Person2](sqlexpr.WithDialect(d)).
				Where(sqlexpr.Or(sqlexpr.Like(sqlexpr.Col("Name"), "%r%"), sqlexpr.Gt(sqlexpr.Col("Id"), 2))).
				OrderByDescending(sqlexpr.Col("Name")).
				Limit(2, 1).
				Finalize()
		},
	})
}

// seedStatements returns the statements creating and filling the tables
// queried by the scenarios.
func seedStatements(d *sqlexpr.Dialect) []string {
	q := d.Quote
	stmts := []string{
		createTable(d, "Person2", "Id", "integer", "Name", "varchar(64)"),
		createTable(d, "Order2", "Id", "integer", "Person2Id", "integer", "OrderDate", "varchar(32)", "OrderTypeId", "integer"),
		createTable(d, "AnyObjectClass", "_id", "varchar(36)", "_identity", "varchar(36)", "_name", "varchar(64)"),
		createTable(d, "AnyObjectClassItem", "Id", "integer", "OwnerId", "varchar(36)", "Price", "real"),
		"INSERT INTO " + q("Person2") + " VALUES (1, 'fred'), (2, 'mary'), (3, 'jim'), (4, NULL)",
		"INSERT INTO " + q("Order2") + " VALUES (1, 1, '2024-01-01', 2), (2, 2, '2024-01-02', 1), (3, 3, '2024-01-03', 2), (4, 1, '2024-01-04', 1)",
		"INSERT INTO " + q("AnyObjectClass") + " VALUES " +
			"('7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001', NULL, 'one'), " +
			"('7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0002', '7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0003', 'two'), " +
			"('7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0003', '7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0003', 'three')",
		"INSERT INTO " + q("AnyObjectClassItem") + " VALUES " +
			"(1, '7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001', 1.5), " +
			"(2, '7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0001', 2.25), " +
			"(3, '7c1d5a38-5fd9-4a4c-9b55-46ce2d9e0002', 10)",
	}
	return append(stmts, teamSeedStatements(d)...)
}

// createTable returns a CREATE TABLE statement. cols alternates column names
// and types.
func createTable(d *sqlexpr.Dialect, name string, cols ...string) string {
	defs := make([]string, 0, len(cols)/2)
	for i := 0; i+1 < len(cols); i += 2 {
		defs = append(defs, d.Quote(cols[i])+" "+cols[i+1])
	}
	return "CREATE TABLE " + d.Quote(name) + " (" + strings.Join(defs, ", ") + ")"
}
