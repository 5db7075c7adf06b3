// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"github.com/canonical/sqlexpr"
)

type Person struct {
	Name     string `db:"name,pk"`
	Height   int    `db:"height_cm"`
	HomeTown string `db:"home_town,references=Place"`
}

func (Person) TableName() string { return "people" }

type Place struct {
	Name       string `db:"town_name,pk"`
	Population int    `db:"population"`
}

func (Place) TableName() string { return "location" }

type Employee struct {
	Name string `db:"name"`
	ID   int    `db:"id"`
	Team string `db:"team"`
}

func (Employee) TableName() string { return "employee" }

type Room struct {
	ID   int    `db:"room_id,pk"`
	Name string `db:"name"`
	Team string `db:"team"`
}

func (Room) TableName() string { return "room" }

var jim = Person{"Jim", 150, "Kabul"}

func init() {
	register(&Scenario{
		Name:        "taller-than",
		Description: "people taller than Jim",
		Build: func(d *sqlexpr.Dialect) (*sqlexpr.CompiledQuery, error) {
			return sqlexpr.From[Person](sqlexpr.WithDialect(d)).
				Where(sqlexpr.Gt(sqlexpr.Col("Height"), jim.Height)).
				Finalize()
		},
	})
	register(&Scenario{
		Name:        "tall-cities",
		Description: "home towns of the people taller than Jim",
		Build: func(d *sqlexpr.Dialect) (*sqlexpr.CompiledQuery, error) {
			return sqlexpr.From[Person](sqlexpr.WithDialect(d)).
				Join(Place{}).
				Where(sqlexpr.Gt(sqlexpr.Col("Height"), jim.Height)).
				Select(sqlexpr.Col("Place.Name"), sqlexpr.Col("Place.Population"), sqlexpr.Col("Name")).
				Finalize()
		},
	})
	register(&Scenario{
		Name:        "room-dwellers",
		Description: "employees whose team works in room 1",
		Build: func(d *sqlexpr.Dialect) (*sqlexpr.CompiledQuery, error) {
			teams := sqlexpr.From[Room](sqlexpr.WithDialect(d)).
				Where(sqlexpr.Eq(sqlexpr.Col("ID"), 1)).
				Select(sqlexpr.Col("Team"))
			return sqlexpr.From[Employee](sqlexpr.WithDialect(d)).
				Where(sqlexpr.In(sqlexpr.Col("Team"), teams)).
				Finalize()
		},
	})
}

func teamSeedStatements(d *sqlexpr.Dialect) []string {
	q := d.Quote
	return []string{
		createTable(d, "people", "name", "varchar(64)", "height_cm", "integer", "home_town", "varchar(64)"),
		createTable(d, "location", "town_name", "varchar(64)", "population", "integer"),
		createTable(d, "employee", "name", "varchar(64)", "id", "integer", "team", "varchar(64)"),
		createTable(d, "room", "room_id", "integer", "name", "varchar(64)", "team", "varchar(64)"),
		"INSERT INTO " + q("people") + " VALUES ('Jim', 150, 'Kabul'), ('Saba', 162, 'Berlin'), " +
			"('Dave', 169, 'Brasília'), ('Sophie', 174, 'Berlin'), ('Kiri', 168, 'Cape Town')",
		"INSERT INTO " + q("location") + " VALUES ('Kabul', 13000000), ('Berlin', 3677472), " +
			"('Brasília', 3039444), ('Cape Town', 4710000)",
		"INSERT INTO " + q("employee") + " VALUES ('Alastair', 1, 'engineering'), ('Ed', 2, 'engineering'), " +
			"('Marco', 3, 'engineering'), ('Pedro', 4, 'management'), ('Joe', 6, 'marketing'), ('Mark', 10, 'leadership')",
		"INSERT INTO " + q("room") + " VALUES (1, 'Basement', 'engineering'), (19, 'Floor 3', 'management'), " +
			"(66, 'The Market', 'marketing'), (32, 'Penthouse', 'leadership')",
	}
}
