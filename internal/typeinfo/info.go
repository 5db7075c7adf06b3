// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
)

// Member represents a single mapped field of an entity type.
type Member struct {
	// Name is the name of the struct field.
	Name string

	// Column is the physical column identifier. It is the alias declared in
	// the "db" tag or, if there is none, the field name.
	Column string

	// Index of this field in the structure, for use with
	// reflect.Value.FieldByIndex.
	Index []int

	// Type is the type of the field.
	Type reflect.Type

	// Nullable is true when the field can hold SQL NULL.
	Nullable bool

	// PrimaryKey is true for the entity's primary key member.
	PrimaryKey bool
}

// Category returns the category of values stored in the member.
func (m *Member) Category() Category {
	return CategoryOf(m.Type)
}

// ForeignKey declares that a member references another entity type.
type ForeignKey struct {
	// Member is the referencing member.
	Member *Member

	// Target is the name of the referenced entity type.
	Target string
}

// Entity represents reflected information about a mapped struct type.
type Entity struct {
	Type reflect.Type

	// Table is the name of the table the entity is stored in.
	Table string

	// Members lists the mapped members in declaration order.
	Members []*Member

	// PrimaryKey is nil when the entity has no primary key.
	PrimaryKey *Member

	ForeignKeys []ForeignKey

	nameToMember map[string]*Member

	// excluded relates unmapped field names to the reason they are not
	// mapped.
	excluded map[string]string
}

// Name returns the name of the entity type.
func (e *Entity) Name() string {
	return e.Type.Name()
}

// Member returns the mapped member with the given field name.
func (e *Entity) Member(name string) (*Member, error) {
	if m, ok := e.nameToMember[name]; ok {
		return m, nil
	}
	if reason, ok := e.excluded[name]; ok {
		return nil, &UnmappedMemberError{Type: e.Name(), Member: name, Reason: reason}
	}
	return nil, &UnmappedMemberError{Type: e.Name(), Member: name, Reason: "no such field"}
}

// ForeignKeyTo returns the foreign key of e that references the named entity
// type.
func (e *Entity) ForeignKeyTo(target string) (ForeignKey, bool) {
	for _, fk := range e.ForeignKeys {
		if fk.Target == target {
			return fk, true
		}
	}
	return ForeignKey{}, false
}
