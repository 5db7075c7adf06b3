// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Provider is the metadata provider consulted by the expression compiler.
type Provider interface {
	// Entity returns the metadata of an entity type.
	Entity(t reflect.Type) (*Entity, error)

	// Resolve returns the mapped member of t with the given field name. It
	// returns an *UnmappedMemberError if the member has no column.
	Resolve(t reflect.Type, member string) (*Member, error)

	// ForeignKeysOf returns the foreign keys declared on t.
	ForeignKeysOf(t reflect.Type) ([]ForeignKey, error)
}

// Resolver is a Provider that generates entity metadata from struct tags
// using reflection. The metadata is cached per type.
//
// The mutex must be locked when accessing the cache.
type Resolver struct {
	mutex sync.RWMutex
	cache map[reflect.Type]*Entity
}

var _ Provider = (*Resolver)(nil)

// NewResolver returns a Resolver with an empty cache.
func NewResolver() *Resolver {
	return &Resolver{cache: map[reflect.Type]*Entity{}}
}

var once sync.Once
var defaultResolver *Resolver

// DefaultResolver returns the process wide Resolver.
func DefaultResolver() *Resolver {
	once.Do(func() {
		defaultResolver = NewResolver()
	})
	return defaultResolver
}

// Entity returns the Entity of a given type, generating and caching it as
// required. Pointer types are dereferenced.
func (r *Resolver) Entity(t reflect.Type) (*Entity, error) {
	if t == nil {
		return nil, errors.New("cannot get entity of nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mutex.RLock()
	entity, found := r.cache[t]
	r.mutex.RUnlock()
	if found {
		return entity, nil
	}

	entity, err := generate(t)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	// Another goroutine may have generated the same entity since we last
	// checked. Only the first one stored is ever handed out.
	if cached, ok := r.cache[t]; ok {
		entity = cached
	} else {
		r.cache[t] = entity
	}
	r.mutex.Unlock()

	return entity, nil
}

// Resolve returns the mapped member of t with the given field name.
func (r *Resolver) Resolve(t reflect.Type, member string) (*Member, error) {
	entity, err := r.Entity(t)
	if err != nil {
		return nil, err
	}
	return entity.Member(member)
}

// ForeignKeysOf returns the foreign keys declared on t.
func (r *Resolver) ForeignKeysOf(t reflect.Type) ([]ForeignKey, error) {
	entity, err := r.Entity(t)
	if err != nil {
		return nil, err
	}
	return entity.ForeignKeys, nil
}

// tableNamer may be implemented by entity types stored in a table not named
// after the type.
type tableNamer interface {
	TableName() string
}

// generate produces the Entity for a struct type.
func generate(t reflect.Type) (*Entity, error) {
	if t.Kind() != reflect.Struct {
		return nil, errors.Errorf("need struct type, got %s", t.Kind())
	}
	if t.Name() == "" {
		return nil, errors.New("cannot use anonymous struct")
	}

	entity := &Entity{
		Type:         t,
		Table:        t.Name(),
		nameToMember: map[string]*Member{},
		excluded:     map[string]string{},
	}
	if tn, ok := reflect.New(t).Interface().(tableNamer); ok {
		entity.Table = tn.TableName()
		if !validNameRx.MatchString(entity.Table) {
			return nil, errors.Errorf("invalid table name %q for type %s", entity.Table, t.Name())
		}
	}

	if err := addMembers(entity, t, nil, nil); err != nil {
		return nil, err
	}

	columnToMember := map[string]*Member{}
	for _, m := range entity.Members {
		if other, ok := columnToMember[m.Column]; ok {
			return nil, errors.Errorf("column %q of type %s is mapped by both %s and %s", m.Column, t.Name(), other.Name, m.Name)
		}
		columnToMember[m.Column] = m
	}

	if entity.PrimaryKey == nil {
		for _, name := range []string{"Id", "ID"} {
			if m, ok := entity.nameToMember[name]; ok {
				m.PrimaryKey = true
				entity.PrimaryKey = m
				break
			}
		}
	}

	return entity, nil
}

// addMembers adds the fields of the struct type t to the entity. Untagged
// embedded structs are flattened into the entity. As with Go field
// promotion, a field of an embedded struct is shadowed by a field of the
// same name declared at a shallower depth, whatever the declaration order.
// shadowed holds the names declared by the enclosing structs.
func addMembers(entity *Entity, t reflect.Type, index []int, shadowed map[string]bool) error {
	declared := make(map[string]bool, len(shadowed)+t.NumField())
	for name := range shadowed {
		declared[name] = true
	}
	for i := 0; i < t.NumField(); i++ {
		if f := t.Field(i); !flattened(f) {
			declared[f.Name] = true
		}
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fieldIndex := append(append([]int{}, index...), i)
		tag := f.Tag.Get("db")

		if flattened(f) {
			if !f.IsExported() {
				continue
			}
			if err := addMembers(entity, f.Type, fieldIndex, declared); err != nil {
				return err
			}
			continue
		}
		if shadowed[f.Name] {
			continue
		}
		if _, ok := entity.nameToMember[f.Name]; ok {
			continue
		}
		if _, ok := entity.excluded[f.Name]; ok {
			continue
		}
		if !f.IsExported() {
			entity.excluded[f.Name] = "field not exported"
			continue
		}
		if tag == "-" {
			entity.excluded[f.Name] = "excluded by db tag"
			continue
		}

		opts, err := parseTag(tag)
		if err != nil {
			return errors.Wrapf(err, "cannot parse tag for field %s.%s", entity.Name(), f.Name)
		}
		m := &Member{
			Name:       f.Name,
			Column:     opts.column,
			Index:      fieldIndex,
			Type:       f.Type,
			Nullable:   IsNullable(f.Type),
			PrimaryKey: opts.primaryKey,
		}
		if m.Column == "" {
			m.Column = f.Name
		}
		if m.PrimaryKey {
			if entity.PrimaryKey != nil {
				return errors.Errorf("type %s has more than one primary key: %s and %s", entity.Name(), entity.PrimaryKey.Name, f.Name)
			}
			entity.PrimaryKey = m
		}
		if opts.references != "" {
			entity.ForeignKeys = append(entity.ForeignKeys, ForeignKey{Member: m, Target: opts.references})
		}
		entity.Members = append(entity.Members, m)
		entity.nameToMember[f.Name] = m
	}
	return nil
}

// flattened reports whether the fields of f are added to the entity in place
// of f itself.
func flattened(f reflect.StructField) bool {
	_, tagged := f.Tag.Lookup("db")
	return f.Anonymous && !tagged && f.Type.Kind() == reflect.Struct
}

// validNameRx matches the column aliases, table names and type names that can
// be used in a mapping.
var validNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// tagOptions holds the parsed content of a "db" tag.
type tagOptions struct {
	column     string
	primaryKey bool
	references string
}

// parseTag parses the input tag string and returns the column alias along with
// the options.
func parseTag(tag string) (tagOptions, error) {
	options := strings.Split(tag, ",")

	opts := tagOptions{column: options[0]}
	if opts.column != "" && !validNameRx.MatchString(opts.column) {
		return tagOptions{}, errors.Errorf("invalid column name in 'db' tag: %q", opts.column)
	}
	for _, flag := range options[1:] {
		switch {
		case flag == "pk":
			opts.primaryKey = true
		case strings.HasPrefix(flag, "references="):
			opts.references = strings.TrimPrefix(flag, "references=")
			if !validNameRx.MatchString(opts.references) {
				return tagOptions{}, errors.Errorf("invalid referenced type in 'db' tag: %q", opts.references)
			}
		default:
			return tagOptions{}, errors.Errorf("unsupported flag %q in tag %q", flag, tag)
		}
	}
	return opts, nil
}
