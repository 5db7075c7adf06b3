// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// TypeOf takes a type sample provided by the user and checks that it can be
// used as an entity type. Pointers are dereferenced.
func TypeOf(sample any) (reflect.Type, error) {
	v := reflect.ValueOf(sample)
	if v.Kind() == reflect.Invalid {
		return nil, fmt.Errorf("need struct type sample, got nil")
	}
	t := v.Type()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("need struct type sample, got %s", t.Kind())
	}
	if t.Name() == "" {
		return nil, fmt.Errorf("cannot use anonymous struct")
	}
	return t, nil
}

var valuerInterface = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

// IsNullable reports whether a member of type t can hold SQL NULL. This is
// the case for pointers and for valuer structs with a Valid flag, such as
// sql.NullString and uuid.NullUUID.
func IsNullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface:
		return true
	case reflect.Struct:
		if !t.Implements(valuerInterface) {
			return false
		}
		f, ok := t.FieldByName("Valid")
		return ok && f.Type.Kind() == reflect.Bool
	}
	return false
}

// Category classifies Go types by the SQL operators that apply to them.
type Category int

const (
	CategoryOther Category = iota
	CategoryBool
	CategoryNumeric
	CategoryString
	CategoryTime
)

func (c Category) String() string {
	switch c {
	case CategoryBool:
		return "boolean"
	case CategoryNumeric:
		return "numeric"
	case CategoryString:
		return "string"
	case CategoryTime:
		return "time"
	}
	return "other"
}

var nullTypeCategories = map[reflect.Type]Category{
	reflect.TypeOf(sql.NullBool{}):    CategoryBool,
	reflect.TypeOf(sql.NullByte{}):    CategoryNumeric,
	reflect.TypeOf(sql.NullInt16{}):   CategoryNumeric,
	reflect.TypeOf(sql.NullInt32{}):   CategoryNumeric,
	reflect.TypeOf(sql.NullInt64{}):   CategoryNumeric,
	reflect.TypeOf(sql.NullFloat64{}): CategoryNumeric,
	reflect.TypeOf(sql.NullString{}):  CategoryString,
	reflect.TypeOf(sql.NullTime{}):    CategoryTime,
	reflect.TypeOf(uuid.NullUUID{}):   CategoryOther,
}

var timeType = reflect.TypeOf(time.Time{})

// CategoryOf returns the category of t. Pointers are dereferenced.
func CategoryOf(t reflect.Type) Category {
	if t == nil {
		return CategoryOther
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if c, ok := nullTypeCategories[t]; ok {
		return c
	}
	if t == timeType {
		return CategoryTime
	}
	switch t.Kind() {
	case reflect.Bool:
		return CategoryBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return CategoryNumeric
	case reflect.String:
		return CategoryString
	}
	return CategoryOther
}

// Capture returns a copy of v that is unaffected by later changes to the
// variable v was read from. Pointers are dereferenced and slices copied. The
// second return value is true if v represents SQL NULL: a nil value, a nil
// pointer, or a driver.Valuer that produces nil.
func Capture(v any) (any, bool) {
	rv := reflect.ValueOf(v)
	for {
		if isInvalidNil(rv) {
			return nil, true
		}
		if rv.Type().Implements(valuerInterface) {
			if dv, err := rv.Interface().(driver.Valuer).Value(); err == nil && dv == nil {
				return nil, true
			}
		}
		if rv.Kind() != reflect.Pointer && rv.Kind() != reflect.Interface {
			break
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice {
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(cp, rv)
		return cp.Interface(), false
	}
	return rv.Interface(), false
}

var byteSliceType = reflect.TypeOf([]byte(nil))

// IsSequence reports whether v is a literal sequence of values for use with
// set membership. Byte slices are scalar values.
func IsSequence(v any) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return false
	}
	return rv.Type().Elem() != byteSliceType.Elem()
}

// Elements returns the elements of the sequence v.
func Elements(v any) []any {
	rv := reflect.ValueOf(v)
	elems := make([]any, rv.Len())
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}
	return elems
}

func isInvalidNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Pointer, reflect.Map, reflect.Interface, reflect.Slice:
		return v.IsNil()
	}
	return false
}
