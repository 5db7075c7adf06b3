// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import "fmt"

// UnmappedMemberError is returned when a member of an entity type has no
// resolvable column.
type UnmappedMemberError struct {
	Type   string
	Member string
	Reason string
}

func (e *UnmappedMemberError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("member %q of type %q is not mapped", e.Member, e.Type)
	}
	return fmt.Sprintf("member %q of type %q is not mapped: %s", e.Member, e.Type, e.Reason)
}
