package filters

import (
	"slices"

	"github.com/luno/puma"
)

// Tables allows events of the named tables. Events without a table, like
// transaction boundaries, are allowed too.
func Tables(names ...string) puma.EventFilter {
	return func(e puma.Event) (bool, error) {
		t := e.Header().Table
		return t == "" || slices.Contains(names, t), nil
	}
}

// Kinds allows events of the given kinds.
func Kinds(kinds ...puma.EventKind) puma.EventFilter {
	return func(e puma.Event) (bool, error) {
		return slices.Contains(kinds, e.Kind()), nil
	}
}

// Actions allows row changes with the given actions. Events that are not
// row changes are allowed.
func Actions(actions ...puma.RowAction) puma.EventFilter {
	return func(e puma.Event) (bool, error) {
		rc, ok := e.(*puma.RowChangeEvent)
		if !ok {
			return true, nil
		}
		return slices.Contains(actions, rc.Action), nil
	}
}
