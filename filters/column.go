// Package filters provides puma.EventFilter constructors.
package filters

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/luno/puma"
)

type (
	Deserializer[T any] func(b []byte) (T, error)
	DataFilter[T any]   func(d T) (bool, error)
)

const (
	deserializationErrMsg   = "deserialization failed"
	columnEventFilterErrMsg = "cannot make a ColumnEventFilter from a nil Deserializer or DataFilter"
)

var columnEventFilterErr = errors.New(columnEventFilterErrMsg)
var deserializationErr = errors.New(deserializationErrMsg)

// ColumnEventFilter returns a filter on the value of the named column of
// row change events. The value is the row after the change, or before it
// for deletes. Other events and rows without the column pass a nil value to
// the deserializer.
func ColumnEventFilter[T any](column string, ds Deserializer[T], flt DataFilter[T]) (puma.EventFilter, error) {
	if ds == nil || flt == nil {
		return nil, makeColumnEventFilterErr(j.MKV{"column": column, "ds": ds, "flt": flt})
	}
	return func(e puma.Event) (bool, error) {
		d, err := ds(columnValue(e, column))
		if err != nil {
			return false, asDeserializationErr(err)
		}
		return flt(d)
	}, nil
}

func columnValue(e puma.Event, column string) []byte {
	rc, ok := e.(*puma.RowChangeEvent)
	if !ok {
		return nil
	}
	for _, c := range rc.Columns {
		if c.Name != column {
			continue
		}
		if c.After != nil {
			return c.After
		}
		return c.Before
	}
	return nil
}

// IsDeserializationErr returns true if the error occurred during column value deserialization operations.
func IsDeserializationErr(err error) bool {
	return errors.Is(err, deserializationErr)
}

func asDeserializationErr(err error) error {
	return errors.Wrap(err, deserializationErrMsg)
}

// IsColumnEventFilterErr returns true if the error occurred during construction of a ColumnEventFilter.
func IsColumnEventFilterErr(err error) bool {
	return errors.Is(err, columnEventFilterErr)
}

func makeColumnEventFilterErr(ol ...errors.Option) error {
	return errors.New(columnEventFilterErrMsg, ol...)
}
