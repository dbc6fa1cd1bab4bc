package puma

import (
	stderrors "errors"
)

// EventFilter takes an Event and returns true if it should be allowed to be processed or
// false if it shouldn't. It can error if it fails to determine if the event should be processed.
// Please note it is expected that the func should return promptly and as such other than smaller
// in memory transforms/extractions it should not be making any I/O or significant API calls
// (especially remote ones) as the expectation is that the only data needed will be on the event
// itself.
type EventFilter func(event Event) (bool, error)

// AllEventFilters returns a filter that allows an event only if every
// filter allows it. It stops at the first filter that rejects or errors.
func AllEventFilters(efs ...EventFilter) EventFilter {
	return func(event Event) (bool, error) {
		for _, ef := range efs {
			ok, err := ef(event)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

// AnyEventFilters returns a filter that allows an event if any filter
// allows it without error. Errors are only returned if no filter allowed
// the event.
func AnyEventFilters(efs ...EventFilter) EventFilter {
	return func(event Event) (bool, error) {
		var errs []error
		for _, ef := range efs {
			ok, err := ef(event)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				return true, nil
			}
		}
		if len(errs) > 0 {
			return false, stderrors.Join(errs...)
		}
		return false, nil
	}
}
