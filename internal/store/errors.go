package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a record with the same key already exists, or
// when a delete would orphan dependent rows.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when an attendance row for the same identity and
// date is already stored.
var ErrDuplicate = errors.New("attendance already recorded")
