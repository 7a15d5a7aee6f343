package domain

import "errors"

var (
	// ErrNotFound is returned by RecordStore.Get for a missing key.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition is returned when a timer operation is not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid timer transition")

	// ErrUnknownPreset is returned when toggling an id that is not in the catalog.
	ErrUnknownPreset = errors.New("unknown preset")

	// ErrNotStarted is returned when an intent arrives before the startup sweep.
	ErrNotStarted = errors.New("synchronizer has not completed its startup sweep")
)
