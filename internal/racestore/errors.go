// internal/racestore/errors.go
package racestore

import (
	"errors"
	"fmt"
)

// Sentinel errors for join/update precondition failures. Callers distinguish
// these to produce accurate player-facing messages.
var (
	ErrRaceNotFound      = errors.New("race not found")
	ErrRaceFull          = errors.New("race is full")
	ErrRaceNotJoinable   = errors.New("race has already started or finished")
	ErrDuplicatePlayer   = errors.New("player already in race")
	ErrPlayerNotFound    = errors.New("player not found in race")
	ErrInvalidTransition = errors.New("race is not in the expected status")
)

// StorageError wraps a transient infrastructure failure (network, driver,
// timeout). It is never returned for precondition failures.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("race store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
