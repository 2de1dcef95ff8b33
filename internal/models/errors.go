package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Sentinel errors shared across the scheduler, supervisor, and merge/cache
// packages. Callers should compare against these with errors.Is.
var (
	// ErrStreamNotRegistered indicates an operation referenced a stream id
	// that has no descriptor registered with the scheduler.
	ErrStreamNotRegistered = errors.New("stream not registered")

	// ErrStreamAlreadyRegistered indicates register() was called twice for
	// the same stream id without an intervening unregister().
	ErrStreamAlreadyRegistered = errors.New("stream already registered")

	// ErrInvalidTransition indicates a state machine event was applied to a
	// state that does not accept it.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnknownMode indicates a stream descriptor's mode is not one of
	// copy, cpu, or nvenc.
	ErrUnknownMode = errors.New("unknown mode")

	// ErrStreamAlreadyTracked indicates the supervisor was asked to start a
	// stream id it already has a subprocess handle for.
	ErrStreamAlreadyTracked = errors.New("stream already tracked by supervisor")

	// ErrStreamNotTracked indicates the supervisor was asked to stop or
	// query a stream id it has no handle for.
	ErrStreamNotTracked = errors.New("stream not tracked by supervisor")

	// ErrEncoderNotFound indicates binary discovery exhausted every lookup
	// location without finding an executable encoder binary.
	ErrEncoderNotFound = errors.New("encoder binary not found")

	// ErrCacheEntryNotFound indicates a cache lookup found no entry for the
	// computed cache key.
	ErrCacheEntryNotFound = errors.New("cache entry not found")

	// ErrNoCacheDir indicates the normalize cache was constructed without a
	// usable cache directory.
	ErrNoCacheDir = errors.New("cache directory not configured")

	// ErrEmptyFileList indicates a merge operation was given no source
	// files to work with.
	ErrEmptyFileList = errors.New("file list is empty")
)
