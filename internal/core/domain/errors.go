package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidZoom is returned before any network call when a tile zoom
	// lies outside [MinZoom, MaxZoom].
	ErrInvalidZoom = errors.New("zoom outside served range")

	// ErrInvalidRequest is returned for malformed descent or lookup requests.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned when a trajectory does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStepInFlight is returned when a second step is requested on an
	// executor that is still stepping.
	ErrStepInFlight = errors.New("descent step already in flight")

	// ErrOutOfTile is returned when a tile offset falls outside a decoded grid.
	ErrOutOfTile = errors.New("offset outside tile grid")
)

// FetchError is a transport-level tile fetch failure.
type FetchError struct {
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError is a malformed tile payload.
type DecodeError struct {
	Row   int
	Col   int
	Token string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("decode tile row %d col %d: token %q: %v", e.Row, e.Col, e.Token, e.Err)
	}
	return fmt.Sprintf("decode tile row %d: %v", e.Row, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
