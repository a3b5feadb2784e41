package session

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a session already running.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrNotStarted is returned by operations that require Start to have
	// succeeded first.
	ErrNotStarted = errors.New("session: not started")
)
