package checkpoint

import "errors"

var (
	// ErrEmptyRegionID is returned when a checkpoint is marked with a blank region name.
	ErrEmptyRegionID = errors.New("checkpoint: empty region id")

	// ErrUnknownThread is returned when a caller references a thread log that was
	// never registered by a checkpoint call.
	ErrUnknownThread = errors.New("checkpoint: unknown thread")
)
