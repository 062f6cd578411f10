package pipeline

import "github.com/rotisserie/eris"

// Fatal pre-run failures. Anything else that goes wrong inside a stage is
// recorded on the stage result and yields a partial run instead of an error.
var (
	// ErrMinuteNotFound means the source minute does not exist.
	ErrMinuteNotFound = eris.New("pipeline: minute not found")
	// ErrPermissionDenied means the minute belongs to a different tenant.
	ErrPermissionDenied = eris.New("pipeline: minute belongs to another tenant")
)
