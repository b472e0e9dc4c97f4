package platforms

import "errors"

// Sentinel kinds for adapter failures.
var (
	ErrNoAdapter   = errors.New("no adapter registered for platform")
	ErrBadStatus   = errors.New("upstream returned non-2xx status")
	ErrBadPayload  = errors.New("upstream payload is not a JSON object")
	ErrEmptyHandle = errors.New("empty handle")
)
