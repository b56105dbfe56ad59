package localization

import "errors"

// ErrInvalidInput is returned when a request is rejected before any
// computation: an empty measurement set, an empty or malformed reference
// model, or fewer than two matched access points for a geometric solve.
var ErrInvalidInput = errors.New("invalid localization input")
