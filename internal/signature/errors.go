package signature

import "errors"

var (
	// ErrEmptyPattern is returned when a signature contains nothing but whitespace.
	ErrEmptyPattern = errors.New("signature cannot be empty")

	// ErrMalformedByteToken is returned when a non-wildcard token is not a two digit hex byte.
	ErrMalformedByteToken = errors.New("malformed byte token")

	// ErrMemoryUnavailable is returned when a byte required by a scan cannot be read.
	ErrMemoryUnavailable = errors.New("memory unavailable")

	// ErrNoEnclosingFunction is returned when a selection address is not inside any known function.
	ErrNoEnclosingFunction = errors.New("no function selected")

	// ErrInsufficientUniqueness is returned when a synthesized signature first matches somewhere
	// other than the location it was built from.
	ErrInsufficientUniqueness = errors.New("function is (most likely) not big enough to create a unique signature")

	// ErrMinimizeEmpty reports that minimization ran out of concrete bytes. It cannot happen
	// when the input signature uniquely matched its target.
	ErrMinimizeEmpty = errors.New("signature has no concrete bytes left")

	// ErrStepLimit is returned together with a valid but possibly non-minimal signature
	// when minimization hits its configured step budget.
	ErrStepLimit = errors.New("minimization step limit reached")
)
