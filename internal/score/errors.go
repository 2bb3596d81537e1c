package score

import "errors"

var (
	// ErrValidation marks caller mistakes (non-positive score, criterion
	// from the wrong group). Surfaced to admin callers as-is.
	ErrValidation = errors.New("validation failed")

	// ErrConfigMissing means a criterion, group or active semester the
	// event needs does not exist or is inactive. Event sources treat this
	// as skip-and-warn, never as a failure of their primary action.
	ErrConfigMissing = errors.New("scoring configuration missing")

	// ErrConflict is returned when the award transaction kept losing to
	// concurrent writers after all retries.
	ErrConflict = errors.New("concurrent update conflict")
)
