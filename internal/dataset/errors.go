package dataset

import (
	"errors"
	"fmt"
)

// Input validation failures. They are always wrapped in a *ValidationError
// naming the offending analysis or session.
var (
	ErrMissingField       = errors.New("missing required field")
	ErrInvalidNumber      = errors.New("field is not a number")
	ErrDuplicateUID       = errors.New("duplicate analysis UID")
	ErrNoWorkingGasSample = errors.New("no analysis available to determine the working gas")
	ErrWorkingGasMismatch = errors.New("inconsistent working gas within session")
	ErrWorkingGasUnset    = errors.New("working gas composition not assigned")
	ErrAlreadySplit       = errors.New("samples are already split")
	ErrNotSplit           = errors.New("samples are not split")
	ErrSplitAnchor        = errors.New("anchor samples cannot be split")
)

// ValidationError reports an input problem for a given analysis or session.
type ValidationError struct {
	UID     string
	Session string
	Field   string
	Err     error
}

func (e *ValidationError) Error() string {
	where := ""
	switch {
	case e.UID != "":
		where = fmt.Sprintf("analysis %s", e.UID)
	case e.Session != "":
		where = fmt.Sprintf("session %s", e.Session)
	default:
		where = "dataset"
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %v", where, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
