package transform

import (
	"errors"
	"fmt"
)

// ErrLimitExceeded is matched by every *LimitError.
var ErrLimitExceeded = errors.New("transform: limit exceeded")

// Limit names.
const (
	LimitTables        = "table"
	LimitColumns       = "column"
	LimitRelationships = "relationship"
)

// LimitError aborts a transform whose document is too large to render.
type LimitError struct {
	Limit   string // one of the Limit* names
	Subject string // what overflowed, e.g. a table label
	Max     int
	Got     int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s exceeds maximum %s limit: %d declared, limit is %d", e.Subject, e.Limit, e.Got, e.Max)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// IsLimitExceeded reports whether err is, or wraps, a *LimitError.
func IsLimitExceeded(err error) bool {
	var e *LimitError
	return errors.As(err, &e)
}
