package ledger

import (
	"errors"
	"fmt"
)

// ErrNoData means the source answered but has nothing for the selector.
var ErrNoData = errors.New("no data")

// DataSourceUnavailableError means the ledger or catalog could not be reached.
type DataSourceUnavailableError struct {
	Source string
	Err    error
}

func (e *DataSourceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

func (e *DataSourceUnavailableError) Unwrap() error { return e.Err }

func unavailable(source string, err error) error {
	return &DataSourceUnavailableError{Source: source, Err: err}
}

// NotFoundError reports an unknown card or listing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsUnavailable reports whether err is a DataSourceUnavailableError.
func IsUnavailable(err error) bool {
	var target *DataSourceUnavailableError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
