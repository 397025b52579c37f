package bucket

import (
	"fmt"
	"time"
)

// InvalidRangeError reports a malformed aggregation window.
type InvalidRangeError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range [%s, %s): %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Reason)
}

// UnsortedInputError reports sales that are not in timestamp order.
// The aggregator does not sort on the caller's behalf.
type UnsortedInputError struct {
	Index    int
	Previous time.Time
	Got      time.Time
}

func (e *UnsortedInputError) Error() string {
	return fmt.Sprintf("sales not ordered by timestamp at index %d: %s after %s",
		e.Index, e.Got.Format(time.RFC3339), e.Previous.Format(time.RFC3339))
}
