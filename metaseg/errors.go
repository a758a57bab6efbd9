package metaseg

import (
	"fmt"

	"github.com/airkv-project/airkv/storage"
)

// AppendError wraps a non-success storage.AppendOutcome observed while
// appending to the meta segment, which — since the meta segment is never
// itself rotated — always indicates either genuine storage trouble or a
// bug rather than an expected, recoverable condition the way a full tail
// append is.
type AppendError struct {
	Outcome storage.AppendOutcome
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("metaseg: append failed with outcome %d", e.Outcome)
}

func appendOutcomeError(o storage.AppendOutcome) error { return &AppendError{Outcome: o} }
