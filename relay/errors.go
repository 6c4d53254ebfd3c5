package relay

import (
	"errors"
	"fmt"

	"github.com/omni/tally-relay/solclient"
)

var (
	ErrTallyConflict    = errors.New("election account is finalised with different totals")
	ErrForeignAuthority = errors.New("election account is owned by a different authority")
)

// SubmitError is returned by the Executor once an event can't be bridged
// within the retry budget, or hit a permanent failure earlier.
type SubmitError struct {
	Attempts uint
	Err      error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("bridge submission failed after %d attempts: %s", e.Attempts, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrTallyConflict) ||
		errors.Is(err, ErrForeignAuthority) ||
		errors.Is(err, solclient.ErrInvalidAccount)
}
