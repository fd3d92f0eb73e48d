package peer

import (
	"errors"
	"fmt"

	"github.com/dkeye/meshroom/internal/domain"
)

var (
	ErrLinkNotFound  = errors.New("link not found")
	ErrClosed        = errors.New("manager closed")
	ErrUnexpected    = errors.New("unexpected negotiation message")
	ErrTransportDown = errors.New("transport down")

	ErrNegotiationTimeout = errors.New("negotiation timed out")

	errLinkExists = fmt.Errorf("%w: link exists", ErrUnexpected)
)

// LinkError reports a negotiation failure on one link.
type LinkError struct {
	Op     string
	Remote domain.Handle
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Remote, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

func linkErr(op string, remote domain.Handle, err error) *LinkError {
	return &LinkError{Op: op, Remote: remote, Err: err}
}
