package workqueue

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is the class of errors returned for arguments a caller
	// should never have passed, such as a nil item.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNilItem is returned by Put when the item is a nil pointer, interface,
	// map, slice, channel or func.
	ErrNilItem = fmt.Errorf("%w: nil item", ErrInvalidArgument)

	// ErrQueueClosed is returned by Put once Close has been called.
	ErrQueueClosed = errors.New("queue closed")
)

// IsContextError reports whether err is (or wraps) context.Canceled or
// context.DeadlineExceeded, i.e. whether a Take was aborted rather than
// finished.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
