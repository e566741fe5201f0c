package domain

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrLobbyNotFound   = fmt.Errorf("lobby not found: %w", errdefs.ErrNotFound)
	ErrDayNotFound     = fmt.Errorf("day not generated yet: %w", errdefs.ErrNotFound)
	ErrVersionConflict = fmt.Errorf("lobby was modified concurrently: %w", errdefs.ErrConflict)
)

// Rejection is an expected user error: nothing was changed and Reason says why.
type Rejection struct {
	Reason string
	kind   error
}

// Reject builds a failed-precondition rejection.
func Reject(reason string) *Rejection {
	return &Rejection{Reason: reason, kind: errdefs.ErrFailedPrecondition}
}

// RejectInput builds an invalid-argument rejection.
func RejectInput(reason string) *Rejection {
	return &Rejection{Reason: reason, kind: errdefs.ErrInvalidArgument}
}

func (r *Rejection) Error() string { return r.Reason }

func (r *Rejection) Unwrap() error { return r.kind }

// IsRejection reports whether err is an expected user error.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}
