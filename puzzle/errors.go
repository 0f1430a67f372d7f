package puzzle

import "errors"

var (
	ErrInvalidGrid      = errors.New("invalid puzzle grid")
	ErrUnknownPiece     = errors.New("unknown piece")
	ErrCorruptGroup     = errors.New("corrupt group table")
	ErrGroupTooLarge    = errors.New("group exceeds sanity bound")
	ErrRotationMismatch = errors.New("groups have different rotations")
)
