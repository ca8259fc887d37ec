package order

import "errors"

var (
	ErrBadTransition = errors.New("illegal quote state transition")
	ErrUnknownOrder  = errors.New("order not in mirror")
)
