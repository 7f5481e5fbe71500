package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrBlockNotFound is returned when a provider can't find the requested
	// block.
	ErrBlockNotFound = errors.New("block not found")
	// ErrNoResponse is returned if the provider doesn't respond to the
	// request in a given time
	ErrNoResponse = errors.New("client failed to respond")
)

// ErrBadBlock is returned when a provider returns a block that does not
// match the requested id.
type ErrBadBlock struct {
	Reason error
}

func (e ErrBadBlock) Error() string {
	return fmt.Sprintf("client provided bad block: %s", e.Reason.Error())
}

func (e ErrBadBlock) Unwrap() error {
	return e.Reason
}
