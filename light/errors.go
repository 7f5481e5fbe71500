package light

import (
	"errors"
	"fmt"

	"github.com/tonred/ton-trustless-bridge/types"
)

// ErrNoTrustedState is returned when the client is started with an empty
// store and without a genesis key block.
var ErrNoTrustedState = errors.New("no trusted state; initialize the light client from a key block")

// ErrOutOfOrder means a key block does not follow the trusted one: its
// previous key block is not the block the trusted state was taken from.
type ErrOutOfOrder struct {
	Trusted   uint32
	KeyBlock  uint32
	PrevKnown uint32
}

func (e ErrOutOfOrder) Error() string {
	return fmt.Sprintf("key block #%d follows #%d, trusted state is #%d",
		e.KeyBlock, e.PrevKnown, e.Trusted)
}

// ErrInvalidBlock means the block served by the provider failed a check
// (root or file hash, key block flag, signatures).
type ErrInvalidBlock struct {
	Seqno  uint32
	Reason error
}

func (e ErrInvalidBlock) Error() string {
	return fmt.Sprintf("invalid block #%d: %v", e.Seqno, e.Reason)
}

// Unwrap returns underlying reason.
func (e ErrInvalidBlock) Unwrap() error {
	return e.Reason
}

// ErrNewValSetCantBeTrusted means the trusted validators did not sign the
// next key block with enough weight.
type ErrNewValSetCantBeTrusted struct {
	Reason types.ErrNotEnoughWeightSigned
}

func (e ErrNewValSetCantBeTrusted) Error() string {
	return fmt.Sprintf("cant trust new val set: %v", e.Reason)
}

// ErrVerificationFailed means syncing from one key block to another failed.
type ErrVerificationFailed struct {
	From   uint32
	To     uint32
	Reason error
}

// Unwrap returns underlying reason.
func (e ErrVerificationFailed) Unwrap() error {
	return e.Reason
}

func (e ErrVerificationFailed) Error() string {
	return fmt.Sprintf("sync from #%d to #%d failed: %v", e.From, e.To, e.Reason)
}
