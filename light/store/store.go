package store

import "github.com/tonred/ton-trustless-bridge/types"

// Store is anything that can persistently store trusted states.
type Store interface {
	// SaveTrustedState saves a TrustedState under its key block seqno.
	//
	// seqno must be > 0.
	SaveTrustedState(s *types.TrustedState) error

	// DeleteTrustedState deletes the TrustedState of the given key block.
	//
	// seqno must be > 0.
	DeleteTrustedState(seqno uint32) error

	// TrustedState returns the TrustedState of the given key block.
	//
	// If it is not found, ErrTrustedStateNotFound is returned.
	TrustedState(seqno uint32) (*types.TrustedState, error)

	// LastTrustedState returns the newest TrustedState.
	//
	// If the store is empty, ErrTrustedStateNotFound is returned.
	LastTrustedState() (*types.TrustedState, error)

	// Prune removes the oldest states until only size are left.
	Prune(size uint16) error

	// Size returns the number of stored states.
	Size() uint16
}
