package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/tonred/ton-trustless-bridge/cell"
)

// TrustedState is what the on-chain light client knows: the last accepted
// key block and the main validators of its epoch.
type TrustedState struct {
	Seqno      uint32
	UTimeSince uint32
	UTimeUntil uint32
	Cutoff     *big.Int
	// ID distinguishes light client instances deployed with the same state.
	ID uint32
	// Validators is the compact list slot -> pubkey ‖ weight.
	Validators *cell.Cell
}

// ValidateBasic performs basic validation.
func (s *TrustedState) ValidateBasic() error {
	if s == nil {
		return errors.New("nil trusted state")
	}
	if s.Cutoff == nil || s.Cutoff.Sign() <= 0 {
		return errors.New("cutoff weight must be positive")
	}
	if s.Cutoff.BitLen() > 64 {
		return fmt.Errorf("cutoff weight %s does not fit 64 bits", s.Cutoff)
	}
	if s.Validators == nil {
		return errors.New("nil validators list")
	}
	if s.UTimeUntil < s.UTimeSince {
		return fmt.Errorf("epoch ends (%d) before it starts (%d)", s.UTimeUntil, s.UTimeSince)
	}
	return nil
}

// ToCell encodes the state as the light client contract storage:
// seqno:32 since:32 until:32 cutoff:64 id:32 ^list.
func (s *TrustedState) ToCell() (*cell.Cell, error) {
	if err := s.ValidateBasic(); err != nil {
		return nil, err
	}
	return cell.BeginCell().
		StoreUInt(uint64(s.Seqno), 32).
		StoreUInt(uint64(s.UTimeSince), 32).
		StoreUInt(uint64(s.UTimeUntil), 32).
		StoreBigUInt(s.Cutoff, 64).
		StoreUInt(uint64(s.ID), 32).
		StoreRef(s.Validators).
		EndCell()
}

// TrustedStateFromCell decodes light client storage. It is also the shape
// of the contract's get_state result.
func TrustedStateFromCell(c *cell.Cell) (*TrustedState, error) {
	s := c.BeginParse()
	state := &TrustedState{}
	fields := []*uint32{&state.Seqno, &state.UTimeSince, &state.UTimeUntil}
	for _, f := range fields {
		v, err := s.LoadUInt(32)
		if err != nil {
			return nil, NewErrStructural("trusted state", err)
		}
		*f = uint32(v)
	}
	cutoff, err := s.LoadBigUInt(64)
	if err != nil {
		return nil, NewErrStructural("trusted state", err)
	}
	id, err := s.LoadUInt(32)
	if err != nil {
		return nil, NewErrStructural("trusted state", err)
	}
	list, err := s.LoadRef()
	if err != nil {
		return nil, NewErrStructural("trusted state", err)
	}
	state.Cutoff, state.ID, state.Validators = cutoff, uint32(id), list
	return state, nil
}

// MainValidators parses the compact list.
func (s *TrustedState) MainValidators() ([]*Validator, error) {
	return ParseValidatorsList(s.Validators)
}

func (s *TrustedState) String() string {
	return fmt.Sprintf("TrustedState{#%d epoch %d..%d cutoff %s}", s.Seqno, s.UTimeSince, s.UTimeUntil, s.Cutoff)
}
