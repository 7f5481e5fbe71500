package types

import (
	"fmt"
	"math/big"

	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/crypto/ed25519"
	"github.com/tonred/ton-trustless-bridge/prune"
)

const (
	validatorSetExtTag = 0x12

	// ValidatorSetConfigParam is the config param holding the current
	// validator set.
	ValidatorSetConfigParam = 34

	validatorsKeyBits = 16
)

// ValidatorSet is the content of config param 34.
//
// Validators holds the entries that could be read from the list, ordered by
// slot. When the list was reduced to the main validators, only those are
// present.
type ValidatorSet struct {
	UTimeSince  uint32
	UTimeUntil  uint32
	Total       uint16
	Main        uint16
	TotalWeight uint64

	Validators []*Validator

	// ListCell is the validator dictionary, possibly Merkle-reduced to the
	// main validators.
	ListCell *cell.Cell
}

// MainValidators returns the validators in slots [0, Main).
func (vals *ValidatorSet) MainValidators() []*Validator {
	if int(vals.Main) < len(vals.Validators) {
		return vals.Validators[:vals.Main]
	}
	return vals.Validators
}

// ParseConfigParamValidators reads a ValidatorSetExt (tag 0x12) cell. When
// stripNonMain is set, ListCell is reduced to a dictionary Merkle proof of
// the slots [0, Main).
func ParseConfigParamValidators(c *cell.Cell, stripNonMain bool) (*ValidatorSet, error) {
	vals, err := parseValidatorSet(c, stripNonMain)
	if err != nil {
		return nil, NewErrStructural("validator set", err)
	}
	return vals, nil
}

func parseValidatorSet(c *cell.Cell, stripNonMain bool) (*ValidatorSet, error) {
	s := c.BeginParse()
	tag, err := s.LoadUInt(8)
	if err != nil {
		return nil, err
	}
	if tag != validatorSetExtTag {
		return nil, fmt.Errorf("%w: unknown ValidatorSetExt tag %#x", ErrInvalidConfig, tag)
	}

	vals := &ValidatorSet{}
	since, err := s.LoadUInt(32)
	if err != nil {
		return nil, err
	}
	until, err := s.LoadUInt(32)
	if err != nil {
		return nil, err
	}
	total, err := s.LoadUInt(16)
	if err != nil {
		return nil, err
	}
	main, err := s.LoadUInt(16)
	if err != nil {
		return nil, err
	}
	if vals.TotalWeight, err = s.LoadUInt(64); err != nil {
		return nil, err
	}
	vals.UTimeSince, vals.UTimeUntil = uint32(since), uint32(until)
	vals.Total, vals.Main = uint16(total), uint16(main)
	if vals.Main > vals.Total {
		return nil, fmt.Errorf("%w: main %d exceeds total %d", ErrInvalidConfig, vals.Main, vals.Total)
	}

	list, err := s.LoadMaybeRef()
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("%w: empty validator list", ErrInvalidConfig)
	}
	err = cell.ParseDict(list, validatorsKeyBits, func(key *big.Int, value *cell.Slice) error {
		if key.Uint64() != uint64(len(vals.Validators)) {
			return fmt.Errorf("%w: validator slot %d out of order", ErrInvalidConfig, key.Uint64())
		}
		v, err := parseValidatorDescr(value)
		if err != nil {
			return fmt.Errorf("validator %d: %w", key.Uint64(), err)
		}
		vals.Validators = append(vals.Validators, v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	vals.ListCell = list
	if stripNonMain {
		keys := make([]uint64, vals.Main)
		for i := range keys {
			keys[i] = uint64(i)
		}
		if vals.ListCell, err = prune.DictMerkleProof(list, validatorsKeyBits, keys); err != nil {
			return nil, err
		}
		if len(vals.Validators) > int(vals.Main) {
			vals.Validators = vals.Validators[:vals.Main]
		}
	}
	return vals, nil
}

// CutoffWeight returns floor(total*2/3)+1, the weight a set of signatures
// must reach.
func CutoffWeight(total *big.Int) *big.Int {
	w := new(big.Int).Mul(total, big.NewInt(2))
	w.Quo(w, big.NewInt(3))
	return w.Add(w, big.NewInt(1))
}

// PrepareValidatorsList rebuilds the first main validators of a config list
// into the compact dictionary slot -> pubkey ‖ weight and returns it together
// with the cutoff weight of those validators. Pruned parts of listCell are
// skipped; every slot below main must be present.
func PrepareValidatorsList(main int, listCell *cell.Cell) (*cell.Cell, *big.Int, error) {
	entries := make(map[uint64]*Validator, main)
	err := cell.ParseDict(listCell, validatorsKeyBits, func(key *big.Int, value *cell.Slice) error {
		if k := key.Uint64(); k < uint64(main) {
			v, err := parseValidatorDescr(value)
			if err != nil {
				return fmt.Errorf("validator %d: %w", k, err)
			}
			entries[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, nil, NewErrStructural("validator list", err)
	}

	list := cell.NewDict(validatorsKeyBits)
	total := new(big.Int)
	for k := 0; k < main; k++ {
		v, ok := entries[uint64(k)]
		if !ok {
			continue
		}
		value, err := cell.BeginCell().
			StoreBytes(v.PubKey.Bytes()).
			StoreUInt(v.Weight, 64).
			EndCell()
		if err != nil {
			return nil, nil, err
		}
		if err := list.SetUint(uint64(k), value); err != nil {
			return nil, nil, err
		}
		total.Add(total, new(big.Int).SetUint64(v.Weight))
	}
	if list.Size() != main {
		return nil, nil, NewErrStructural("validator list",
			fmt.Errorf("%w: rebuilt %d of %d main validators", ErrInvalidConfig, list.Size(), main))
	}

	root, err := list.ToCell()
	if err != nil {
		return nil, nil, err
	}
	return root, CutoffWeight(total), nil
}

// ParseValidatorsList reads a compact validator list back, ordered by slot.
func ParseValidatorsList(listCell *cell.Cell) ([]*Validator, error) {
	var vals []*Validator
	err := cell.ParseDict(listCell, validatorsKeyBits, func(key *big.Int, value *cell.Slice) error {
		if key.Uint64() != uint64(len(vals)) {
			return fmt.Errorf("slot %d out of order", key.Uint64())
		}
		pk, err := value.LoadBytes(ed25519.PubKeySize)
		if err != nil {
			return err
		}
		weight, err := value.LoadUInt(64)
		if err != nil {
			return err
		}
		vals = append(vals, &Validator{PubKey: ed25519.PubKey(pk), Weight: weight})
		return nil
	})
	if err != nil {
		return nil, NewErrStructural("compact validator list", err)
	}
	return vals, nil
}

// TotalWeight sums the weights of vals.
func TotalWeight(vals []*Validator) *big.Int {
	total := new(big.Int)
	for _, v := range vals {
		total.Add(total, new(big.Int).SetUint64(v.Weight))
	}
	return total
}

// ValidatorListCell builds a config validator dictionary with the records in
// slot order. It is the inverse of the list parsing above.
func ValidatorListCell(vals []*Validator) (*cell.Cell, error) {
	d := cell.NewDict(validatorsKeyBits)
	for i, v := range vals {
		value, err := StoreValidatorDescr(cell.BeginCell(), v).EndCell()
		if err != nil {
			return nil, err
		}
		if err := d.SetUint(uint64(i), value); err != nil {
			return nil, err
		}
	}
	return d.ToCell()
}

// ValidatorSetCell builds a ValidatorSetExt cell for vals.
func ValidatorSetCell(vals *ValidatorSet) (*cell.Cell, error) {
	list, err := ValidatorListCell(vals.Validators)
	if err != nil {
		return nil, err
	}
	return cell.BeginCell().
		StoreUInt(validatorSetExtTag, 8).
		StoreUInt(uint64(vals.UTimeSince), 32).
		StoreUInt(uint64(vals.UTimeUntil), 32).
		StoreUInt(uint64(vals.Total), 16).
		StoreUInt(uint64(vals.Main), 16).
		StoreUInt(vals.TotalWeight, 64).
		StoreMaybeRef(list).
		EndCell()
}
