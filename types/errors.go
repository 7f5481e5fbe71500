package types

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInvalidConfig is returned when a config param does not hold a
	// validator set.
	ErrInvalidConfig = errors.New("invalid validator set config")
	// ErrConsistency is returned when a pruned block no longer hashes to the
	// original root hash.
	ErrConsistency = errors.New("pruned block hash mismatch")
	// ErrNoQuorum is returned when none of the signatures belongs to a
	// validator of the list.
	ErrNoQuorum = errors.New("no matching validator signatures found")
	// ErrNotFound is returned when a transaction or config param is missing
	// from a block.
	ErrNotFound = errors.New("not found")
)

// ErrStructural means a cell does not follow the layout expected at that
// position of the block.
type ErrStructural struct {
	What   string
	Reason error
}

func (e ErrStructural) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.What, e.Reason)
}

// Unwrap returns the underlying reason.
func (e ErrStructural) Unwrap() error {
	return e.Reason
}

// NewErrStructural wraps reason as a structural error about what.
func NewErrStructural(what string, reason error) error {
	return ErrStructural{What: what, Reason: reason}
}

// IsErrStructural returns true if err is ErrStructural.
func IsErrStructural(err error) bool {
	return errors.As(err, &ErrStructural{})
}

// ErrNotEnoughWeightSigned is returned when the signatures of a block carry
// less weight than the cutoff.
type ErrNotEnoughWeightSigned struct {
	Got    *big.Int
	Needed *big.Int
}

func (e ErrNotEnoughWeightSigned) Error() string {
	return fmt.Sprintf("insufficient signed weight: got %s, needed %s", e.Got, e.Needed)
}
