// Package prune reduces cell trees to the parts a verifier needs, replacing
// everything else with pruned branches that keep the original hashes.
package prune

import (
	"errors"
	"fmt"

	"github.com/tonred/ton-trustless-bridge/cell"
)

const (
	// smartBitsThreshold is the size below which a subtree is cheaper to
	// ship verbatim than as a pruned branch (which carries a 256-bit hash).
	smartBitsThreshold = 288
	// smartCellWeight is the bit cost charged for every extra cell.
	smartCellWeight = 100
)

// ErrLevelOverflow is returned when pruning a cell would need a Merkle level
// above cell.MaxLevel.
var ErrLevelOverflow = errors.New("pruned branch level overflow")

// ConvertToPrunedBranch replaces c with a pruned branch that keeps the hashes
// and depths of every level below the new level. The new level is the level
// of c when sameLevel is set and c already has a level, and one above it
// otherwise.
func ConvertToPrunedBranch(c *cell.Cell, sameLevel bool) (*cell.Cell, error) {
	level := c.Level()
	newLevel := level + 1
	if sameLevel && level > 0 {
		newLevel = level
	}
	if newLevel > cell.MaxLevel {
		return nil, fmt.Errorf("%w: cell of level %d", ErrLevelOverflow, level)
	}

	b := cell.BeginCell().
		StoreUInt(uint64(cell.PrunedBranch), 8).
		StoreUInt(uint64(cell.MaskForLevel(newLevel)), 8)
	for i := 0; i < newLevel; i++ {
		b.StoreBytes(c.Hash(i))
	}
	for i := 0; i < newLevel; i++ {
		b.StoreUInt(uint64(c.Depth(i)), 16)
	}
	return b.EndExoticCell()
}

// SmartConvertToPrunedBranch prunes c unless the subtree is small enough
// that keeping it is cheaper than a pruned branch.
func SmartConvertToPrunedBranch(c *cell.Cell, sameLevel bool) (*cell.Cell, error) {
	if keepVerbatim(c) {
		return c, nil
	}
	return ConvertToPrunedBranch(c, sameLevel)
}

func keepVerbatim(c *cell.Cell) bool {
	if c.BitsSize() >= smartBitsThreshold {
		return false
	}
	if c.RefsNum() == 0 {
		return true
	}
	st := CalcStats(c, false)
	total := c.BitsSize() + st.Bits
	return total < smartBitsThreshold && total+st.Cells*smartCellWeight <= smartBitsThreshold
}

// ConvertRefsToPrunedBranch rebuilds c with the listed children
// smart-pruned. The other children, the data bits and the exotic flag are
// kept as they are. Indexes past the last ref are ignored.
func ConvertRefsToPrunedBranch(c *cell.Cell, refs ...int) (*cell.Cell, error) {
	newRefs := c.Refs()
	for _, i := range refs {
		if i < 0 || i >= len(newRefs) {
			continue
		}
		p, err := SmartConvertToPrunedBranch(c.Ref(i), false)
		if err != nil {
			return nil, fmt.Errorf("ref %d: %w", i, err)
		}
		newRefs[i] = p
	}
	return rebuild(c, newRefs)
}

// MerkleProof wraps c into a Merkle proof cell that commits to its level-0
// hash and depth.
func MerkleProof(c *cell.Cell) (*cell.Cell, error) {
	return cell.BeginCell().
		StoreUInt(uint64(cell.MerkleProof), 8).
		StoreBytes(c.Hash(0)).
		StoreUInt(uint64(c.Depth(0)), 16).
		StoreRef(c).
		EndExoticCell()
}

// rebuild returns a copy of c with refs replaced. c itself is returned when
// nothing changed.
func rebuild(c *cell.Cell, refs []*cell.Cell) (*cell.Cell, error) {
	same := true
	for i, r := range refs {
		if r != c.Ref(i) {
			same = false
			break
		}
	}
	if same && len(refs) == c.RefsNum() {
		return c, nil
	}

	b := cell.BeginCell().StoreSlice(c.BeginParse().WithoutRefs())
	for _, r := range refs {
		b.StoreRef(r)
	}
	return b.EndCellAs(c.IsExotic())
}
