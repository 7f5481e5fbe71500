package prune

import (
	"fmt"

	"github.com/tonred/ton-trustless-bridge/cell"
)

// DictMerkleProof reduces the Hashmap rooted at root to the forks that lead
// to keys. Every fork child on no such path is replaced by a pruned branch;
// children that are already exotic stay as they are. The result is the
// reduced root, not wrapped into a Merkle proof.
func DictMerkleProof(root *cell.Cell, keyBits int, keys []uint64) (*cell.Cell, error) {
	if keyBits <= 0 || keyBits > 64 {
		return nil, fmt.Errorf("%w: key width %d", cell.ErrInvalidDict, keyBits)
	}
	return dictProofNode(root, keyBits, 0, keyBits, keys)
}

func keyBit(key uint64, keyBits, i int) bool {
	return (key>>uint(keyBits-1-i))&1 == 1
}

func dictProofNode(c *cell.Cell, keyBits, pos, m int, keys []uint64) (*cell.Cell, error) {
	s := c.BeginParse()
	label, n, err := cell.LoadDictLabel(s, m)
	if err != nil {
		return nil, err
	}

	matching := make([]uint64, 0, len(keys))
	for _, k := range keys {
		ok := true
		for i := 0; i < n; i++ {
			if (label.Bit(n-1-i) == 1) != keyBit(k, keyBits, pos+i) {
				ok = false
				break
			}
		}
		if ok {
			matching = append(matching, k)
		}
	}
	if n == m {
		return c, nil
	}

	refs := c.Refs()
	if len(refs) < 2 {
		return nil, fmt.Errorf("%w: fork with %d refs", cell.ErrInvalidDict, len(refs))
	}
	for b := 0; b < 2; b++ {
		child := refs[b]
		if child.IsExotic() {
			continue
		}
		var sub []uint64
		for _, k := range matching {
			if keyBit(k, keyBits, pos+n) == (b == 1) {
				sub = append(sub, k)
			}
		}
		if len(sub) == 0 {
			refs[b], err = ConvertToPrunedBranch(child, false)
		} else {
			refs[b], err = dictProofNode(child, keyBits, pos+n+1, m-n-1, sub)
		}
		if err != nil {
			return nil, err
		}
	}
	return rebuild(c, refs)
}
