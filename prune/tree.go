package prune

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/tonred/ton-trustless-bridge/cell"
)

type pruneResult struct {
	cell *cell.Cell
	keep bool
}

type branchPruner struct {
	keep map[string]struct{}
	memo map[string]pruneResult
}

// PruneUnusedBranches prunes every part of the tree that does not lead to a
// cell whose level-0 hash (hex) is listed in keepHashesHex. A child stays
// expanded when its own subtree holds a listed cell or when it is listed
// itself; every other child is smart-pruned at the same level. The returned
// flag reports whether anything below c was kept; when nothing was, c is
// smart-pruned as a whole.
func PruneUnusedBranches(c *cell.Cell, keepHashesHex []string) (*cell.Cell, bool, error) {
	p := &branchPruner{
		keep: make(map[string]struct{}, len(keepHashesHex)),
		memo: make(map[string]pruneResult),
	}
	for _, h := range keepHashesHex {
		p.keep[strings.ToLower(h)] = struct{}{}
	}
	res, err := p.prune(c)
	if err != nil {
		return nil, false, err
	}
	return res.cell, res.keep, nil
}

func (p *branchPruner) listed(c *cell.Cell) bool {
	_, ok := p.keep[hex.EncodeToString(c.Hash(0))]
	return ok
}

func (p *branchPruner) prune(c *cell.Cell) (pruneResult, error) {
	key := string(c.RepresentationHash())
	if res, ok := p.memo[key]; ok {
		return res, nil
	}

	refs := c.Refs()
	keep := false
	for i, ref := range refs {
		res, err := p.prune(ref)
		if err != nil {
			return pruneResult{}, err
		}
		if res.keep || p.listed(ref) {
			keep = true
			refs[i] = res.cell
			continue
		}
		if refs[i], err = SmartConvertToPrunedBranch(ref, true); err != nil {
			return pruneResult{}, err
		}
	}

	out, err := rebuild(c, refs)
	if err != nil {
		return pruneResult{}, err
	}
	if !keep {
		if out, err = SmartConvertToPrunedBranch(out, true); err != nil {
			return pruneResult{}, err
		}
	}

	res := pruneResult{cell: out, keep: keep}
	p.memo[key] = res
	return res, nil
}

// ReplaceCellInTree returns a copy of c in which every ref whose level-0 hash
// equals targetHash is replaced by replacement. The root itself is never
// replaced; subtrees without a match are shared with the input.
func ReplaceCellInTree(c *cell.Cell, targetHash []byte, replacement *cell.Cell) (*cell.Cell, error) {
	memo := make(map[string]*cell.Cell)

	var walk func(c *cell.Cell) (*cell.Cell, error)
	walk = func(c *cell.Cell) (*cell.Cell, error) {
		key := string(c.RepresentationHash())
		if out, ok := memo[key]; ok {
			return out, nil
		}
		refs := c.Refs()
		for i, ref := range refs {
			if bytes.Equal(ref.Hash(0), targetHash) {
				refs[i] = replacement
				continue
			}
			r, err := walk(ref)
			if err != nil {
				return nil, err
			}
			refs[i] = r
		}
		out, err := rebuild(c, refs)
		if err != nil {
			return nil, err
		}
		memo[key] = out
		return out, nil
	}
	return walk(c)
}
