// Package proof builds the Merkle proofs submitted to the on-chain light
// client: pruned key blocks, pruned blocks proving transactions, and
// account state proofs.
package proof

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/prune"
	"github.com/tonred/ton-trustless-bridge/types"
)

// ExtraFilter rewrites the extra cell of a block.
type ExtraFilter func(extra *cell.Cell) (*cell.Cell, error)

// PrepareBlock prunes a block down to the transactions with the given
// hashes and wraps it into a Merkle proof.
func PrepareBlock(b *cell.Cell, txHashes [][]byte) (*cell.Cell, error) {
	keep := make([]string, len(txHashes))
	for i, h := range txHashes {
		keep[i] = hex.EncodeToString(h)
	}
	return clearBlock(b, func(extra *cell.Cell) (*cell.Cell, error) {
		refs := extra.Refs()
		if len(refs) < 4 {
			return nil, types.NewErrStructural("block extra",
				fmt.Errorf("%w: %d refs", cell.ErrCellUnderflow, len(refs)))
		}
		for _, i := range []int{block.ExtraRefInMsgDescr, block.ExtraRefOutMsgDescr, block.ExtraRefCustom} {
			p, err := prune.SmartConvertToPrunedBranch(refs[i], false)
			if err != nil {
				return nil, err
			}
			refs[i] = p
		}
		ab, err := ClearAccountBlocks(refs[block.ExtraRefAccountBlocks], keep)
		if err != nil {
			return nil, err
		}
		refs[block.ExtraRefAccountBlocks] = ab
		return withRefs(extra, refs)
	})
}

// PrepareKeyBlock prunes a key block down to its header and the main
// validators of config param 34, and wraps it into a Merkle proof.
func PrepareKeyBlock(b *cell.Cell) (*cell.Cell, error) {
	return clearBlock(b, func(extra *cell.Cell) (*cell.Cell, error) {
		refs := extra.Refs()
		if len(refs) < 4 {
			return nil, types.NewErrStructural("block extra",
				fmt.Errorf("%w: %d refs", cell.ErrCellUnderflow, len(refs)))
		}
		for _, i := range []int{block.ExtraRefInMsgDescr, block.ExtraRefOutMsgDescr, block.ExtraRefAccountBlocks} {
			p, err := prune.SmartConvertToPrunedBranch(refs[i], false)
			if err != nil {
				return nil, err
			}
			refs[i] = p
		}
		mc, err := ClearMcExtra(refs[block.ExtraRefCustom])
		if err != nil {
			return nil, err
		}
		refs[block.ExtraRefCustom] = mc
		return withRefs(extra, refs)
	})
}

func clearBlock(b *cell.Cell, filter ExtraFilter) (*cell.Cell, error) {
	refs := b.Refs()
	if len(refs) != 4 {
		return nil, types.NewErrStructural("block",
			fmt.Errorf("%w: %d refs", cell.ErrCellUnderflow, len(refs)))
	}

	info, err := prune.ConvertRefsToPrunedBranch(refs[block.RefInfo], 0, 1, 2, 3)
	if err != nil {
		return nil, err
	}
	refs[block.RefInfo] = info
	for _, i := range []int{block.RefValueFlow, block.RefStateUpdate} {
		if refs[i], err = prune.SmartConvertToPrunedBranch(refs[i], false); err != nil {
			return nil, err
		}
	}
	if refs[block.RefExtra], err = filter(refs[block.RefExtra]); err != nil {
		return nil, err
	}

	out, err := withRefs(b, refs)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(out.Hash(0), b.Hash(0)) {
		return nil, fmt.Errorf("%w: got %X, want %X", types.ErrConsistency, out.Hash(0), b.Hash(0))
	}
	return prune.MerkleProof(out)
}

// ClearMcExtra keeps the config dictionary of a masterchain extra reduced to
// param 34, itself reduced to the main validators. Shard hashes are
// smart-pruned; the shard fee refs are kept as they are.
func ClearMcExtra(mcExtra *cell.Cell) (*cell.Cell, error) {
	refs := mcExtra.Refs()
	if len(refs) != 2 && len(refs) != 4 {
		return nil, types.NewErrStructural("masterchain block extra",
			fmt.Errorf("unexpected %d refs", len(refs)))
	}

	var err error
	if refs[0], err = prune.SmartConvertToPrunedBranch(refs[0], false); err != nil {
		return nil, err
	}

	configIdx := len(refs) - 1
	if refs[configIdx], err = clearConfig(refs[configIdx]); err != nil {
		return nil, err
	}
	return withRefs(mcExtra, refs)
}

func clearConfig(root *cell.Cell) (*cell.Cell, error) {
	value, err := cell.DictLookup(root, 32, bigKey(types.ValidatorSetConfigParam))
	if err != nil {
		return nil, types.NewErrStructural("config dictionary", err)
	}
	param, err := value.LoadRef()
	if err != nil {
		return nil, types.NewErrStructural("config dictionary", err)
	}

	vals, err := types.ParseConfigParamValidators(param, true)
	if err != nil {
		return nil, err
	}
	header := param.BeginParse()
	if _, err := header.LoadRef(); err != nil {
		return nil, types.NewErrStructural("validator set", err)
	}
	reduced, err := cell.BeginCell().
		StoreSlice(header).
		StoreRef(vals.ListCell).
		EndCell()
	if err != nil {
		return nil, err
	}

	replaced, err := prune.ReplaceCellInTree(root, param.Hash(0), reduced)
	if err != nil {
		return nil, err
	}
	return prune.DictMerkleProof(replaced, 32, []uint64{types.ValidatorSetConfigParam})
}

// ClearAccountBlocks prunes the account blocks of a block to the paths of
// the transactions whose hashes (hex) are listed.
func ClearAccountBlocks(accountBlocks *cell.Cell, txHashesHex []string) (*cell.Cell, error) {
	out, _, err := prune.PruneUnusedBranches(accountBlocks, txHashesHex)
	return out, err
}

// PrepareAccountState proves the data hash of an active account: every
// other part of the account is pruned. Other accounts are wrapped as they
// are.
func PrepareAccountState(account *cell.Cell) (*cell.Cell, error) {
	acc, err := block.ParseAccount(account)
	if err != nil {
		return nil, err
	}
	state := account
	if acc.Status == block.AccountActive && acc.Data != nil {
		if state, _, err = prune.PruneUnusedBranches(account, []string{hex.EncodeToString(acc.Data.Hash(0))}); err != nil {
			return nil, err
		}
	}
	return prune.MerkleProof(state)
}

// PrepareTransactionProof returns a Merkle proof that commits to the hash
// of a transaction only.
func PrepareTransactionProof(tx *cell.Cell) (*cell.Cell, error) {
	p, err := prune.ConvertToPrunedBranch(tx, false)
	if err != nil {
		return nil, err
	}
	return prune.MerkleProof(p)
}

func withRefs(c *cell.Cell, refs []*cell.Cell) (*cell.Cell, error) {
	b := cell.BeginCell().StoreSlice(c.BeginParse().WithoutRefs())
	for _, r := range refs {
		b.StoreRef(r)
	}
	return b.EndCellAs(c.IsExotic())
}
