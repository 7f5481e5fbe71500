package factory

import (
	"math/big"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/prune"
)

const shardDescrTag = 0xb

// ShardDescr builds the body of a shard descriptor.
func ShardDescr(seqno uint32, rootHash, fileHash []byte) *cell.Cell {
	return must(cell.BeginCell().
		StoreUInt(shardDescrTag, 4).
		StoreUInt(uint64(seqno), 32).
		StoreUInt(uint64(seqno), 32).
		StoreUInt(uint64(seqno)*1000, 64).
		StoreUInt(uint64(seqno)*1000+500, 64).
		StoreBytes(rootHash).
		StoreBytes(fileHash).
		EndCell())
}

func binTreeLeaf(descr *cell.Cell) *cell.Cell {
	return must(cell.BeginCell().StoreBoolBit(false).StoreSlice(descr.BeginParse()).EndCell())
}

func shardTree(left, right *cell.Cell) *cell.Cell {
	return must(cell.BeginCell().StoreBoolBit(true).StoreRef(left).StoreRef(right).EndCell())
}

// ShardHashes builds the shard hashes dictionary with basechain split into
// two shards.
func ShardHashes(left, right *cell.Cell) (*cell.Cell, error) {
	return shardHashes(shardTree(binTreeLeaf(left), binTreeLeaf(right)))
}

func shardHashes(tree *cell.Cell) (*cell.Cell, error) {
	d := cell.NewDict(32)
	value := must(cell.BeginCell().StoreRef(tree).EndCell())
	if err := d.Set(big.NewInt(0), value); err != nil {
		return nil, err
	}
	return d.ToCell()
}

// ShardStateProof builds a Merkle proof of a masterchain state whose
// basechain shard tree has the left shard pruned, so only right is readable.
func ShardStateProof(left, right *cell.Cell) *cell.Cell {
	prunedLeft := must(prune.ConvertToPrunedBranch(binTreeLeaf(left), false))
	hashes := must(shardHashes(shardTree(prunedLeft, binTreeLeaf(right))))

	mcState := cell.BeginCell().
		StoreUInt(mcStateTag, 16).
		StoreMaybeRef(hashes).
		StoreBytes(filler("mc-config-addr", 32)).
		StoreRef(must(cell.BeginCell().StoreBytes(filler("mc-config", 64)).EndCell())).
		StoreRef(must(cell.BeginCell().StoreBytes(filler("mc-misc", 32)).EndCell()))
	block.StoreCurrencyCollection(mcState, block.CurrencyCollection{})

	state := must(cell.BeginCell().
		StoreUInt(stateTag, 32).
		StoreInt(globalID, 32).
		StoreBytes(filler("state-body", 40)).
		StoreRef(must(prune.ConvertToPrunedBranch(must(cell.BeginCell().StoreBytes(filler("queue", 64)).EndCell()), false))).
		StoreRef(must(prune.ConvertToPrunedBranch(must(cell.BeginCell().StoreBytes(filler("accounts", 64)).EndCell()), false))).
		StoreRef(must(cell.BeginCell().StoreBytes(filler("state-misc", 16)).EndCell())).
		StoreMaybeRef(must(mcState.EndCell())).
		EndCell())

	return must(prune.MerkleProof(state))
}

// ActiveAccount builds an active account whose data cell has a subtree.
func ActiveAccount(i int) (*cell.Cell, *block.Account) {
	code := must(cell.BeginCell().StoreBytes(filler("code", 100)).
		StoreRef(must(cell.BeginCell().StoreBytes(filler("code-lib", 100)).EndCell())).EndCell())
	data := must(cell.BeginCell().StoreBytes(filler("data", 60)).
		StoreRef(must(cell.BeginCell().StoreBytes(filler("data-child", 90)).EndCell())).EndCell())

	acc := &block.Account{
		Status:      block.AccountActive,
		Workchain:   0,
		Address:     Account(i),
		LastTransLT: 12345,
		Balance:     block.CurrencyCollection{Grams: big.NewInt(1000000000)},
		Code:        code,
		Data:        data,
	}
	return must(block.StoreAccount(cell.BeginCell(), acc).EndCell()), acc
}
