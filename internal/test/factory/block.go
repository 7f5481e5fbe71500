package factory

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/prune"
	"github.com/tonred/ton-trustless-bridge/types"
)

const (
	blockTag      = 0x11ef55aa
	blockInfoTag  = 0x9bc7a987
	blockExtraTag = 0x4a33f6fd
	valueFlowTag  = 0xb8e48dfb
	mcExtraTag    = 0xcca5
	stateTag      = 0x9023afe2
	mcStateTag    = 0xcc26

	globalID = -239
)

// BlockParams describes a synthetic masterchain block.
type BlockParams struct {
	Seqno             uint32
	PrevKeyBlockSeqno uint32
	GenUtime          uint32

	// KeyBlock blocks carry a config with the validator set.
	KeyBlock   bool
	Validators *types.ValidatorSet
	// ExtraParams are added to the config next to param 34.
	ExtraParams map[uint32]*cell.Cell

	AccountBlocks []*block.AccountBlock
}

func must(c *cell.Cell, err error) *cell.Cell {
	if err != nil {
		panic(err)
	}
	return c
}

// filler returns n deterministic bytes.
func filler(tag string, n int) []byte {
	out := make([]byte, 0, n)
	for i := 0; len(out) < n; i++ {
		var ctr [4]byte
		binary.BigEndian.PutUint32(ctr[:], uint32(i))
		h := sha256.Sum256(append([]byte(tag), ctr[:]...))
		out = append(out, h[:]...)
	}
	return out[:n]
}

// Block builds a masterchain block cell.
func Block(p BlockParams) *cell.Cell {
	info := blockInfo(p)
	valueFlow := must(cell.BeginCell().
		StoreUInt(valueFlowTag, 32).
		StoreRef(must(cell.BeginCell().StoreBytes(filler("vf-in", 64)).EndCell())).
		StoreBytes(filler("vf-fees", 16)).
		StoreRef(must(cell.BeginCell().StoreBytes(filler("vf-out", 64)).EndCell())).
		EndCell())

	stateUpdate := MerkleUpdate(
		must(cell.BeginCell().StoreBytes(filler("old-state", 100)).EndCell()),
		must(cell.BeginCell().StoreBytes(filler("new-state", 100)).EndCell()),
	)

	var accountBlocks *cell.Cell
	if len(p.AccountBlocks) > 0 {
		accountBlocks = must(block.StoreAccountBlocks(p.AccountBlocks))
	} else {
		accountBlocks = must(block.StoreCurrencyCollection(cell.BeginCell().StoreBoolBit(false), block.CurrencyCollection{}).EndCell())
	}
	emptyDescr := must(block.StoreCurrencyCollection(cell.BeginCell().StoreBoolBit(false), block.CurrencyCollection{}).EndCell())

	extra := must(cell.BeginCell().
		StoreUInt(blockExtraTag, 32).
		StoreRef(emptyDescr).
		StoreRef(must(cell.BeginCell().StoreBoolBit(true).StoreRef(
			must(cell.BeginCell().StoreBytes(filler("out-msgs", 120)).EndCell())).EndCell())).
		StoreRef(accountBlocks).
		StoreBytes(filler("rand-seed", 32)).
		StoreBytes(filler("created-by", 32)).
		StoreMaybeRef(mcBlockExtra(p)).
		EndCell())

	return must(cell.BeginCell().
		StoreUInt(blockTag, 32).
		StoreInt(globalID, 32).
		StoreRef(info).
		StoreRef(valueFlow).
		StoreRef(stateUpdate).
		StoreRef(extra).
		EndCell())
}

func blockInfo(p BlockParams) *cell.Cell {
	prevRef := must(cell.BeginCell().
		StoreUInt(uint64(p.Seqno)*1000000, 64).
		StoreUInt(uint64(p.Seqno-1), 32).
		StoreBytes(filler("prev-root", 32)).
		StoreBytes(filler("prev-file", 32)).
		EndCell())

	b := cell.BeginCell().
		StoreUInt(blockInfoTag, 32).
		StoreUInt(0, 32). // version
		StoreUInt(0, 6).  // not_master .. want_merge
		StoreBoolBit(p.KeyBlock).
		StoreBoolBit(false). // vert_seqno_incr
		StoreUInt(0, 8).     // flags
		StoreUInt(uint64(p.Seqno), 32).
		StoreUInt(0, 32). // vert_seq_no
		StoreUInt(0, 2).StoreUInt(0, 6).StoreInt(-1, 32).StoreUInt(1<<63, 64).
		StoreUInt(uint64(p.GenUtime), 32).
		StoreUInt(uint64(p.Seqno)*1000000, 64).
		StoreUInt(uint64(p.Seqno)*1000000+999, 64).
		StoreUInt(0, 32). // gen_validator_list_hash_short
		StoreUInt(0, 32). // gen_catchain_seqno
		StoreUInt(uint64(p.PrevKeyBlockSeqno), 32).
		StoreUInt(uint64(p.PrevKeyBlockSeqno), 32).
		StoreRef(prevRef)
	return must(b.EndCell())
}

func mcBlockExtra(p BlockParams) *cell.Cell {
	shardHashes := must(ShardHashes(
		ShardDescr(p.Seqno, filler("shard-left-root", 32), filler("shard-left-file", 32)),
		ShardDescr(p.Seqno+1, filler("shard-right-root", 32), filler("shard-right-file", 32)),
	))
	fees := must(cell.BeginCell().StoreBytes(filler("shard-fees", 90)).EndCell())
	misc := must(cell.BeginCell().StoreBoolBit(false).StoreBoolBit(false).StoreBoolBit(false).EndCell())

	b := cell.BeginCell().
		StoreUInt(mcExtraTag, 16).
		StoreBoolBit(p.KeyBlock).
		StoreMaybeRef(shardHashes).
		StoreMaybeRef(fees)
	block.StoreCurrencyCollection(b, block.CurrencyCollection{})
	block.StoreCurrencyCollection(b, block.CurrencyCollection{})
	b.StoreRef(misc)
	if p.KeyBlock {
		b.StoreBytes(filler("config-addr", 32)).StoreRef(Config(p.Validators, p.ExtraParams))
	}
	return must(b.EndCell())
}

// Config builds a config dictionary with the validator set as param 34.
func Config(vals *types.ValidatorSet, extra map[uint32]*cell.Cell) *cell.Cell {
	d := cell.NewDict(32)
	set := func(k uint32, v *cell.Cell) {
		value := must(cell.BeginCell().StoreRef(v).EndCell())
		if err := d.SetUint(uint64(k), value); err != nil {
			panic(err)
		}
	}
	set(0, must(cell.BeginCell().StoreBytes(filler("config-addr", 32)).EndCell()))
	set(1, must(cell.BeginCell().StoreBytes(filler("elector-addr", 32)).EndCell()))
	set(15, must(cell.BeginCell().StoreUInt(65536, 32).StoreUInt(32768, 32).StoreUInt(8192, 32).StoreUInt(32768, 32).EndCell()))
	if vals != nil {
		set(types.ValidatorSetConfigParam, must(types.ValidatorSetCell(vals)))
	}
	for k, v := range extra {
		set(k, v)
	}
	return must(d.ToCell())
}

// MerkleUpdate builds a Merkle update between two states, both pruned.
func MerkleUpdate(from, to *cell.Cell) *cell.Cell {
	fromPruned := must(prune.ConvertToPrunedBranch(from, false))
	toPruned := must(prune.ConvertToPrunedBranch(to, false))
	return must(cell.BeginCell().
		StoreUInt(uint64(cell.MerkleUpdate), 8).
		StoreBytes(fromPruned.Hash(0)).
		StoreBytes(toPruned.Hash(0)).
		StoreUInt(uint64(fromPruned.Depth(0)), 16).
		StoreUInt(uint64(toPruned.Depth(0)), 16).
		StoreRef(fromPruned).
		StoreRef(toPruned).
		EndExoticCell())
}

// FileHash returns the hash of the block's bag of cells.
func FileHash(b *cell.Cell) []byte {
	h := sha256.Sum256(b.ToBOC())
	return h[:]
}
