// Package block locates the parts of a masterchain block that proofs are
// built from: the header fields, the config dictionary, the transactions and
// the shard descriptors.
package block

import (
	"fmt"
	"math/big"

	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/types"
)

// Refs of a block cell.
const (
	RefInfo = iota
	RefValueFlow
	RefStateUpdate
	RefExtra
)

// Refs of a block extra cell.
const (
	ExtraRefInMsgDescr = iota
	ExtraRefOutMsgDescr
	ExtraRefAccountBlocks
	ExtraRefCustom
)

const (
	keyBlockOffset          = 70
	seqnoOffset             = 80
	genUtimeOffset          = 248
	prevKeyBlockSeqnoOffset = 504

	configKeyBits  = 32
	shardKeyBits   = 32
	accountKeyBits = 256
	txLTKeyBits    = 64
)

// Transaction locates a transaction inside a block.
type Transaction struct {
	LT             uint64
	AccountBlockID []byte // 256-bit account address
	Hash           []byte
	Raw            *cell.Cell
}

func refPath(c *cell.Cell, path ...int) (*cell.Cell, error) {
	for depth, i := range path {
		next := c.Ref(i)
		if next == nil {
			return nil, fmt.Errorf("ref %d at depth %d: %w", i, depth, cell.ErrCellUnderflow)
		}
		c = next
	}
	return c, nil
}

func uintAt(c *cell.Cell, offset int) (uint32, error) {
	s := c.BeginParse()
	if err := s.SkipBits(offset); err != nil {
		return 0, err
	}
	v, err := s.LoadUInt(32)
	return uint32(v), err
}

// GetSeqno returns the sequence number from the block info.
func GetSeqno(block *cell.Cell) (uint32, error) {
	info, err := refPath(block, RefInfo)
	if err != nil {
		return 0, types.NewErrStructural("block info", err)
	}
	v, err := uintAt(info, seqnoOffset)
	if err != nil {
		return 0, types.NewErrStructural("block info", err)
	}
	return v, nil
}

// GetPrevKeyBlockSeqno returns the sequence number of the key block
// preceding the block.
func GetPrevKeyBlockSeqno(block *cell.Cell) (uint32, error) {
	info, err := refPath(block, RefInfo)
	if err != nil {
		return 0, types.NewErrStructural("block info", err)
	}
	v, err := uintAt(info, prevKeyBlockSeqnoOffset)
	if err != nil {
		return 0, types.NewErrStructural("block info", err)
	}
	return v, nil
}

// Info is the part of the block header the light client follows.
type Info struct {
	KeyBlock          bool
	Seqno             uint32
	GenUtime          uint32
	PrevKeyBlockSeqno uint32
}

// ParseInfo reads the header fields of a block.
func ParseInfo(block *cell.Cell) (*Info, error) {
	c, err := refPath(block, RefInfo)
	if err != nil {
		return nil, types.NewErrStructural("block info", err)
	}
	info := &Info{}
	s := c.BeginParse()
	if err = s.SkipBits(keyBlockOffset); err == nil {
		info.KeyBlock, err = s.LoadBit()
	}
	if err == nil {
		info.Seqno, err = uintAt(c, seqnoOffset)
	}
	if err == nil {
		info.GenUtime, err = uintAt(c, genUtimeOffset)
	}
	if err == nil {
		info.PrevKeyBlockSeqno, err = uintAt(c, prevKeyBlockSeqnoOffset)
	}
	if err != nil {
		return nil, types.NewErrStructural("block info", err)
	}
	return info, nil
}

// McBlockExtra returns the masterchain extra of a block.
func McBlockExtra(block *cell.Cell) (*cell.Cell, error) {
	c, err := refPath(block, RefExtra, ExtraRefCustom)
	if err != nil {
		return nil, types.NewErrStructural("masterchain block extra", err)
	}
	return c, nil
}

// ConfigRoot returns the config dictionary referenced by a masterchain
// extra: the fourth ref when shard fees are present, the second otherwise.
func ConfigRoot(mcExtra *cell.Cell) (*cell.Cell, error) {
	idx := 1
	if mcExtra.RefsNum() == 4 {
		idx = 3
	}
	c := mcExtra.Ref(idx)
	if c == nil {
		return nil, types.NewErrStructural("masterchain block extra",
			fmt.Errorf("%w: no config ref among %d refs", cell.ErrCellUnderflow, mcExtra.RefsNum()))
	}
	return c, nil
}

// GetConfig reads the config params of a key block. It returns the params
// by number together with the dictionary root.
func GetConfig(block *cell.Cell) (map[uint32]*cell.Cell, *cell.Cell, error) {
	mcExtra, err := McBlockExtra(block)
	if err != nil {
		return nil, nil, err
	}
	root, err := ConfigRoot(mcExtra)
	if err != nil {
		return nil, nil, err
	}

	params := make(map[uint32]*cell.Cell)
	err = cell.ParseDict(root, configKeyBits, func(key *big.Int, value *cell.Slice) error {
		v, err := value.LoadRef()
		if err != nil {
			return err
		}
		params[uint32(key.Uint64())] = v
		return nil
	})
	if err != nil {
		return nil, nil, types.NewErrStructural("config dictionary", err)
	}
	return params, root, nil
}

// GetConfigParam returns a single config param of a key block.
func GetConfigParam(block *cell.Cell, param uint32) (*cell.Cell, error) {
	params, _, err := GetConfig(block)
	if err != nil {
		return nil, err
	}
	c, ok := params[param]
	if !ok {
		return nil, fmt.Errorf("config param %d: %w", param, types.ErrNotFound)
	}
	return c, nil
}

// AccountBlocks returns the ShardAccountBlocks cell of a block.
func AccountBlocks(block *cell.Cell) (*cell.Cell, error) {
	c, err := refPath(block, RefExtra, ExtraRefAccountBlocks)
	if err != nil {
		return nil, types.NewErrStructural("account blocks", err)
	}
	return c, nil
}

// GetTransactions lists the transactions of a block ordered by account and
// then by logical time. Pruned parts of the block are skipped.
func GetTransactions(block *cell.Cell) ([]Transaction, error) {
	accountBlocks, err := AccountBlocks(block)
	if err != nil {
		return nil, err
	}
	root, err := accountBlocks.BeginParse().LoadMaybeRef()
	if err != nil {
		return nil, types.NewErrStructural("account blocks", err)
	}

	var txs []Transaction
	err = cell.ParseDict(root, accountKeyBits, func(key *big.Int, value *cell.Slice) error {
		if _, err := ParseCurrencyCollection(value); err != nil {
			return err
		}
		ab, err := ParseAccountBlock(value)
		if err != nil {
			return fmt.Errorf("account %x: %w", key, err)
		}
		for _, tx := range ab.Transactions {
			txs = append(txs, Transaction{
				LT:             tx.LT,
				AccountBlockID: ab.Account,
				Hash:           tx.Cell.Hash(0),
				Raw:            tx.Cell,
			})
		}
		return nil
	})
	if err != nil {
		return nil, types.NewErrStructural("account blocks", err)
	}
	return txs, nil
}

// FindTransaction returns the transaction with the given hash.
func FindTransaction(block *cell.Cell, hash []byte) (*Transaction, error) {
	txs, err := GetTransactions(block)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		if string(txs[i].Hash) == string(hash) {
			return &txs[i], nil
		}
	}
	return nil, fmt.Errorf("transaction %x: %w", hash, types.ErrNotFound)
}

// LoadShardDescrFromProof extracts the basechain shard descriptor from a
// Merkle proof of a masterchain state. The shard tree is followed down its
// left-most unpruned path, and the descriptor is returned as a BinTree leaf
// cell.
func LoadShardDescrFromProof(proof *cell.Cell) (*cell.Cell, error) {
	hashes, err := refPath(proof, 0, 3, 0)
	if err != nil {
		return nil, types.NewErrStructural("shard hashes", err)
	}
	value, err := cell.DictLookup(hashes, shardKeyBits, big.NewInt(0))
	if err != nil {
		return nil, types.NewErrStructural("shard hashes", err)
	}
	tree, err := value.LoadRef()
	if err != nil {
		return nil, types.NewErrStructural("shard hashes", err)
	}

	s := tree.BeginParse()
	for {
		fork, err := s.LoadBit()
		if err != nil {
			return nil, types.NewErrStructural("shard tree", err)
		}
		if !fork {
			break
		}
		left, err := s.LoadRef()
		if err != nil {
			return nil, types.NewErrStructural("shard tree", err)
		}
		if left.IsExotic() {
			right, err := s.LoadRef()
			if err != nil {
				return nil, types.NewErrStructural("shard tree", err)
			}
			s = right.BeginParse()
		} else {
			s = left.BeginParse()
		}
	}

	leaf, err := cell.BeginCell().StoreBoolBit(false).StoreSlice(s).EndCell()
	if err != nil {
		return nil, types.NewErrStructural("shard descriptor", err)
	}
	return leaf, nil
}
