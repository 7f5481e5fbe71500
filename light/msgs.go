package light

import (
	"fmt"

	"github.com/tonred/ton-trustless-bridge/cell"
)

// Light client contract opcodes.
const (
	OpNewKeyBlock = 0x11a78ffe
	OpCheckBlock  = 0x8eaa9d76
	OpOK          = 0xff8ff4e1
	OpCorrect     = 0xce02b807

	// OpCheckTransaction is handled by the transaction checker contract.
	OpCheckTransaction   = 0x91d555f7
	OpTransactionChecked = 0x756adff1
)

const hashSize = 32

// BlockProof is a block as submitted to the light client: its file hash,
// its Merkle proof and the packed signatures of it.
type BlockProof struct {
	FileHash   []byte
	Proof      *cell.Cell
	Signatures *cell.Cell
}

func (p BlockProof) validate() error {
	if len(p.FileHash) != hashSize {
		return fmt.Errorf("file hash has %d bytes", len(p.FileHash))
	}
	if p.Proof == nil || p.Signatures == nil {
		return fmt.Errorf("missing block proof or signatures")
	}
	return nil
}

// NewKeyBlockBody builds new_key_block:
// op ^[file_hash ^proof] ^signatures query_id:64.
func NewKeyBlockBody(p BlockProof, queryID uint64) (*cell.Cell, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	blk, err := cell.BeginCell().StoreBytes(p.FileHash).StoreRef(p.Proof).EndCell()
	if err != nil {
		return nil, err
	}
	return cell.BeginCell().
		StoreUInt(OpNewKeyBlock, 32).
		StoreRef(blk).
		StoreRef(p.Signatures).
		StoreUInt(queryID, 64).
		EndCell()
}

// CheckBlockBody builds check_block:
// op ^[file_hash root_hash] ^signatures query_id:64 callback:(Maybe ^Cell).
func CheckBlockBody(fileHash, rootHash []byte, signatures *cell.Cell, queryID uint64, callback *cell.Cell) (*cell.Cell, error) {
	if len(fileHash) != hashSize || len(rootHash) != hashSize {
		return nil, fmt.Errorf("block hashes must have %d bytes", hashSize)
	}
	blk, err := cell.BeginCell().StoreBytes(fileHash).StoreBytes(rootHash).EndCell()
	if err != nil {
		return nil, err
	}
	return cell.BeginCell().
		StoreUInt(OpCheckBlock, 32).
		StoreRef(blk).
		StoreRef(signatures).
		StoreUInt(queryID, 64).
		StoreMaybeRef(callback).
		EndCell()
}

// TransactionProof locates a transaction in a proven block.
type TransactionProof struct {
	AccountBlockID []byte
	LT             uint64
	Proof          *cell.Cell
}

// CheckTransactionBody builds check_transaction for the transaction checker:
// op ^[^tx_proof account:256 lt:64] ^[file_hash ^signatures ^block_proof]
// ^current_block query_id:64. The current block part is left empty.
func CheckTransactionBody(tx TransactionProof, blk BlockProof, queryID uint64) (*cell.Cell, error) {
	if err := blk.validate(); err != nil {
		return nil, err
	}
	if len(tx.AccountBlockID) != hashSize || tx.Proof == nil {
		return nil, fmt.Errorf("incomplete transaction proof")
	}
	txPart, err := cell.BeginCell().
		StoreRef(tx.Proof).
		StoreBytes(tx.AccountBlockID).
		StoreUInt(tx.LT, 64).
		EndCell()
	if err != nil {
		return nil, err
	}
	blkPart, err := cell.BeginCell().
		StoreBytes(blk.FileHash).
		StoreRef(blk.Signatures).
		StoreRef(blk.Proof).
		EndCell()
	if err != nil {
		return nil, err
	}
	empty, err := cell.BeginCell().EndCell()
	if err != nil {
		return nil, err
	}
	return cell.BeginCell().
		StoreUInt(OpCheckTransaction, 32).
		StoreRef(txPart).
		StoreRef(blkPart).
		StoreRef(empty).
		StoreUInt(queryID, 64).
		EndCell()
}
