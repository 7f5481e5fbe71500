package provider

import (
	"context"
	"fmt"

	"github.com/tonred/ton-trustless-bridge/types"
)

// MasterchainWorkchain is the workchain of masterchain blocks.
const MasterchainWorkchain = -1

// MasterchainShard is the shard id of the masterchain.
const MasterchainShard = int64(-9223372036854775808)

// BlockID identifies a block. RootHash and FileHash may be empty when only
// the seqno is known.
type BlockID struct {
	Workchain int32
	Shard     int64
	Seqno     uint32
	RootHash  []byte
	FileHash  []byte
}

func (id BlockID) String() string {
	return fmt.Sprintf("(%d,%016x,%d)", id.Workchain, uint64(id.Shard), id.Seqno)
}

// BlockHeader is the part of a block header the light client follows.
type BlockHeader struct {
	ID                BlockID
	IsKeyBlock        bool
	PrevKeyBlockSeqno uint32
	GenUtime          uint32
}

// MasterchainInfo describes the newest masterchain block known to a
// provider.
type MasterchainInfo struct {
	Last BlockID
}

// Provider provides blocks and signatures for the light client to build
// proofs from (verification happens in the client).
type Provider interface {
	// MasterchainInfo returns the last masterchain block.
	MasterchainInfo(ctx context.Context) (*MasterchainInfo, error)

	// LookupBlock returns the full id of a block by seqno.
	//
	// If there's no such block, ErrBlockNotFound is returned.
	LookupBlock(ctx context.Context, workchain int32, shard int64, seqno uint32) (*BlockID, error)

	// Block returns the bag of cells of a block.
	Block(ctx context.Context, id BlockID) ([]byte, error)

	// BlockHeader returns the header of a block.
	BlockHeader(ctx context.Context, id BlockID) (*BlockHeader, error)

	// MasterchainBlockSignatures returns the validator signatures of a
	// masterchain block.
	MasterchainBlockSignatures(ctx context.Context, seqno uint32) ([]types.BlockSignature, error)

	// String returns the provider's address.
	String() string
}
