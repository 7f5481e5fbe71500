package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/crypto"
	"github.com/tonred/ton-trustless-bridge/light/provider"
	"github.com/tonred/ton-trustless-bridge/types"
)

type entry struct {
	id     provider.BlockID
	boc    []byte
	header *provider.BlockHeader
	sigs   []types.BlockSignature
}

// Mock serves masterchain blocks from memory.
type Mock struct {
	name string

	mtx     sync.Mutex
	blocks  map[uint32]*entry
	last    uint32
	fetched map[uint32]int
}

var _ provider.Provider = (*Mock)(nil)

// New creates a mock provider with the given blocks and their signatures.
// The block with the highest seqno is the last masterchain block.
func New(name string, blocks []*cell.Cell, sigs map[uint32][]types.BlockSignature) (*Mock, error) {
	p := &Mock{
		name:    name,
		blocks:  make(map[uint32]*entry, len(blocks)),
		fetched: make(map[uint32]int),
	}
	for _, b := range blocks {
		if err := p.AddBlock(b, nil); err != nil {
			return nil, err
		}
	}
	for seqno, s := range sigs {
		e, ok := p.blocks[seqno]
		if !ok {
			return nil, fmt.Errorf("signatures for unknown block %d", seqno)
		}
		e.sigs = s
	}
	return p, nil
}

// AddBlock makes b available, replacing a block with the same seqno.
func (p *Mock) AddBlock(b *cell.Cell, sigs []types.BlockSignature) error {
	info, err := block.ParseInfo(b)
	if err != nil {
		return err
	}
	boc := b.ToBOC()
	fileHash := crypto.Checksum(boc)
	id := provider.BlockID{
		Workchain: provider.MasterchainWorkchain,
		Shard:     provider.MasterchainShard,
		Seqno:     info.Seqno,
		RootHash:  b.Hash(0),
		FileHash:  fileHash,
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.blocks[info.Seqno] = &entry{
		id:  id,
		boc: boc,
		header: &provider.BlockHeader{
			ID:                id,
			IsKeyBlock:        info.KeyBlock,
			PrevKeyBlockSeqno: info.PrevKeyBlockSeqno,
			GenUtime:          info.GenUtime,
		},
		sigs: sigs,
	}
	if info.Seqno > p.last {
		p.last = info.Seqno
	}
	return nil
}

func (p *Mock) String() string {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	seqnos := make([]int, 0, len(p.blocks))
	for s := range p.blocks {
		seqnos = append(seqnos, int(s))
	}
	sort.Ints(seqnos)

	var blocks strings.Builder
	for _, s := range seqnos {
		fmt.Fprintf(&blocks, " %d:%X", s, p.blocks[uint32(s)].id.RootHash)
	}
	return fmt.Sprintf("Mock{%s blocks:%s}", p.name, blocks.String())
}

// BlocksFetched returns how many times the bag of cells of a block was
// requested.
func (p *Mock) BlocksFetched(seqno uint32) int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.fetched[seqno]
}

func (p *Mock) get(seqno uint32) (*entry, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	e, ok := p.blocks[seqno]
	if !ok {
		return nil, provider.ErrBlockNotFound
	}
	return e, nil
}

func (p *Mock) MasterchainInfo(ctx context.Context) (*provider.MasterchainInfo, error) {
	e, err := p.get(p.lastSeqno())
	if err != nil {
		return nil, err
	}
	return &provider.MasterchainInfo{Last: e.id}, nil
}

func (p *Mock) lastSeqno() uint32 {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.last
}

func (p *Mock) LookupBlock(ctx context.Context, workchain int32, shard int64, seqno uint32) (*provider.BlockID, error) {
	if workchain != provider.MasterchainWorkchain {
		return nil, provider.ErrBlockNotFound
	}
	e, err := p.get(seqno)
	if err != nil {
		return nil, err
	}
	id := e.id
	return &id, nil
}

func (p *Mock) Block(ctx context.Context, id provider.BlockID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := p.get(id.Seqno)
	if err != nil {
		return nil, err
	}
	p.mtx.Lock()
	p.fetched[id.Seqno]++
	p.mtx.Unlock()
	return e.boc, nil
}

func (p *Mock) BlockHeader(ctx context.Context, id provider.BlockID) (*provider.BlockHeader, error) {
	e, err := p.get(id.Seqno)
	if err != nil {
		return nil, err
	}
	h := *e.header
	return &h, nil
}

func (p *Mock) MasterchainBlockSignatures(ctx context.Context, seqno uint32) ([]types.BlockSignature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := p.get(seqno)
	if err != nil {
		return nil, err
	}
	return e.sigs, nil
}
