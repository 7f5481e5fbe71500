package light_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/crypto/ed25519"
	"github.com/tonred/ton-trustless-bridge/internal/test/factory"
	"github.com/tonred/ton-trustless-bridge/light/provider/mock"
	"github.com/tonred/ton-trustless-bridge/types"
)

// chain is a run of key blocks, each signed by the validators elected in
// the key block before it.
type chain struct {
	seqnos []uint32
	blocks map[uint32]*cell.Cell
	sigs   map[uint32][]types.BlockSignature
	keys   map[uint32][]ed25519.PrivKey
}

func genKeyBlockChain(t testing.TB, seqnos ...uint32) *chain {
	t.Helper()

	c := &chain{
		seqnos: seqnos,
		blocks: make(map[uint32]*cell.Cell),
		sigs:   make(map[uint32][]types.BlockSignature),
		keys:   make(map[uint32][]ed25519.PrivKey),
	}
	prev := seqnos[0] - 1
	for i, seqno := range seqnos {
		vals, keys := factory.ValidatorSet(fmt.Sprintf("epoch-%d", seqno), 9, 7)
		b := factory.Block(factory.BlockParams{
			Seqno:             seqno,
			PrevKeyBlockSeqno: prev,
			GenUtime:          1700000000 + seqno,
			KeyBlock:          true,
			Validators:        vals,
		})
		c.blocks[seqno] = b
		c.keys[seqno] = keys
		signers := keys
		if i > 0 {
			signers = c.keys[prev]
		}
		c.sigs[seqno] = factory.SignBlock(signers, b.Hash(0), factory.FileHash(b))
		prev = seqno
	}
	return c
}

// addTxBlock adds a non-key block after the last key block, signed by the
// validators the last key block elected. It returns the block and one of
// its transactions.
func (c *chain) addTxBlock(t testing.TB, seqno uint32) (*cell.Cell, block.Transaction) {
	t.Helper()

	last := c.seqnos[len(c.seqnos)-1]
	b := factory.Block(factory.BlockParams{
		Seqno:             seqno,
		PrevKeyBlockSeqno: last,
		GenUtime:          1700000000 + seqno,
		AccountBlocks: []*block.AccountBlock{
			factory.AccountBlock(factory.Account(1), 1001, 1002),
			factory.AccountBlock(factory.Account(2), 2001),
		},
	})
	c.blocks[seqno] = b
	c.sigs[seqno] = factory.SignBlock(c.keys[last], b.Hash(0), factory.FileHash(b))

	txs, err := block.GetTransactions(b)
	require.NoError(t, err)
	require.NotEmpty(t, txs)
	return b, txs[len(txs)-1]
}

func (c *chain) provider(t testing.TB) *mock.Mock {
	t.Helper()

	blocks := make([]*cell.Cell, 0, len(c.blocks))
	for _, b := range c.blocks {
		blocks = append(blocks, b)
	}
	p, err := mock.New("primary", blocks, c.sigs)
	require.NoError(t, err)
	return p
}

func loadOp(t testing.TB, body *cell.Cell) uint64 {
	t.Helper()
	op, err := body.BeginParse().LoadUInt(32)
	require.NoError(t, err)
	return op
}
