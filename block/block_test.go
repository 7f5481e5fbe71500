package block_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/internal/test/factory"
	"github.com/tonred/ton-trustless-bridge/internal/test/fixtures"
	"github.com/tonred/ton-trustless-bridge/prune"
	"github.com/tonred/ton-trustless-bridge/types"
)

func hexHash(h []byte) string { return hex.EncodeToString(h) }

func keyBlock(t *testing.T) (*cell.Cell, *types.ValidatorSet) {
	t.Helper()
	vals, _ := factory.ValidatorSet("block", 7, 5)
	b := factory.Block(factory.BlockParams{
		Seqno:             27747086,
		PrevKeyBlockSeqno: 27740000,
		GenUtime:          1700000100,
		KeyBlock:          true,
		Validators:        vals,
	})
	return b, vals
}

func TestGetSeqno(t *testing.T) {
	b, _ := keyBlock(t)

	seqno, err := block.GetSeqno(b)
	require.NoError(t, err)
	assert.EqualValues(t, 27747086, seqno)

	prev, err := block.GetPrevKeyBlockSeqno(b)
	require.NoError(t, err)
	assert.EqualValues(t, 27740000, prev)
}

func TestGetSeqnoMalformed(t *testing.T) {
	short, err := cell.BeginCell().StoreUInt(1, 32).EndCell()
	require.NoError(t, err)
	_, err = block.GetSeqno(short)
	require.Error(t, err)
	assert.True(t, types.IsErrStructural(err))

	withInfo, err := cell.BeginCell().StoreRef(short).EndCell()
	require.NoError(t, err)
	_, err = block.GetPrevKeyBlockSeqno(withInfo)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cell.ErrCellUnderflow))
}

func TestGetConfig(t *testing.T) {
	b, vals := keyBlock(t)

	params, root, err := block.GetConfig(b)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Len(t, params, 4)
	for _, k := range []uint32{0, 1, 15, types.ValidatorSetConfigParam} {
		assert.Contains(t, params, k)
	}

	param, err := block.GetConfigParam(b, types.ValidatorSetConfigParam)
	require.NoError(t, err)
	want, err := types.ValidatorSetCell(vals)
	require.NoError(t, err)
	assert.Equal(t, want.Hash(0), param.Hash(0))

	_, err = block.GetConfigParam(b, 12)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestGetConfigNotKeyBlock(t *testing.T) {
	b := factory.Block(factory.BlockParams{Seqno: 10, PrevKeyBlockSeqno: 1})
	_, _, err := block.GetConfig(b)
	require.Error(t, err)
	assert.True(t, types.IsErrStructural(err))
}

func TestConfigRoot(t *testing.T) {
	a, err := cell.BeginCell().StoreUInt(1, 8).EndCell()
	require.NoError(t, err)
	c, err := cell.BeginCell().StoreUInt(2, 8).EndCell()
	require.NoError(t, err)

	two, err := cell.BeginCell().StoreRef(a).StoreRef(c).EndCell()
	require.NoError(t, err)
	got, err := block.ConfigRoot(two)
	require.NoError(t, err)
	assert.Same(t, c, got)

	four, err := cell.BeginCell().StoreRef(a).StoreRef(a).StoreRef(a).StoreRef(c).EndCell()
	require.NoError(t, err)
	got, err = block.ConfigRoot(four)
	require.NoError(t, err)
	assert.Same(t, c, got)

	one, err := cell.BeginCell().StoreRef(a).EndCell()
	require.NoError(t, err)
	_, err = block.ConfigRoot(one)
	assert.True(t, types.IsErrStructural(err))
}

func TestGetTransactions(t *testing.T) {
	accA, accB := factory.Account(1), factory.Account(2)
	if bytes.Compare(accA, accB) > 0 {
		accA, accB = accB, accA
	}
	b := factory.Block(factory.BlockParams{
		Seqno:             100,
		PrevKeyBlockSeqno: 90,
		AccountBlocks: []*block.AccountBlock{
			factory.AccountBlock(accB, 500),
			factory.AccountBlock(accA, 300, 100, 200),
		},
	})

	txs, err := block.GetTransactions(b)
	require.NoError(t, err)
	require.Len(t, txs, 4)

	wantLT := []uint64{100, 200, 300, 500}
	wantAcc := [][]byte{accA, accA, accA, accB}
	for i, tx := range txs {
		assert.Equal(t, wantLT[i], tx.LT)
		assert.Equal(t, wantAcc[i], tx.AccountBlockID)
		assert.Equal(t, factory.Transaction(wantAcc[i], wantLT[i]).Hash(0), tx.Hash)
		assert.Equal(t, tx.Raw.Hash(0), tx.Hash)
	}

	found, err := block.FindTransaction(b, txs[2].Hash)
	require.NoError(t, err)
	assert.EqualValues(t, 300, found.LT)

	_, err = block.FindTransaction(b, make([]byte, 32))
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestGetTransactionsEmpty(t *testing.T) {
	b := factory.Block(factory.BlockParams{Seqno: 5, PrevKeyBlockSeqno: 1})
	txs, err := block.GetTransactions(b)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestGetTransactionsSkipsPruned(t *testing.T) {
	accA, accB := factory.Account(3), factory.Account(4)
	b := factory.Block(factory.BlockParams{
		Seqno: 7,
		AccountBlocks: []*block.AccountBlock{
			factory.AccountBlock(accA, 10),
			factory.AccountBlock(accB, 20),
		},
	})
	all, err := block.GetTransactions(b)
	require.NoError(t, err)
	require.Len(t, all, 2)

	reduced, _, err := prune.PruneUnusedBranches(b, []string{hexHash(all[0].Hash)})
	require.NoError(t, err)
	assert.Equal(t, b.Hash(0), reduced.Hash(0))

	txs, err := block.GetTransactions(reduced)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, all[0].Hash, txs[0].Hash)
}

func TestAccountBlockStoreParse(t *testing.T) {
	ab := factory.AccountBlock(factory.Account(9), 42, 7)

	b := cell.BeginCell()
	require.NoError(t, ab.Store(b))
	c, err := b.EndCell()
	require.NoError(t, err)

	got, err := block.ParseAccountBlock(c.BeginParse())
	require.NoError(t, err)
	assert.Equal(t, ab.Account, got.Account)
	assert.Equal(t, ab.StateUpdate.Hash(0), got.StateUpdate.Hash(0))
	require.Len(t, got.Transactions, 2)
	assert.EqualValues(t, 7, got.Transactions[0].LT)
	assert.EqualValues(t, 42, got.Transactions[1].LT)
	assert.Zero(t, got.Transactions[0].Fees.Grams.Sign())

	assert.Error(t, (&block.AccountBlock{Account: []byte{1}}).Store(cell.BeginCell()))
}

func TestLoadShardDescrFromProof(t *testing.T) {
	left := factory.ShardDescr(11, bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32))
	right := factory.ShardDescr(12, bytes.Repeat([]byte{3}, 32), bytes.Repeat([]byte{4}, 32))
	proof := factory.ShardStateProof(left, right)

	leaf, err := block.LoadShardDescrFromProof(proof)
	require.NoError(t, err)

	want, err := cell.BeginCell().StoreBoolBit(false).StoreSlice(right.BeginParse()).EndCell()
	require.NoError(t, err)
	assert.Equal(t, want.Hash(0), leaf.Hash(0))

	_, err = block.LoadShardDescrFromProof(left)
	assert.True(t, types.IsErrStructural(err))
}

func TestParseAccount(t *testing.T) {
	c, want := factory.ActiveAccount(5)
	acc, err := block.ParseAccount(c)
	require.NoError(t, err)
	assert.Equal(t, block.AccountActive, acc.Status)
	assert.Equal(t, want.Address, acc.Address)
	assert.EqualValues(t, 0, acc.Workchain)
	assert.Equal(t, want.LastTransLT, acc.LastTransLT)
	assert.Equal(t, 0, want.Balance.Grams.Cmp(acc.Balance.Grams))
	assert.Equal(t, want.Code.Hash(0), acc.Code.Hash(0))
	assert.Equal(t, want.Data.Hash(0), acc.Data.Hash(0))

	frozen := *want
	frozen.Status = block.AccountFrozen
	frozen.StateHash = bytes.Repeat([]byte{0xee}, 32)
	fc, err := block.StoreAccount(cell.BeginCell(), &frozen).EndCell()
	require.NoError(t, err)
	acc, err = block.ParseAccount(fc)
	require.NoError(t, err)
	assert.Equal(t, block.AccountFrozen, acc.Status)
	assert.Equal(t, frozen.StateHash, acc.StateHash)
	assert.Nil(t, acc.Data)

	none, err := block.StoreAccount(cell.BeginCell(), &block.Account{}).EndCell()
	require.NoError(t, err)
	acc, err = block.ParseAccount(none)
	require.NoError(t, err)
	assert.Equal(t, block.AccountNone, acc.Status)
	assert.Equal(t, "none", acc.Status.String())

	external, err := cell.BeginCell().StoreBoolBit(true).StoreUInt(0b01, 2).EndCell()
	require.NoError(t, err)
	_, err = block.ParseAccount(external)
	assert.True(t, types.IsErrStructural(err))
}

func TestParseInfo(t *testing.T) {
	b, _ := keyBlock(t)
	info, err := block.ParseInfo(b)
	require.NoError(t, err)
	assert.Equal(t, &block.Info{
		KeyBlock:          true,
		Seqno:             27747086,
		GenUtime:          1700000100,
		PrevKeyBlockSeqno: 27740000,
	}, info)

	plain := factory.Block(factory.BlockParams{Seqno: 3, PrevKeyBlockSeqno: 2, GenUtime: 9})
	info, err = block.ParseInfo(plain)
	require.NoError(t, err)
	assert.False(t, info.KeyBlock)
	assert.EqualValues(t, 9, info.GenUtime)
}

func fastnetRoots(t *testing.T, name string) []*cell.Cell {
	t.Helper()
	roots, err := cell.FromBOCMultiRoot(fixtures.BOC(name))
	require.NoError(t, err)
	require.Len(t, roots, 2)
	return roots
}

func TestParseInfoFastnet(t *testing.T) {
	testCases := []struct {
		name string
		want block.Info
	}{
		{fixtures.BlockStateProof, block.Info{Seqno: 29549799, GenUtime: 1738616602, PrevKeyBlockSeqno: 27775724}},
		{fixtures.ShardStateProof, block.Info{Seqno: 27775756, GenUtime: 1738616606, PrevKeyBlockSeqno: 27775724}},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			b := fastnetRoots(t, tc.name)[0].Ref(0)

			info, err := block.ParseInfo(b)
			require.NoError(t, err)
			assert.Equal(t, &tc.want, info)

			seqno, err := block.GetSeqno(b)
			require.NoError(t, err)
			assert.Equal(t, tc.want.Seqno, seqno)
			prev, err := block.GetPrevKeyBlockSeqno(b)
			require.NoError(t, err)
			assert.Equal(t, tc.want.PrevKeyBlockSeqno, prev)

			// the extra is pruned away in these proofs
			_, err = block.GetTransactions(b)
			assert.True(t, types.IsErrStructural(err))
		})
	}
}

func TestLoadShardDescrFromProofFastnet(t *testing.T) {
	shardBlock := fastnetRoots(t, fixtures.BlockStateProof)[0].Ref(0)
	mc := fastnetRoots(t, fixtures.ShardStateProof)

	leaf, err := block.LoadShardDescrFromProof(mc[1])
	require.NoError(t, err)

	s := leaf.BeginParse()
	isFork, err := s.LoadBit()
	require.NoError(t, err)
	assert.False(t, isFork)
	tag, err := s.LoadUInt(4)
	require.NoError(t, err)
	assert.EqualValues(t, 0xa, tag)
	seqno, err := s.LoadUInt(32)
	require.NoError(t, err)
	assert.EqualValues(t, 29549799, seqno)
	regMcSeqno, err := s.LoadUInt(32)
	require.NoError(t, err)
	mcSeqno, err := block.GetSeqno(mc[0].Ref(0))
	require.NoError(t, err)
	assert.EqualValues(t, mcSeqno, regMcSeqno)
	require.NoError(t, s.SkipBits(64+64))

	// the masterchain records the hash of the shard block proved alongside
	rootHash, err := s.LoadBytes(32)
	require.NoError(t, err)
	assert.Equal(t, "28fe5446694ffff8e476e8e112e8122264dbe33f6503ee664ceeec04b7a00be1", hexHash(rootHash))
	assert.Equal(t, shardBlock.Hash(0), rootHash)
}

func TestParseAccountFastnet(t *testing.T) {
	c, err := cell.FromBOC(fixtures.BOC(fixtures.AccountState))
	require.NoError(t, err)
	assert.Equal(t, "82c4cc0c2fecb424a38951bb72d401258a06b87e474457bb8915521c0fd912fc", hexHash(c.Hash(0)))

	acc, err := block.ParseAccount(c)
	require.NoError(t, err)
	assert.Equal(t, block.AccountActive, acc.Status)
	assert.EqualValues(t, 0, acc.Workchain)
	assert.Equal(t, "b056607c113b00c9fa96b549b867901dbbbb3fc73b8479fe97cf5e532f5ecf2b", hexHash(acc.Address))
	assert.EqualValues(t, 30962071000003, acc.LastTransLT)
	assert.EqualValues(t, 45489585472, acc.Balance.Grams.Int64())
	assert.Nil(t, acc.Balance.Extra)
	require.NotNil(t, acc.Code)
	require.NotNil(t, acc.Data)
	assert.Equal(t, "e9f1b4e9d430c93a9b06cc65251ae440dae4c56d1ef4a560b61b045edcca0468", hexHash(acc.Data.Hash(0)))
}
