package proof_test

import (
	"bytes"
	"encoding/hex"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/internal/test/factory"
	"github.com/tonred/ton-trustless-bridge/internal/test/fixtures"
	"github.com/tonred/ton-trustless-bridge/proof"
	"github.com/tonred/ton-trustless-bridge/prune"
	"github.com/tonred/ton-trustless-bridge/types"
)

func requireMerkleProofOf(t require.TestingT, p, original *cell.Cell) *cell.Cell {
	require.Equal(t, cell.MerkleProof, p.Type())
	require.Equal(t, 0, p.Level())
	inner := p.Ref(0)
	require.NotNil(t, inner)
	require.Equal(t, original.Hash(0), inner.Hash(0))
	return inner
}

func TestPrepareKeyBlock(t *testing.T) {
	vals, _ := factory.ValidatorSet("key-block", 20, 12)
	b := factory.Block(factory.BlockParams{
		Seqno:             300,
		PrevKeyBlockSeqno: 200,
		GenUtime:          1700000300,
		KeyBlock:          true,
		Validators:        vals,
	})

	p, err := proof.PrepareKeyBlock(b)
	require.NoError(t, err)
	inner := requireMerkleProofOf(t, p, b)
	assert.Less(t, len(p.ToBOC()), len(b.ToBOC()))

	seqno, err := block.GetSeqno(inner)
	require.NoError(t, err)
	assert.EqualValues(t, 300, seqno)

	params, _, err := block.GetConfig(inner)
	require.NoError(t, err)
	require.Len(t, params, 1)
	param, ok := params[types.ValidatorSetConfigParam]
	require.True(t, ok)

	set, err := types.ParseConfigParamValidators(param, false)
	require.NoError(t, err)
	assert.EqualValues(t, 20, set.Total)
	assert.EqualValues(t, 12, set.Main)
	require.Len(t, set.Validators, 12)
	for i, v := range set.Validators {
		assert.Equal(t, vals.Validators[i].PubKey.Bytes(), v.PubKey.Bytes())
	}

	// the proof is a BoC a light client can read back
	decoded, err := cell.FromBOC(p.ToBOC())
	require.NoError(t, err)
	assert.Equal(t, p.Hash(0), decoded.Hash(0))
}

func TestPrepareKeyBlockNotKeyBlock(t *testing.T) {
	b := factory.Block(factory.BlockParams{Seqno: 301, PrevKeyBlockSeqno: 300})
	_, err := proof.PrepareKeyBlock(b)
	require.Error(t, err)
	assert.True(t, types.IsErrStructural(err))
}

func TestPrepareBlockMalformed(t *testing.T) {
	c, err := cell.BeginCell().StoreUInt(1, 32).EndCell()
	require.NoError(t, err)
	_, err = proof.PrepareBlock(c, nil)
	assert.True(t, types.IsErrStructural(err))
}

func txBlock() (*cell.Cell, [][]byte) {
	var (
		abs    []*block.AccountBlock
		hashes [][]byte
	)
	for i := 0; i < 3; i++ {
		acc := factory.Account(100 + i)
		lts := []uint64{uint64(1000*i + 1), uint64(1000*i + 2), uint64(1000*i + 3)}
		abs = append(abs, factory.AccountBlock(acc, lts...))
		for _, lt := range lts {
			hashes = append(hashes, factory.Transaction(acc, lt).Hash(0))
		}
	}
	return factory.Block(factory.BlockParams{Seqno: 400, PrevKeyBlockSeqno: 300, AccountBlocks: abs}), hashes
}

func hexSet(hashes [][]byte) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = hex.EncodeToString(h)
	}
	sort.Strings(out)
	return out
}

func TestPrepareBlock(t *testing.T) {
	b, hashes := txBlock()

	p, err := proof.PrepareBlock(b, hashes[4:5])
	require.NoError(t, err)
	inner := requireMerkleProofOf(t, p, b)

	txs, err := block.GetTransactions(inner)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, hashes[4], txs[0].Hash)
	assert.EqualValues(t, 1002, txs[0].LT)
	assert.Equal(t, cell.PrunedBranch, txs[0].Raw.Type())

	seqno, err := block.GetSeqno(inner)
	require.NoError(t, err)
	assert.EqualValues(t, 400, seqno)
}

func TestPrepareBlockTransactionSubsets(t *testing.T) {
	b, hashes := txBlock()

	rapid.Check(t, func(t *rapid.T) {
		var subset [][]byte
		for _, h := range hashes {
			if rapid.Bool().Draw(t, "keep").(bool) {
				subset = append(subset, h)
			}
		}

		p, err := proof.PrepareBlock(b, subset)
		if err != nil {
			t.Fatal(err)
		}
		if p.Type() != cell.MerkleProof || p.Level() != 0 {
			t.Fatalf("not a level-0 merkle proof: %s level %d", p.Type(), p.Level())
		}
		if string(p.Ref(0).Hash(0)) != string(b.Hash(0)) {
			t.Fatalf("block hash changed")
		}
		if len(subset) == 0 {
			return
		}

		txs, err := block.GetTransactions(p.Ref(0))
		if err != nil {
			t.Fatal(err)
		}
		got := make([][]byte, len(txs))
		for i, tx := range txs {
			got[i] = tx.Hash
		}
		want := hexSet(subset)
		have := hexSet(got)
		if len(want) != len(have) {
			t.Fatalf("got %d transactions, want %d", len(have), len(want))
		}
		for i := range want {
			if want[i] != have[i] {
				t.Fatalf("transaction %d: got %s, want %s", i, have[i], want[i])
			}
		}
	})
}

func TestPrepareAccountState(t *testing.T) {
	c, acc := factory.ActiveAccount(1)

	p, err := proof.PrepareAccountState(c)
	require.NoError(t, err)
	inner := requireMerkleProofOf(t, p, c)

	parsed, err := block.ParseAccount(inner)
	require.NoError(t, err)
	assert.Equal(t, block.AccountActive, parsed.Status)
	assert.Equal(t, acc.Address, parsed.Address)
	assert.Equal(t, acc.Data.Hash(0), parsed.Data.Hash(0))
	assert.Equal(t, cell.PrunedBranch, parsed.Code.Type())

	uninit, err := block.StoreAccount(cell.BeginCell(), &block.Account{
		Status:  block.AccountUninit,
		Address: factory.Account(2),
	}).EndCell()
	require.NoError(t, err)
	p, err = proof.PrepareAccountState(uninit)
	require.NoError(t, err)
	assert.Same(t, uninit, p.Ref(0))
}

func fastnetRoots(t *testing.T, name string) []*cell.Cell {
	t.Helper()
	roots, err := cell.FromBOCMultiRoot(fixtures.BOC(name))
	require.NoError(t, err)
	require.Len(t, roots, 2)
	return roots
}

func findCell(c *cell.Cell, hash []byte, seen map[[32]byte]bool) *cell.Cell {
	if bytes.Equal(c.Hash(0), hash) {
		return c
	}
	if seen[c.HashKey()] {
		return nil
	}
	seen[c.HashKey()] = true
	for _, r := range c.Refs() {
		if found := findCell(r, hash, seen); found != nil {
			return found
		}
	}
	return nil
}

func TestPrepareAccountStateFastnet(t *testing.T) {
	account, err := cell.FromBOC(fixtures.BOC(fixtures.AccountState))
	require.NoError(t, err)

	p, err := proof.PrepareAccountState(account)
	require.NoError(t, err)
	inner := requireMerkleProofOf(t, p, account)

	parsed, err := block.ParseAccount(inner)
	require.NoError(t, err)
	assert.Equal(t, block.AccountActive, parsed.Status)
	assert.Equal(t, cell.PrunedBranch, parsed.Code.Type())
	require.Equal(t, cell.PrunedBranch, parsed.Data.Type())
	assert.Equal(t, "e9f1b4e9d430c93a9b06cc65251ae440dae4c56d1ef4a560b61b045edcca0468", hex.EncodeToString(parsed.Data.Hash(0)))

	// the shard state proof carries the account as a pruned branch
	state := fastnetRoots(t, fixtures.BlockStateProof)[1]
	found := findCell(state, account.Hash(0), make(map[[32]byte]bool))
	require.NotNil(t, found)
	assert.Equal(t, cell.PrunedBranch, found.Type())
}

// The liteserver proofs are reduced to the cells a transaction check needs:
// the block proof keeps the path to its state, the state proof the path to
// the account, and the masterchain state proof the path to the shard
// descriptor.
func TestPruneFastnetProofs(t *testing.T) {
	account, err := cell.FromBOC(fixtures.BOC(fixtures.AccountState))
	require.NoError(t, err)
	shard := fastnetRoots(t, fixtures.BlockStateProof)
	mc := fastnetRoots(t, fixtures.ShardStateProof)
	descr, err := block.LoadShardDescrFromProof(mc[1])
	require.NoError(t, err)

	testCases := []struct {
		name string
		root *cell.Cell
		keep []byte
	}{
		{"shard block", shard[0], shard[1].Ref(0).Hash(0)},
		{"shard state", shard[1], account.Hash(0)},
		{"masterchain block", mc[0], mc[1].Ref(0).Hash(0)},
		{"masterchain state", mc[1], descr.Hash(0)},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			out, keep, err := prune.PruneUnusedBranches(tc.root, []string{hex.EncodeToString(tc.keep)})
			require.NoError(t, err)
			assert.True(t, keep)
			require.Equal(t, cell.MerkleProof, out.Type())
			assert.Equal(t, tc.root.Hash(0), out.Hash(0))
			assert.Equal(t, tc.root.Ref(0).Hash(0), out.Ref(0).Hash(0))
			assert.NotNil(t, findCell(out, tc.keep, make(map[[32]byte]bool)))

			before, after := prune.CalcStats(tc.root, true), prune.CalcStats(out, true)
			assert.LessOrEqual(t, after.Cells, before.Cells)
		})
	}

	reduced, _, err := prune.PruneUnusedBranches(mc[1], []string{hex.EncodeToString(descr.Hash(0))})
	require.NoError(t, err)
	again, err := block.LoadShardDescrFromProof(reduced)
	require.NoError(t, err)
	assert.Equal(t, descr.Hash(0), again.Hash(0))
}

func TestPrepareTransactionProof(t *testing.T) {
	tx := factory.Transaction(factory.Account(1), 77)
	p, err := proof.PrepareTransactionProof(tx)
	require.NoError(t, err)
	inner := requireMerkleProofOf(t, p, tx)
	assert.Equal(t, cell.PrunedBranch, inner.Type())
	assert.Equal(t, 0, inner.RefsNum())
}

// A chain of two key blocks: the second one is signed by the validators
// listed in the first, and the signatures are checked against the compact
// list derived from the first block's proof only.
func TestKeyBlockChain(t *testing.T) {
	genesisVals, genesisKeys := factory.ValidatorSet("epoch-1", 9, 7)
	nextVals, _ := factory.ValidatorSet("epoch-2", 9, 7)

	genesis := factory.Block(factory.BlockParams{
		Seqno: 1000, PrevKeyBlockSeqno: 900, KeyBlock: true, Validators: genesisVals,
	})
	next := factory.Block(factory.BlockParams{
		Seqno: 2000, PrevKeyBlockSeqno: 1000, KeyBlock: true, Validators: nextVals,
	})

	genesisProof, err := proof.PrepareKeyBlock(genesis)
	require.NoError(t, err)
	param, err := block.GetConfigParam(genesisProof.Ref(0), types.ValidatorSetConfigParam)
	require.NoError(t, err)
	set, err := types.ParseConfigParamValidators(param, false)
	require.NoError(t, err)
	list, cutoff, err := types.PrepareValidatorsList(int(set.Main), set.ListCell)
	require.NoError(t, err)

	nextProof, err := proof.PrepareKeyBlock(next)
	require.NoError(t, err)
	rootHash := nextProof.Ref(0).Hash(0)
	fileHash := factory.FileHash(next)

	sigs := factory.SignBlock(genesisKeys, rootHash, fileHash)
	packed, err := types.PackSignatures(sigs, cutoff, list)
	require.NoError(t, err)
	assert.True(t, packed.Weight.Cmp(cutoff) >= 0)

	compact, err := types.ParseValidatorsList(list)
	require.NoError(t, err)
	slots, err := types.ParsePackedSignatures(packed.Cell)
	require.NoError(t, err)
	msg := types.BlockSignaturePayload(rootHash, fileHash)
	for slot, sig := range slots {
		assert.True(t, compact[slot].PubKey.VerifySignature(msg, sig), "slot %d", slot)
	}

	prev, err := block.GetPrevKeyBlockSeqno(nextProof.Ref(0))
	require.NoError(t, err)
	assert.EqualValues(t, 1000, prev)
}
