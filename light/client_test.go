package light_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/tonred/ton-trustless-bridge/internal/test/factory"
	"github.com/tonred/ton-trustless-bridge/libs/log"
	"github.com/tonred/ton-trustless-bridge/light"
	"github.com/tonred/ton-trustless-bridge/light/provider"
	"github.com/tonred/ton-trustless-bridge/light/provider/mock"
	"github.com/tonred/ton-trustless-bridge/light/store"
	dbs "github.com/tonred/ton-trustless-bridge/light/store/db"
	"github.com/tonred/ton-trustless-bridge/types"
)

func newStore() store.Store {
	return dbs.New(dbm.NewMemDB(), "light-test")
}

func TestClient_NewClientFromGenesis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := genKeyBlockChain(t, 1000)
	trustedStore := newStore()

	client, err := light.NewClient(ctx, 1000, c.provider(t), trustedStore,
		light.Logger(log.TestingLogger()), light.StateID(7))
	require.NoError(t, err)

	s := client.TrustedState()
	assert.EqualValues(t, 1000, s.Seqno)
	assert.EqualValues(t, 7, s.ID)
	assert.EqualValues(t, 1700000000, s.UTimeSince)

	saved, err := trustedStore.LastTrustedState()
	require.NoError(t, err)
	assert.Equal(t, s.Validators.Hash(0), saved.Validators.Hash(0))
	assert.Equal(t, 0, s.Cutoff.Cmp(saved.Cutoff))
}

func TestClient_NewClientNoTrustedState(t *testing.T) {
	c := genKeyBlockChain(t, 1000)

	_, err := light.NewClient(context.Background(), 0, c.provider(t), newStore())
	assert.True(t, errors.Is(err, light.ErrNoTrustedState))

	_, err = light.NewClientFromTrustedStore(c.provider(t), newStore())
	assert.True(t, errors.Is(err, light.ErrNoTrustedState))
}

func TestClient_NewClientGenesisNotKeyBlock(t *testing.T) {
	c := genKeyBlockChain(t, 1000)
	c.addTxBlock(t, 1500)

	_, err := light.NewClient(context.Background(), 1500, c.provider(t), newStore())
	var e light.ErrInvalidBlock
	require.True(t, errors.As(err, &e), err)
	assert.EqualValues(t, 1500, e.Seqno)
}

func TestClient_RestoresTrustedState(t *testing.T) {
	ctx := context.Background()
	c := genKeyBlockChain(t, 1000, 2000)
	trustedStore := newStore()

	s, err := light.TrustedStateFromKeyBlock(c.blocks[2000], 0)
	require.NoError(t, err)
	require.NoError(t, trustedStore.SaveTrustedState(s))

	primary := c.provider(t)
	client, err := light.NewClient(ctx, 1000, primary, trustedStore)
	require.NoError(t, err)
	assert.EqualValues(t, 2000, client.TrustedState().Seqno)
	assert.Zero(t, primary.BlocksFetched(1000))
	assert.Zero(t, primary.BlocksFetched(2000))
}

func TestClient_Sync(t *testing.T) {
	defer leaktest.Check(t)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := genKeyBlockChain(t, 1000, 2000, 3000, 4000)
	c.addTxBlock(t, 4100)
	trustedStore := newStore()

	client, err := light.NewClient(ctx, 1000, c.provider(t), trustedStore,
		light.Logger(log.TestingLogger()), light.PruningSize(2))
	require.NoError(t, err)

	updates, err := client.Sync(ctx, 0)
	require.NoError(t, err)
	require.Len(t, updates, 3)

	for i, seqno := range []uint32{2000, 3000, 4000} {
		upd := updates[i]
		assert.Equal(t, seqno, upd.Seqno)
		assert.Equal(t, seqno, upd.State.Seqno)
		assert.Equal(t, factory.FileHash(c.blocks[seqno]), upd.Block.FileHash)
		assert.EqualValues(t, light.OpNewKeyBlock, loadOp(t, upd.Body))
		assert.Equal(t, c.blocks[seqno].Hash(0), upd.Block.Proof.Ref(0).Hash(0))
	}
	assert.EqualValues(t, 4000, client.TrustedState().Seqno)

	assert.EqualValues(t, 2, trustedStore.Size())
	last, err := trustedStore.LastTrustedState()
	require.NoError(t, err)
	assert.EqualValues(t, 4000, last.Seqno)

	// up to date
	updates, err = client.Sync(ctx, 4000)
	require.NoError(t, err)
	assert.Empty(t, updates)

	_, err = client.Sync(ctx, 3000)
	assert.Error(t, err)
}

func TestClient_SyncToTarget(t *testing.T) {
	ctx := context.Background()
	c := genKeyBlockChain(t, 1000, 2000, 3000)

	client, err := light.NewClient(ctx, 1000, c.provider(t), newStore())
	require.NoError(t, err)

	updates, err := client.Sync(ctx, 2000)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.EqualValues(t, 2000, client.TrustedState().Seqno)
}

func TestClient_SyncMaxSteps(t *testing.T) {
	ctx := context.Background()
	c := genKeyBlockChain(t, 1000, 2000, 3000, 4000)

	client, err := light.NewClient(ctx, 1000, c.provider(t), newStore(), light.MaxSyncSteps(2))
	require.NoError(t, err)

	_, err = client.Sync(ctx, 4000)
	var e light.ErrVerificationFailed
	require.True(t, errors.As(err, &e))
	assert.EqualValues(t, 1000, e.From)
	assert.EqualValues(t, 1000, client.TrustedState().Seqno)
}

func TestClient_SyncBadSignatures(t *testing.T) {
	ctx := context.Background()
	c := genKeyBlockChain(t, 1000, 2000, 3000)
	// 3000 signed by its own validators instead of the ones elected in 2000
	c.sigs[3000] = factory.SignBlock(c.keys[3000], c.blocks[3000].Hash(0), factory.FileHash(c.blocks[3000]))
	trustedStore := newStore()

	client, err := light.NewClient(ctx, 1000, c.provider(t), trustedStore)
	require.NoError(t, err)

	updates, err := client.Sync(ctx, 3000)
	require.Error(t, err)
	require.Len(t, updates, 1)

	var e light.ErrVerificationFailed
	require.True(t, errors.As(err, &e))
	assert.EqualValues(t, 2000, e.From)
	assert.EqualValues(t, 3000, e.To)
	var notTrusted light.ErrNewValSetCantBeTrusted
	assert.True(t, errors.As(err, &notTrusted))

	// the first step is kept
	assert.EqualValues(t, 2000, client.TrustedState().Seqno)
	last, err := trustedStore.LastTrustedState()
	require.NoError(t, err)
	assert.EqualValues(t, 2000, last.Seqno)
}

func TestClient_SyncTamperedBlock(t *testing.T) {
	ctx := context.Background()
	c := genKeyBlockChain(t, 1000, 2000)
	primary := c.provider(t)

	client, err := light.NewClient(ctx, 1000, primary, newStore())
	require.NoError(t, err)

	// the same seqno with different validators under the old id
	other, _ := factory.ValidatorSet("impostor", 9, 7)
	forged := factory.Block(factory.BlockParams{
		Seqno: 2000, PrevKeyBlockSeqno: 1000, KeyBlock: true, Validators: other,
	})
	require.NoError(t, primary.AddBlock(forged, c.sigs[2000]))

	_, err = client.Sync(ctx, 2000)
	var notTrusted light.ErrNewValSetCantBeTrusted
	assert.True(t, errors.As(err, &notTrusted), err)
	assert.EqualValues(t, 1000, client.TrustedState().Seqno)
}

func TestClient_PrepareTransactionProof(t *testing.T) {
	ctx := context.Background()
	c := genKeyBlockChain(t, 1000)
	b, tx := c.addTxBlock(t, 1500)
	txHash := tx.Hash

	client, err := light.NewClient(ctx, 1000, c.provider(t), newStore())
	require.NoError(t, err)

	check, err := client.PrepareTransactionProof(ctx, 1500, txHash, 42)
	require.NoError(t, err)

	assert.EqualValues(t, light.OpCheckTransaction, loadOp(t, check.Body))
	assert.Equal(t, tx.AccountBlockID, check.Transaction.AccountBlockID)
	assert.Equal(t, tx.LT, check.Transaction.LT)
	assert.Equal(t, b.Hash(0), check.Block.Proof.Ref(0).Hash(0))
	assert.Equal(t, factory.FileHash(b), check.Block.FileHash)

	_, err = client.PrepareTransactionProof(ctx, 1500, make([]byte, 32), 42)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	_, err = client.PrepareTransactionProof(ctx, 1501, txHash, 42)
	assert.True(t, errors.Is(err, provider.ErrBlockNotFound))
}

func TestClient_PrepareTransactionProofWrongEpoch(t *testing.T) {
	ctx := context.Background()
	c := genKeyBlockChain(t, 1000, 2000)
	_, tx := c.addTxBlock(t, 2500)
	txHash := tx.Hash

	client, err := light.NewClient(ctx, 1000, c.provider(t), newStore())
	require.NoError(t, err)

	_, err = client.PrepareTransactionProof(ctx, 2500, txHash, 0)
	var notTrusted light.ErrNewValSetCantBeTrusted
	assert.True(t, errors.As(err, &notTrusted))

	_, err = client.Sync(ctx, 0)
	require.NoError(t, err)
	_, err = client.PrepareTransactionProof(ctx, 2500, txHash, 0)
	assert.NoError(t, err)
}

func TestClient_PrepareBlockCheck(t *testing.T) {
	ctx := context.Background()
	c := genKeyBlockChain(t, 1000)
	b, _ := c.addTxBlock(t, 1500)

	client, err := light.NewClient(ctx, 1000, c.provider(t), newStore())
	require.NoError(t, err)

	check, err := client.PrepareBlockCheck(ctx, 1500, 9, nil)
	require.NoError(t, err)
	assert.Equal(t, b.Hash(0), check.RootHash)
	assert.EqualValues(t, light.OpCheckBlock, loadOp(t, check.Body))

	slots, err := types.ParsePackedSignatures(check.Block.Signatures)
	require.NoError(t, err)
	assert.NotEmpty(t, slots)
}

func TestClient_DeadPrimary(t *testing.T) {
	ctx := context.Background()

	_, err := light.NewClient(ctx, 1000, mock.NewDeadMock("dead"), newStore())
	assert.True(t, errors.Is(err, provider.ErrNoResponse))

	c := genKeyBlockChain(t, 1000)
	trustedStore := newStore()
	_, err = light.NewClient(ctx, 1000, c.provider(t), trustedStore)
	require.NoError(t, err)

	client, err := light.NewClientFromTrustedStore(mock.NewDeadMock("dead"), trustedStore)
	require.NoError(t, err)
	_, err = client.Sync(ctx, 0)
	assert.True(t, errors.Is(err, provider.ErrNoResponse))
}

func TestClient_CancelledContext(t *testing.T) {
	defer leaktest.Check(t)()

	c := genKeyBlockChain(t, 1000, 2000)
	client, err := light.NewClient(context.Background(), 1000, c.provider(t), newStore(),
		light.RequestTimeout(time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Sync(ctx, 2000)
	assert.True(t, errors.Is(err, context.Canceled), err)
	assert.EqualValues(t, 1000, client.TrustedState().Seqno)
}

func TestClient_Concurrency(t *testing.T) {
	defer leaktest.Check(t)()
	ctx := context.Background()

	c := genKeyBlockChain(t, 1000, 2000)
	_, tx := c.addTxBlock(t, 2100)
	txHash := tx.Hash

	client, err := light.NewClient(ctx, 1000, c.provider(t), newStore())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := client.Sync(ctx, 2000)
			assert.NoError(t, err)
			assert.EqualValues(t, 2000, client.TrustedState().Seqno)

			_, err = client.PrepareTransactionProof(ctx, 2100, txHash, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
