package light

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/crypto"
	"github.com/tonred/ton-trustless-bridge/libs/log"
	"github.com/tonred/ton-trustless-bridge/light/provider"
	"github.com/tonred/ton-trustless-bridge/light/store"
	"github.com/tonred/ton-trustless-bridge/proof"
	"github.com/tonred/ton-trustless-bridge/types"
)

const (
	defaultPruningSize    = 1000
	defaultMaxSyncSteps   = 100
	defaultRequestTimeout = 30 * time.Second

	proofKindKeyBlock    = "key_block"
	proofKindBlock       = "block"
	proofKindTransaction = "transaction"
)

// Option sets a parameter for the light client.
type Option func(*Client)

// PruningSize option sets the maximum amount of trusted states that the
// light client stores. A pruning size of 0 will not prune at all.
// Default: 1000.
func PruningSize(h uint16) Option {
	return func(c *Client) {
		c.pruningSize = h
	}
}

// Logger option can be used to set a logger for the client.
func Logger(l log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// MaxSyncSteps limits how many key blocks a single Sync may walk back.
// Default: 100.
func MaxSyncSteps(n int) Option {
	return func(c *Client) {
		c.maxSyncSteps = n
	}
}

// RequestTimeout bounds every fetch from the primary. Default: 30s.
func RequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// StateID sets the id of a state derived from a genesis key block.
func StateID(id uint32) Option {
	return func(c *Client) {
		c.stateID = id
	}
}

// WithMetrics sets the metrics the client reports to.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client prepares the messages that keep an on-chain light client in sync
// and that prove transactions to it. It follows key blocks from a primary
// provider, verifies them against the trusted state and stores every
// accepted state in a trusted store.
//
// The client never submits messages itself.
type Client struct {
	maxSyncSteps   int
	requestTimeout time.Duration
	pruningSize    uint16
	stateID        uint32

	primary provider.Provider

	// Where trusted states are stored.
	trustedStore store.Store

	// Mutex guarding latestTrustedState and serialising Sync.
	mtx sync.Mutex
	// Newest trusted state from the store.
	latestTrustedState *types.TrustedState

	metrics *Metrics
	logger  log.Logger
}

// NewClient returns a new light client. When the store is empty, the state
// is derived from the key block genesisSeqno fetched from primary; the
// genesis key block is trusted as given.
//
// See all Option(s) for the additional configuration.
func NewClient(
	ctx context.Context,
	genesisSeqno uint32,
	primary provider.Provider,
	trustedStore store.Store,
	options ...Option) (*Client, error) {

	c, err := NewClientFromTrustedStore(primary, trustedStore, options...)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNoTrustedState) || genesisSeqno == 0 {
		return nil, err
	}

	c = newClient(primary, trustedStore, options...)
	c.logger.Info("Deriving trusted state from genesis key block", "seqno", genesisSeqno)
	if err := c.initializeFromKeyBlock(ctx, genesisSeqno); err != nil {
		return nil, err
	}
	return c, nil
}

// NewClientFromTrustedStore initializes existing client from the trusted
// store. It returns ErrNoTrustedState if the store is empty.
func NewClientFromTrustedStore(
	primary provider.Provider,
	trustedStore store.Store,
	options ...Option) (*Client, error) {

	c := newClient(primary, trustedStore, options...)
	if err := c.restoreTrustedState(); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(primary provider.Provider, trustedStore store.Store, options ...Option) *Client {
	c := &Client{
		maxSyncSteps:   defaultMaxSyncSteps,
		requestTimeout: defaultRequestTimeout,
		pruningSize:    defaultPruningSize,
		primary:        primary,
		trustedStore:   trustedStore,
		metrics:        NopMetrics(),
		logger:         log.NewNopLogger(),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// restoreTrustedState loads the latest trusted state from the store
func (c *Client) restoreTrustedState() error {
	s, err := c.trustedStore.LastTrustedState()
	if errors.Is(err, store.ErrTrustedStateNotFound) {
		return ErrNoTrustedState
	}
	if err != nil {
		return fmt.Errorf("can't get last trusted state: %w", err)
	}
	c.latestTrustedState = s
	c.metrics.TrustedSeqno.Set(float64(s.Seqno))
	c.logger.Info("Restored trusted state", "seqno", s.Seqno)
	return nil
}

func (c *Client) initializeFromKeyBlock(ctx context.Context, seqno uint32) error {
	fb, err := c.fetchBlock(ctx, seqno, false)
	if err != nil {
		return err
	}
	s, err := TrustedStateFromKeyBlock(fb.cell, c.stateID)
	if err != nil {
		return err
	}
	return c.updateTrustedState(s)
}

func (c *Client) updateTrustedState(s *types.TrustedState) error {
	if err := c.trustedStore.SaveTrustedState(s); err != nil {
		return fmt.Errorf("failed to save trusted state: %w", err)
	}
	if c.pruningSize > 0 {
		if err := c.trustedStore.Prune(c.pruningSize); err != nil {
			return fmt.Errorf("prune: %w", err)
		}
	}
	c.latestTrustedState = s
	c.metrics.TrustedSeqno.Set(float64(s.Seqno))
	return nil
}

// TrustedState returns the newest trusted state.
//
// Safe for concurrent use by multiple goroutines.
func (c *Client) TrustedState() *types.TrustedState {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.latestTrustedState
}

// Primary returns the primary provider.
func (c *Client) Primary() provider.Provider {
	return c.primary
}

type fetchedBlock struct {
	id       provider.BlockID
	cell     *cell.Cell
	fileHash []byte
	sigs     []types.BlockSignature
}

// fetchBlock downloads a masterchain block and, when asked, its signatures
// in parallel. The block must match the root and file hashes of its id.
func (c *Client) fetchBlock(ctx context.Context, seqno uint32, withSignatures bool) (*fetchedBlock, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	start := time.Now()

	id, err := c.primary.LookupBlock(ctx, provider.MasterchainWorkchain, provider.MasterchainShard, seqno)
	if err != nil {
		return nil, fmt.Errorf("lookup block #%d: %w", seqno, err)
	}

	var (
		boc  []byte
		sigs []types.BlockSignature
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		boc, err = c.primary.Block(gctx, *id)
		return err
	})
	if withSignatures {
		g.Go(func() error {
			var err error
			sigs, err = c.primary.MasterchainBlockSignatures(gctx, seqno)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch block #%d: %w", seqno, err)
	}
	c.metrics.FetchDurationSeconds.Observe(time.Since(start).Seconds())

	root, err := cell.FromBOC(boc)
	if err != nil {
		return nil, provider.ErrBadBlock{Reason: err}
	}
	fileHash := crypto.Checksum(boc)
	if len(id.RootHash) > 0 && !bytes.Equal(id.RootHash, root.Hash(0)) {
		return nil, provider.ErrBadBlock{Reason: fmt.Errorf("root hash %X, expected %X", root.Hash(0), id.RootHash)}
	}
	if len(id.FileHash) > 0 && !bytes.Equal(id.FileHash, fileHash) {
		return nil, provider.ErrBadBlock{Reason: fmt.Errorf("file hash %X, expected %X", fileHash, id.FileHash)}
	}

	return &fetchedBlock{id: *id, cell: root, fileHash: fileHash, sigs: sigs}, nil
}

// LastKeyBlockSeqno returns the newest key block known to the primary.
func (c *Client) LastKeyBlockSeqno(ctx context.Context) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	info, err := c.primary.MasterchainInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("masterchain info: %w", err)
	}
	h, err := c.primary.BlockHeader(ctx, info.Last)
	if err != nil {
		return 0, fmt.Errorf("header of #%d: %w", info.Last.Seqno, err)
	}
	if h.IsKeyBlock {
		return h.ID.Seqno, nil
	}
	return h.PrevKeyBlockSeqno, nil
}

func (c *Client) prevKeyBlockSeqno(ctx context.Context, seqno uint32) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	id, err := c.primary.LookupBlock(ctx, provider.MasterchainWorkchain, provider.MasterchainShard, seqno)
	if err != nil {
		return 0, fmt.Errorf("lookup block #%d: %w", seqno, err)
	}
	h, err := c.primary.BlockHeader(ctx, *id)
	if err != nil {
		return 0, fmt.Errorf("header of #%d: %w", seqno, err)
	}
	if !h.IsKeyBlock {
		return 0, ErrInvalidBlock{Seqno: seqno, Reason: errors.New("not a key block")}
	}
	return h.PrevKeyBlockSeqno, nil
}

// KeyBlockUpdate is a new_key_block message moving the light client from
// one key block to the next.
type KeyBlockUpdate struct {
	Seqno uint32
	Block BlockProof
	Body  *cell.Cell
	// State is the trusted state once the update is accepted.
	State *types.TrustedState
}

// PrepareKeyBlockUpdate builds the update from trusted to the key block
// seqno, which must directly follow it.
func (c *Client) PrepareKeyBlockUpdate(
	ctx context.Context,
	trusted *types.TrustedState,
	seqno uint32,
	queryID uint64) (*KeyBlockUpdate, error) {

	fb, err := c.fetchBlock(ctx, seqno, true)
	if err != nil {
		return nil, err
	}
	bp, err := VerifyKeyBlock(trusted, fb.cell, fb.fileHash, fb.sigs)
	if err != nil {
		return nil, err
	}
	body, err := NewKeyBlockBody(*bp, queryID)
	if err != nil {
		return nil, err
	}
	next, err := TrustedStateFromKeyBlock(fb.cell, trusted.ID)
	if err != nil {
		return nil, err
	}
	c.observeProof(proofKindKeyBlock, bp.Proof)

	return &KeyBlockUpdate{Seqno: seqno, Block: *bp, Body: body, State: next}, nil
}

// Sync brings the trusted state to the key block target (0 - the newest
// key block of the primary). Key blocks between the trusted one and target
// are discovered through their prev_key_block_seqno and returned as the
// ordered list of updates to submit. Every accepted state is saved.
//
// Sync returns no updates when the trusted state is already at target.
func (c *Client) Sync(ctx context.Context, target uint32) ([]*KeyBlockUpdate, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	trusted := c.latestTrustedState
	if target == 0 {
		var err error
		if target, err = c.LastKeyBlockSeqno(ctx); err != nil {
			return nil, err
		}
	}
	switch {
	case target == trusted.Seqno:
		c.logger.Debug("Trusted state is up to date", "seqno", target)
		return nil, nil
	case target < trusted.Seqno:
		return nil, fmt.Errorf("key block #%d is older than the trusted state #%d", target, trusted.Seqno)
	}

	chain, err := c.keyBlockChain(ctx, trusted.Seqno, target)
	if err != nil {
		return nil, ErrVerificationFailed{From: trusted.Seqno, To: target, Reason: err}
	}
	c.logger.Info("Syncing key blocks", "from", trusted.Seqno, "to", target, "steps", len(chain))

	updates := make([]*KeyBlockUpdate, 0, len(chain))
	for _, seqno := range chain {
		upd, err := c.PrepareKeyBlockUpdate(ctx, trusted, seqno, 0)
		if err != nil {
			return updates, ErrVerificationFailed{From: trusted.Seqno, To: seqno, Reason: err}
		}
		if err := c.updateTrustedState(upd.State); err != nil {
			return updates, err
		}
		c.metrics.KeyBlocksSynced.Add(1)
		c.logger.Info("Accepted key block", "seqno", seqno, "since", upd.State.UTimeSince, "until", upd.State.UTimeUntil)

		updates = append(updates, upd)
		trusted = upd.State
	}
	return updates, nil
}

// keyBlockChain returns the key blocks after from up to and including to,
// in ascending order.
func (c *Client) keyBlockChain(ctx context.Context, from, to uint32) ([]uint32, error) {
	chain := []uint32{to}
	for seqno := to; ; {
		if len(chain) > c.maxSyncSteps {
			return nil, fmt.Errorf("more than %d key blocks between #%d and #%d", c.maxSyncSteps, from, to)
		}
		prev, err := c.prevKeyBlockSeqno(ctx, seqno)
		if err != nil {
			return nil, err
		}
		if prev == from {
			break
		}
		if prev < from || prev >= seqno {
			return nil, ErrOutOfOrder{Trusted: from, KeyBlock: seqno, PrevKnown: prev}
		}
		chain = append(chain, prev)
		seqno = prev
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// BlockCheck is a check_block message for a block signed by the trusted
// validators.
type BlockCheck struct {
	Seqno    uint32
	RootHash []byte
	Block    BlockProof
	Body     *cell.Cell
}

// PrepareBlockCheck builds a check_block message for the masterchain block
// seqno. callback may be nil.
func (c *Client) PrepareBlockCheck(ctx context.Context, seqno uint32, queryID uint64, callback *cell.Cell) (*BlockCheck, error) {
	trusted := c.TrustedState()
	fb, err := c.fetchBlock(ctx, seqno, true)
	if err != nil {
		return nil, err
	}
	rootHash := fb.cell.Hash(0)
	packed, err := VerifySignatures(trusted, rootHash, fb.fileHash, fb.sigs)
	if err != nil {
		return nil, err
	}
	body, err := CheckBlockBody(fb.fileHash, rootHash, packed.Cell, queryID, callback)
	if err != nil {
		return nil, err
	}
	return &BlockCheck{
		Seqno:    seqno,
		RootHash: rootHash,
		Block:    BlockProof{FileHash: fb.fileHash, Signatures: packed.Cell},
		Body:     body,
	}, nil
}

// TransactionCheck is a check_transaction message proving a transaction
// through a block signed by the trusted validators.
type TransactionCheck struct {
	Transaction TransactionProof
	Block       BlockProof
	Body        *cell.Cell
}

// PrepareTransactionProof builds the check_transaction message for the
// transaction txHash of the masterchain block seqno. It returns an error
// wrapping types.ErrNotFound when the block has no such transaction.
func (c *Client) PrepareTransactionProof(ctx context.Context, seqno uint32, txHash []byte, queryID uint64) (*TransactionCheck, error) {
	trusted := c.TrustedState()
	fb, err := c.fetchBlock(ctx, seqno, true)
	if err != nil {
		return nil, err
	}

	tx, err := block.FindTransaction(fb.cell, txHash)
	if err != nil {
		return nil, err
	}
	blockProof, err := proof.PrepareBlock(fb.cell, [][]byte{txHash})
	if err != nil {
		return nil, err
	}
	txProof, err := proof.PrepareTransactionProof(tx.Raw)
	if err != nil {
		return nil, err
	}
	packed, err := VerifySignatures(trusted, fb.cell.Hash(0), fb.fileHash, fb.sigs)
	if err != nil {
		return nil, err
	}

	check := &TransactionCheck{
		Transaction: TransactionProof{AccountBlockID: tx.AccountBlockID, LT: tx.LT, Proof: txProof},
		Block:       BlockProof{FileHash: fb.fileHash, Proof: blockProof, Signatures: packed.Cell},
	}
	if check.Body, err = CheckTransactionBody(check.Transaction, check.Block, queryID); err != nil {
		return nil, err
	}
	c.observeProof(proofKindBlock, blockProof)
	c.observeProof(proofKindTransaction, txProof)
	c.logger.Debug("Prepared transaction proof", "seqno", seqno, "lt", tx.LT, "tx", fmt.Sprintf("%X", txHash))
	return check, nil
}

func (c *Client) observeProof(kind string, p *cell.Cell) {
	c.metrics.ProofsPrepared.With("kind", kind).Add(1)
	c.metrics.ProofSizeBytes.With("kind", kind).Observe(float64(len(p.ToBOC())))
}
