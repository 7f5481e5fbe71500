package db

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/light/store"
	"github.com/tonred/ton-trustless-bridge/types"
)

const (
	prefixTrustedState = int64(11)
	prefixSize         = int64(12)
)

type dbs struct {
	db     dbm.DB
	prefix string

	mtx  sync.RWMutex
	size uint16
}

// New returns a Store that wraps any DB (with an optional prefix in case you
// want to use one DB with many light clients).
//
// States are stored as bags of cells of the light client storage cell.
func New(db dbm.DB, prefix string) store.Store {
	size := uint16(0)
	bz, err := db.Get(sizeKey(prefix))
	if err == nil && len(bz) > 0 {
		size = unmarshalSize(bz)
	}

	return &dbs{db: db, prefix: prefix, size: size}
}

// SaveTrustedState persists a TrustedState to the db. Saving a state for a
// seqno that is already stored overwrites it.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) SaveTrustedState(state *types.TrustedState) error {
	if state.Seqno == 0 {
		return fmt.Errorf("zero seqno")
	}
	c, err := state.ToCell()
	if err != nil {
		return fmt.Errorf("encoding trusted state: %w", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	key := s.stateKey(state.Seqno)
	existing, err := s.db.Get(key)
	if err != nil {
		return err
	}
	size := s.size
	if len(existing) == 0 {
		size++
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err = b.Set(key, c.ToBOC()); err != nil {
		return err
	}
	if err = b.Set(sizeKey(s.prefix), marshalSize(size)); err != nil {
		return err
	}
	if err = b.WriteSync(); err != nil {
		return err
	}

	s.size = size
	return nil
}

// DeleteTrustedState deletes a TrustedState from the db.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) DeleteTrustedState(seqno uint32) error {
	if seqno == 0 {
		return fmt.Errorf("zero seqno")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	key := s.stateKey(seqno)
	existing, err := s.db.Get(key)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return store.ErrTrustedStateNotFound
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err = b.Delete(key); err != nil {
		return err
	}
	if err = b.Set(sizeKey(s.prefix), marshalSize(s.size-1)); err != nil {
		return err
	}
	if err = b.WriteSync(); err != nil {
		return err
	}

	s.size--
	return nil
}

// TrustedState loads the TrustedState of the given key block.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) TrustedState(seqno uint32) (*types.TrustedState, error) {
	bz, err := s.db.Get(s.stateKey(seqno))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, store.ErrTrustedStateNotFound
	}
	return decodeState(bz)
}

// LastTrustedState returns the state with the highest seqno.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) LastTrustedState() (*types.TrustedState, error) {
	itr, err := s.db.ReverseIterator(s.stateRange())
	if err != nil {
		return nil, err
	}
	defer itr.Close()

	for ; itr.Valid(); itr.Next() {
		if _, ok := s.parseStateKey(itr.Key()); ok {
			return decodeState(itr.Value())
		}
	}
	if err := itr.Error(); err != nil {
		return nil, err
	}
	return nil, store.ErrTrustedStateNotFound
}

// Prune removes the oldest states until only size are left.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) Prune(size uint16) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.size <= size {
		return nil
	}
	numToPrune := s.size - size

	itr, err := s.db.Iterator(s.stateRange())
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()

	pruned := uint16(0)
	for ; itr.Valid() && pruned < numToPrune; itr.Next() {
		if _, ok := s.parseStateKey(itr.Key()); !ok {
			continue
		}
		if err = b.Delete(itr.Key()); err != nil {
			itr.Close()
			return err
		}
		pruned++
	}
	itr.Close()

	if err = b.Set(sizeKey(s.prefix), marshalSize(s.size-pruned)); err != nil {
		return err
	}
	if err = b.WriteSync(); err != nil {
		return err
	}

	s.size -= pruned
	return nil
}

// Size returns the number of stored states.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) Size() uint16 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.size
}

func decodeState(bz []byte) (*types.TrustedState, error) {
	c, err := cell.FromBOC(bz)
	if err != nil {
		return nil, fmt.Errorf("decoding trusted state: %w", err)
	}
	return types.TrustedStateFromCell(c)
}

func (s *dbs) stateKey(seqno uint32) []byte {
	return s.rawStateKey(int64(seqno))
}

func (s *dbs) rawStateKey(seqno int64) []byte {
	key, err := orderedcode.Append(nil, s.prefix, prefixTrustedState, seqno)
	if err != nil {
		panic(err)
	}
	return key
}

// stateRange covers every uint32 seqno.
func (s *dbs) stateRange() ([]byte, []byte) {
	return s.rawStateKey(0), s.rawStateKey(1 << 32)
}

func (s *dbs) parseStateKey(key []byte) (uint32, bool) {
	var (
		dbPrefix string
		prefix   int64
		seqno    int64
	)
	remaining, err := orderedcode.Parse(string(key), &dbPrefix, &prefix, &seqno)
	if err != nil || len(remaining) != 0 {
		return 0, false
	}
	if dbPrefix != s.prefix || prefix != prefixTrustedState {
		return 0, false
	}
	return uint32(seqno), true
}

func sizeKey(prefix string) []byte {
	key, err := orderedcode.Append(nil, prefix, prefixSize)
	if err != nil {
		panic(err)
	}
	return key
}

func marshalSize(size uint16) []byte {
	bs := make([]byte, 2)
	binary.LittleEndian.PutUint16(bs, size)
	return bs
}

func unmarshalSize(bz []byte) uint16 {
	return binary.LittleEndian.Uint16(bz)
}
