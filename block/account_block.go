package block

import (
	"fmt"
	"math/big"

	"github.com/tonred/ton-trustless-bridge/cell"
)

const accountBlockTag = 5

// CurrencyCollection is an amount of nanotons plus extra currencies.
type CurrencyCollection struct {
	Grams *big.Int
	// Extra is the root of the extra currency dictionary, nil when empty.
	Extra *cell.Cell
}

// ParseCurrencyCollection reads Grams (VarUInteger 16) followed by the
// extra currency HashmapE.
func ParseCurrencyCollection(s *cell.Slice) (CurrencyCollection, error) {
	grams, err := loadVarUInt(s, 4)
	if err != nil {
		return CurrencyCollection{}, err
	}
	extra, err := s.LoadMaybeRef()
	if err != nil {
		return CurrencyCollection{}, err
	}
	return CurrencyCollection{Grams: grams, Extra: extra}, nil
}

// StoreCurrencyCollection writes cc; a nil amount is stored as zero.
func StoreCurrencyCollection(b *cell.Builder, cc CurrencyCollection) *cell.Builder {
	grams := cc.Grams
	if grams == nil {
		grams = new(big.Int)
	}
	storeVarUInt(b, grams, 4)
	return b.StoreMaybeRef(cc.Extra)
}

func loadVarUInt(s *cell.Slice, lenBits int) (*big.Int, error) {
	n, err := s.LoadUInt(lenBits)
	if err != nil {
		return nil, err
	}
	return s.LoadBigUInt(int(n) * 8)
}

func storeVarUInt(b *cell.Builder, v *big.Int, lenBits int) {
	n := (v.BitLen() + 7) / 8
	b.StoreUInt(uint64(n), lenBits).StoreBigUInt(v, n*8)
}

// AccountTransaction is a leaf of an account block's transaction
// dictionary.
type AccountTransaction struct {
	LT   uint64
	Fees CurrencyCollection
	Cell *cell.Cell
}

// AccountBlock groups the transactions of one account within a block.
type AccountBlock struct {
	Account      []byte
	Transactions []AccountTransaction
	StateUpdate  *cell.Cell
}

// ParseAccountBlock reads an AccountBlock: a 4-bit tag (5), the 256-bit
// account address, the transactions as an inline augmented dictionary keyed
// by logical time, and the state update ref.
func ParseAccountBlock(s *cell.Slice) (*AccountBlock, error) {
	tag, err := s.LoadUInt(4)
	if err != nil {
		return nil, err
	}
	if tag != accountBlockTag {
		return nil, fmt.Errorf("invalid account block tag %d", tag)
	}
	ab := &AccountBlock{}
	if ab.Account, err = s.LoadBytes(32); err != nil {
		return nil, err
	}

	err = cell.ParseDictSlice(s, txLTKeyBits, func(key *big.Int, value *cell.Slice) error {
		fees, err := ParseCurrencyCollection(value)
		if err != nil {
			return err
		}
		tx, err := value.LoadRef()
		if err != nil {
			return err
		}
		ab.Transactions = append(ab.Transactions, AccountTransaction{
			LT:   key.Uint64(),
			Fees: fees,
			Cell: tx,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}

	if ab.StateUpdate, err = s.LoadRef(); err != nil {
		return nil, fmt.Errorf("state update: %w", err)
	}
	return ab, nil
}

// Store writes the account block in the layout ParseAccountBlock reads. The
// transaction dictionary forks carry a zero fee aggregate.
func (ab *AccountBlock) Store(b *cell.Builder) error {
	if len(ab.Account) != 32 {
		return fmt.Errorf("account address has %d bytes", len(ab.Account))
	}
	if len(ab.Transactions) == 0 {
		return fmt.Errorf("account block without transactions")
	}
	if ab.StateUpdate == nil {
		return fmt.Errorf("account block without state update")
	}

	d, err := newAugDict(txLTKeyBits)
	if err != nil {
		return err
	}
	for _, tx := range ab.Transactions {
		value, err := StoreCurrencyCollection(cell.BeginCell(), tx.Fees).StoreRef(tx.Cell).EndCell()
		if err != nil {
			return err
		}
		if err := d.SetUint(tx.LT, value); err != nil {
			return err
		}
	}
	root, err := d.ToCell()
	if err != nil {
		return err
	}

	b.StoreUInt(accountBlockTag, 4).
		StoreBytes(ab.Account).
		StoreSlice(root.BeginParse()).
		StoreRef(ab.StateUpdate)
	return b.Err()
}

func newAugDict(keyBits int) (*cell.Dictionary, error) {
	zero, err := StoreCurrencyCollection(cell.BeginCell(), CurrencyCollection{}).EndCell()
	if err != nil {
		return nil, err
	}
	d := cell.NewDict(keyBits)
	d.SetForkExtra(zero)
	return d, nil
}

// StoreAccountBlocks builds a ShardAccountBlocks cell (an augmented
// HashmapE keyed by account address) from account blocks. Fee aggregates
// are zero.
func StoreAccountBlocks(blocks []*AccountBlock) (*cell.Cell, error) {
	d, err := newAugDict(accountKeyBits)
	if err != nil {
		return nil, err
	}
	for _, ab := range blocks {
		b := StoreCurrencyCollection(cell.BeginCell(), CurrencyCollection{})
		if err := ab.Store(b); err != nil {
			return nil, err
		}
		value, err := b.EndCell()
		if err != nil {
			return nil, err
		}
		if err := d.Set(new(big.Int).SetBytes(ab.Account), value); err != nil {
			return nil, err
		}
	}
	root, err := d.ToCell()
	if err != nil {
		return nil, err
	}
	b := cell.BeginCell().StoreMaybeRef(root)
	return StoreCurrencyCollection(b, CurrencyCollection{}).EndCell()
}
