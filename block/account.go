package block

import (
	"fmt"

	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/types"
)

// AccountStatus is the state of an account.
type AccountStatus uint8

const (
	AccountNone AccountStatus = iota
	AccountUninit
	AccountActive
	AccountFrozen
)

func (s AccountStatus) String() string {
	switch s {
	case AccountNone:
		return "none"
	case AccountUninit:
		return "uninit"
	case AccountActive:
		return "active"
	case AccountFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Account is the part of an account cell needed to prove its storage.
type Account struct {
	Status      AccountStatus
	Workchain   int32
	Address     []byte
	LastTransLT uint64
	Balance     CurrencyCollection

	// Code and Data are set for active accounts with a StateInit that
	// carries them.
	Code *cell.Cell
	Data *cell.Cell
	// StateHash is set for frozen accounts.
	StateHash []byte
}

// ParseAccount reads an Account cell.
func ParseAccount(c *cell.Cell) (*Account, error) {
	acc, err := parseAccount(c.BeginParse())
	if err != nil {
		return nil, types.NewErrStructural("account", err)
	}
	return acc, nil
}

func parseAccount(s *cell.Slice) (*Account, error) {
	exists, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if !exists {
		return &Account{Status: AccountNone}, nil
	}

	acc := &Account{}
	if acc.Workchain, acc.Address, err = loadMsgAddressInt(s); err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}
	if err = skipStorageInfo(s); err != nil {
		return nil, fmt.Errorf("storage info: %w", err)
	}
	if acc.LastTransLT, err = s.LoadUInt(64); err != nil {
		return nil, err
	}
	if acc.Balance, err = ParseCurrencyCollection(s); err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}

	active, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if active {
		acc.Status = AccountActive
		if err := parseStateInit(s, acc); err != nil {
			return nil, fmt.Errorf("state init: %w", err)
		}
		return acc, nil
	}

	frozen, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if !frozen {
		acc.Status = AccountUninit
		return acc, nil
	}
	acc.Status = AccountFrozen
	if acc.StateHash, err = s.LoadBytes(32); err != nil {
		return nil, err
	}
	return acc, nil
}

// loadMsgAddressInt reads addr_std$10 or addr_var$11, each with an optional
// anycast prefix.
func loadMsgAddressInt(s *cell.Slice) (int32, []byte, error) {
	kind, err := s.LoadUInt(2)
	if err != nil {
		return 0, nil, err
	}
	if kind != 0b10 && kind != 0b11 {
		return 0, nil, fmt.Errorf("not an internal address: %02b", kind)
	}

	anycast, err := s.LoadBit()
	if err != nil {
		return 0, nil, err
	}
	if anycast {
		depth, err := s.LoadUInt(5)
		if err != nil {
			return 0, nil, err
		}
		if depth < 1 || depth > 30 {
			return 0, nil, fmt.Errorf("anycast depth %d", depth)
		}
		if err := s.SkipBits(int(depth)); err != nil {
			return 0, nil, err
		}
	}

	if kind == 0b10 {
		wc, err := s.LoadInt(8)
		if err != nil {
			return 0, nil, err
		}
		addr, err := s.LoadBytes(32)
		return int32(wc), addr, err
	}

	addrLen, err := s.LoadUInt(9)
	if err != nil {
		return 0, nil, err
	}
	wc, err := s.LoadInt(32)
	if err != nil {
		return 0, nil, err
	}
	addr, err := s.LoadBits(int(addrLen))
	return int32(wc), addr, err
}

// skipStorageInfo skips StorageUsed (cells, bits and public cells as
// VarUInteger 7), last_paid and the optional due payment.
func skipStorageInfo(s *cell.Slice) error {
	for i := 0; i < 3; i++ {
		if _, err := loadVarUInt(s, 3); err != nil {
			return err
		}
	}
	if err := s.SkipBits(32); err != nil {
		return err
	}
	due, err := s.LoadBit()
	if err != nil {
		return err
	}
	if due {
		if _, err := loadVarUInt(s, 4); err != nil {
			return err
		}
	}
	return nil
}

func parseStateInit(s *cell.Slice, acc *Account) error {
	splitDepth, err := s.LoadBit()
	if err != nil {
		return err
	}
	if splitDepth {
		if err := s.SkipBits(5); err != nil {
			return err
		}
	}
	special, err := s.LoadBit()
	if err != nil {
		return err
	}
	if special {
		if err := s.SkipBits(2); err != nil {
			return err
		}
	}
	if acc.Code, err = s.LoadMaybeRef(); err != nil {
		return err
	}
	if acc.Data, err = s.LoadMaybeRef(); err != nil {
		return err
	}
	// library:(Maybe ^(HashmapE 256 SimpleLib)) is not needed
	return nil
}

// StoreAccount writes an active account with the standard address form and
// the layout ParseAccount reads. Storage statistics are zero.
func StoreAccount(b *cell.Builder, acc *Account) *cell.Builder {
	if acc.Status == AccountNone {
		return b.StoreBoolBit(false)
	}
	b.StoreBoolBit(true).
		StoreUInt(0b10, 2).
		StoreBoolBit(false).
		StoreInt(int64(acc.Workchain), 8).
		StoreBytes(acc.Address)
	for i := 0; i < 3; i++ {
		b.StoreUInt(0, 3)
	}
	b.StoreUInt(0, 32).StoreBoolBit(false).
		StoreUInt(acc.LastTransLT, 64)
	StoreCurrencyCollection(b, acc.Balance)

	switch acc.Status {
	case AccountActive:
		b.StoreBoolBit(true).
			StoreBoolBit(false).
			StoreBoolBit(false).
			StoreMaybeRef(acc.Code).
			StoreMaybeRef(acc.Data).
			StoreBoolBit(false)
	case AccountFrozen:
		b.StoreUInt(0b01, 2).StoreBytes(acc.StateHash)
	default:
		b.StoreUInt(0b00, 2)
	}
	return b
}
