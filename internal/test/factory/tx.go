package factory

import (
	"encoding/binary"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
)

const transactionTag = 0b0111

// Account returns a deterministic account address.
func Account(i int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(i))
	return filler("account"+string(b[:]), 32)
}

// Transaction builds a transaction cell of account at lt.
func Transaction(account []byte, lt uint64) *cell.Cell {
	msgs := must(cell.BeginCell().
		StoreBytes(filler(string(account)+"in-msg", 80)).
		EndCell())
	description := must(cell.BeginCell().
		StoreUInt(0, 4).
		StoreBytes(filler(string(account)+"descr", 40)).
		EndCell())
	hashUpdate := must(cell.BeginCell().
		StoreUInt(0x72, 8).
		StoreBytes(filler(string(account)+"old", 32)).
		StoreBytes(filler(string(account)+"new", 32)).
		EndCell())

	return must(cell.BeginCell().
		StoreUInt(transactionTag, 4).
		StoreBytes(account).
		StoreUInt(lt, 64).
		StoreBytes(filler("prev-tx", 32)).
		StoreUInt(lt-1, 64).
		StoreUInt(1700000000, 32).
		StoreUInt(0, 15).
		StoreUInt(2, 2).
		StoreUInt(2, 2).
		StoreRef(msgs).
		StoreUInt(0, 4).StoreBoolBit(false).
		StoreRef(hashUpdate).
		StoreRef(description).
		EndCell())
}

// AccountBlock builds an account block with one transaction per lt.
func AccountBlock(account []byte, lts ...uint64) *block.AccountBlock {
	ab := &block.AccountBlock{
		Account:     account,
		StateUpdate: must(cell.BeginCell().StoreUInt(0x72, 8).StoreBytes(filler(string(account)+"state", 64)).EndCell()),
	}
	for _, lt := range lts {
		ab.Transactions = append(ab.Transactions, block.AccountTransaction{
			LT:   lt,
			Fees: block.CurrencyCollection{},
			Cell: Transaction(account, lt),
		})
	}
	return ab
}
