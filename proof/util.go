package proof

import "math/big"

func bigKey(k uint64) *big.Int {
	return new(big.Int).SetUint64(k)
}
