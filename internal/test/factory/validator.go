package factory

import (
	"fmt"

	"github.com/tonred/ton-trustless-bridge/crypto/ed25519"
	"github.com/tonred/ton-trustless-bridge/types"
)

// Validator returns a validator with a key derived from seed and index.
func Validator(seed string, i int, weight uint64) (*types.Validator, ed25519.PrivKey) {
	privKey := ed25519.GenPrivKeyFromSecret([]byte(fmt.Sprintf("%s/%d", seed, i)))
	val := &types.Validator{
		PubKey: privKey.PubKey(),
		Weight: weight,
	}
	if i%2 == 1 {
		val.ADNLAddr = privKey.PubKey().Bytes()
	}
	return val, privKey
}

// ValidatorSet returns numValidators validators of which the first main are
// main validators. Weights decrease with the slot, the way elections order
// them.
func ValidatorSet(seed string, numValidators, main int) (*types.ValidatorSet, []ed25519.PrivKey) {
	var (
		valz     = make([]*types.Validator, numValidators)
		privKeys = make([]ed25519.PrivKey, numValidators)
		total    uint64
	)

	for i := 0; i < numValidators; i++ {
		weight := uint64(1000000 - 1000*i)
		valz[i], privKeys[i] = Validator(seed, i, weight)
		total += weight
	}

	vals := &types.ValidatorSet{
		UTimeSince:  1700000000,
		UTimeUntil:  1700065536,
		Total:       uint16(numValidators),
		Main:        uint16(main),
		TotalWeight: total,
		Validators:  valz,
	}
	var err error
	if vals.ListCell, err = types.ValidatorListCell(valz); err != nil {
		panic(err)
	}
	return vals, privKeys
}

// SignBlock signs a block with every key.
func SignBlock(privKeys []ed25519.PrivKey, rootHash, fileHash []byte) []types.BlockSignature {
	msg := types.BlockSignaturePayload(rootHash, fileHash)
	sigs := make([]types.BlockSignature, len(privKeys))
	for i, pk := range privKeys {
		sig, err := pk.Sign(msg)
		if err != nil {
			panic(err)
		}
		sigs[i] = types.BlockSignature{
			NodeIDShort: types.ComputeNodeIDShort(pk.PubKey().Bytes()),
			Signature:   sig,
		}
	}
	return sigs
}
