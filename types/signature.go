package types

import (
	"fmt"
	"math/big"

	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/crypto"
	"github.com/tonred/ton-trustless-bridge/crypto/ed25519"
)

var blockSignaturePrefix = []byte{0x70, 0x6e, 0x0b, 0xc5}

// BlockSignature is a validator's signature of a masterchain block as
// returned by liteservers.
type BlockSignature struct {
	NodeIDShort []byte
	Signature   []byte
}

// PackedSignatures is the signature dictionary sent along with a block.
type PackedSignatures struct {
	// Cell is the root of a 16-bit keyed dictionary slot -> signature.
	Cell *cell.Cell
	// Weight is the sum of the weights of the packed signers.
	Weight *big.Int
	// Slots lists the packed validator slots in ascending order.
	Slots []uint16
}

// BlockSignaturePayload returns the message validators sign for a block.
func BlockSignaturePayload(rootHash, fileHash []byte) []byte {
	msg := make([]byte, 0, len(blockSignaturePrefix)+2*crypto.HashSize)
	msg = append(msg, blockSignaturePrefix...)
	msg = append(msg, rootHash...)
	return append(msg, fileHash...)
}

// VerifyBlockSignature checks every signature against the validator it
// claims to come from. It stops at the first invalid signature or unknown
// signer.
func VerifyBlockSignature(rootHash, fileHash []byte, sigs []BlockSignature, dir ValidatorsByNodeID) bool {
	msg := BlockSignaturePayload(rootHash, fileHash)
	for _, sig := range sigs {
		v, ok := dir.Get(sig.NodeIDShort)
		if !ok {
			return false
		}
		if !v.PubKey.VerifySignature(msg, sig.Signature) {
			return false
		}
	}
	return true
}

// PackSignatures walks the compact validator list in slot order and packs
// the signatures of listed validators until their weight reaches cutoff.
// Reaching the cutoff is not enforced here: the result may carry less
// weight when the signatures run out. ErrNoQuorum is returned only when no
// signature matches a validator.
func PackSignatures(sigs []BlockSignature, cutoff *big.Int, listCell *cell.Cell) (*PackedSignatures, error) {
	vals, err := ParseValidatorsList(listCell)
	if err != nil {
		return nil, err
	}

	bySigner := make(map[string][]byte, len(sigs))
	for _, s := range sigs {
		// the first signature of a signer wins
		if _, ok := bySigner[string(s.NodeIDShort)]; !ok {
			bySigner[string(s.NodeIDShort)] = s.Signature
		}
	}

	d := cell.NewDict(validatorsKeyBits)
	packed := &PackedSignatures{Weight: new(big.Int)}
	for i, v := range vals {
		if sig, ok := bySigner[string(v.NodeIDShort())]; ok {
			if len(sig) != ed25519.SignatureSize {
				return nil, fmt.Errorf("signature of slot %d has %d bytes", i, len(sig))
			}
			value, err := cell.BeginCell().StoreBytes(sig).EndCell()
			if err != nil {
				return nil, err
			}
			if err := d.SetUint(uint64(i), value); err != nil {
				return nil, err
			}
			packed.Weight.Add(packed.Weight, new(big.Int).SetUint64(v.Weight))
			packed.Slots = append(packed.Slots, uint16(i))
		}
		if packed.Weight.Cmp(cutoff) >= 0 {
			break
		}
	}
	if len(packed.Slots) == 0 {
		return nil, ErrNoQuorum
	}

	if packed.Cell, err = d.ToCell(); err != nil {
		return nil, err
	}
	return packed, nil
}

// ParsePackedSignatures reads a signature dictionary back into slot order.
func ParsePackedSignatures(c *cell.Cell) (map[uint16][]byte, error) {
	out := make(map[uint16][]byte)
	err := cell.ParseDict(c, validatorsKeyBits, func(key *big.Int, value *cell.Slice) error {
		sig, err := value.LoadBytes(ed25519.SignatureSize)
		if err != nil {
			return err
		}
		out[uint16(key.Uint64())] = sig
		return nil
	})
	if err != nil {
		return nil, NewErrStructural("signature dictionary", err)
	}
	return out, nil
}
