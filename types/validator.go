package types

import (
	"fmt"

	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/crypto"
	"github.com/tonred/ton-trustless-bridge/crypto/ed25519"
)

const (
	validatorTag     = 0x53
	validatorAddrTag = 0x73
	// ed25519 public key constructor of the config schema
	pubKeyMagic = 0x8e81278a
)

var nodeIDPrefix = []byte{0xc6, 0xb4, 0x13, 0x48}

// Validator is one entry of a validator set.
type Validator struct {
	PubKey   crypto.PubKey
	Weight   uint64
	ADNLAddr []byte // nil when the record carries no address
}

// NodeIDShort returns the identifier validators sign block votes with.
func (v *Validator) NodeIDShort() []byte {
	return ComputeNodeIDShort(v.PubKey.Bytes())
}

func (v *Validator) String() string {
	if v == nil {
		return "nil-Validator"
	}
	return fmt.Sprintf("Validator{%X W:%d}", v.PubKey.Bytes(), v.Weight)
}

// ComputeNodeIDShort hashes an ed25519 public key into its short node id.
func ComputeNodeIDShort(pubKey []byte) []byte {
	buf := make([]byte, 0, len(nodeIDPrefix)+len(pubKey))
	buf = append(buf, nodeIDPrefix...)
	buf = append(buf, pubKey...)
	return crypto.Checksum(buf)
}

func parseValidatorDescr(s *cell.Slice) (*Validator, error) {
	tag, err := s.LoadUInt(8)
	if err != nil {
		return nil, err
	}
	if tag != validatorTag && tag != validatorAddrTag {
		return nil, fmt.Errorf("%w: validator tag %#x", ErrInvalidConfig, tag)
	}
	magic, err := s.LoadUInt(32)
	if err != nil {
		return nil, err
	}
	if magic != pubKeyMagic {
		return nil, fmt.Errorf("%w: public key magic %#x", ErrInvalidConfig, magic)
	}
	pk, err := s.LoadBytes(ed25519.PubKeySize)
	if err != nil {
		return nil, err
	}
	weight, err := s.LoadUInt(64)
	if err != nil {
		return nil, err
	}

	v := &Validator{PubKey: ed25519.PubKey(pk), Weight: weight}
	if tag == validatorAddrTag {
		if v.ADNLAddr, err = s.LoadBytes(32); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// StoreValidatorDescr writes v as a config validator record.
func StoreValidatorDescr(b *cell.Builder, v *Validator) *cell.Builder {
	tag := uint64(validatorTag)
	if v.ADNLAddr != nil {
		tag = validatorAddrTag
	}
	b.StoreUInt(tag, 8).
		StoreUInt(pubKeyMagic, 32).
		StoreBytes(v.PubKey.Bytes()).
		StoreUInt(v.Weight, 64)
	if v.ADNLAddr != nil {
		b.StoreBytes(v.ADNLAddr)
	}
	return b
}

// ValidatorsByNodeID indexes validators by their short node id.
type ValidatorsByNodeID map[string]*Validator

// IndexByNodeID builds the index used to match signatures to signers.
func IndexByNodeID(vals []*Validator) ValidatorsByNodeID {
	idx := make(ValidatorsByNodeID, len(vals))
	for _, v := range vals {
		idx[string(v.NodeIDShort())] = v
	}
	return idx
}

// Get returns the validator with the given short node id.
func (m ValidatorsByNodeID) Get(nodeIDShort []byte) (*Validator, bool) {
	v, ok := m[string(nodeIDShort)]
	return v, ok
}
