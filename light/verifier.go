package light

import (
	"errors"
	"math/big"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/crypto/ed25519"
	"github.com/tonred/ton-trustless-bridge/proof"
	"github.com/tonred/ton-trustless-bridge/types"
)

// TrustedStateFromKeyBlock derives the state a light client is deployed
// with from a key block: its seqno, the epoch of config param 34 and the
// main validators with their cutoff weight.
func TrustedStateFromKeyBlock(b *cell.Cell, id uint32) (*types.TrustedState, error) {
	info, err := block.ParseInfo(b)
	if err != nil {
		return nil, err
	}
	if !info.KeyBlock {
		return nil, ErrInvalidBlock{Seqno: info.Seqno, Reason: errors.New("not a key block")}
	}
	param, err := block.GetConfigParam(b, types.ValidatorSetConfigParam)
	if err != nil {
		return nil, err
	}
	vals, err := types.ParseConfigParamValidators(param, false)
	if err != nil {
		return nil, err
	}
	list, cutoff, err := types.PrepareValidatorsList(int(vals.Main), vals.ListCell)
	if err != nil {
		return nil, err
	}
	return &types.TrustedState{
		Seqno:      info.Seqno,
		UTimeSince: vals.UTimeSince,
		UTimeUntil: vals.UTimeUntil,
		Cutoff:     cutoff,
		ID:         id,
		Validators: list,
	}, nil
}

// VerifySignatures keeps the valid signatures of the trusted main
// validators and packs them. It returns ErrNewValSetCantBeTrusted when the
// packed weight stays below the trusted cutoff.
func VerifySignatures(
	trusted *types.TrustedState,
	rootHash, fileHash []byte,
	sigs []types.BlockSignature) (*types.PackedSignatures, error) {

	vals, err := trusted.MainValidators()
	if err != nil {
		return nil, err
	}
	dir := types.IndexByNodeID(vals)

	var (
		msg        = types.BlockSignaturePayload(rootHash, fileHash)
		bv         = ed25519.NewBatchVerifier()
		candidates = make([]types.BlockSignature, 0, len(sigs))
	)
	for _, sig := range sigs {
		v, ok := dir.Get(sig.NodeIDShort)
		if !ok {
			continue
		}
		if err := bv.Add(v.PubKey, msg, sig.Signature); err != nil {
			continue
		}
		candidates = append(candidates, sig)
	}

	valid := candidates
	if len(candidates) > 0 {
		if ok, results := bv.Verify(); !ok {
			valid = make([]types.BlockSignature, 0, len(candidates))
			for i, good := range results {
				if good {
					valid = append(valid, candidates[i])
				}
			}
		}
	}

	notEnough := func(got *big.Int) error {
		return ErrNewValSetCantBeTrusted{types.ErrNotEnoughWeightSigned{Got: got, Needed: trusted.Cutoff}}
	}
	packed, err := types.PackSignatures(valid, trusted.Cutoff, trusted.Validators)
	if errors.Is(err, types.ErrNoQuorum) {
		return nil, notEnough(new(big.Int))
	}
	if err != nil {
		return nil, err
	}
	if packed.Weight.Cmp(trusted.Cutoff) < 0 {
		return nil, notEnough(packed.Weight)
	}
	return packed, nil
}

// VerifyKeyBlock checks that b is the key block following the trusted one
// and that the trusted validators signed it. It returns the key block proof
// and the packed signatures to submit.
func VerifyKeyBlock(
	trusted *types.TrustedState,
	b *cell.Cell,
	fileHash []byte,
	sigs []types.BlockSignature) (*BlockProof, error) {

	info, err := block.ParseInfo(b)
	if err != nil {
		return nil, err
	}
	if !info.KeyBlock {
		return nil, ErrInvalidBlock{Seqno: info.Seqno, Reason: errors.New("not a key block")}
	}
	if info.PrevKeyBlockSeqno != trusted.Seqno || info.Seqno <= trusted.Seqno {
		return nil, ErrOutOfOrder{Trusted: trusted.Seqno, KeyBlock: info.Seqno, PrevKnown: info.PrevKeyBlockSeqno}
	}

	blockProof, err := proof.PrepareKeyBlock(b)
	if err != nil {
		return nil, err
	}

	packed, err := VerifySignatures(trusted, b.Hash(0), fileHash, sigs)
	if err != nil {
		return nil, err
	}
	return &BlockProof{FileHash: fileHash, Proof: blockProof, Signatures: packed.Cell}, nil
}
