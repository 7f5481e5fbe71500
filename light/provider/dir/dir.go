// Package dir serves masterchain blocks from a directory of files, one
// bag of cells per block (<seqno>.boc) next to its signatures
// (<seqno>.sigs.json, as returned by getMasterchainBlockSignatures).
package dir

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/creachadair/atomicfile"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/crypto"
	"github.com/tonred/ton-trustless-bridge/light/provider"
	"github.com/tonred/ton-trustless-bridge/types"
)

const (
	blockExt      = ".boc"
	signaturesExt = ".sigs.json"
)

type signaturesFile struct {
	Signatures []signatureJSON `json:"signatures"`
}

type signatureJSON struct {
	Type        string `json:"@type"`
	NodeIDShort string `json:"node_id_short"`
	Signature   string `json:"signature"`
}

type dirProvider struct {
	root string
}

// New returns a provider reading blocks from root.
func New(root string) provider.Provider {
	return &dirProvider{root: root}
}

func (p *dirProvider) String() string {
	return fmt.Sprintf("dir{%s}", p.root)
}

func blockPath(root string, seqno uint32) string {
	return filepath.Join(root, strconv.FormatUint(uint64(seqno), 10)+blockExt)
}

func signaturesPath(root string, seqno uint32) string {
	return filepath.Join(root, strconv.FormatUint(uint64(seqno), 10)+signaturesExt)
}

func (p *dirProvider) MasterchainInfo(ctx context.Context) (*provider.MasterchainInfo, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, err
	}
	var (
		last  uint32
		found bool
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, blockExt) {
			continue
		}
		seqno, err := strconv.ParseUint(strings.TrimSuffix(name, blockExt), 10, 32)
		if err != nil {
			continue
		}
		if !found || uint32(seqno) > last {
			last, found = uint32(seqno), true
		}
	}
	if !found {
		return nil, provider.ErrBlockNotFound
	}
	id, err := p.LookupBlock(ctx, provider.MasterchainWorkchain, provider.MasterchainShard, last)
	if err != nil {
		return nil, err
	}
	return &provider.MasterchainInfo{Last: *id}, nil
}

func (p *dirProvider) load(seqno uint32) ([]byte, *cell.Cell, error) {
	boc, err := os.ReadFile(blockPath(p.root, seqno))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, provider.ErrBlockNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	root, err := cell.FromBOC(boc)
	if err != nil {
		return nil, nil, provider.ErrBadBlock{Reason: err}
	}
	return boc, root, nil
}

func (p *dirProvider) LookupBlock(ctx context.Context, workchain int32, shard int64, seqno uint32) (*provider.BlockID, error) {
	if workchain != provider.MasterchainWorkchain {
		return nil, provider.ErrBlockNotFound
	}
	boc, root, err := p.load(seqno)
	if err != nil {
		return nil, err
	}
	return &provider.BlockID{
		Workchain: provider.MasterchainWorkchain,
		Shard:     provider.MasterchainShard,
		Seqno:     seqno,
		RootHash:  root.Hash(0),
		FileHash:  crypto.Checksum(boc),
	}, nil
}

func (p *dirProvider) Block(ctx context.Context, id provider.BlockID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	boc, _, err := p.load(id.Seqno)
	return boc, err
}

func (p *dirProvider) BlockHeader(ctx context.Context, id provider.BlockID) (*provider.BlockHeader, error) {
	_, root, err := p.load(id.Seqno)
	if err != nil {
		return nil, err
	}
	info, err := block.ParseInfo(root)
	if err != nil {
		return nil, provider.ErrBadBlock{Reason: err}
	}
	if info.Seqno != id.Seqno {
		return nil, provider.ErrBadBlock{Reason: fmt.Errorf("file %d holds block %d", id.Seqno, info.Seqno)}
	}
	return &provider.BlockHeader{
		ID:                id,
		IsKeyBlock:        info.KeyBlock,
		PrevKeyBlockSeqno: info.PrevKeyBlockSeqno,
		GenUtime:          info.GenUtime,
	}, nil
}

func (p *dirProvider) MasterchainBlockSignatures(ctx context.Context, seqno uint32) ([]types.BlockSignature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bz, err := os.ReadFile(signaturesPath(p.root, seqno))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeSignatures(bz)
}

// DecodeSignatures decodes a getMasterchainBlockSignatures result.
func DecodeSignatures(bz []byte) ([]types.BlockSignature, error) {
	var f signaturesFile
	if err := json.Unmarshal(bz, &f); err != nil {
		return nil, fmt.Errorf("decode signatures: %w", err)
	}
	sigs := make([]types.BlockSignature, len(f.Signatures))
	for i, s := range f.Signatures {
		nodeID, err := base64.StdEncoding.DecodeString(s.NodeIDShort)
		if err != nil {
			return nil, fmt.Errorf("signature #%d node_id_short: %w", i, err)
		}
		sig, err := base64.StdEncoding.DecodeString(s.Signature)
		if err != nil {
			return nil, fmt.Errorf("signature #%d: %w", i, err)
		}
		sigs[i] = types.BlockSignature{NodeIDShort: nodeID, Signature: sig}
	}
	return sigs, nil
}

// EncodeSignatures is the inverse of DecodeSignatures.
func EncodeSignatures(sigs []types.BlockSignature) ([]byte, error) {
	f := signaturesFile{Signatures: make([]signatureJSON, len(sigs))}
	for i, s := range sigs {
		f.Signatures[i] = signatureJSON{
			Type:        "blocks.signature",
			NodeIDShort: base64.StdEncoding.EncodeToString(s.NodeIDShort),
			Signature:   base64.StdEncoding.EncodeToString(s.Signature),
		}
	}
	return json.MarshalIndent(f, "", "  ")
}

// WriteBlock stores a block and its signatures under root.
func WriteBlock(root string, b *cell.Cell, sigs []types.BlockSignature) error {
	info, err := block.ParseInfo(b)
	if err != nil {
		return err
	}
	if _, err := atomicfile.WriteAll(blockPath(root, info.Seqno), bytes.NewReader(b.ToBOC()), 0644); err != nil {
		return err
	}
	if sigs == nil {
		return nil
	}
	bz, err := EncodeSignatures(sigs)
	if err != nil {
		return err
	}
	_, err = atomicfile.WriteAll(signaturesPath(root, info.Seqno), bytes.NewReader(bz), 0644)
	return err
}
