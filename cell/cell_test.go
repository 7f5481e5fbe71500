package cell

import (
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonred/ton-trustless-bridge/internal/test/fixtures"
)

func mustCell(t *testing.T, b *Builder) *Cell {
	t.Helper()
	c, err := b.EndCell()
	require.NoError(t, err)
	return c
}

func TestEmptyCellHash(t *testing.T) {
	c := mustCell(t, BeginCell())
	assert.Equal(t,
		"96a296d224f285c67bee93c30f8a309157f0daa35dc5b87e410b78630a09cfc7",
		hex.EncodeToString(c.Hash(0)))
	assert.EqualValues(t, 0, c.Depth(0))
	assert.Equal(t, 0, c.Level())
	assert.Equal(t, c.Hash(0), c.RepresentationHash())
}

func TestBuilderSliceRoundTrip(t *testing.T) {
	child := mustCell(t, BeginCell().StoreUInt(7, 3))
	big256, _ := new(big.Int).SetString("f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0", 16)

	c := mustCell(t, BeginCell().
		StoreUInt(0b101, 3).
		StoreInt(-5, 12).
		StoreBoolBit(true).
		StoreBigUInt(big256, 256).
		StoreBytes([]byte{0xde, 0xad}).
		StoreMaybeRef(nil).
		StoreMaybeRef(child))

	assert.Equal(t, 3+12+1+256+16+1+1, c.BitsSize())
	assert.Equal(t, 1, c.RefsNum())
	assert.EqualValues(t, 1, c.Depth(0))

	s := c.BeginParse()
	v, err := s.LoadUInt(3)
	require.NoError(t, err)
	assert.EqualValues(t, 0b101, v)
	i, err := s.LoadInt(12)
	require.NoError(t, err)
	assert.EqualValues(t, -5, i)
	bit, err := s.LoadBit()
	require.NoError(t, err)
	assert.True(t, bit)
	bi, err := s.LoadBigUInt(256)
	require.NoError(t, err)
	assert.Equal(t, 0, bi.Cmp(big256))
	bz, err := s.LoadBytes(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, bz)
	r, err := s.LoadMaybeRef()
	require.NoError(t, err)
	assert.Nil(t, r)
	r, err = s.LoadMaybeRef()
	require.NoError(t, err)
	assert.Equal(t, child.Hash(0), r.Hash(0))

	assert.Equal(t, 0, s.BitsLeft())
	_, err = s.LoadBit()
	assert.True(t, errors.Is(err, ErrCellUnderflow))

	rebuilt := mustCell(t, c.ToBuilder())
	assert.Equal(t, c.Hash(0), rebuilt.Hash(0))
}

func TestBuilderOverflow(t *testing.T) {
	b := BeginCell().StoreBits(make([]byte, 128), MaxBits).StoreBoolBit(true)
	_, err := b.EndCell()
	assert.True(t, errors.Is(err, ErrCellOverflow))

	empty := mustCell(t, BeginCell())
	b = BeginCell()
	for i := 0; i < MaxRefs+1; i++ {
		b.StoreRef(empty)
	}
	_, err = b.EndCell()
	assert.True(t, errors.Is(err, ErrCellOverflow))

	_, err = BeginCell().StoreUInt(8, 3).EndCell()
	assert.Error(t, err)
}

func TestMerkleProofValidation(t *testing.T) {
	child := mustCell(t, BeginCell().StoreUInt(42, 32))

	good := BeginCell().
		StoreUInt(uint64(MerkleProof), 8).
		StoreBytes(child.Hash(0)).
		StoreUInt(uint64(child.Depth(0)), 16).
		StoreRef(child)
	p, err := good.EndExoticCell()
	require.NoError(t, err)
	assert.Equal(t, MerkleProof, p.Type())
	assert.Equal(t, 0, p.Level())

	bad := BeginCell().
		StoreUInt(uint64(MerkleProof), 8).
		StoreBytes(make([]byte, HashSize)).
		StoreUInt(0, 16).
		StoreRef(child)
	_, err = bad.EndExoticCell()
	assert.True(t, errors.Is(err, ErrInvalidExotic))

	_, err = BeginCell().StoreUInt(0, 8).EndExoticCell()
	assert.True(t, errors.Is(err, ErrInvalidExotic))
}

func TestPrunedBranchKeepsLowerHashes(t *testing.T) {
	child := mustCell(t, BeginCell().StoreUInt(0xabcdef, 24))

	pruned, err := BeginCell().
		StoreUInt(uint64(PrunedBranch), 8).
		StoreUInt(1, 8).
		StoreBytes(child.Hash(0)).
		StoreUInt(uint64(child.Depth(0)), 16).
		EndExoticCell()
	require.NoError(t, err)

	assert.Equal(t, 1, pruned.Level())
	assert.Equal(t, child.Hash(0), pruned.Hash(0))
	assert.NotEqual(t, child.Hash(0), pruned.Hash(1))

	parent := mustCell(t, BeginCell().StoreUInt(1, 1).StoreRef(child))
	parentPruned := mustCell(t, BeginCell().StoreUInt(1, 1).StoreRef(pruned))
	assert.Equal(t, parent.Hash(0), parentPruned.Hash(0))
	assert.Equal(t, LevelMask(1), parentPruned.LevelMask())

	proof, err := BeginCell().
		StoreUInt(uint64(MerkleProof), 8).
		StoreBytes(parentPruned.Hash(0)).
		StoreUInt(uint64(parentPruned.Depth(0)), 16).
		StoreRef(parentPruned).
		EndExoticCell()
	require.NoError(t, err)
	assert.Equal(t, 0, proof.Level())
}

func TestBOCEmptyCell(t *testing.T) {
	c := mustCell(t, BeginCell())
	raw := ToBOCWithFlags([]*Cell{c}, false, false)
	assert.Equal(t, "b5ee9c72010101010002000000", hex.EncodeToString(raw))

	back, err := FromBOC(raw)
	require.NoError(t, err)
	assert.Equal(t, c.Hash(0), back.Hash(0))
}

func TestBOCRoundTrip(t *testing.T) {
	shared := mustCell(t, BeginCell().StoreUInt(0x1234, 13))
	a := mustCell(t, BeginCell().StoreUInt(1, 5).StoreRef(shared))
	b := mustCell(t, BeginCell().StoreUInt(2, 7).StoreRef(shared).StoreRef(a))
	pruned, err := BeginCell().
		StoreUInt(uint64(PrunedBranch), 8).
		StoreUInt(1, 8).
		StoreBytes(a.Hash(0)).
		StoreUInt(uint64(a.Depth(0)), 16).
		EndExoticCell()
	require.NoError(t, err)
	root := mustCell(t, BeginCell().StoreBytes([]byte("root")).StoreRef(b).StoreRef(shared).StoreRef(pruned))

	for _, tc := range []struct {
		name           string
		index, withCRC bool
	}{
		{"plain", false, false},
		{"crc", false, true},
		{"index and crc", true, true},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			raw := ToBOCWithFlags([]*Cell{root}, tc.index, tc.withCRC)
			back, err := FromBOC(raw)
			require.NoError(t, err)
			assert.Equal(t, root.RepresentationHash(), back.RepresentationHash())
			assert.Equal(t, root.Hash(0), back.Hash(0))
			assert.Equal(t, PrunedBranch, back.Ref(2).Type())
		})
	}

	raw := root.ToBOC()
	raw[len(raw)-5] ^= 0xff
	_, err = FromBOC(raw)
	assert.True(t, errors.Is(err, ErrInvalidBOC))
}

func TestBOCMultiRoot(t *testing.T) {
	x := mustCell(t, BeginCell().StoreUInt(1, 8))
	y := mustCell(t, BeginCell().StoreUInt(2, 8).StoreRef(x))
	roots, err := FromBOCMultiRoot(ToBOCWithFlags([]*Cell{x, y}, false, true))
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, x.Hash(0), roots[0].Hash(0))
	assert.Equal(t, y.Hash(0), roots[1].Hash(0))

	_, err = FromBOC([]byte{0, 1, 2, 3, 4})
	assert.True(t, errors.Is(err, ErrInvalidBOC))
}

func TestBOCMalformedHeader(t *testing.T) {
	testCases := []struct {
		name string
		hex  string
	}{
		// magic, flags, off size, cells, roots, absent, data size, root index
		{"cell count over data size", "b5ee9c72" + "04" + "01" + "7fffffff" + "00000001" + "00000000" + "00" + "00000000"},
		{"data size past the input", "b5ee9c72" + "01" + "01" + "01" + "01" + "00" + "ff" + "00" + "0000"},
		{"index past the input", "b5ee9c72" + "81" + "02" + "04" + "01" + "00" + "0008" + "00" + "000000000000"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			raw, err := hex.DecodeString(tc.hex)
			require.NoError(t, err)
			_, err = FromBOC(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidBOC), err.Error())
		})
	}
}

func TestBOCFastnetProofs(t *testing.T) {
	testCases := []struct {
		name       string
		blockHash  string
		blockDepth uint16
		stateHash  string
		stateDepth uint16
	}{
		{
			fixtures.BlockStateProof,
			"28fe5446694ffff8e476e8e112e8122264dbe33f6503ee664ceeec04b7a00be1", 32,
			"2faa97b38562eb1b3d6dcd29800a37115d8b277de2836e14094533aa7aac23c4", 539,
		},
		{
			fixtures.ShardStateProof,
			"1f5dcab93ca8aec603e171f2b3ffb4d6249db05d9fc273baaa8d37bfd1a31d06", 24,
			"23e0fd52d713c29fd5a765457c8b2778242e97e18a45eb8c191a00ff26886672", 452,
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			roots, err := FromBOCMultiRoot(fixtures.BOC(tc.name))
			require.NoError(t, err)
			require.Len(t, roots, 2)
			for _, root := range roots {
				require.Equal(t, MerkleProof, root.Type())
				assert.Equal(t, 0, root.Level())
			}

			blk, state := roots[0].Ref(0), roots[1].Ref(0)
			assert.Equal(t, tc.blockHash, hex.EncodeToString(blk.Hash(0)))
			assert.Equal(t, tc.blockDepth, blk.Depth(0))
			assert.Equal(t, tc.stateHash, hex.EncodeToString(state.Hash(0)))
			assert.Equal(t, tc.stateDepth, state.Depth(0))
			assert.Equal(t, 1, blk.Level())

			// the block's state update ends in the state proved next to it
			update := blk.Ref(2)
			require.Equal(t, MerkleUpdate, update.Type())
			assert.Equal(t, state.Hash(0), update.Data()[1+HashSize:1+2*HashSize])
			newState := update.Ref(1)
			require.Equal(t, PrunedBranch, newState.Type())
			assert.Equal(t, 2, newState.Level())
			assert.Equal(t, state.Hash(0), newState.Hash(0))

			for _, withIndex := range []bool{false, true} {
				back, err := FromBOCMultiRoot(ToBOCWithFlags(roots, withIndex, true))
				require.NoError(t, err)
				require.Len(t, back, 2)
				for i := range roots {
					assert.Equal(t, roots[i].RepresentationHash(), back[i].RepresentationHash())
				}
			}
		})
	}
}
