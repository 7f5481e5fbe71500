package types_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/internal/test/factory"
	"github.com/tonred/ton-trustless-bridge/types"
)

func trustedState(t *testing.T) *types.TrustedState {
	t.Helper()

	vals, _ := factory.ValidatorSet("trusted", 6, 4)
	full, err := types.ValidatorListCell(vals.Validators)
	require.NoError(t, err)
	list, cutoff, err := types.PrepareValidatorsList(4, full)
	require.NoError(t, err)

	return &types.TrustedState{
		Seqno:      1000,
		UTimeSince: vals.UTimeSince,
		UTimeUntil: vals.UTimeUntil,
		Cutoff:     cutoff,
		ID:         3,
		Validators: list,
	}
}

func TestTrustedStateCell(t *testing.T) {
	state := trustedState(t)

	c, err := state.ToCell()
	require.NoError(t, err)
	assert.Equal(t, 32*3+64+32, c.BitsSize())
	assert.Equal(t, 1, c.RefsNum())

	got, err := types.TrustedStateFromCell(c)
	require.NoError(t, err)
	assert.Equal(t, state.Seqno, got.Seqno)
	assert.Equal(t, state.UTimeSince, got.UTimeSince)
	assert.Equal(t, state.UTimeUntil, got.UTimeUntil)
	assert.Equal(t, 0, state.Cutoff.Cmp(got.Cutoff))
	assert.Equal(t, state.ID, got.ID)
	assert.Equal(t, state.Validators.Hash(0), got.Validators.Hash(0))

	main, err := got.MainValidators()
	require.NoError(t, err)
	require.Len(t, main, 4)
	assert.Equal(t, 0, types.CutoffWeight(types.TotalWeight(main)).Cmp(got.Cutoff))
}

func TestTrustedStateValidateBasic(t *testing.T) {
	testCases := []struct {
		name     string
		malleate func(*types.TrustedState)
		expErr   bool
	}{
		{"valid", func(*types.TrustedState) {}, false},
		{"nil cutoff", func(s *types.TrustedState) { s.Cutoff = nil }, true},
		{"zero cutoff", func(s *types.TrustedState) { s.Cutoff = big.NewInt(0) }, true},
		{"cutoff over 64 bits", func(s *types.TrustedState) { s.Cutoff = new(big.Int).Lsh(big.NewInt(1), 64) }, true},
		{"nil validators", func(s *types.TrustedState) { s.Validators = nil }, true},
		{"inverted epoch", func(s *types.TrustedState) { s.UTimeUntil = s.UTimeSince - 1 }, true},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			state := trustedState(t)
			tc.malleate(state)
			err := state.ValidateBasic()
			if tc.expErr {
				assert.Error(t, err)
				_, err = state.ToCell()
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	var nilState *types.TrustedState
	assert.Error(t, nilState.ValidateBasic())
}

func TestTrustedStateFromCellTruncated(t *testing.T) {
	c, err := cell.BeginCell().StoreUInt(1000, 32).EndCell()
	require.NoError(t, err)

	_, err = types.TrustedStateFromCell(c)
	require.Error(t, err)
	assert.True(t, types.IsErrStructural(err))
}
