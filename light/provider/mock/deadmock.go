package mock

import (
	"context"

	"github.com/tonred/ton-trustless-bridge/light/provider"
	"github.com/tonred/ton-trustless-bridge/types"
)

type deadMock struct {
	id string
}

// NewDeadMock creates a mock provider that always errors. id is used in the
// String method.
func NewDeadMock(id string) provider.Provider {
	return &deadMock{id: id}
}

func (p *deadMock) String() string { return p.id }

func (p *deadMock) MasterchainInfo(context.Context) (*provider.MasterchainInfo, error) {
	return nil, provider.ErrNoResponse
}

func (p *deadMock) LookupBlock(context.Context, int32, int64, uint32) (*provider.BlockID, error) {
	return nil, provider.ErrNoResponse
}

func (p *deadMock) Block(context.Context, provider.BlockID) ([]byte, error) {
	return nil, provider.ErrNoResponse
}

func (p *deadMock) BlockHeader(context.Context, provider.BlockID) (*provider.BlockHeader, error) {
	return nil, provider.ErrNoResponse
}

func (p *deadMock) MasterchainBlockSignatures(context.Context, uint32) ([]types.BlockSignature, error) {
	return nil, provider.ErrNoResponse
}
