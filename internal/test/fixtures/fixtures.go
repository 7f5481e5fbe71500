// Package fixtures holds bags of cells captured from the TON fastnet.
//
//   - block_state_proof.boc: two roots, a Merkle proof of basechain block
//     29549799 and a Merkle proof of its shard state down to one account.
//   - shard_state_proof.boc: two roots, a Merkle proof of masterchain block
//     27775756 and of its state down to the basechain shard descriptor.
//   - account_state.boc: the full account cell proved by the state proof.
package fixtures

import (
	"embed"
	"fmt"
)

const (
	BlockStateProof = "block_state_proof.boc"
	ShardStateProof = "shard_state_proof.boc"
	AccountState    = "account_state.boc"
)

//go:embed testdata/*.boc
var files embed.FS

// BOC returns the raw bytes of the named fixture.
func BOC(name string) []byte {
	bz, err := files.ReadFile("testdata/" + name)
	if err != nil {
		panic(fmt.Sprintf("fixture %s: %v", name, err))
	}
	return bz
}
