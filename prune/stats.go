package prune

import "github.com/tonred/ton-trustless-bridge/cell"

// Stats summarises the unique cells of a subtree.
type Stats struct {
	Bits    int
	Cells   int
	Pruned  int
	Proofs  int
	Updates int
}

// CalcStats walks the subtree of c once per distinct cell. The root is only
// counted when countRoot is set.
func CalcStats(c *cell.Cell, countRoot bool) Stats {
	var st Stats
	visited := make(map[string]struct{})

	var walk func(c *cell.Cell, count bool)
	walk = func(c *cell.Cell, count bool) {
		if count {
			st.Bits += c.BitsSize()
			st.Cells++
		}
		for _, r := range c.Refs() {
			key := string(r.RepresentationHash())
			if _, ok := visited[key]; ok {
				continue
			}
			visited[key] = struct{}{}

			switch r.Type() {
			case cell.PrunedBranch:
				st.Pruned++
			case cell.MerkleProof:
				st.Proofs++
			case cell.MerkleUpdate:
				st.Updates++
			}
			walk(r, true)
		}
	}
	walk(c, countRoot)
	return st
}
