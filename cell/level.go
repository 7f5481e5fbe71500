package cell

import "math/bits"

// LevelMask records which Merkle levels of a cell carry a distinct hash.
// Bit i set means the hash at level i+1 differs from the hash at level i.
type LevelMask uint8

// Level is the highest significant level of the mask (0..3).
func (m LevelMask) Level() int {
	return bits.Len8(uint8(m))
}

// Apply restricts the mask to levels strictly below level.
func (m LevelMask) Apply(level int) LevelMask {
	if level >= MaxLevel {
		return m & (1<<MaxLevel - 1)
	}
	if level <= 0 {
		return 0
	}
	return m & (1<<uint(level) - 1)
}

// HashIndex is the position of the level's hash among the cell's stored
// hashes.
func (m LevelMask) HashIndex() int {
	return bits.OnesCount8(uint8(m))
}

// HashCount is the number of distinct hashes a cell with this mask has.
func (m LevelMask) HashCount() int {
	return m.HashIndex() + 1
}

// IsSignificant reports whether a separate hash is computed at level.
func (m LevelMask) IsSignificant(level int) bool {
	return level == 0 || (m>>uint(level-1))&1 != 0
}

// MaskForLevel returns the mask with every level below level significant.
func MaskForLevel(level int) LevelMask {
	if level <= 0 {
		return 0
	}
	return LevelMask(1<<uint(level) - 1)
}
