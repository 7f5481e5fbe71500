package cell

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	MaxBits  = 1023
	MaxRefs  = 4
	MaxLevel = 3
	MaxDepth = 1024

	HashSize = sha256.Size
)

// Type is the kind of a cell. Ordinary cells carry plain data; every other
// type is exotic and is interpreted by the hashing rules below.
type Type uint8

const (
	Ordinary Type = iota
	PrunedBranch
	LibraryRef
	MerkleProof
	MerkleUpdate
)

func (t Type) String() string {
	switch t {
	case Ordinary:
		return "ordinary"
	case PrunedBranch:
		return "pruned_branch"
	case LibraryRef:
		return "library"
	case MerkleProof:
		return "merkle_proof"
	case MerkleUpdate:
		return "merkle_update"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

const (
	prunedHeaderBits = 16
	merkleProofBits  = 8 + 8*HashSize + 16
	merkleUpdateBits = 8 + 2*(8*HashSize+16)
	libraryBits      = 8 + 8*HashSize
)

// Cell is an immutable node of a TON cell tree. Hashes and depths for every
// significant level are computed once on construction.
type Cell struct {
	typ  Type
	mask LevelMask
	bits int
	data []byte
	refs []*Cell

	hashes [][]byte
	depths []uint16
}

func newCell(exotic bool, data []byte, bitsLen int, refs []*Cell) (*Cell, error) {
	if bitsLen > MaxBits {
		return nil, fmt.Errorf("%w: %d bits", ErrCellOverflow, bitsLen)
	}
	if len(refs) > MaxRefs {
		return nil, fmt.Errorf("%w: %d refs", ErrCellOverflow, len(refs))
	}

	c := &Cell{
		typ:  Ordinary,
		bits: bitsLen,
		data: data,
		refs: refs,
	}
	if exotic {
		if bitsLen < 8 {
			return nil, fmt.Errorf("%w: not enough bits for a type byte", ErrInvalidExotic)
		}
		c.typ = Type(data[0])
		if c.typ == Ordinary {
			return nil, fmt.Errorf("%w: zero type byte", ErrInvalidExotic)
		}
	}

	if err := c.initLevelMask(); err != nil {
		return nil, err
	}
	if err := c.initHashes(); err != nil {
		return nil, err
	}
	if err := c.validateMerkle(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cell) initLevelMask() error {
	switch c.typ {
	case Ordinary:
		for _, r := range c.refs {
			c.mask |= r.mask
		}

	case PrunedBranch:
		if len(c.refs) != 0 || c.bits < prunedHeaderBits {
			return fmt.Errorf("%w: pruned branch with %d bits and %d refs", ErrInvalidExotic, c.bits, len(c.refs))
		}
		c.mask = LevelMask(c.data[1])
		if c.mask == 0 || c.mask.Level() > MaxLevel {
			return fmt.Errorf("%w: pruned branch level mask %d", ErrInvalidExotic, c.data[1])
		}
		if want := prunedHeaderBits + c.mask.HashIndex()*(8*HashSize+16); c.bits != want {
			return fmt.Errorf("%w: pruned branch has %d bits, want %d", ErrInvalidExotic, c.bits, want)
		}

	case LibraryRef:
		if len(c.refs) != 0 || c.bits != libraryBits {
			return fmt.Errorf("%w: library cell with %d bits and %d refs", ErrInvalidExotic, c.bits, len(c.refs))
		}

	case MerkleProof:
		if len(c.refs) != 1 || c.bits != merkleProofBits {
			return fmt.Errorf("%w: merkle proof with %d bits and %d refs", ErrInvalidExotic, c.bits, len(c.refs))
		}
		c.mask = c.refs[0].mask >> 1

	case MerkleUpdate:
		if len(c.refs) != 2 || c.bits != merkleUpdateBits {
			return fmt.Errorf("%w: merkle update with %d bits and %d refs", ErrInvalidExotic, c.bits, len(c.refs))
		}
		c.mask = (c.refs[0].mask | c.refs[1].mask) >> 1

	default:
		return fmt.Errorf("%w: unknown type %d", ErrInvalidExotic, uint8(c.typ))
	}
	return nil
}

func (c *Cell) initHashes() error {
	hashCount := c.mask.HashCount()
	c.hashes = make([][]byte, hashCount)
	c.depths = make([]uint16, hashCount)

	// A pruned branch stores the hashes and depths of the levels below its
	// own; only its representation hash is computed.
	offset := 0
	if c.typ == PrunedBranch {
		offset = hashCount - 1
		depthBase := 2 + offset*HashSize
		for i := 0; i < offset; i++ {
			c.hashes[i] = c.data[2+i*HashSize : 2+(i+1)*HashSize]
			c.depths[i] = binary.BigEndian.Uint16(c.data[depthBase+2*i:])
		}
	}

	childShift := 0
	if c.typ == MerkleProof || c.typ == MerkleUpdate {
		childShift = 1
	}

	level := c.mask.Level()
	hi := 0
	for li := 0; li <= level; li++ {
		if !c.mask.IsSignificant(li) {
			continue
		}
		if hi < offset {
			hi++
			continue
		}

		h := sha256.New()
		d1, d2 := c.descriptors(c.mask.Apply(li))
		h.Write([]byte{d1, d2})
		if hi == offset {
			h.Write(c.paddedData())
		} else {
			h.Write(c.hashes[hi-1])
		}

		var depth uint16
		var buf [2]byte
		for _, r := range c.refs {
			d := r.Depth(li + childShift)
			binary.BigEndian.PutUint16(buf[:], d)
			h.Write(buf[:])
			if d+1 > depth {
				depth = d + 1
			}
		}
		if depth > MaxDepth {
			return fmt.Errorf("%w: depth %d exceeds %d", ErrCellOverflow, depth, MaxDepth)
		}
		for _, r := range c.refs {
			h.Write(r.Hash(li + childShift))
		}

		c.hashes[hi] = h.Sum(nil)
		c.depths[hi] = depth
		hi++
	}
	return nil
}

func (c *Cell) validateMerkle() error {
	switch c.typ {
	case MerkleProof:
		return checkMerkleRef(c.data[1:], c.data[1+HashSize:], c.refs[0])
	case MerkleUpdate:
		if err := checkMerkleRef(c.data[1:], c.data[1+2*HashSize:], c.refs[0]); err != nil {
			return err
		}
		return checkMerkleRef(c.data[1+HashSize:], c.data[3+2*HashSize:], c.refs[1])
	}
	return nil
}

func checkMerkleRef(hash, depth []byte, ref *Cell) error {
	if !bytes.Equal(hash[:HashSize], ref.Hash(0)) {
		return fmt.Errorf("%w: stored hash %x does not match child hash %x", ErrInvalidExotic, hash[:HashSize], ref.Hash(0))
	}
	if d := binary.BigEndian.Uint16(depth); d != ref.Depth(0) {
		return fmt.Errorf("%w: stored depth %d does not match child depth %d", ErrInvalidExotic, d, ref.Depth(0))
	}
	return nil
}

func (c *Cell) descriptors(mask LevelMask) (byte, byte) {
	d1 := byte(len(c.refs)) + 32*byte(mask)
	if c.IsExotic() {
		d1 += 8
	}
	d2 := byte(c.bits/8 + (c.bits+7)/8)
	return d1, d2
}

// paddedData returns the data with the completion tag appended when the bit
// length is not a multiple of eight.
func (c *Cell) paddedData() []byte {
	if c.bits%8 == 0 {
		return c.data
	}
	out := make([]byte, len(c.data))
	copy(out, c.data)
	out[c.bits/8] |= 0x80 >> uint(c.bits%8)
	return out
}

// Type returns the cell type.
func (c *Cell) Type() Type { return c.typ }

// IsExotic reports whether the cell is not an ordinary cell.
func (c *Cell) IsExotic() bool { return c.typ != Ordinary }

// LevelMask returns the level mask of the cell.
func (c *Cell) LevelMask() LevelMask { return c.mask }

// Level returns the highest significant Merkle level of the cell.
func (c *Cell) Level() int { return c.mask.Level() }

// BitsSize returns the number of data bits.
func (c *Cell) BitsSize() int { return c.bits }

// RefsNum returns the number of child references.
func (c *Cell) RefsNum() int { return len(c.refs) }

// Ref returns the i-th child or nil when out of range.
func (c *Cell) Ref(i int) *Cell {
	if i < 0 || i >= len(c.refs) {
		return nil
	}
	return c.refs[i]
}

// Refs returns a copy of the child list.
func (c *Cell) Refs() []*Cell {
	out := make([]*Cell, len(c.refs))
	copy(out, c.refs)
	return out
}

// Data returns a copy of the data bytes. Bits past BitsSize are zero.
func (c *Cell) Data() []byte {
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

// Hash returns the hash of the cell at the given level. Levels above the
// cell's own level return the representation hash. The returned slice must
// not be modified.
func (c *Cell) Hash(level int) []byte {
	return c.hashes[c.mask.Apply(level).HashIndex()]
}

// Depth returns the depth of the cell at the given level.
func (c *Cell) Depth(level int) uint16 {
	return c.depths[c.mask.Apply(level).HashIndex()]
}

// RepresentationHash returns the hash of the cell as it is serialized.
func (c *Cell) RepresentationHash() []byte {
	return c.Hash(MaxLevel)
}

// HashKey returns the level-0 hash as a fixed size array, convenient as a map
// key during traversals.
func (c *Cell) HashKey() [HashSize]byte {
	var k [HashSize]byte
	copy(k[:], c.Hash(0))
	return k
}

// BeginParse returns a slice over the cell's data and refs. Exotic cells can
// be parsed as well; their first byte is the type tag.
func (c *Cell) BeginParse() *Slice {
	return &Slice{
		data: c.data,
		bits: c.bits,
		refs: c.refs,
	}
}

// ToBuilder returns a builder preloaded with the cell's bits and refs.
func (c *Cell) ToBuilder() *Builder {
	return BeginCell().StoreSlice(c.BeginParse())
}

func (c *Cell) String() string {
	var sb strings.Builder
	c.dump(&sb, 0)
	return sb.String()
}

func (c *Cell) dump(sb *strings.Builder, indent int) {
	sb.WriteString(strings.Repeat("  ", indent))
	if c.IsExotic() {
		fmt.Fprintf(sb, "%s ", c.typ)
	}
	fmt.Fprintf(sb, "%d[%s]", c.bits, strings.ToUpper(hex.EncodeToString(c.data)))
	sb.WriteByte('\n')
	for _, r := range c.refs {
		r.dump(sb, indent+1)
	}
}
