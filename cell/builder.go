package cell

import (
	"fmt"
	"math/big"
)

// Builder accumulates bits and refs for a new cell. The first error is
// remembered and returned by EndCell, so store calls can be chained.
type Builder struct {
	data []byte
	bits int
	refs []*Cell
	err  error
}

// BeginCell starts a new empty builder.
func BeginCell() *Builder {
	return &Builder{data: make([]byte, 0, (MaxBits+7)/8)}
}

// Err returns the first error encountered by the builder.
func (b *Builder) Err() error { return b.err }

// BitsUsed returns the number of bits stored so far.
func (b *Builder) BitsUsed() int { return b.bits }

// RefsUsed returns the number of refs stored so far.
func (b *Builder) RefsUsed() int { return len(b.refs) }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) appendBit(v bool) {
	if b.bits%8 == 0 {
		b.data = append(b.data, 0)
	}
	if v {
		b.data[b.bits/8] |= 0x80 >> uint(b.bits%8)
	}
	b.bits++
}

func (b *Builder) reserve(n int) bool {
	if b.err != nil {
		return false
	}
	if n < 0 || b.bits+n > MaxBits {
		b.fail(fmt.Errorf("%w: %d + %d bits", ErrCellOverflow, b.bits, n))
		return false
	}
	return true
}

// StoreBoolBit stores a single bit.
func (b *Builder) StoreBoolBit(v bool) *Builder {
	if b.reserve(1) {
		b.appendBit(v)
	}
	return b
}

// StoreUInt stores the n lowest bits of v, most significant first.
func (b *Builder) StoreUInt(v uint64, n int) *Builder {
	if n > 64 {
		return b.StoreBigUInt(new(big.Int).SetUint64(v), n)
	}
	if n < 64 && v>>uint(n) != 0 {
		return b.fail(fmt.Errorf("value %d does not fit in %d bits", v, n))
	}
	if !b.reserve(n) {
		return b
	}
	for i := n - 1; i >= 0; i-- {
		b.appendBit((v>>uint(i))&1 == 1)
	}
	return b
}

// StoreInt stores v as a two's complement n-bit integer.
func (b *Builder) StoreInt(v int64, n int) *Builder {
	if n <= 0 || n > 64 {
		return b.fail(fmt.Errorf("invalid int width %d", n))
	}
	if n < 64 {
		limit := int64(1) << uint(n-1)
		if v < -limit || v >= limit {
			return b.fail(fmt.Errorf("value %d does not fit in %d signed bits", v, n))
		}
	}
	u := uint64(v)
	if n < 64 {
		u &= 1<<uint(n) - 1
	}
	return b.StoreUInt(u, n)
}

// StoreBigUInt stores a non-negative integer in n bits.
func (b *Builder) StoreBigUInt(v *big.Int, n int) *Builder {
	if v.Sign() < 0 || v.BitLen() > n {
		return b.fail(fmt.Errorf("value %s does not fit in %d bits", v, n))
	}
	if !b.reserve(n) {
		return b
	}
	for i := n - 1; i >= 0; i-- {
		b.appendBit(v.Bit(i) == 1)
	}
	return b
}

// StoreBytes stores whole bytes.
func (b *Builder) StoreBytes(p []byte) *Builder {
	return b.StoreBits(p, len(p)*8)
}

// StoreBits stores the first n bits of p.
func (b *Builder) StoreBits(p []byte, n int) *Builder {
	if n > len(p)*8 {
		return b.fail(fmt.Errorf("%w: %d bits requested from %d bytes", ErrCellUnderflow, n, len(p)))
	}
	if !b.reserve(n) {
		return b
	}
	if b.bits%8 == 0 && n%8 == 0 {
		b.data = append(b.data, p[:n/8]...)
		b.bits += n
		return b
	}
	for i := 0; i < n; i++ {
		b.appendBit(p[i/8]&(0x80>>uint(i%8)) != 0)
	}
	return b
}

// StoreRef appends a child reference.
func (b *Builder) StoreRef(c *Cell) *Builder {
	if b.err != nil {
		return b
	}
	if c == nil {
		return b.fail(fmt.Errorf("nil ref"))
	}
	if len(b.refs) >= MaxRefs {
		return b.fail(fmt.Errorf("%w: more than %d refs", ErrCellOverflow, MaxRefs))
	}
	b.refs = append(b.refs, c)
	return b
}

// StoreMaybeRef stores a presence bit followed by the ref when c is not nil.
func (b *Builder) StoreMaybeRef(c *Cell) *Builder {
	if c == nil {
		return b.StoreBoolBit(false)
	}
	return b.StoreBoolBit(true).StoreRef(c)
}

// StoreSlice appends the remaining bits and refs of s. The slice is not
// consumed.
func (b *Builder) StoreSlice(s *Slice) *Builder {
	if b.err != nil {
		return b
	}
	if s == nil {
		return b.fail(fmt.Errorf("nil slice"))
	}
	if !b.reserve(s.BitsLeft()) {
		return b
	}
	for i := s.pos; i < s.bits; i++ {
		b.appendBit(s.data[i/8]&(0x80>>uint(i%8)) != 0)
	}
	for _, r := range s.refs[s.refPos:] {
		b.StoreRef(r)
	}
	return b
}

// StoreBuilder appends the contents of another builder.
func (b *Builder) StoreBuilder(o *Builder) *Builder {
	if o.err != nil {
		return b.fail(o.err)
	}
	b.StoreBits(o.data, o.bits)
	for _, r := range o.refs {
		b.StoreRef(r)
	}
	return b
}

func (b *Builder) snapshot() ([]byte, []*Cell) {
	data := make([]byte, len(b.data))
	copy(data, b.data)
	refs := make([]*Cell, len(b.refs))
	copy(refs, b.refs)
	return data, refs
}

// EndCell builds an ordinary cell.
func (b *Builder) EndCell() (*Cell, error) {
	if b.err != nil {
		return nil, b.err
	}
	data, refs := b.snapshot()
	return newCell(false, data, b.bits, refs)
}

// EndExoticCell builds an exotic cell; the first stored byte is its type.
func (b *Builder) EndExoticCell() (*Cell, error) {
	if b.err != nil {
		return nil, b.err
	}
	data, refs := b.snapshot()
	return newCell(true, data, b.bits, refs)
}

// EndCellAs builds an exotic cell when exotic is set, ordinary otherwise.
func (b *Builder) EndCellAs(exotic bool) (*Cell, error) {
	if exotic {
		return b.EndExoticCell()
	}
	return b.EndCell()
}
