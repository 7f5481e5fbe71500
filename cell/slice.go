package cell

import (
	"fmt"
	"math/big"
)

// Slice is a read cursor over the bits and refs of a cell.
type Slice struct {
	data   []byte
	bits   int
	pos    int
	refs   []*Cell
	refPos int
}

// BitsLeft returns the number of unread bits.
func (s *Slice) BitsLeft() int { return s.bits - s.pos }

// RefsLeft returns the number of unread refs.
func (s *Slice) RefsLeft() int { return len(s.refs) - s.refPos }

// Copy returns an independent cursor at the same position.
func (s *Slice) Copy() *Slice {
	cp := *s
	return &cp
}

func (s *Slice) need(n int) error {
	if n < 0 || s.pos+n > s.bits {
		return fmt.Errorf("%w: need %d bits, %d left", ErrCellUnderflow, n, s.BitsLeft())
	}
	return nil
}

func (s *Slice) bit(i int) bool {
	return s.data[i/8]&(0x80>>uint(i%8)) != 0
}

// LoadBit reads one bit.
func (s *Slice) LoadBit() (bool, error) {
	if err := s.need(1); err != nil {
		return false, err
	}
	v := s.bit(s.pos)
	s.pos++
	return v, nil
}

// LoadUInt reads an unsigned integer of n ≤ 64 bits.
func (s *Slice) LoadUInt(n int) (uint64, error) {
	if n > 64 {
		return 0, fmt.Errorf("cannot load %d bits into uint64", n)
	}
	if err := s.need(n); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < n; i++ {
		v <<= 1
		if s.bit(s.pos + i) {
			v |= 1
		}
	}
	s.pos += n
	return v, nil
}

// PreloadUInt reads an unsigned integer without advancing.
func (s *Slice) PreloadUInt(n int) (uint64, error) {
	return s.Copy().LoadUInt(n)
}

// LoadInt reads a two's complement integer of n ≤ 64 bits.
func (s *Slice) LoadInt(n int) (int64, error) {
	u, err := s.LoadUInt(n)
	if err != nil {
		return 0, err
	}
	if n > 0 && n < 64 && u&(1<<uint(n-1)) != 0 {
		u |= ^uint64(0) << uint(n)
	}
	return int64(u), nil
}

// LoadBigUInt reads an unsigned integer of arbitrary width.
func (s *Slice) LoadBigUInt(n int) (*big.Int, error) {
	if err := s.need(n); err != nil {
		return nil, err
	}
	v := new(big.Int)
	for i := 0; i < n; i++ {
		v.Lsh(v, 1)
		if s.bit(s.pos + i) {
			v.SetBit(v, 0, 1)
		}
	}
	s.pos += n
	return v, nil
}

// LoadBits reads n bits packed from the most significant bit of the first
// byte.
func (s *Slice) LoadBits(n int) ([]byte, error) {
	if err := s.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, (n+7)/8)
	if s.pos%8 == 0 {
		copy(out, s.data[s.pos/8:])
		if n%8 != 0 {
			out[len(out)-1] &= 0xFF << uint(8-n%8)
		}
	} else {
		for i := 0; i < n; i++ {
			if s.bit(s.pos + i) {
				out[i/8] |= 0x80 >> uint(i%8)
			}
		}
	}
	s.pos += n
	return out, nil
}

// LoadBytes reads n whole bytes.
func (s *Slice) LoadBytes(n int) ([]byte, error) {
	return s.LoadBits(n * 8)
}

// SkipBits advances the cursor by n bits.
func (s *Slice) SkipBits(n int) error {
	if err := s.need(n); err != nil {
		return err
	}
	s.pos += n
	return nil
}

// LoadRef reads the next child reference.
func (s *Slice) LoadRef() (*Cell, error) {
	if s.RefsLeft() == 0 {
		return nil, fmt.Errorf("%w: no refs left", ErrCellUnderflow)
	}
	r := s.refs[s.refPos]
	s.refPos++
	return r, nil
}

// PeekRef returns the i-th unread ref without advancing.
func (s *Slice) PeekRef(i int) (*Cell, error) {
	if i < 0 || i >= s.RefsLeft() {
		return nil, fmt.Errorf("%w: ref %d of %d", ErrCellUnderflow, i, s.RefsLeft())
	}
	return s.refs[s.refPos+i], nil
}

// LoadMaybeRef reads a presence bit and, when set, a ref.
func (s *Slice) LoadMaybeRef() (*Cell, error) {
	has, err := s.LoadBit()
	if err != nil || !has {
		return nil, err
	}
	return s.LoadRef()
}

// SkipRefs drops every unread ref.
func (s *Slice) SkipRefs() {
	s.refPos = len(s.refs)
}

// WithoutRefs returns a copy of the slice that only exposes the unread bits.
func (s *Slice) WithoutRefs() *Slice {
	cp := s.Copy()
	cp.SkipRefs()
	return cp
}

// ToCell builds an ordinary cell from the unread bits and refs.
func (s *Slice) ToCell() (*Cell, error) {
	return BeginCell().StoreSlice(s).EndCell()
}
