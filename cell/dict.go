package cell

import (
	"fmt"
	"math/big"
	"math/bits"
	"sort"
)

// Dictionary is a builder for a Hashmap with fixed-width unsigned keys.
// Values are stored inline in the leaves.
type Dictionary struct {
	keySize   int
	items     map[string]dictItem
	forkExtra *Cell
}

type dictItem struct {
	key   *big.Int
	value *Cell
}

// NewDict creates an empty dictionary with keys of keySize bits.
func NewDict(keySize int) *Dictionary {
	return &Dictionary{
		keySize: keySize,
		items:   make(map[string]dictItem),
	}
}

// KeySize returns the key width in bits.
func (d *Dictionary) KeySize() int { return d.keySize }

// Size returns the number of entries.
func (d *Dictionary) Size() int { return len(d.items) }

// SetForkExtra makes every fork carry the bits and refs of extra after its
// label, the way augmented dictionaries store the aggregate of a subtree.
func (d *Dictionary) SetForkExtra(extra *Cell) {
	d.forkExtra = extra
}

// Set stores value inline under key, replacing any previous value.
func (d *Dictionary) Set(key *big.Int, value *Cell) error {
	if key.Sign() < 0 || key.BitLen() > d.keySize {
		return fmt.Errorf("%w: key %s does not fit in %d bits", ErrInvalidDict, key, d.keySize)
	}
	if value == nil {
		delete(d.items, key.String())
		return nil
	}
	d.items[key.String()] = dictItem{key: new(big.Int).Set(key), value: value}
	return nil
}

// SetUint is Set for small keys.
func (d *Dictionary) SetUint(key uint64, value *Cell) error {
	return d.Set(new(big.Int).SetUint64(key), value)
}

// SetRef stores ref as the single reference of the value under key.
func (d *Dictionary) SetRef(key *big.Int, ref *Cell) error {
	v, err := BeginCell().StoreRef(ref).EndCell()
	if err != nil {
		return err
	}
	return d.Set(key, v)
}

// Get returns the value stored under key.
func (d *Dictionary) Get(key *big.Int) (*Slice, bool) {
	it, ok := d.items[key.String()]
	if !ok {
		return nil, false
	}
	return it.value.BeginParse(), true
}

// Keys returns the keys in ascending order.
func (d *Dictionary) Keys() []*big.Int {
	keys := make([]*big.Int, 0, len(d.items))
	for _, it := range d.items {
		keys = append(keys, it.key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Cmp(keys[j]) < 0 })
	return keys
}

// ToCell builds the root node of the dictionary, or nil when it is empty.
// Use StoreMaybeRef to embed it as a HashmapE.
func (d *Dictionary) ToCell() (*Cell, error) {
	if len(d.items) == 0 {
		return nil, nil
	}
	items := make([]dictItem, 0, len(d.items))
	for _, it := range d.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].key.Cmp(items[j].key) < 0 })
	return d.buildNode(items, 0, d.keySize)
}

// buildNode builds the subtree for items that share the first pos key bits;
// m bits of the key remain.
func (d *Dictionary) buildNode(items []dictItem, pos, m int) (*Cell, error) {
	first, last := items[0].key, items[len(items)-1].key

	// Keys are sorted, so the common prefix of the first and the last key is
	// shared by the whole range.
	n := 0
	for n < m && keyBit(first, d.keySize, pos+n) == keyBit(last, d.keySize, pos+n) {
		n++
	}

	label := make([]bool, n)
	for i := range label {
		label[i] = keyBit(first, d.keySize, pos+i)
	}

	b := BeginCell()
	storeLabel(b, label, m)

	if n == m {
		if len(items) != 1 {
			return nil, fmt.Errorf("%w: duplicate key %s", ErrInvalidDict, first)
		}
		b.StoreSlice(items[0].value.BeginParse())
		return b.EndCell()
	}

	split := sort.Search(len(items), func(i int) bool {
		return keyBit(items[i].key, d.keySize, pos+n)
	})
	left, err := d.buildNode(items[:split], pos+n+1, m-n-1)
	if err != nil {
		return nil, err
	}
	right, err := d.buildNode(items[split:], pos+n+1, m-n-1)
	if err != nil {
		return nil, err
	}
	b.StoreRef(left).StoreRef(right)
	if d.forkExtra != nil {
		b.StoreSlice(d.forkExtra.BeginParse())
	}
	return b.EndCell()
}

func keyBit(key *big.Int, keySize, i int) bool {
	return key.Bit(keySize-1-i) == 1
}

func labelLenBits(m int) int {
	return bits.Len(uint(m))
}

// storeLabel writes the shortest encoding of label for a node with m key
// bits left. Ties prefer the short form, then the long one.
func storeLabel(b *Builder, label []bool, m int) {
	n := len(label)
	k := labelLenBits(m)

	same := n > 0
	for _, v := range label {
		if v != label[0] {
			same = false
			break
		}
	}

	shortLen := 2*n + 2
	longLen := 2 + k + n
	sameLen := 3 + k

	switch {
	case shortLen <= longLen && (!same || shortLen <= sameLen):
		b.StoreBoolBit(false)
		for i := 0; i < n; i++ {
			b.StoreBoolBit(true)
		}
		b.StoreBoolBit(false)
		for _, v := range label {
			b.StoreBoolBit(v)
		}
	case !same || longLen <= sameLen:
		b.StoreUInt(0b10, 2).StoreUInt(uint64(n), k)
		for _, v := range label {
			b.StoreBoolBit(v)
		}
	default:
		b.StoreUInt(0b11, 2).StoreBoolBit(label[0]).StoreUInt(uint64(n), k)
	}
}

// LoadDictLabel reads a node label for a node with m key bits left and
// returns the label bits as an integer together with their count.
func LoadDictLabel(s *Slice, m int) (*big.Int, int, error) {
	first, err := s.LoadBit()
	if err != nil {
		return nil, 0, err
	}

	var n int
	if !first {
		// hml_short: unary length
		for {
			one, err := s.LoadBit()
			if err != nil {
				return nil, 0, err
			}
			if !one {
				break
			}
			n++
		}
	} else {
		second, err := s.LoadBit()
		if err != nil {
			return nil, 0, err
		}
		if second {
			// hml_same
			v, err := s.LoadBit()
			if err != nil {
				return nil, 0, err
			}
			ln, err := s.LoadUInt(labelLenBits(m))
			if err != nil {
				return nil, 0, err
			}
			n = int(ln)
			if n > m {
				return nil, 0, fmt.Errorf("%w: label length %d exceeds %d", ErrInvalidDict, n, m)
			}
			label := new(big.Int)
			if v {
				label.Lsh(big.NewInt(1), uint(n)).Sub(label, big.NewInt(1))
			}
			return label, n, nil
		}
		ln, err := s.LoadUInt(labelLenBits(m))
		if err != nil {
			return nil, 0, err
		}
		n = int(ln)
	}

	if n > m {
		return nil, 0, fmt.Errorf("%w: label length %d exceeds %d", ErrInvalidDict, n, m)
	}
	label, err := s.LoadBigUInt(n)
	if err != nil {
		return nil, 0, err
	}
	return label, n, nil
}

// ParseDict walks the Hashmap rooted at root and calls fn for every leaf in
// ascending key order. The slice passed to fn is positioned at the value.
// Pruned branches are skipped, so Merkle-reduced dictionaries can be read.
func ParseDict(root *Cell, keySize int, fn func(key *big.Int, value *Slice) error) error {
	if root == nil || root.Type() == PrunedBranch {
		return nil
	}
	return parseDictNode(root.BeginParse(), new(big.Int), keySize, fn)
}

// ParseDictSlice is ParseDict for a Hashmap stored inline: the root node is
// read from s, and s is left positioned after the root's fork refs (or after
// whatever fn consumed of a leaf value).
func ParseDictSlice(s *Slice, keySize int, fn func(key *big.Int, value *Slice) error) error {
	return parseDictNode(s, new(big.Int), keySize, fn)
}

func parseDictNode(s *Slice, prefix *big.Int, m int, fn func(*big.Int, *Slice) error) error {
	label, n, err := LoadDictLabel(s, m)
	if err != nil {
		return err
	}
	key := new(big.Int).Lsh(prefix, uint(n))
	key.Or(key, label)

	if n == m {
		return fn(key, s)
	}
	if s.RefsLeft() < 2 {
		return fmt.Errorf("%w: fork with %d refs", ErrInvalidDict, s.RefsLeft())
	}
	// Any fork extra of an augmented dictionary stays unread.
	for bit := uint(0); bit < 2; bit++ {
		child, _ := s.LoadRef()
		if child.Type() == PrunedBranch {
			continue
		}
		next := new(big.Int).Lsh(key, 1)
		next.SetBit(next, 0, bit)
		if err := parseDictNode(child.BeginParse(), next, m-n-1, fn); err != nil {
			return err
		}
	}
	return nil
}

// LoadDictE reads a HashmapE (presence bit and optional ref) and returns its
// entries as a dictionary builder.
func LoadDictE(s *Slice, keySize int) (*Dictionary, error) {
	root, err := s.LoadMaybeRef()
	if err != nil {
		return nil, err
	}
	d := NewDict(keySize)
	err = ParseDict(root, keySize, func(key *big.Int, value *Slice) error {
		v, err := value.ToCell()
		if err != nil {
			return err
		}
		return d.Set(key, v)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// DictLookup follows the path of key through the Hashmap rooted at root and
// returns the value slice. It fails with ErrInvalidDict when the key is absent
// or the path is pruned.
func DictLookup(root *Cell, keySize int, key *big.Int) (*Slice, error) {
	c := root
	m := keySize
	pos := 0
	for c != nil {
		if c.IsExotic() {
			return nil, fmt.Errorf("%w: key %s is behind a %s cell", ErrInvalidDict, key, c.Type())
		}
		s := c.BeginParse()
		label, n, err := LoadDictLabel(s, m)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			if (label.Bit(n-1-i) == 1) != keyBit(key, keySize, pos+i) {
				return nil, fmt.Errorf("%w: key %s not found", ErrInvalidDict, key)
			}
		}
		pos += n
		m -= n
		if m == 0 {
			return s, nil
		}
		idx := 0
		if keyBit(key, keySize, pos) {
			idx = 1
		}
		if c, err = s.PeekRef(idx); err != nil {
			return nil, err
		}
		pos++
		m--
	}
	return nil, fmt.Errorf("%w: key %s not found", ErrInvalidDict, key)
}
